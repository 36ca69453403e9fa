package calib

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/mkrall/spherecal/config"
)

const defaultPollTimeout = 5 * time.Millisecond

// Deps are the session's collaborators. Logger and PollTimeout are
// optional.
type Deps struct {
	Store       Store
	Geom        Geometry
	Display     Display
	Prompter    Prompter
	Events      EventSource
	Logger      *slog.Logger
	PollTimeout time.Duration
}

// Session owns the calibration workflow state. All mutation happens on
// the goroutine running Run; the session must not be used reentrantly.
type Session struct {
	store   Store
	geo     Geometry
	display Display
	prompt  Prompter
	events  EventSource
	logger  *slog.Logger
	poll    time.Duration

	stage   Stage
	circPts []image.Point
	circle  *Circle
	polys   [][]image.Point
	sqrPts  []image.Point
	square  *Transform
	method  Method
	mirror  bool
	cursor  image.Point
	dirty   bool
	failed  bool
}

func NewSession(d Deps) *Session {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poll := d.PollTimeout
	if poll <= 0 {
		poll = defaultPollTimeout
	}
	return &Session{
		store:   d.Store,
		geo:     d.Geom,
		display: d.Display,
		prompt:  d.Prompter,
		events:  d.Events,
		logger:  logger,
		poll:    poll,
	}
}

// Run drives the workflow to completion and reports overall success.
// Whatever the outcome, the annotated snapshot is written and a final
// status is logged before returning.
func (s *Session) Run() bool {
	s.setStage(StageCircumferenceInit)
	for s.stage != StageExit {
		if s.dirty {
			s.recompute()
			s.dirty = false
		}
		s.render()
		if s.interactive() {
			s.step(s.events.Poll(s.poll))
		} else {
			s.step(Event{})
		}
	}
	s.finish()
	return !s.failed
}

// interactive reports whether the current stage is driven by surface
// events rather than blocking console prompts.
func (s *Session) interactive() bool {
	switch s.stage {
	case StageCircumferencePoints, StageIgnorePoints,
		StageSquareXY, StageSquareYZ, StageSquareXZ:
		return true
	}
	return false
}

func (s *Session) step(ev Event) {
	if ev.Kind == EventMove {
		s.cursor = ev.Pos
	}
	switch s.stage {
	case StageCircumferenceInit:
		s.circumferenceInit()
	case StageCircumferencePoints:
		s.circumferencePoints(ev)
	case StageIgnoreInit:
		s.ignoreInit()
	case StageIgnorePoints:
		s.ignorePoints(ev)
	case StageRegionMethodInit:
		s.regionMethodInit()
	case StageMethodSelect:
		s.methodSelect()
	case StageSquareXY, StageSquareYZ, StageSquareXZ:
		s.squareCorners(ev)
	case StageExternal:
		s.externalTransform()
	default:
		s.logger.Error("unhandled calibration stage", "stage", s.stage.String())
		s.failed = true
		s.stage = StageExit
	}
}

func (s *Session) circumferenceInit() {
	pts, err := s.loadCircPoints()
	switch {
	case err != nil:
		if s.store.Has(config.KeyRoiCirc) {
			s.logger.Warn("stored circumference points unusable; collecting again", "err", err)
		}
	case len(pts) >= 3:
		s.circPts = pts
		s.recompute()
		s.render()
		if s.prompt.KeepExisting("sphere circumference points") {
			s.setStage(StageIgnoreInit)
			return
		}
	}
	s.circPts = nil
	s.circle = nil
	s.prompt.Instruct(StageCircumferencePoints)
	s.setStage(StageCircumferencePoints)
}

func (s *Session) circumferencePoints(ev Event) {
	switch ev.Kind {
	case EventLeftClick:
		s.circPts = append(s.circPts, ev.Pos)
		s.dirty = true
	case EventRightClick:
		if n := len(s.circPts); n > 0 {
			s.circPts = s.circPts[:n-1]
			s.dirty = true
		}
	case EventCommit:
		if len(s.circPts) < 3 {
			s.logger.Warn("at least 3 circumference points are needed", "have", len(s.circPts))
			return
		}
		s.store.SetInts(config.KeyRoiCirc, flattenPoints(s.circPts))
		s.persist()
		s.setStage(StageIgnoreInit)
	case EventCancel:
		s.cancel()
	}
}

func (s *Session) ignoreInit() {
	polys, err := s.loadPolys()
	switch {
	case err != nil:
		if s.store.Has(config.KeyRoiIgnr) {
			s.logger.Warn("stored ignore regions unusable; collecting again", "err", err)
		}
	case len(polys) > 0:
		s.polys = polys
		s.render()
		if s.prompt.KeepExisting("ignore regions") {
			s.setStage(StageRegionMethodInit)
			return
		}
	}
	s.polys = nil
	s.prompt.Instruct(StageIgnorePoints)
	s.setStage(StageIgnorePoints)
}

func (s *Session) ignorePoints(ev Event) {
	switch ev.Kind {
	case EventLeftClick:
		if len(s.polys) == 0 {
			s.polys = append(s.polys, nil)
		}
		last := len(s.polys) - 1
		s.polys[last] = append(s.polys[last], ev.Pos)
		s.dirty = true
	case EventRightClick:
		n := len(s.polys)
		if n == 0 {
			return
		}
		if pts := s.polys[n-1]; len(pts) > 0 {
			s.polys[n-1] = pts[:len(pts)-1]
		}
		if len(s.polys[n-1]) == 0 {
			s.polys = s.polys[:n-1]
		}
		s.dirty = true
	case EventCommit:
		n := len(s.polys)
		if n == 0 || len(s.polys[n-1]) == 0 {
			// An empty active region means the user is done; drop it
			// and persist whatever closed regions remain.
			if n > 0 {
				s.polys = s.polys[:n-1]
			}
			s.store.SetPolys(config.KeyRoiIgnr, flattenPolys(s.polys))
			s.persist()
			s.setStage(StageRegionMethodInit)
			return
		}
		s.polys = append(s.polys, nil)
		s.dirty = true
	case EventCancel:
		s.cancel()
	}
}

func (s *Session) regionMethodInit() {
	if !s.store.Has(config.KeyC2ASrc) {
		s.toMethodSelect()
		return
	}
	srcKey, err := s.store.String(config.KeyC2ASrc)
	if err != nil {
		s.logger.Warn("stored transform method unusable; selecting again", "err", err)
		s.toMethodSelect()
		return
	}
	r, errR := s.store.Floats(config.KeyC2AR)
	t, errT := s.store.Floats(config.KeyC2AT)
	if errR != nil || errT != nil || len(r) != 3 || len(t) != 3 {
		s.logger.Warn("stored transform unusable; selecting method again", "key", srcKey)
		s.toMethodSelect()
		return
	}
	tr := &Transform{
		Rot:   r3.Vector{X: r[0], Y: r[1], Z: r[2]},
		Trans: r3.Vector{X: t[0], Y: t[1], Z: t[2]},
	}
	if srcKey != config.C2ASrcExternal {
		m, ok := methodForCornerKey(srcKey)
		if !ok {
			s.logger.Warn("unknown transform method tag; selecting again", "tag", srcKey)
			s.toMethodSelect()
			return
		}
		flat, err := s.store.Ints(srcKey)
		if err != nil || len(flat) != 8 {
			s.logger.Warn("stored square corners unusable; selecting method again", "key", srcKey)
			s.toMethodSelect()
			return
		}
		pts, err := pointsFromFlat(flat)
		if err != nil {
			s.toMethodSelect()
			return
		}
		s.sqrPts = pts
		s.method = m
		tr.Plane = m.plane()
		tr.HasPlane = true
	}
	s.square = tr
	s.render()
	if s.prompt.KeepExisting("camera-to-subject transform") {
		s.setStage(StageExit)
		return
	}
	s.toMethodSelect()
}

func (s *Session) toMethodSelect() {
	s.sqrPts = nil
	s.square = nil
	s.setStage(StageMethodSelect)
}

func (s *Session) methodSelect() {
	s.method = s.prompt.SelectMethod()
	s.mirror = false
	s.sqrPts = nil
	s.square = nil
	next := s.method.stage()
	s.prompt.Instruct(next)
	s.setStage(next)
}

func (s *Session) squareCorners(ev Event) {
	switch ev.Kind {
	case EventLeftClick:
		s.sqrPts = append(s.sqrPts, ev.Pos)
		s.dirty = true
	case EventRightClick:
		if n := len(s.sqrPts); n > 0 {
			s.sqrPts = s.sqrPts[:n-1]
			s.dirty = true
		}
	case EventMirror:
		s.mirror = !s.mirror
		s.dirty = true
	case EventCommit:
		if len(s.sqrPts) != 4 || s.square == nil {
			s.logger.Warn("commit needs exactly 4 corners and a valid pose",
				"corners", len(s.sqrPts), "solved", s.square != nil)
			return
		}
		key := s.method.cornerKey()
		s.store.SetInts(key, flattenPoints(s.sqrPts))
		s.store.SetString(config.KeyC2ASrc, key)
		s.store.SetFloats(config.KeyC2AR,
			[]float64{s.square.Rot.X, s.square.Rot.Y, s.square.Rot.Z})
		s.store.SetFloats(config.KeyC2AT,
			[]float64{s.square.Trans.X, s.square.Trans.Y, s.square.Trans.Z})
		s.persist()
		s.setStage(StageExit)
	case EventCancel:
		s.cancel()
	}
}

func (s *Session) externalTransform() {
	if !s.store.Has(config.KeyC2AR) {
		s.store.SetFloats(config.KeyC2AR, []float64{0, 0, 0})
	}
	if !s.store.Has(config.KeyC2AT) {
		s.store.SetFloats(config.KeyC2AT, []float64{0, 0, 0})
	}
	s.store.SetString(config.KeyC2ASrc, config.C2ASrcExternal)
	s.persist()
	s.setStage(StageExit)
}

// cancel handles Escape: jump straight to Exit keeping accumulated data.
// Stages were skipped, so the run is reported as needing a re-run.
func (s *Session) cancel() {
	s.logger.Info("calibration cancelled", "stage", s.stage.String())
	s.failed = true
	s.stage = StageExit
}

func (s *Session) recompute() {
	switch s.stage {
	case StageCircumferenceInit, StageCircumferencePoints:
		if len(s.circPts) < 3 {
			s.circle = nil
			return
		}
		axis, rad, err := s.geo.FitCircle(s.circPts)
		if err != nil {
			s.logger.Warn("circle fit failed", "points", len(s.circPts), "err", err)
			s.circle = nil
			return
		}
		s.circle = &Circle{Axis: axis, AngRadius: rad}
	case StageSquareXY, StageSquareYZ, StageSquareXZ:
		if len(s.sqrPts) != 4 {
			s.square = nil
			return
		}
		rot, trans, err := s.geo.SolveSquarePose(s.method.plane(), s.sqrPts, s.mirror)
		if err != nil {
			s.logger.Warn("square pose solve failed", "err", err)
			s.square = nil
			return
		}
		s.square = &Transform{Plane: s.method.plane(), HasPlane: true, Rot: rot, Trans: trans}
	}
}

func (s *Session) render() {
	if err := s.display.Render(s.scene()); err != nil {
		s.logger.Warn("render failed", "err", err)
	}
}

func (s *Session) scene() Scene {
	zoom := false
	switch s.stage {
	case StageCircumferencePoints, StageIgnorePoints,
		StageSquareXY, StageSquareYZ, StageSquareXZ:
		zoom = true
	}
	return Scene{
		CircPts: s.circPts,
		Circle:  s.circle,
		Polys:   s.polys,
		SqrPts:  s.sqrPts,
		Square:  s.square,
		Cursor:  s.cursor,
		Zoom:    zoom,
	}
}

func (s *Session) finish() {
	cfgPath := s.store.Path()
	snap := strings.TrimSuffix(cfgPath, filepath.Ext(cfgPath)) + "-configImg.png"
	if err := s.display.Snapshot(s.scene(), snap); err != nil {
		s.logger.Warn("failed to write annotated snapshot", "path", snap, "err", err)
	}
	if s.failed {
		s.logger.Warn("calibration incomplete; re-run configuration", "config", cfgPath)
		return
	}
	s.logger.Info("calibration complete", "config", cfgPath, "snapshot", snap)
}

func (s *Session) persist() {
	if err := s.store.Save(); err != nil {
		s.logger.Warn("failed to write configuration; continuing with partial results", "err", err)
		s.failed = true
	}
}

func (s *Session) setStage(st Stage) {
	if st != s.stage {
		s.logger.Debug("stage transition", "from", s.stage.String(), "to", st.String())
	}
	s.stage = st
	s.dirty = true
}

func (s *Session) loadCircPoints() ([]image.Point, error) {
	flat, err := s.store.Ints(config.KeyRoiCirc)
	if err != nil {
		return nil, err
	}
	return pointsFromFlat(flat)
}

func (s *Session) loadPolys() ([][]image.Point, error) {
	raw, err := s.store.Polys(config.KeyRoiIgnr)
	if err != nil {
		return nil, err
	}
	polys := make([][]image.Point, 0, len(raw))
	for _, flat := range raw {
		pts, err := pointsFromFlat(flat)
		if err != nil {
			return nil, err
		}
		polys = append(polys, pts)
	}
	return polys, nil
}

func pointsFromFlat(v []int) ([]image.Point, error) {
	if len(v)%2 != 0 {
		return nil, fmt.Errorf("calib: odd coordinate count %d", len(v))
	}
	pts := make([]image.Point, 0, len(v)/2)
	for i := 0; i+1 < len(v); i += 2 {
		pts = append(pts, image.Pt(v[i], v[i+1]))
	}
	return pts, nil
}

func flattenPoints(pts []image.Point) []int {
	flat := make([]int, 0, 2*len(pts))
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

func flattenPolys(polys [][]image.Point) [][]int {
	flat := make([][]int, 0, len(polys))
	for _, poly := range polys {
		flat = append(flat, flattenPoints(poly))
	}
	return flat
}
