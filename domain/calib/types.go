// Package calib drives the interactive calibration workflow: a
// single-threaded state machine that collects clicked geometry, fits it
// through collaborator solvers, and eagerly persists each completed
// stage to the configuration store.
package calib

import (
	"image"
	"time"

	"github.com/golang/geo/r3"

	"github.com/mkrall/spherecal/config"
	"github.com/mkrall/spherecal/geom"
)

// Stage identifies the active step of the calibration workflow. Exactly
// one stage is active; transitions are one-directional except the
// keep/redo loops re-entering point collection.
type Stage int

const (
	StageCircumferenceInit Stage = iota
	StageCircumferencePoints
	StageIgnoreInit
	StageIgnorePoints
	StageRegionMethodInit
	StageMethodSelect
	StageSquareXY
	StageSquareYZ
	StageSquareXZ
	StageExternal
	StageExit
)

func (s Stage) String() string {
	switch s {
	case StageCircumferenceInit:
		return "circumference_init"
	case StageCircumferencePoints:
		return "circumference_points"
	case StageIgnoreInit:
		return "ignore_init"
	case StageIgnorePoints:
		return "ignore_points"
	case StageRegionMethodInit:
		return "region_method_init"
	case StageMethodSelect:
		return "method_select"
	case StageSquareXY:
		return "square_corners_xy"
	case StageSquareYZ:
		return "square_corners_yz"
	case StageSquareXZ:
		return "square_corners_xz"
	case StageExternal:
		return "external_transform"
	case StageExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Method is the user's choice of transform determination.
type Method int

const (
	MethodSquareXY Method = iota
	MethodSquareYZ
	MethodSquareXZ
	MethodExternal
)

func (m Method) stage() Stage {
	switch m {
	case MethodSquareYZ:
		return StageSquareYZ
	case MethodSquareXZ:
		return StageSquareXZ
	case MethodExternal:
		return StageExternal
	default:
		return StageSquareXY
	}
}

func (m Method) plane() geom.Plane {
	switch m {
	case MethodSquareYZ:
		return geom.PlaneYZ
	case MethodSquareXZ:
		return geom.PlaneXZ
	default:
		return geom.PlaneXY
	}
}

func (m Method) cornerKey() string {
	switch m {
	case MethodSquareYZ:
		return config.KeyC2ACnrsYZ
	case MethodSquareXZ:
		return config.KeyC2ACnrsXZ
	default:
		return config.KeyC2ACnrsXY
	}
}

func methodForCornerKey(key string) (Method, bool) {
	switch key {
	case config.KeyC2ACnrsXY:
		return MethodSquareXY, true
	case config.KeyC2ACnrsYZ:
		return MethodSquareYZ, true
	case config.KeyC2ACnrsXZ:
		return MethodSquareXZ, true
	default:
		return 0, false
	}
}

// EventKind classifies one polled interaction event.
type EventKind int

const (
	EventNone EventKind = iota
	EventLeftClick
	EventRightClick
	EventMove
	EventCommit
	EventCancel
	EventMirror
)

// Event is one interaction delivered by the surface. Pos is meaningful
// for click and move events only.
type Event struct {
	Kind EventKind
	Pos  image.Point
}

// EventSource delivers interaction events to the session loop. Poll
// waits at most the given duration and returns an EventNone event when
// nothing arrived.
type EventSource interface {
	Poll(timeout time.Duration) Event
}

// Geometry supplies the camera-model solvers. Implementations are
// stateless per call; identical input yields identical output.
type Geometry interface {
	FitCircle(pts []image.Point) (axis r3.Vector, angRadius float64, err error)
	SolveSquarePose(plane geom.Plane, corners []image.Point, mirror bool) (rot, trans r3.Vector, err error)
}

// Circle is a fitted sphere silhouette: the viewing direction of its
// center and its angular radius.
type Circle struct {
	Axis      r3.Vector
	AngRadius float64
}

// Transform is a solved or loaded camera-to-subject pose. HasPlane is
// false for externally supplied transforms, which carry no clickable
// corner set.
type Transform struct {
	Plane    geom.Plane
	HasPlane bool
	Rot      r3.Vector
	Trans    r3.Vector
}

// Scene is everything the display needs to draw one redraw tick.
type Scene struct {
	CircPts []image.Point
	Circle  *Circle
	Polys   [][]image.Point
	SqrPts  []image.Point
	Square  *Transform
	Cursor  image.Point
	Zoom    bool
}

// Display renders scenes and writes the final annotated snapshot.
type Display interface {
	Render(Scene) error
	Snapshot(Scene, string) error
}

// Prompter handles the blocking console decisions.
type Prompter interface {
	KeepExisting(what string) bool
	SelectMethod() Method
	Instruct(Stage)
}

// Store is the slice of the configuration store the session uses.
// *config.Store satisfies it.
type Store interface {
	Path() string
	Has(key string) bool
	String(key string) (string, error)
	Ints(key string) ([]int, error)
	Polys(key string) ([][]int, error)
	Floats(key string) ([]float64, error)
	SetString(key, v string)
	SetInts(key string, v []int)
	SetPolys(key string, v [][]int)
	SetFloats(key string, v []float64)
	Save() error
}
