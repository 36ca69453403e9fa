// Package ui provides the tk9.0 calibration surface and the console
// prompter for the blocking keep/redo and method decisions.
package ui

import (
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"

	"github.com/mkrall/spherecal/domain/calib"
	"github.com/mkrall/spherecal/render"
)

const tick = 30 * time.Millisecond

// Window is the interactive calibration surface. The session goroutine
// drives it through calib.Display and calib.EventSource: rendered
// scenes land in a latest-frame slot that the Tk after-tick flushes to
// the preview label, and the Tk bindings push interaction events into a
// buffered channel the session polls. All Tk calls stay on the event
// loop thread.
type Window struct {
	logger *slog.Logger
	annot  *render.Annotator

	label     *LabelWidget
	prevPhoto *Img
	zoomLabel *LabelWidget
	prevZoom  *Img
	afterID   string

	events     chan calib.Event
	latest     atomic.Pointer[[]byte]
	shown      *[]byte
	latestZoom atomic.Pointer[[]byte]
	shownZoom  *[]byte
	zoomBlank  []byte
	done       atomic.Bool
}

func NewWindow(title string, annot *render.Annotator, logger *slog.Logger) (*Window, error) {
	w := &Window{
		logger: logger,
		annot:  annot,
		events: make(chan calib.Event, 64),
	}

	first := annot.Render(calib.Scene{})
	defer first.Close()
	png, err := render.EncodePNG(first)
	if err != nil {
		return nil, err
	}
	w.zoomBlank, err = render.ZoomPlaceholderPNG()
	if err != nil {
		return nil, err
	}

	App.WmTitle(title)
	w.prevPhoto = NewPhoto(Data(png))
	w.label = Label(Image(w.prevPhoto), Borderwidth(1), Relief("sunken"))
	w.prevZoom = NewPhoto(Data(w.zoomBlank))
	w.zoomLabel = Label(Image(w.prevZoom), Borderwidth(1), Relief("sunken"))
	Grid(w.label, Row(0), Column(0), Padx("1m"), Pady("1m"))
	Grid(w.zoomLabel, Row(0), Column(1), Sticky("n"), Padx("1m"), Pady("1m"))
	w.bind()
	WmProtocol(App, "WM_DELETE_WINDOW", w.closeHandler)
	return w, nil
}

func (w *Window) bind() {
	Bind(w.label, "<ButtonRelease-1>", Command(func(e *Event) {
		w.push(calib.Event{Kind: calib.EventLeftClick, Pos: image.Pt(e.X, e.Y)})
	}))
	Bind(w.label, "<ButtonRelease-3>", Command(func(e *Event) {
		w.push(calib.Event{Kind: calib.EventRightClick, Pos: image.Pt(e.X, e.Y)})
	}))
	Bind(w.label, "<Motion>", Command(func(e *Event) {
		w.push(calib.Event{Kind: calib.EventMove, Pos: image.Pt(e.X, e.Y)})
	}))
	Bind(App, "<Return>", Command(func() {
		w.push(calib.Event{Kind: calib.EventCommit})
	}))
	Bind(App, "<Escape>", Command(func() {
		w.push(calib.Event{Kind: calib.EventCancel})
	}))
	Bind(App, "<KeyPress-f>", Command(func() {
		w.push(calib.Event{Kind: calib.EventMirror})
	}))
}

func (w *Window) push(ev calib.Event) {
	// Drop events when the session lags; stale motion is worthless.
	select {
	case w.events <- ev:
	default:
	}
}

// Render implements calib.Display. Safe to call off the Tk thread: it
// only swaps the latest-frame slots.
func (w *Window) Render(sc calib.Scene) error {
	m := w.annot.Render(sc)
	defer m.Close()
	png, err := render.EncodePNG(m)
	if err != nil {
		return err
	}
	w.latest.Store(&png)

	if z, ok := w.annot.RenderZoom(sc); ok {
		defer z.Close()
		zpng, err := render.EncodePNG(z)
		if err != nil {
			return err
		}
		w.latestZoom.Store(&zpng)
	} else {
		w.latestZoom.Store(&w.zoomBlank)
	}
	return nil
}

// Snapshot implements calib.Display.
func (w *Window) Snapshot(sc calib.Scene, path string) error {
	return w.annot.WriteSnapshot(sc, path)
}

// Poll implements calib.EventSource.
func (w *Window) Poll(timeout time.Duration) calib.Event {
	select {
	case ev := <-w.events:
		return ev
	case <-time.After(timeout):
		return calib.Event{}
	}
}

// Run launches the session on its own goroutine, enters the Tk event
// loop, and returns the session result once the window is torn down.
func (w *Window) Run(session func() bool) bool {
	var ok atomic.Bool
	go func() {
		ok.Store(session())
		w.done.Store(true)
	}()
	w.schedule()
	App.Wait()
	return ok.Load()
}

func (w *Window) update() {
	if w.done.Load() {
		Destroy(App)
		return
	}
	if p := w.latest.Load(); p != nil && p != w.shown {
		photo := NewPhoto(Data(*p))
		if w.prevPhoto != nil {
			w.prevPhoto.Delete()
		}
		w.prevPhoto = photo
		w.label.Configure(Image(photo))
		w.shown = p
	}
	if p := w.latestZoom.Load(); p != nil && p != w.shownZoom {
		photo := NewPhoto(Data(*p))
		if w.prevZoom != nil {
			w.prevZoom.Delete()
		}
		w.prevZoom = photo
		w.zoomLabel.Configure(Image(photo))
		w.shownZoom = p
	}
	w.schedule()
}

func (w *Window) schedule() {
	w.afterID = TclAfter(tick, func() { w.update() })
}

// closeHandler translates closing the window into a cancel, so the
// session unwinds through its terminal stage and writes the snapshot.
func (w *Window) closeHandler() {
	if w.logger != nil {
		w.logger.Info("window closed; cancelling calibration")
	}
	w.push(calib.Event{Kind: calib.EventCancel})
}
