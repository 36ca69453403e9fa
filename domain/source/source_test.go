package source

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255}) // top row red
	img.SetRGBA(0, 1, color.RGBA{B: 255, A: 255}) // bottom row blue
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close png: %v", err)
	}
	return path
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpen_ImageBackend(t *testing.T) {
	s, err := Open(writeTestPNG(t), discard())
	if err != nil {
		t.Fatalf("open image source: %v", err)
	}
	defer s.Close()

	if s.Kind() != KindImage {
		t.Fatalf("kind = %v, want %v", s.Kind(), KindImage)
	}
	if s.Live() {
		t.Fatalf("image source reported live")
	}
	if s.Width() != 1 || s.Height() != 2 {
		t.Fatalf("dimensions = %dx%d, want 1x2", s.Width(), s.Height())
	}
}

func TestOpen_UnresolvableInput(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.xyz"), discard())
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("err = %v, want ErrUnresolved", err)
	}
}

func TestGrab_ImageRepeatsCachedDecodeFlipped(t *testing.T) {
	s, err := Open(writeTestPNG(t), discard())
	if err != nil {
		t.Fatalf("open image source: %v", err)
	}
	defer s.Close()

	for i := 0; i < 2; i++ {
		f, err := s.Grab()
		if err != nil {
			t.Fatalf("grab %d: %v", i, err)
		}
		if f.Width != 1 || f.Height != 2 || f.Channels != 3 {
			f.Mat.Close()
			t.Fatalf("grab %d: got %dx%dx%d, want 1x2x3", i, f.Width, f.Height, f.Channels)
		}
		// Vertical flip puts the blue source row on top.
		top := f.Mat.GetVecbAt(0, 0)
		bottom := f.Mat.GetVecbAt(1, 0)
		f.Mat.Close()
		if top[0] != 255 || top[2] != 0 {
			t.Fatalf("grab %d: top row BGR = %v, want blue", i, top)
		}
		if bottom[0] != 0 || bottom[2] != 255 {
			t.Fatalf("grab %d: bottom row BGR = %v, want red", i, bottom)
		}
	}
}

func TestGrab_ImageTimestampFallsBackToClock(t *testing.T) {
	s, err := Open(writeTestPNG(t), discard())
	if err != nil {
		t.Fatalf("open image source: %v", err)
	}
	defer s.Close()

	fixed := time.Date(2025, 6, 1, 1, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	f, err := s.Grab()
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	f.Mat.Close()

	wantWall := float64(fixed.UnixNano()) / float64(time.Millisecond)
	if f.Timestamp != wantWall {
		t.Fatalf("timestamp = %f, want wall clock %f", f.Timestamp, wantWall)
	}
	// 1h 30s past midnight.
	if f.DayTimestamp != 3630000 {
		t.Fatalf("day timestamp = %f, want 3630000", f.DayTimestamp)
	}
}

func TestGrab_NonLivePacingSleeps(t *testing.T) {
	s, err := Open(writeTestPNG(t), discard())
	if err != nil {
		t.Fatalf("open image source: %v", err)
	}
	defer s.Close()

	s.fps = 20
	var slept time.Duration
	s.sleep = func(d time.Duration) { slept += d }

	base := time.Now()
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * 50 * time.Millisecond)
		s.now = func() time.Time { return tick }
		f, err := s.Grab()
		if err != nil {
			t.Fatalf("grab %d: %v", i, err)
		}
		f.Mat.Close()
	}
	if slept <= 0 {
		t.Fatalf("pacing never slept despite configured rate")
	}
}

func TestGrab_AfterCloseFails(t *testing.T) {
	s, err := Open(writeTestPNG(t), discard())
	if err != nil {
		t.Fatalf("open image source: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Grab(); !errors.Is(err, ErrClosed) {
		t.Fatalf("grab after close: err = %v, want ErrClosed", err)
	}
}
