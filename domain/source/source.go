// Package source normalizes heterogeneous capture backends (live
// cameras, recorded video and still images) into one pull-based frame
// interface with consistent timing and color layout for the tracker.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"
)

// ErrUnresolved reports that an input token matched none of the backend
// probes (camera id, video file, still image).
var ErrUnresolved = errors.New("source: could not interpret input")

// ErrClosed reports an operation on an unopened or closed source.
var ErrClosed = errors.New("source: not open")

// ErrGrab reports a failed backend frame read.
var ErrGrab = errors.New("source: frame grab failed")

// BayerLayout selects the demosaic transform applied to single-channel
// raw frames before they are unified to color.
type BayerLayout int

const (
	BayerNone BayerLayout = iota
	BayerBGGR
	BayerGBRG
	BayerGRBG
	BayerRGGB
)

func (b BayerLayout) String() string {
	switch b {
	case BayerBGGR:
		return "bggr"
	case BayerGBRG:
		return "gbrg"
	case BayerGRBG:
		return "grbg"
	case BayerRGGB:
		return "rggb"
	default:
		return "none"
	}
}

func (b BayerLayout) conversion() gocv.ColorConversionCode {
	switch b {
	case BayerBGGR:
		return gocv.ColorBayerBGToBGR
	case BayerGBRG:
		return gocv.ColorBayerGBToBGR
	case BayerGRBG:
		return gocv.ColorBayerGRToBGR
	case BayerRGGB:
		return gocv.ColorBayerRGToBGR
	default:
		// Plain grayscale promotion when no mosaic is configured.
		return gocv.ColorGrayToBGR
	}
}

// Frame is one normalized capture: 3-channel BGR pixels, flipped to the
// reference sensor mounting, with a stream timestamp and a wall-clock
// day-relative stamp (both in milliseconds). The caller owns Mat and
// must Close it.
type Frame struct {
	Mat          gocv.Mat
	Width        int
	Height       int
	Channels     int
	Timestamp    float64
	DayTimestamp float64
}

// Source is one opened capture backend. It is not safe for concurrent
// use; Grab must not be called reentrantly. The pacing sleep for file
// playback blocks the calling goroutine by design.
type Source struct {
	logger *slog.Logger

	kind   Kind
	opened bool
	cap    *gocv.VideoCapture
	still  gocv.Mat
	buf    gocv.Mat

	width  int
	height int
	fps    float64
	bayer  BayerLayout

	pace  pacer
	now   func() time.Time
	sleep func(time.Duration)
}

// Open resolves the input token by ordered trial (camera id, then video
// stream, then still image) and opens the first backend that yields a
// test frame. Individual probe failures are silent; exhaustion returns
// ErrUnresolved.
func Open(input string, logger *slog.Logger) (*Source, error) {
	s := &Source{
		logger: logger,
		buf:    gocv.NewMat(),
		now:    time.Now,
		sleep:  time.Sleep,
	}
	s.kind = resolve(input, s.backendProbes())
	if s.kind == KindNone {
		s.buf.Close()
		if logger != nil {
			logger.Warn("could not interpret source type", "input", input)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnresolved, input)
	}
	s.opened = true

	if s.kind == KindImage {
		s.width = s.still.Cols()
		s.height = s.still.Rows()
	} else {
		s.width = int(s.cap.Get(gocv.VideoCaptureFrameWidth))
		s.height = int(s.cap.Get(gocv.VideoCaptureFrameHeight))
	}
	if s.Live() {
		// Video files keep fps unset so they can play back as fast as
		// the caller wants until a rate is configured.
		s.fps = s.cap.Get(gocv.VideoCaptureFPS)
	}
	if logger != nil {
		logger.Info("capture source initialised",
			"type", s.kind.String(), "width", s.width, "height", s.height, "fps", s.fps)
	}
	return s, nil
}

func (s *Source) backendProbes() []probe {
	return []probe{
		{kind: KindCamera, try: func(input string) bool {
			id, ok := cameraToken(input)
			if !ok {
				return false
			}
			cap, err := gocv.VideoCaptureDevice(id)
			if err != nil {
				return false
			}
			if !testGrab(cap) {
				cap.Close()
				return false
			}
			s.cap = cap
			return true
		}},
		{kind: KindVideo, try: func(input string) bool {
			cap, err := gocv.VideoCaptureFile(input)
			if err != nil {
				return false
			}
			if !testGrab(cap) {
				cap.Close()
				return false
			}
			s.cap = cap
			return true
		}},
		{kind: KindImage, try: func(input string) bool {
			m := gocv.IMRead(input, gocv.IMReadColor)
			if m.Empty() {
				m.Close()
				return false
			}
			s.still = m
			return true
		}},
	}
}

func testGrab(cap *gocv.VideoCapture) bool {
	m := gocv.NewMat()
	defer m.Close()
	return cap.Read(&m) && !m.Empty()
}

// Kind returns the resolved backend classification.
func (s *Source) Kind() Kind { return s.kind }

// Live reports whether timing is governed by real capture.
func (s *Source) Live() bool { return s.kind.Live() }

// Opened reports whether a backend was resolved and is still open.
func (s *Source) Opened() bool { return s.opened }

// Width returns the frame width fixed at open.
func (s *Source) Width() int { return s.width }

// Height returns the frame height fixed at open.
func (s *Source) Height() int { return s.height }

// SetBayerLayout configures the demosaic transform for raw
// single-channel frames.
func (s *Source) SetBayerLayout(b BayerLayout) { s.bayer = b }

// FPS returns the backend-reported rate when a stream is open, falling
// back to the locally configured playback rate.
func (s *Source) FPS() float64 {
	if s.opened && s.cap != nil {
		return s.cap.Get(gocv.VideoCaptureFPS)
	}
	return s.fps
}

// SetFPS asks the backend for a new rate. When the backend rejects the
// value it is retained for playback pacing only, surfaced as a warning
// rather than an error. Returns true only when the device accepted the rate.
func (s *Source) SetFPS(fps float64) bool {
	if !s.opened || s.cap == nil || fps <= 0 {
		return false
	}
	s.cap.Set(gocv.VideoCaptureFPS, fps)
	got := s.cap.Get(gocv.VideoCaptureFPS)
	if got <= 0 || absDiff(got, fps) > 1e-3 {
		s.fps = fps
		if s.logger != nil {
			s.logger.Warn("failed to set device fps; keeping value for playback pacing",
				"requested", fps, "device", got)
		}
		return false
	}
	s.fps = got
	if s.logger != nil {
		s.logger.Info("device frame rate updated", "fps", s.fps)
	}
	return true
}

// SetDimensions requests a backend resize; success is declared only if
// the backend subsequently reports exactly the requested values.
func (s *Source) SetDimensions(w, h int) bool {
	if !s.opened || s.cap == nil || w <= 0 || h <= 0 {
		return false
	}
	s.cap.Set(gocv.VideoCaptureFrameWidth, float64(w))
	s.cap.Set(gocv.VideoCaptureFrameHeight, float64(h))
	gotW := int(s.cap.Get(gocv.VideoCaptureFrameWidth))
	gotH := int(s.cap.Get(gocv.VideoCaptureFrameHeight))
	if gotW == w && gotH == h {
		s.width, s.height = gotW, gotH
		if s.logger != nil {
			s.logger.Info("device dimensions updated", "width", w, "height", h)
		}
		return true
	}
	s.width, s.height = w, h
	if s.logger != nil {
		s.logger.Warn("failed to set device dimensions; keeping values for playback",
			"requested_width", w, "requested_height", h,
			"device_width", gotW, "device_height", gotH)
	}
	return false
}

// Rewind seeks to the first frame. Live and image backends cannot seek;
// that is reported as failure, not an error.
func (s *Source) Rewind() bool {
	if !s.opened || s.cap == nil || s.kind != KindVideo {
		if s.logger != nil {
			s.logger.Warn("rewind unsupported on this source", "type", s.kind.String())
		}
		return false
	}
	s.cap.Set(gocv.VideoCapturePosFrames, 0)
	if s.cap.Get(gocv.VideoCapturePosFrames) != 0 {
		if s.logger != nil {
			s.logger.Warn("failed to rewind source")
		}
		return false
	}
	return true
}

// Grab captures and normalizes one frame. Image sources return the
// cached decode every call; streaming sources read from the backend.
// Non-live sources with a positive configured rate self-pace toward it.
func (s *Source) Grab() (Frame, error) {
	if !s.opened {
		return Frame{}, ErrClosed
	}
	if s.kind == KindImage {
		s.still.CopyTo(&s.buf)
	} else if !s.cap.Read(&s.buf) || s.buf.Empty() {
		return Frame{}, fmt.Errorf("%w: backend read returned no frame", ErrGrab)
	}

	now := s.now()
	wallMS := float64(now.UnixNano()) / float64(time.Millisecond)
	dayMS := msSinceMidnight(now)
	ts := wallMS
	if s.kind != KindImage {
		// Backend stream position; known to be junk (<= 0) on some
		// devices, in which case wall-clock wins.
		if pos := s.cap.Get(gocv.VideoCapturePosMsec); pos > 0 {
			ts = pos
		}
	}

	work := s.buf
	var reshaped gocv.Mat
	if work.Rows() == 1 && s.height > 1 {
		// Some backends hand back a multi-row frame flattened to a
		// single row; restore the expected geometry.
		reshaped = work.Reshape(work.Channels(), s.height)
		defer reshaped.Close()
		work = reshaped
		if s.logger != nil {
			s.logger.Debug("reshaped single-row frame",
				"width", work.Cols(), "height", work.Rows(), "channels", work.Channels())
		}
	}

	color := gocv.NewMat()
	defer color.Close()
	if work.Channels() == 1 {
		gocv.CvtColor(work, &color, s.bayer.conversion())
	} else {
		work.CopyTo(&color)
	}

	if !s.Live() && s.fps > 0 {
		if s.pace.fps != s.fps {
			s.pace.reset(s.fps)
		}
		if d := s.pace.next(wallMS); d > 0 {
			s.sleep(d)
		}
	}

	out := gocv.NewMat()
	gocv.Flip(color, &out, 0)
	return Frame{
		Mat:          out,
		Width:        out.Cols(),
		Height:       out.Rows(),
		Channels:     out.Channels(),
		Timestamp:    ts,
		DayTimestamp: dayMS,
	}, nil
}

// Close releases the backend and internal buffers.
func (s *Source) Close() error {
	if !s.opened {
		return nil
	}
	s.opened = false
	if s.cap != nil {
		if err := s.cap.Close(); err != nil {
			return err
		}
	}
	if s.kind == KindImage {
		s.still.Close()
	}
	s.buf.Close()
	return nil
}

func msSinceMidnight(t time.Time) float64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return float64(t.Sub(midnight)) / float64(time.Millisecond)
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
