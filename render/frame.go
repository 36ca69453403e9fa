// Package render prepares the calibration reference frame and draws
// session scenes onto it with gocv primitives.
package render

import (
	"fmt"
	"log/slog"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/mkrall/spherecal/domain/source"
)

// LoadReferenceFrame produces the single still frame the calibration
// session draws on. Resolution order differs from the runtime source:
// still image first, then camera id, then video stream, since a
// calibration run usually points at a saved snapshot. The frame is
// grayscaled and contrast stretched for display.
func LoadReferenceFrame(input string, logger *slog.Logger) (gocv.Mat, error) {
	raw, kind, ok := readReferenceFrame(input)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("%w: %q", source.ErrUnresolved, input)
	}
	defer raw.Close()

	gray := gocv.NewMat()
	if raw.Channels() > 1 {
		gocv.CvtColor(raw, &gray, gocv.ColorBGRToGray)
	} else {
		raw.CopyTo(&gray)
	}
	gocv.Normalize(gray, &gray, 0, 255, gocv.NormMinMax)

	if logger != nil {
		logger.Info("reference frame loaded",
			"source", kind, "width", gray.Cols(), "height", gray.Rows())
	}
	return gray, nil
}

func readReferenceFrame(input string) (gocv.Mat, string, bool) {
	if m := gocv.IMRead(input, gocv.IMReadColor); !m.Empty() {
		return m, "image", true
	} else {
		m.Close()
	}
	if len(input) <= 2 {
		if id, err := strconv.Atoi(input); err == nil {
			if m, ok := grabOne(gocv.VideoCaptureDevice(id)); ok {
				return m, "camera", true
			}
		}
	}
	if m, ok := grabOne(gocv.VideoCaptureFile(input)); ok {
		return m, "video", true
	}
	return gocv.Mat{}, "", false
}

func grabOne(cap *gocv.VideoCapture, err error) (gocv.Mat, bool) {
	if err != nil {
		return gocv.Mat{}, false
	}
	defer cap.Close()
	m := gocv.NewMat()
	if !cap.Read(&m) || m.Empty() {
		m.Close()
		return gocv.Mat{}, false
	}
	return m, true
}
