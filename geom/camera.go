// Package geom provides the camera projection model and the fitting
// routines consumed by the calibration session: a least-squares circle
// fit on the viewing sphere and a four-corner square pose solve. All
// solvers are stateless per call and deterministic for identical input.
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// ErrInvalidFOV reports a non-positive vertical field of view.
var ErrInvalidFOV = errors.New("geom: vertical field of view must be > 0")

// ErrTooFewPoints reports an input point set below the fit minimum.
var ErrTooFewPoints = errors.New("geom: too few points")

// CameraModel maps image pixels to 3D viewing directions for a
// rectilinear (pinhole) camera. The camera frame is X = image right,
// Y = image down, Z = into the image.
type CameraModel struct {
	width  int
	height int
	focal  float64
	cx     float64
	cy     float64
}

// NewRectilinear builds a pinhole model for a w x h sensor with the given
// vertical field of view in radians.
func NewRectilinear(w, h int, vfov float64) (*CameraModel, error) {
	if vfov <= 0 {
		return nil, fmt.Errorf("%w (got %f)", ErrInvalidFOV, vfov)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("geom: invalid sensor dimensions %dx%d", w, h)
	}
	return &CameraModel{
		width:  w,
		height: h,
		focal:  float64(h) / 2 / math.Tan(vfov/2),
		cx:     float64(w) / 2,
		cy:     float64(h) / 2,
	}, nil
}

// Width returns the sensor width in pixels.
func (m *CameraModel) Width() int { return m.width }

// Height returns the sensor height in pixels.
func (m *CameraModel) Height() int { return m.height }

// PixelToVector returns the unit viewing direction through pixel (x, y).
func (m *CameraModel) PixelToVector(x, y float64) r3.Vector {
	return r3.Vector{X: x - m.cx, Y: y - m.cy, Z: m.focal}.Normalize()
}

// VectorToPixel projects a camera-frame point onto the image plane. The
// boolean is false for points at or behind the camera.
func (m *CameraModel) VectorToPixel(v r3.Vector) (x, y float64, ok bool) {
	if v.Z <= 1e-9 {
		return 0, 0, false
	}
	return m.cx + m.focal*v.X/v.Z, m.cy + m.focal*v.Y/v.Z, true
}
