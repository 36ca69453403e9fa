package geom

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/optimize"
)

// FitCircle fits the sphere silhouette seen through the camera to a cone
// of viewing directions: it returns the unit axis toward the sphere
// centre and the angular radius of the silhouette. At least three
// clicked points are required.
//
// The fit minimizes the squared angular distance of each click direction
// from the cone surface, starting from the mean direction, so identical
// input always yields identical output.
func (m *CameraModel) FitCircle(pts []image.Point) (axis r3.Vector, angRadius float64, err error) {
	if len(pts) < 3 {
		return r3.Vector{}, 0, fmt.Errorf("%w: need >= 3 circumference points, have %d", ErrTooFewPoints, len(pts))
	}

	dirs := make([]r3.Vector, len(pts))
	var mean r3.Vector
	for i, p := range pts {
		dirs[i] = m.PixelToVector(float64(p.X), float64(p.Y))
		mean = mean.Add(dirs[i])
	}
	mean = mean.Normalize()

	var r0 float64
	for _, d := range dirs {
		r0 += angleBetween(d, mean)
	}
	r0 /= float64(len(dirs))
	if r0 < 1e-3 {
		r0 = 1e-3
	}

	// Parameters: azimuth, elevation of the axis, angular radius.
	x0 := []float64{math.Atan2(mean.X, mean.Z), math.Asin(clamp(mean.Y, -1, 1)), r0}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			a := sphericalDir(x[0], x[1])
			var sum float64
			for _, d := range dirs {
				e := angleBetween(d, a) - x[2]
				sum += e * e
			}
			return sum
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 20000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 200,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return r3.Vector{}, 0, fmt.Errorf("geom: circle fit: %w", err)
	}
	if serr := result.Status.Err(); serr != nil && result.F > 1e-2 {
		return r3.Vector{}, 0, fmt.Errorf("geom: circle fit did not converge (residual %g): %w", result.F, serr)
	}

	axis = sphericalDir(result.X[0], result.X[1])
	angRadius = result.X[2]
	if angRadius <= 0 || angRadius >= math.Pi/2 {
		return r3.Vector{}, 0, fmt.Errorf("geom: circle fit produced degenerate angular radius %g", angRadius)
	}
	return axis, angRadius, nil
}

func sphericalDir(az, el float64) r3.Vector {
	return r3.Vector{
		X: math.Sin(az) * math.Cos(el),
		Y: math.Sin(el),
		Z: math.Cos(az) * math.Cos(el),
	}
}

func angleBetween(a, b r3.Vector) float64 {
	return math.Acos(clamp(a.Dot(b), -1, 1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
