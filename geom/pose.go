package geom

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/optimize"
)

// ErrBadCornerCount reports a square solve attempted without exactly four
// corner clicks.
var ErrBadCornerCount = errors.New("geom: square pose solve needs exactly 4 corners")

// ErrNoPose reports that no corner-consistent pose could be found.
var ErrNoPose = errors.New("geom: no valid pose for corner set")

// Plane identifies the subject reference plane a clicked square is
// aligned with.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneYZ
	PlaneXZ
)

func (p Plane) String() string {
	switch p {
	case PlaneXY:
		return "xy"
	case PlaneYZ:
		return "yz"
	case PlaneXZ:
		return "xz"
	default:
		return "unknown"
	}
}

// RefCorners returns the unit-square reference corners for the plane, in
// the order the user is instructed to click them. The subject frame is
// X = forward, Y = right, Z = down.
func (p Plane) RefCorners() [4]r3.Vector {
	switch p {
	case PlaneYZ:
		return [4]r3.Vector{
			{Y: -1, Z: -1}, {Y: 1, Z: -1}, {Y: 1, Z: 1}, {Y: -1, Z: 1},
		}
	case PlaneXZ:
		return [4]r3.Vector{
			{X: 1, Z: -1}, {X: -1, Z: -1}, {X: -1, Z: 1}, {X: 1, Z: 1},
		}
	default: // PlaneXY
		return [4]r3.Vector{
			{X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}, {X: -1, Y: -1},
		}
	}
}

// SolveSquarePose recovers the rigid camera-to-subject transform from the
// four clicked corners of a square aligned with the given reference
// plane. The rotation is returned in axis-angle form alongside the
// translation of the square centre in camera coordinates.
//
// Four coplanar points admit two reprojection minima that differ by a
// mirrored rotation axis; mirror selects the alternate minimum so the
// user can flip the displayed frame to the correct handedness.
func (m *CameraModel) SolveSquarePose(plane Plane, corners []image.Point, mirror bool) (rot, trans r3.Vector, err error) {
	if len(corners) != 4 {
		return r3.Vector{}, r3.Vector{}, fmt.Errorf("%w (have %d)", ErrBadCornerCount, len(corners))
	}
	ref := plane.RefCorners()

	residual := func(x []float64) float64 {
		t := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
		r := AxisAngleToMatrix(r3.Vector{X: x[3], Y: x[4], Z: x[5]})
		var sum float64
		for i := 0; i < 4; i++ {
			p := Rotate(r, ref[i]).Add(t)
			px, py, ok := m.VectorToPixel(p)
			if !ok {
				// Corners behind the camera are never a valid pose.
				sum += 1e8
				continue
			}
			dx := px - float64(corners[i].X)
			dy := py - float64(corners[i].Y)
			sum += dx*dx + dy*dy
		}
		return sum
	}

	// Seed translation along the mean click direction at a plausible
	// square distance, then sweep rotation seeds to reach both minima.
	var meanDir r3.Vector
	for _, c := range corners {
		meanDir = meanDir.Add(m.PixelToVector(float64(c.X), float64(c.Y)))
	}
	meanDir = meanDir.Normalize()
	t0 := meanDir.Mul(4)

	seeds := [][3]float64{
		{0, 0, 0},
		{math.Pi / 2, 0, 0}, {-math.Pi / 2, 0, 0},
		{0, math.Pi / 2, 0}, {0, -math.Pi / 2, 0},
		{0, 0, math.Pi / 2}, {0, 0, -math.Pi / 2},
		{math.Pi, 0, 0}, {0, math.Pi, 0},
	}

	type candidate struct {
		x []float64
		f float64
	}
	var found []candidate
	problem := optimize.Problem{Func: residual}
	settings := &optimize.Settings{
		FuncEvaluations: 40000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 400,
		},
	}
	for _, s := range seeds {
		x0 := []float64{t0.X, t0.Y, t0.Z, s[0], s[1], s[2]}
		result, rerr := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if rerr != nil {
			continue
		}
		if result.F >= 1e7 {
			continue
		}
		// Cluster local minima by rotation distance.
		dup := false
		for k := range found {
			if rotationDistance(result.X[3:], found[k].x[3:]) < 0.2 {
				dup = true
				if result.F < found[k].f {
					copy(found[k].x, result.X)
					found[k].f = result.F
				}
				break
			}
		}
		if !dup {
			x := make([]float64, 6)
			copy(x, result.X)
			found = append(found, candidate{x: x, f: result.F})
		}
	}
	if len(found) == 0 {
		return r3.Vector{}, r3.Vector{}, ErrNoPose
	}

	// Order by residual: the best fit first, its mirror sibling next.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].f < found[j-1].f; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	pick := found[0]
	if mirror {
		if len(found) > 1 {
			pick = found[1]
		} else {
			// The sweep reached only one minimum. Negate the third
			// column of the base rotation and re-minimise from there
			// so the flip lands in the mirrored basin instead of
			// handing back the identical pose.
			r := AxisAngleToMatrix(r3.Vector{X: pick.x[3], Y: pick.x[4], Z: pick.x[5]})
			for i := 0; i < 3; i++ {
				r.Set(i, 2, -r.At(i, 2))
			}
			w := MatrixToAxisAngle(r)
			x0 := []float64{pick.x[0], pick.x[1], pick.x[2], w.X, w.Y, w.Z}
			result, rerr := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
			if rerr != nil {
				return r3.Vector{}, r3.Vector{}, fmt.Errorf("%w (mirrored re-solve failed: %v)", ErrNoPose, rerr)
			}
			if rotationDistance(result.X[3:], pick.x[3:]) < 0.2 {
				return r3.Vector{}, r3.Vector{}, fmt.Errorf("%w (no distinct mirrored pose)", ErrNoPose)
			}
			x := make([]float64, 6)
			copy(x, result.X)
			pick = candidate{x: x, f: result.F}
		}
	}
	if pick.f > 100*4 { // mean reprojection error beyond 10 px per corner
		return r3.Vector{}, r3.Vector{}, fmt.Errorf("%w (residual %g)", ErrNoPose, pick.f)
	}

	rot = r3.Vector{X: pick.x[3], Y: pick.x[4], Z: pick.x[5]}
	trans = r3.Vector{X: pick.x[0], Y: pick.x[1], Z: pick.x[2]}
	return rot, trans, nil
}

// ReprojectSquare maps the plane's reference corners through (rot, trans)
// back onto the image, for preview drawing. Corners behind the camera are
// reported via ok=false.
func (m *CameraModel) ReprojectSquare(plane Plane, rot, trans r3.Vector) (pts [4]image.Point, ok bool) {
	r := AxisAngleToMatrix(rot)
	for i, c := range plane.RefCorners() {
		p := Rotate(r, c).Add(trans)
		px, py, visible := m.VectorToPixel(p)
		if !visible {
			return pts, false
		}
		pts[i] = image.Pt(int(px+0.5), int(py+0.5))
	}
	return pts, true
}

func rotationDistance(a, b []float64) float64 {
	ra := AxisAngleToMatrix(r3.Vector{X: a[0], Y: a[1], Z: a[2]})
	rb := AxisAngleToMatrix(r3.Vector{X: b[0], Y: b[1], Z: b[2]})
	var sum float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d := ra.At(i, j) - rb.At(i, j)
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
