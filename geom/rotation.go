package geom

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// AxisAngleToMatrix converts an axis-angle vector (direction = axis,
// norm = angle in radians) into a 3x3 rotation matrix via the Rodrigues
// formula.
func AxisAngleToMatrix(w r3.Vector) *mat.Dense {
	theta := w.Norm()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if theta < 1e-12 {
		return r
	}
	a := w.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	t := 1 - c
	r.Set(0, 0, c+a.X*a.X*t)
	r.Set(0, 1, a.X*a.Y*t-a.Z*s)
	r.Set(0, 2, a.X*a.Z*t+a.Y*s)
	r.Set(1, 0, a.Y*a.X*t+a.Z*s)
	r.Set(1, 1, c+a.Y*a.Y*t)
	r.Set(1, 2, a.Y*a.Z*t-a.X*s)
	r.Set(2, 0, a.Z*a.X*t-a.Y*s)
	r.Set(2, 1, a.Z*a.Y*t+a.X*s)
	r.Set(2, 2, c+a.Z*a.Z*t)
	return r
}

// MatrixToAxisAngle recovers the axis-angle vector of a rotation matrix.
func MatrixToAxisAngle(r mat.Matrix) r3.Vector {
	tr := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := (tr - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	if math.Pi-theta < 1e-6 {
		// Near half-turn the skew part vanishes; recover the axis from
		// the symmetric part instead.
		xx := math.Sqrt(math.Max(0, (r.At(0, 0)+1)/2))
		yy := math.Sqrt(math.Max(0, (r.At(1, 1)+1)/2))
		zz := math.Sqrt(math.Max(0, (r.At(2, 2)+1)/2))
		if r.At(0, 1) < 0 {
			yy = -yy
		}
		if r.At(0, 2) < 0 {
			zz = -zz
		}
		return r3.Vector{X: xx, Y: yy, Z: zz}.Normalize().Mul(theta)
	}
	scale := theta / (2 * math.Sin(theta))
	return r3.Vector{
		X: (r.At(2, 1) - r.At(1, 2)) * scale,
		Y: (r.At(0, 2) - r.At(2, 0)) * scale,
		Z: (r.At(1, 0) - r.At(0, 1)) * scale,
	}
}

// Rotate applies a rotation matrix to a vector.
func Rotate(r mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z,
		Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z,
		Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z,
	}
}
