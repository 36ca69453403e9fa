package geom

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func r3v(x, y, z float64) r3.Vector { return r3.Vector{X: x, Y: y, Z: z} }

func TestAxisAngleRoundTrip(t *testing.T) {
	cases := []r3.Vector{
		{},
		r3v(0.3, 0, 0),
		r3v(0, -1.2, 0),
		r3v(0.5, 0.5, 0.5),
		r3v(-0.1, 0.7, -2.0),
	}
	for _, w := range cases {
		got := MatrixToAxisAngle(AxisAngleToMatrix(w))
		if got.Sub(w).Norm() > 1e-9 {
			t.Fatalf("round trip %v -> %v", w, got)
		}
	}
}

func TestAxisAngleHalfTurn(t *testing.T) {
	w := r3v(0, math.Pi, 0)
	got := MatrixToAxisAngle(AxisAngleToMatrix(w))
	// Axis sign is ambiguous at exactly pi; both encode the same rotation.
	if got.Sub(w).Norm() > 1e-6 && got.Add(w).Norm() > 1e-6 {
		t.Fatalf("half turn round trip %v -> %v", w, got)
	}
}

func TestRotate_PreservesLengthAndComposes(t *testing.T) {
	r := AxisAngleToMatrix(r3v(0.2, -0.3, 0.4))
	v := r3v(1, 2, 3)
	rv := Rotate(r, v)
	if math.Abs(rv.Norm()-v.Norm()) > 1e-9 {
		t.Fatalf("rotation changed vector length: %v vs %v", rv.Norm(), v.Norm())
	}
	// Rotating by the inverse (transpose) restores the input.
	back := r3v(
		r.At(0, 0)*rv.X+r.At(1, 0)*rv.Y+r.At(2, 0)*rv.Z,
		r.At(0, 1)*rv.X+r.At(1, 1)*rv.Y+r.At(2, 1)*rv.Z,
		r.At(0, 2)*rv.X+r.At(1, 2)*rv.Y+r.At(2, 2)*rv.Z,
	)
	if back.Sub(v).Norm() > 1e-9 {
		t.Fatalf("inverse rotation did not restore input: %v", back)
	}
}
