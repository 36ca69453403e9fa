package geom

import (
	"errors"
	"math"
	"testing"
)

func TestNewRectilinear_RejectsBadFOV(t *testing.T) {
	if _, err := NewRectilinear(640, 480, 0); !errors.Is(err, ErrInvalidFOV) {
		t.Fatalf("expected ErrInvalidFOV for vfov=0, got %v", err)
	}
	if _, err := NewRectilinear(640, 480, -1); !errors.Is(err, ErrInvalidFOV) {
		t.Fatalf("expected ErrInvalidFOV for vfov<0, got %v", err)
	}
}

func TestCameraModel_CentrePixelLooksForward(t *testing.T) {
	m, err := NewRectilinear(640, 480, 60*math.Pi/180)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	v := m.PixelToVector(320, 240)
	if math.Abs(v.X) > 1e-9 || math.Abs(v.Y) > 1e-9 || math.Abs(v.Z-1) > 1e-9 {
		t.Fatalf("centre pixel direction = %v, want +Z", v)
	}
}

func TestCameraModel_ProjectRoundTrip(t *testing.T) {
	m, err := NewRectilinear(800, 600, 45*math.Pi/180)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	cases := [][2]float64{{400, 300}, {10, 10}, {799, 599}, {123.5, 456.25}}
	for _, c := range cases {
		v := m.PixelToVector(c[0], c[1])
		x, y, ok := m.VectorToPixel(v)
		if !ok {
			t.Fatalf("pixel (%v,%v): direction reported behind camera", c[0], c[1])
		}
		if math.Abs(x-c[0]) > 1e-6 || math.Abs(y-c[1]) > 1e-6 {
			t.Fatalf("round trip (%v,%v) -> (%v,%v)", c[0], c[1], x, y)
		}
	}
}

func TestCameraModel_BehindCameraNotVisible(t *testing.T) {
	m, _ := NewRectilinear(640, 480, 60*math.Pi/180)
	if _, _, ok := m.VectorToPixel(r3v(0, 0, -1)); ok {
		t.Fatal("point behind the camera must not project")
	}
	if _, _, ok := m.VectorToPixel(r3v(1, 0, 0)); ok {
		t.Fatal("point in the image plane must not project")
	}
}
