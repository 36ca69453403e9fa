package render

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"

	"github.com/mkrall/spherecal/domain/calib"
	"github.com/mkrall/spherecal/geom"
)

func testAnnotator(t *testing.T) (*Annotator, gocv.Mat) {
	t.Helper()
	base := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8U)
	cam, err := geom.NewRectilinear(160, 120, 1.0)
	if err != nil {
		t.Fatalf("camera model: %v", err)
	}
	return NewAnnotator(base, cam), base
}

func fullScene() calib.Scene {
	return calib.Scene{
		CircPts: []image.Point{{X: 60, Y: 40}, {X: 100, Y: 40}, {X: 80, Y: 70}},
		Circle:  &calib.Circle{Axis: r3.Vector{Z: 1}, AngRadius: 0.3},
		Polys:   [][]image.Point{{{X: 5, Y: 5}, {X: 20, Y: 5}, {X: 20, Y: 20}}},
		SqrPts:  []image.Point{{X: 70, Y: 50}, {X: 90, Y: 50}, {X: 90, Y: 70}, {X: 70, Y: 70}},
		Square:  &calib.Transform{Plane: geom.PlaneXY, HasPlane: true, Trans: r3.Vector{Z: 5}},
		Cursor:  image.Pt(80, 60),
		Zoom:    true,
	}
}

func TestRender_ProducesColorCanvasOfBaseSize(t *testing.T) {
	a, base := testAnnotator(t)
	defer base.Close()

	out := a.Render(fullScene())
	defer out.Close()
	if out.Cols() != 160 || out.Rows() != 120 || out.Channels() != 3 {
		t.Fatalf("canvas %dx%dx%d, want 160x120x3", out.Cols(), out.Rows(), out.Channels())
	}
}

func TestRenderZoom_MagnifiesAroundCursor(t *testing.T) {
	a, base := testAnnotator(t)
	defer base.Close()

	z, ok := a.RenderZoom(fullScene())
	if !ok {
		t.Fatalf("no zoom view for a zoomed scene")
	}
	defer z.Close()
	want := 2 * zoomHalf * zoomScale
	if z.Cols() != want || z.Rows() != want || z.Channels() != 3 {
		t.Fatalf("zoom view %dx%dx%d, want %dx%dx3", z.Cols(), z.Rows(), z.Channels(), want, want)
	}
}

func TestRenderZoom_DisabledScene(t *testing.T) {
	a, base := testAnnotator(t)
	defer base.Close()

	sc := fullScene()
	sc.Zoom = false
	if _, ok := a.RenderZoom(sc); ok {
		t.Fatalf("zoom view produced for a scene without zoom")
	}
}

func TestRenderZoom_CursorOutsideFrame(t *testing.T) {
	a, base := testAnnotator(t)
	defer base.Close()

	sc := fullScene()
	sc.Cursor = image.Pt(-500, -500)
	if _, ok := a.RenderZoom(sc); ok {
		t.Fatalf("zoom view produced for an off-frame cursor")
	}
}

func TestWriteSnapshot_OverwritesTarget(t *testing.T) {
	a, base := testAnnotator(t)
	defer base.Close()

	path := filepath.Join(t.TempDir(), "calib-configImg.png")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed stale snapshot: %v", err)
	}
	if err := a.WriteSnapshot(fullScene(), path); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("snapshot is not a png (%d bytes)", len(data))
	}
}

func TestEncodePNG(t *testing.T) {
	a, base := testAnnotator(t)
	defer base.Close()

	out := a.Render(calib.Scene{})
	defer out.Close()
	data, err := EncodePNG(out)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("bad png header")
	}
}
