package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"

	"github.com/mkrall/spherecal/domain/calib"
	"github.com/mkrall/spherecal/geom"
)

const (
	circleSamples = 64
	clickRadius   = 3
	axisLength    = 0.5
	zoomHalf      = 20
	zoomScale     = 4
)

var (
	colorClick  = color.RGBA{G: 255, A: 255}
	colorCircle = color.RGBA{R: 255, G: 255, A: 255}
	colorSquare = color.RGBA{R: 255, G: 128, A: 255}
	colorCursor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorAxisX  = color.RGBA{R: 255, A: 255}
	colorAxisY  = color.RGBA{G: 255, A: 255}
	colorAxisZ  = color.RGBA{B: 255, A: 255}

	// One color per ignore region, cycling.
	polyPalette = []color.RGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
		{R: 255, G: 255, A: 255},
		{R: 255, B: 255, A: 255},
		{G: 255, B: 255, A: 255},
	}
)

// Annotator draws calibration scenes over the prepared reference frame.
type Annotator struct {
	base gocv.Mat
	cam  *geom.CameraModel
}

// NewAnnotator keeps a reference to base; the caller must not close it
// before the annotator is done.
func NewAnnotator(base gocv.Mat, cam *geom.CameraModel) *Annotator {
	return &Annotator{base: base, cam: cam}
}

// Render draws the scene onto a fresh color copy of the reference
// frame. The caller owns the returned Mat.
func (a *Annotator) Render(sc calib.Scene) gocv.Mat {
	canvas := gocv.NewMat()
	if a.base.Channels() == 1 {
		gocv.CvtColor(a.base, &canvas, gocv.ColorGrayToBGR)
	} else {
		a.base.CopyTo(&canvas)
	}

	for i, poly := range sc.Polys {
		a.drawPoly(&canvas, poly, polyPalette[i%len(polyPalette)])
	}
	for _, p := range sc.CircPts {
		gocv.Circle(&canvas, p, clickRadius, colorClick, 1)
	}
	if sc.Circle != nil {
		a.drawFittedCircle(&canvas, sc.Circle)
	}
	for _, p := range sc.SqrPts {
		gocv.Circle(&canvas, p, clickRadius, colorSquare, 1)
	}
	if sc.Square != nil {
		a.drawTransform(&canvas, sc)
	}
	a.drawCursor(&canvas, sc.Cursor)
	return canvas
}

// RenderZoom magnifies the annotated area around the cursor for the
// separate zoom surface, so single-pixel clicks can be placed
// precisely. It reports false when the scene has no zoom view to show.
func (a *Annotator) RenderZoom(sc calib.Scene) (gocv.Mat, bool) {
	if !sc.Zoom {
		return gocv.Mat{}, false
	}
	canvas := a.Render(sc)
	defer canvas.Close()

	bounds := image.Rect(0, 0, canvas.Cols(), canvas.Rows())
	cur := sc.Cursor
	r := image.Rect(cur.X-zoomHalf, cur.Y-zoomHalf, cur.X+zoomHalf, cur.Y+zoomHalf).Intersect(bounds)
	if r.Dx() < 2 || r.Dy() < 2 {
		return gocv.Mat{}, false
	}
	src := canvas.Region(r)
	defer src.Close()
	zoomed := gocv.NewMat()
	gocv.Resize(src, &zoomed, image.Pt(r.Dx()*zoomScale, r.Dy()*zoomScale), 0, 0, gocv.InterpolationNearestNeighbor)
	return zoomed, true
}

// WriteSnapshot renders the scene and writes it to path, overwriting
// any previous snapshot.
func (a *Annotator) WriteSnapshot(sc calib.Scene, path string) error {
	m := a.Render(sc)
	defer m.Close()
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("render: writing snapshot %s failed", path)
	}
	return nil
}

// ZoomPlaceholderPNG is the blank image shown on the zoom surface when
// no zoom view is active.
func ZoomPlaceholderPNG() ([]byte, error) {
	m := gocv.NewMatWithSize(2*zoomHalf*zoomScale, 2*zoomHalf*zoomScale, gocv.MatTypeCV8UC3)
	defer m.Close()
	return EncodePNG(m)
}

// EncodePNG compresses a rendered frame for surfaces that take image
// bytes rather than Mats.
func EncodePNG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("render: png encode: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

func (a *Annotator) drawPoly(canvas *gocv.Mat, poly []image.Point, c color.RGBA) {
	for _, p := range poly {
		gocv.Circle(canvas, p, clickRadius, c, 1)
	}
	for i := 1; i < len(poly); i++ {
		gocv.Line(canvas, poly[i-1], poly[i], c, 1)
	}
	if len(poly) >= 3 {
		gocv.Line(canvas, poly[len(poly)-1], poly[0], c, 1)
	}
}

// drawFittedCircle samples the silhouette cone and projects it back to
// pixels, so the drawn curve is exact under the camera model rather
// than an image-plane ellipse approximation.
func (a *Annotator) drawFittedCircle(canvas *gocv.Mat, c *calib.Circle) {
	u, v := perpBasis(c.Axis)
	sinR, cosR := math.Sin(c.AngRadius), math.Cos(c.AngRadius)

	var pts []image.Point
	for i := 0; i <= circleSamples; i++ {
		t := 2 * math.Pi * float64(i) / circleSamples
		dir := c.Axis.Mul(cosR).
			Add(u.Mul(sinR * math.Cos(t))).
			Add(v.Mul(sinR * math.Sin(t)))
		if x, y, ok := a.cam.VectorToPixel(dir); ok {
			pts = append(pts, image.Pt(int(math.Round(x)), int(math.Round(y))))
		} else {
			pts = append(pts, image.Pt(-1, -1))
		}
	}
	for i := 1; i < len(pts); i++ {
		if pts[i-1].X >= 0 && pts[i].X >= 0 {
			gocv.Line(canvas, pts[i-1], pts[i], colorCircle, 1)
		}
	}
}

func (a *Annotator) drawTransform(canvas *gocv.Mat, sc calib.Scene) {
	sq := sc.Square
	if sq.HasPlane {
		if corners, ok := a.cam.ReprojectSquare(sq.Plane, sq.Rot, sq.Trans); ok {
			for i := 0; i < 4; i++ {
				gocv.Line(canvas, corners[i], corners[(i+1)%4], colorSquare, 1)
			}
		}
	}

	// Axes originate at the sphere center when one is fitted, else at
	// the solved translation.
	origin := sq.Trans
	if sc.Circle != nil && sc.Circle.AngRadius > 0 {
		origin = sc.Circle.Axis.Mul(1 / math.Tan(sc.Circle.AngRadius))
	}
	rot := geom.AxisAngleToMatrix(sq.Rot)
	o, ok := a.project(origin)
	if !ok {
		return
	}
	axes := []color.RGBA{colorAxisX, colorAxisY, colorAxisZ}
	for i, c := range axes {
		dir := r3.Vector{X: rot.At(0, i), Y: rot.At(1, i), Z: rot.At(2, i)}
		if tip, ok := a.project(origin.Add(dir.Mul(axisLength))); ok {
			gocv.Line(canvas, o, tip, c, 2)
		}
	}
}

func (a *Annotator) project(v r3.Vector) (image.Point, bool) {
	x, y, ok := a.cam.VectorToPixel(v)
	if !ok {
		return image.Point{}, false
	}
	return image.Pt(int(math.Round(x)), int(math.Round(y))), true
}

func (a *Annotator) drawCursor(canvas *gocv.Mat, cur image.Point) {
	if cur.X <= 0 && cur.Y <= 0 {
		return
	}
	gocv.Line(canvas, image.Pt(cur.X-5, cur.Y), image.Pt(cur.X+5, cur.Y), colorCursor, 1)
	gocv.Line(canvas, image.Pt(cur.X, cur.Y-5), image.Pt(cur.X, cur.Y+5), colorCursor, 1)
}

func perpBasis(axis r3.Vector) (r3.Vector, r3.Vector) {
	ref := r3.Vector{X: 1}
	if math.Abs(axis.X) > 0.9 {
		ref = r3.Vector{Y: 1}
	}
	u := axis.Cross(ref).Normalize()
	v := axis.Cross(u)
	return u, v
}
