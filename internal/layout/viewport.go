package layout

import "math"

const (
	minCanvasSpanX = 4000
	minCanvasSpanY = 3000
)

// Viewport maps compositor logical space onto canvas units.
type Viewport struct {
	Zoom    float64
	OffsetX float64
	OffsetY float64
}

// DefaultViewport is a 1:1 mapping with no offset.
func DefaultViewport() Viewport {
	return Viewport{Zoom: 1}
}

func (v Viewport) zoom() float64 {
	if v.Zoom <= 0 || math.IsNaN(v.Zoom) || math.IsInf(v.Zoom, 0) {
		return 1
	}
	return v.Zoom
}

// ToLogical converts a canvas point into logical coordinates.
func (v Viewport) ToLogical(p Point) Point {
	z := v.zoom()
	return Point{X: (p.X - v.OffsetX) / z, Y: (p.Y - v.OffsetY) / z}
}

// ToCanvas converts a logical point into canvas coordinates.
func (v Viewport) ToCanvas(p Point) Point {
	z := v.zoom()
	return Point{X: p.X*z + v.OffsetX, Y: p.Y*z + v.OffsetY}
}

// Rect converts a logical rect to canvas units.
func (v Viewport) Rect(r Rect) Rect {
	o := v.ToCanvas(r.Origin())
	z := v.zoom()
	return Rect{X: o.X, Y: o.Y, Width: r.Width * z, Height: r.Height * z}
}

// LogicalDistance converts a canvas distance, such as a snap threshold in
// pixels, into logical units.
func (v Viewport) LogicalDistance(px float64) float64 {
	return px / v.zoom()
}

// FitViewport chooses a zoom and offset so that every logical rect fits in
// bounds with margin units on each side. The layout is centered. The span is
// never smaller than a 4000x3000 logical area so a single output does not
// fill the whole canvas.
func FitViewport(bounds Size, rects []Rect, margin float64) Viewport {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return DefaultViewport()
	}
	box := Bounds(rects)
	spanX := math.Max(box.Width, minCanvasSpanX)
	spanY := math.Max(box.Height, minCanvasSpanY)
	usableW := math.Max(bounds.Width-2*margin, 1)
	usableH := math.Max(bounds.Height-2*margin, 1)
	zoom := math.Min(usableW/spanX, usableH/spanY)
	centerX := box.X + box.Width/2
	centerY := box.Y + box.Height/2
	return Viewport{
		Zoom:    zoom,
		OffsetX: bounds.Width/2 - centerX*zoom,
		OffsetY: bounds.Height/2 - centerY*zoom,
	}
}
