package layout

import "math"

// Rect represents an output rectangle, either in compositor logical space or
// in canvas units depending on the caller.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Point is a position in logical or canvas space.
type Point struct {
	X float64
	Y float64
}

// Size is a width/height pair.
type Size struct {
	Width  float64
	Height float64
}

// RectAt builds a rect of the given size anchored at p.
func RectAt(p Point, s Size) Rect {
	return Rect{X: p.X, Y: p.Y, Width: s.Width, Height: s.Height}
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }

// Size returns the rect's dimensions.
func (r Rect) Size() Size { return Size{Width: r.Width, Height: r.Height} }

// Contains reports whether p lies inside r. The right and bottom edges are exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Overlaps reports whether a and b share any interior area. Rects that only
// touch along an edge or a corner do not overlap.
func Overlaps(a, b Rect) bool {
	if a.Width <= 0 || a.Height <= 0 || b.Width <= 0 || b.Height <= 0 {
		return false
	}
	return a.X < b.Right() && b.X < a.Right() && a.Y < b.Bottom() && b.Y < a.Bottom()
}

// WouldOverlapAny reports whether candidate overlaps any neighbor rect.
func WouldOverlapAny(candidate Rect, others []Neighbor) bool {
	for _, n := range others {
		if Overlaps(candidate, n.Rect) {
			return true
		}
	}
	return false
}

// Bounds returns the smallest rect containing every rect in rects.
func Bounds(rects []Rect) Rect {
	if len(rects) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, r := range rects {
		minX = math.Min(minX, r.X)
		minY = math.Min(minY, r.Y)
		maxX = math.Max(maxX, r.Right())
		maxY = math.Max(maxY, r.Bottom())
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// OriginShift returns the translation that moves every rect into the
// non-negative quadrant. Axes that are already non-negative are not shifted.
func OriginShift(rects []Rect) Point {
	if len(rects) == 0 {
		return Point{}
	}
	b := Bounds(rects)
	var shift Point
	if b.X < 0 {
		shift.X = -b.X
	}
	if b.Y < 0 {
		shift.Y = -b.Y
	}
	return shift
}

// ApproximatelyEqual reports whether two rects are almost equal.
func ApproximatelyEqual(a, b Rect, tolerance float64) bool {
	return math.Abs(a.X-b.X) <= tolerance && math.Abs(a.Y-b.Y) <= tolerance &&
		math.Abs(a.Width-b.Width) <= tolerance && math.Abs(a.Height-b.Height) <= tolerance
}
