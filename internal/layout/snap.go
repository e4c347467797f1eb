package layout

import (
	"math"
	"sort"
)

// Neighbor is another output's rectangle as seen by a moving output.
type Neighbor struct {
	Name string
	Rect Rect
}

type axisMatch struct {
	dist  float64
	name  string
	value float64
}

// Snap pulls candidate onto nearby neighbor edges. For each axis the moving
// rect's start, end and center lines are compared with the start, end and
// center lines of every neighbor; the closest pair within threshold wins and
// equal distances go to the neighbor with the lower name. Axes are resolved
// independently and an axis without a match keeps its candidate value.
func Snap(size Size, candidate Point, others []Neighbor, threshold float64) Point {
	resolved := candidate
	if x, ok := snapAxis(candidate.X, size.Width, others, threshold, func(r Rect) (float64, float64) {
		return r.X, r.Width
	}); ok {
		resolved.X = x
	}
	if y, ok := snapAxis(candidate.Y, size.Height, others, threshold, func(r Rect) (float64, float64) {
		return r.Y, r.Height
	}); ok {
		resolved.Y = y
	}
	return resolved
}

func snapAxis(start, length float64, others []Neighbor, threshold float64, span func(Rect) (float64, float64)) (float64, bool) {
	if threshold < 0 {
		return start, false
	}
	moving := [3]float64{0, length, length / 2}
	var best axisMatch
	found := false
	for _, n := range others {
		origin, extent := span(n.Rect)
		targets := [3]float64{origin, origin + extent, origin + extent/2}
		for _, m := range moving {
			for _, t := range targets {
				dist := math.Abs(start + m - t)
				if dist > threshold {
					continue
				}
				if !found || dist < best.dist || (dist == best.dist && n.Name < best.name) {
					best = axisMatch{dist: dist, name: n.Name, value: t - m}
					found = true
				}
			}
		}
	}
	return best.value, found
}

// ResolveOverlap returns to when a rect of size placed there is clear of all
// neighbors. Otherwise it walks back along the movement from -> to and returns
// the clear position closest to to, trying every point at which the moving
// rect becomes flush with a neighbor edge before falling back to from.
// Positions are rounded to whole logical pixels. The boolean is false when no
// clear position exists on the segment, including from itself.
func ResolveOverlap(size Size, from, to Point, others []Neighbor) (Point, bool) {
	to = roundPoint(to)
	if !WouldOverlapAny(RectAt(to, size), others) {
		return to, true
	}
	dx := to.X - from.X
	dy := to.Y - from.Y
	steps := []float64{0}
	for _, n := range others {
		if dx != 0 {
			steps = append(steps,
				(n.Rect.Right()-from.X)/dx,
				(n.Rect.X-size.Width-from.X)/dx,
			)
		}
		if dy != 0 {
			steps = append(steps,
				(n.Rect.Bottom()-from.Y)/dy,
				(n.Rect.Y-size.Height-from.Y)/dy,
			)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(steps)))
	for _, t := range steps {
		if t < 0 || t > 1 || math.IsNaN(t) {
			continue
		}
		p := roundPoint(Point{X: from.X + t*dx, Y: from.Y + t*dy})
		if !WouldOverlapAny(RectAt(p, size), others) {
			return p, true
		}
	}
	return from, false
}

func roundPoint(p Point) Point {
	return Point{X: math.Round(p.X), Y: math.Round(p.Y)}
}
