package state

import (
	"sort"

	"github.com/mango-display/mango-display/internal/layout"
)

// LogicalSize returns the output's size in compositor logical space: the
// mode divided by the scale, truncated, with the axes swapped for 90 and 270
// degree transforms.
func (o Output) LogicalSize() (int, int) {
	scale := int64(o.Scale)
	if scale <= 0 {
		scale = int64(ScaleOne)
	}
	w := int(int64(o.Mode.Width) * int64(ScaleOne) / scale)
	h := int(int64(o.Mode.Height) * int64(ScaleOne) / scale)
	if o.Transform.SwapsAxes() {
		return h, w
	}
	return w, h
}

// LogicalRect returns the output rectangle in logical space.
func (o Output) LogicalRect() layout.Rect {
	return RectFor(o, 1)
}

// RectFor returns the output's canvas rectangle at the given zoom.
func RectFor(o Output, zoom float64) layout.Rect {
	w, h := o.LogicalSize()
	return layout.Rect{
		X:      float64(o.Position.X) * zoom,
		Y:      float64(o.Position.Y) * zoom,
		Width:  float64(w) * zoom,
		Height: float64(h) * zoom,
	}
}

// Neighbors returns the logical rects of every enabled output except exclude,
// sorted by name.
func Neighbors(outputs []Output, exclude string) []layout.Neighbor {
	neighbors := make([]layout.Neighbor, 0, len(outputs))
	for _, o := range outputs {
		if !o.Enabled || o.Name == exclude {
			continue
		}
		neighbors = append(neighbors, layout.Neighbor{Name: o.Name, Rect: o.LogicalRect()})
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Name < neighbors[j].Name })
	return neighbors
}

// OverlappingPairs lists every pair of enabled outputs whose rects overlap.
func OverlappingPairs(outputs []Output) [][2]string {
	var pairs [][2]string
	enabled := make([]Output, 0, len(outputs))
	for _, o := range outputs {
		if o.Enabled {
			enabled = append(enabled, o)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
	for i := range enabled {
		for j := i + 1; j < len(enabled); j++ {
			if layout.Overlaps(enabled[i].LogicalRect(), enabled[j].LogicalRect()) {
				pairs = append(pairs, [2]string{enabled[i].Name, enabled[j].Name})
			}
		}
	}
	return pairs
}

// NormalizeOrigin shifts every enabled output so that no enabled output has a
// negative coordinate. Axes that are already non-negative are untouched.
func NormalizeOrigin(outputs []Output) {
	rects := make([]layout.Rect, 0, len(outputs))
	for _, o := range outputs {
		if o.Enabled {
			rects = append(rects, o.LogicalRect())
		}
	}
	shift := layout.OriginShift(rects)
	if shift.X == 0 && shift.Y == 0 {
		return
	}
	for i := range outputs {
		if !outputs[i].Enabled {
			continue
		}
		outputs[i].Nudge(int(shift.X), int(shift.Y))
	}
}
