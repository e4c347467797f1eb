package layout

import "testing"

func TestSnapFlushToRightEdge(t *testing.T) {
	others := []Neighbor{{Name: "DP-1", Rect: Rect{X: 0, Y: 0, Width: 1920, Height: 1080}}}
	got := Snap(Size{Width: 1920, Height: 1080}, Point{X: 1930, Y: 0}, others, 15)
	if got.X != 1920 || got.Y != 0 {
		t.Fatalf("expected snap to (1920,0), got %+v", got)
	}
}

func TestSnapLeavesAxisOutsideThreshold(t *testing.T) {
	others := []Neighbor{
		{Name: "A", Rect: Rect{X: 0, Y: 0, Width: 1000, Height: 1000}},
		{Name: "B", Rect: Rect{X: 2000, Y: 2000, Width: 1000, Height: 1000}},
	}
	candidate := Point{X: 1030, Y: 2040}
	got := Snap(Size{Width: 400, Height: 400}, candidate, others, 15)
	if got != candidate {
		t.Fatalf("expected no snap, got %+v", got)
	}
}

func TestSnapResolvesAxesIndependently(t *testing.T) {
	others := []Neighbor{
		{Name: "A", Rect: Rect{X: 0, Y: 0, Width: 1000, Height: 1000}},
		{Name: "B", Rect: Rect{X: 2000, Y: 2000, Width: 1000, Height: 1000}},
	}
	got := Snap(Size{Width: 400, Height: 400}, Point{X: 1008, Y: 2003}, others, 15)
	if got.X != 1000 {
		t.Fatalf("expected X to snap to A's right edge, got %v", got.X)
	}
	if got.Y != 2000 {
		t.Fatalf("expected Y to snap to B's top edge, got %v", got.Y)
	}
}

func TestSnapTieBreaksOnLowerName(t *testing.T) {
	left := Neighbor{Name: "DP-2", Rect: Rect{X: 0, Y: 0, Width: 1000, Height: 1000}}
	right := Neighbor{Name: "DP-1", Rect: Rect{X: 2000, Y: 0, Width: 1000, Height: 1000}}
	size := Size{Width: 980, Height: 500}
	candidate := Point{X: 1010, Y: 5000}

	for i := 0; i < 10; i++ {
		for _, order := range [][]Neighbor{{left, right}, {right, left}} {
			got := Snap(size, candidate, order, 15)
			if got.X != 1020 {
				t.Fatalf("expected tie to resolve toward DP-1 at x=1020, got %v", got.X)
			}
			if got.Y != 5000 {
				t.Fatalf("expected Y to stay unsnapped, got %v", got.Y)
			}
		}
	}
}

func TestSnapCenterLines(t *testing.T) {
	others := []Neighbor{{Name: "DP-1", Rect: Rect{X: 0, Y: 0, Width: 2000, Height: 1000}}}
	// Moving center at 1006 vs neighbor center at 1000.
	got := Snap(Size{Width: 500, Height: 200}, Point{X: 756, Y: 1200}, others, 10)
	if got.X != 750 {
		t.Fatalf("expected center alignment at x=750, got %v", got.X)
	}
}

func TestSnapNegativeThresholdDisables(t *testing.T) {
	others := []Neighbor{{Name: "DP-1", Rect: Rect{X: 0, Y: 0, Width: 1920, Height: 1080}}}
	candidate := Point{X: 1921, Y: 1}
	if got := Snap(Size{Width: 100, Height: 100}, candidate, others, -1); got != candidate {
		t.Fatalf("expected candidate unchanged, got %+v", got)
	}
}

func TestResolveOverlapReturnsClearTarget(t *testing.T) {
	others := []Neighbor{{Name: "DP-1", Rect: Rect{X: 0, Y: 0, Width: 1920, Height: 1080}}}
	got, ok := ResolveOverlap(Size{Width: 100, Height: 100}, Point{X: 3000, Y: 0}, Point{X: 2500.4, Y: 10.6}, others)
	if !ok || got.X != 2500 || got.Y != 11 {
		t.Fatalf("expected rounded clear target, got %+v ok=%v", got, ok)
	}
}

func TestResolveOverlapBacksOffAlongMovement(t *testing.T) {
	others := []Neighbor{{Name: "DP-1", Rect: Rect{X: 0, Y: 0, Width: 1920, Height: 1080}}}
	size := Size{Width: 1920, Height: 1080}
	got, ok := ResolveOverlap(size, Point{X: 2500, Y: 0}, Point{X: 1000, Y: 0}, others)
	if !ok {
		t.Fatalf("expected a clear position")
	}
	if got.X != 1920 || got.Y != 0 {
		t.Fatalf("expected to stop flush at (1920,0), got %+v", got)
	}
	if WouldOverlapAny(RectAt(got, size), others) {
		t.Fatalf("resolved position still overlaps")
	}
}

func TestResolveOverlapDiagonal(t *testing.T) {
	others := []Neighbor{{Name: "DP-1", Rect: Rect{X: 0, Y: 0, Width: 1000, Height: 1000}}}
	size := Size{Width: 500, Height: 500}
	got, ok := ResolveOverlap(size, Point{X: 1500, Y: 1500}, Point{X: 700, Y: 700}, others)
	if !ok {
		t.Fatalf("expected a clear position")
	}
	if WouldOverlapAny(RectAt(got, size), others) {
		t.Fatalf("resolved position %+v overlaps", got)
	}
	if got.X != 1000 || got.Y != 1000 {
		t.Fatalf("expected to stop at the corner (1000,1000), got %+v", got)
	}
}

func TestResolveOverlapFailsWhenStartBlocked(t *testing.T) {
	others := []Neighbor{{Name: "DP-1", Rect: Rect{X: 0, Y: 0, Width: 1000, Height: 1000}}}
	from := Point{X: 100, Y: 100}
	got, ok := ResolveOverlap(Size{Width: 10, Height: 10}, from, Point{X: 200, Y: 200}, others)
	if ok {
		t.Fatalf("expected failure when whole segment is blocked")
	}
	if got != from {
		t.Fatalf("expected from to be returned, got %+v", got)
	}
}
