package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mango-display/mango-display/internal/control"
	"github.com/mango-display/mango-display/internal/layout"
)

var tableHeader = []string{"", "Name", "Mode", "Scale", "Transform", "Position", "Logical", "State"}

// RenderTable lists every output, one per row. The selected output is marked
// with an asterisk.
func RenderTable(st Styles, status control.SessionStatus) string {
	if len(status.Outputs) == 0 {
		return "  (no outputs)\n"
	}
	rows := make([][]string, 0, len(status.Outputs))
	for _, o := range status.Outputs {
		mark := ""
		if o.Name == status.Selected {
			mark = "*"
		}
		rows = append(rows, []string{
			mark,
			o.Name,
			formatMode(o),
			fmt.Sprintf("%.2f", o.Scale),
			o.Transform,
			fmt.Sprintf("%d,%d", o.X, o.Y),
			fmt.Sprintf("%dx%d", o.LogicalWidth, o.LogicalHeight),
			outputState(o),
		})
	}

	widths := make([]int, len(tableHeader))
	for i, h := range tableHeader {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	b.WriteString(st.Header.Render(joinRow(tableHeader, widths)))
	b.WriteByte('\n')
	for i, row := range rows {
		line := joinRow(row, widths)
		o := status.Outputs[i]
		switch {
		case o.Name == status.Selected:
			line = st.Selected.Render(line)
		case !o.Enabled:
			line = st.Disabled.Render(line)
		case o.Virtual:
			line = st.Virtual.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if status.Dirty {
		b.WriteString(st.Dirty.Render("unsaved changes"))
		b.WriteByte('\n')
	}
	return b.String()
}

func joinRow(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		padded[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
	}
	return strings.TrimRight(strings.Join(padded, "  "), " ")
}

func formatMode(o control.OutputInfo) string {
	if o.ModeUnknown {
		return "unknown"
	}
	mode := fmt.Sprintf("%dx%d@%.3fHz", o.Width, o.Height, o.Refresh)
	if o.CustomMode {
		mode += " (custom)"
	}
	return mode
}

func outputState(o control.OutputInfo) string {
	var parts []string
	if o.Enabled {
		parts = append(parts, "on")
	} else {
		parts = append(parts, "off")
	}
	if o.Virtual {
		parts = append(parts, "virtual")
	}
	return strings.Join(parts, ", ")
}

// Minimap draws the layout into a cols by rows character grid. Enabled
// outputs are filled with their label (A, B, ...) in session order and
// disabled outputs with dots. Character cells are treated as twice as tall
// as they are wide.
func Minimap(st Styles, status control.SessionStatus, cols, rows int) string {
	if cols <= 0 || rows <= 0 {
		return ""
	}
	grid := make([][]rune, rows)
	owner := make([][]int, rows)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", cols))
		owner[y] = make([]int, cols)
		for x := range owner[y] {
			owner[y][x] = -1
		}
	}

	rects := make([]layout.Rect, 0, len(status.Outputs))
	for _, o := range status.Outputs {
		rects = append(rects, logicalRect(o))
	}
	vp := layout.FitViewport(layout.Size{Width: float64(cols), Height: float64(rows * 2)}, rects, 1)

	paint := func(i int, fill rune) {
		r := vp.Rect(rects[i])
		x0 := clamp(int(math.Floor(r.X)), 0, cols-1)
		x1 := clamp(int(math.Ceil(r.Right()))-1, 0, cols-1)
		y0 := clamp(int(math.Floor(r.Y/2)), 0, rows-1)
		y1 := clamp(int(math.Ceil(r.Bottom()/2))-1, 0, rows-1)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				grid[y][x] = fill
				owner[y][x] = i
			}
		}
	}
	for i, o := range status.Outputs {
		if !o.Enabled {
			paint(i, '.')
		}
	}
	for i, o := range status.Outputs {
		if o.Enabled {
			paint(i, label(i))
		}
	}

	var b strings.Builder
	for y := range grid {
		for x, ch := range grid[y] {
			cell := string(ch)
			if i := owner[y][x]; i >= 0 && status.Outputs[i].Name == status.Selected {
				cell = st.Selected.Render(cell)
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}
	for i, o := range status.Outputs {
		fmt.Fprintf(&b, "%c %s\n", label(i), o.Name)
	}
	return b.String()
}

func logicalRect(o control.OutputInfo) layout.Rect {
	return layout.Rect{X: float64(o.X), Y: float64(o.Y), Width: float64(o.LogicalWidth), Height: float64(o.LogicalHeight)}
}

func label(i int) rune {
	if i < 26 {
		return rune('A' + i)
	}
	return '#'
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
