package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used by the table and minimap. They are
// bound to a renderer for the destination writer, so output to a pipe or
// buffer carries no escape codes.
type Styles struct {
	Header   lipgloss.Style
	Selected lipgloss.Style
	Disabled lipgloss.Style
	Virtual  lipgloss.Style
	Dirty    lipgloss.Style
	Error    lipgloss.Style
	Border   lipgloss.Style
}

// NewStyles builds styles for w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Selected: r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		Disabled: r.NewStyle().Faint(true),
		Virtual:  r.NewStyle().Italic(true).Foreground(lipgloss.Color("13")),
		Dirty:    r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:    r.NewStyle().Foreground(lipgloss.Color("9")),
		Border:   r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")),
	}
}
