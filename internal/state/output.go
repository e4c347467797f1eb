package state

import (
	"fmt"
	"math"
	"strings"
)

// Mode is a supported (width, height, refresh) triple.
type Mode struct {
	Width     int
	Height    int
	Refresh   Refresh
	Preferred bool
}

// String renders the mode as a wlr-randr mode token, e.g. "1920x1080@144.000000Hz".
func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%sHz", m.Width, m.Height, m.Refresh)
}

// SameSize reports whether two modes share a resolution.
func (m Mode) SameSize(o Mode) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// Position is an integer offset in compositor logical space. Negative values are valid.
type Position struct {
	X int
	Y int
}

// PhysicalSize is the panel size in millimetres as reported by the hardware.
type PhysicalSize struct {
	Width  int
	Height int
}

// Field is a rule key/value pair this program does not interpret.
type Field struct {
	Key   string
	Value string
}

// Output describes one physical or planned display.
type Output struct {
	Name         string
	Description  string
	Make         string
	Model        string
	Serial       string
	PhysicalSize PhysicalSize

	Mode        Mode
	Modes       []Mode
	CustomMode  bool
	ModeUnknown bool

	Scale     Scale
	Transform Transform
	Position  Position
	Enabled   bool
	Virtual   bool

	Extra []Field
}

// Clone returns a deep copy.
func (o Output) Clone() Output {
	c := o
	if o.Modes != nil {
		c.Modes = append([]Mode(nil), o.Modes...)
	}
	if o.Extra != nil {
		c.Extra = append([]Field(nil), o.Extra...)
	}
	return c
}

// ModesKnown reports whether the hardware mode list is available.
func (o *Output) ModesKnown() bool {
	return o.Modes != nil
}

func (o *Output) hasMode(w, h int, r Refresh) bool {
	for _, m := range o.Modes {
		if m.Width == w && m.Height == h && m.Refresh == r {
			return true
		}
	}
	return false
}

// SetResolution switches to w x h. With a known mode list the pair must be
// listed and the listed refresh closest to the current one is adopted;
// without a list the mode is marked custom.
func (o *Output) SetResolution(w, h int) error {
	if w <= 0 || h <= 0 {
		return &ValueError{Field: "resolution", Value: fmt.Sprintf("%dx%d", w, h), Err: ErrInvalidValue}
	}
	if !o.ModesKnown() {
		o.Mode.Width = w
		o.Mode.Height = h
		o.CustomMode = true
		o.ModeUnknown = false
		return nil
	}
	best := -1
	for i, m := range o.Modes {
		if m.Width != w || m.Height != h {
			continue
		}
		if best < 0 || absRefresh(m.Refresh-o.Mode.Refresh) < absRefresh(o.Modes[best].Refresh-o.Mode.Refresh) {
			best = i
		}
	}
	if best < 0 {
		return &ValueError{Field: "resolution", Value: fmt.Sprintf("%dx%d", w, h), Err: ErrUnsupportedMode}
	}
	o.Mode = o.Modes[best]
	o.CustomMode = false
	o.ModeUnknown = false
	return nil
}

// SetMode selects an entry of the mode list by index.
func (o *Output) SetMode(index int) error {
	if index < 0 || index >= len(o.Modes) {
		return &ValueError{Field: "mode", Value: index, Err: ErrInvalidValue}
	}
	o.Mode = o.Modes[index]
	o.CustomMode = false
	o.ModeUnknown = false
	return nil
}

// SetRefresh sets the refresh rate. A rate missing from a known mode list
// turns the mode into a custom one.
func (o *Output) SetRefresh(r Refresh) error {
	if r <= 0 {
		return &ValueError{Field: "refresh", Value: r, Err: ErrInvalidValue}
	}
	o.Mode.Refresh = r
	if o.ModesKnown() {
		o.CustomMode = !o.hasMode(o.Mode.Width, o.Mode.Height, r)
	}
	return nil
}

// SetRefreshHz is SetRefresh for a rate in hertz.
func (o *Output) SetRefreshHz(hz float64) error {
	if !(hz > 0) {
		return &ValueError{Field: "refresh", Value: hz, Err: ErrInvalidValue}
	}
	return o.SetRefresh(RefreshFromHz(hz))
}

// SetScale sets the scale factor. It must be at least MinScale and leave a
// logical size of at least one pixel on both axes.
func (o *Output) SetScale(s Scale) error {
	if s < MinScale {
		return &ValueError{Field: "scale", Value: s, Err: ErrInvalidValue}
	}
	next := *o
	next.Scale = s
	if w, h := next.LogicalSize(); w < 1 || h < 1 {
		return &ValueError{Field: "scale", Value: s, Err: ErrInvalidValue}
	}
	o.Scale = s
	return nil
}

// SetScaleFactor is SetScale for a float factor.
func (o *Output) SetScaleFactor(f float64) error {
	if !(f > 0) || f > math.MaxInt64/float64(ScaleOne) {
		return &ValueError{Field: "scale", Value: f, Err: ErrInvalidValue}
	}
	return o.SetScale(ScaleFromFactor(f))
}

// StepScale adds steps*0.05 to the scale, stopping at MinScale.
func (o *Output) StepScale(steps int) {
	next := o.Scale + Scale(steps)*ScaleStep
	if next < MinScale {
		next = MinScale
	}
	o.Scale = next
}

// SetRotation sets the transform. degrees must be 0, 90, 180 or 270.
func (o *Output) SetRotation(degrees int, flipped bool) error {
	t := Transform{Rotation: degrees, Flipped: flipped}
	if !t.Valid() {
		return &ValueError{Field: "rotation", Value: degrees, Err: ErrInvalidValue}
	}
	o.Transform = t
	return nil
}

// SetPosition assigns the position. Overlap is checked by the caller.
func (o *Output) SetPosition(x, y int) {
	o.Position = Position{X: x, Y: y}
}

// Nudge moves the output by dx, dy.
func (o *Output) Nudge(dx, dy int) {
	o.Position.X += dx
	o.Position.Y += dy
}

// Validate checks the invariants every stored output must satisfy.
func (o *Output) Validate() error {
	if o.Name == "" || strings.TrimSpace(o.Name) != o.Name {
		return &ValueError{Field: "name", Value: o.Name, Err: ErrInvalidValue}
	}
	if strings.ContainsAny(o.Name, ",\n\r") {
		return &ValueError{Field: "name", Value: o.Name, Err: ErrInvalidValue}
	}
	if o.Mode.Width <= 0 || o.Mode.Height <= 0 {
		return &ValueError{Field: "resolution", Value: fmt.Sprintf("%dx%d", o.Mode.Width, o.Mode.Height), Err: ErrInvalidValue}
	}
	if o.Mode.Refresh <= 0 {
		return &ValueError{Field: "refresh", Value: o.Mode.Refresh, Err: ErrInvalidValue}
	}
	if o.Scale < MinScale {
		return &ValueError{Field: "scale", Value: o.Scale, Err: ErrInvalidValue}
	}
	if w, h := o.LogicalSize(); w < 1 || h < 1 {
		return &ValueError{Field: "scale", Value: o.Scale, Err: ErrInvalidValue}
	}
	if !o.Transform.Valid() {
		return &ValueError{Field: "rotation", Value: o.Transform.Rotation, Err: ErrInvalidValue}
	}
	return nil
}

func absRefresh(r Refresh) Refresh {
	if r < 0 {
		return -r
	}
	return r
}
