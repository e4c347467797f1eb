package state

import (
	"context"
	"fmt"
	"sort"
)

// DataSource abstracts the query side of the external output tool.
type DataSource interface {
	QueryOutputs(ctx context.Context) ([]Output, error)
}

// Session is the set of known outputs keyed by name, the selected output and
// an unsaved-changes flag. It is not safe for concurrent use; the controller
// owns it.
type Session struct {
	outputs  map[string]Output
	selected string
	dirty    bool
}

// NewSession builds a session from outputs. Names must be unique and every
// output must pass Validate.
func NewSession(outputs ...Output) (*Session, error) {
	s := &Session{outputs: make(map[string]Output, len(outputs))}
	for _, o := range outputs {
		if err := s.Add(o); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Len returns the number of outputs.
func (s *Session) Len() int {
	return len(s.outputs)
}

// Add inserts a new output.
func (s *Session) Add(o Output) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if _, exists := s.outputs[o.Name]; exists {
		return fmt.Errorf("%w %q", ErrDuplicateOutput, o.Name)
	}
	s.outputs[o.Name] = o.Clone()
	return nil
}

// Put replaces an existing output with the same name.
func (s *Session) Put(o Output) error {
	if _, exists := s.outputs[o.Name]; !exists {
		return fmt.Errorf("%w %q", ErrUnknownOutput, o.Name)
	}
	if err := o.Validate(); err != nil {
		return err
	}
	s.outputs[o.Name] = o.Clone()
	return nil
}

// Get returns a copy of the named output.
func (s *Session) Get(name string) (Output, bool) {
	o, ok := s.outputs[name]
	if !ok {
		return Output{}, false
	}
	return o.Clone(), true
}

// Remove deletes the named output and clears the selection if it pointed at it.
func (s *Session) Remove(name string) error {
	if _, ok := s.outputs[name]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownOutput, name)
	}
	delete(s.outputs, name)
	if s.selected == name {
		s.selected = ""
	}
	return nil
}

// Names returns output names in lexicographic order.
func (s *Session) Names() []string {
	names := make([]string, 0, len(s.outputs))
	for name := range s.outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outputs returns copies of all outputs ordered by name.
func (s *Session) Outputs() []Output {
	names := s.Names()
	out := make([]Output, 0, len(names))
	for _, name := range names {
		out = append(out, s.outputs[name].Clone())
	}
	return out
}

// Enabled returns copies of the enabled outputs ordered by name.
func (s *Session) Enabled() []Output {
	all := s.Outputs()
	enabled := all[:0]
	for _, o := range all {
		if o.Enabled {
			enabled = append(enabled, o)
		}
	}
	return enabled
}

// Select marks name as the selected output. An empty name clears the selection.
func (s *Session) Select(name string) error {
	if name == "" {
		s.selected = ""
		return nil
	}
	if _, ok := s.outputs[name]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownOutput, name)
	}
	s.selected = name
	return nil
}

// Selected returns the selected output, if any.
func (s *Session) Selected() (Output, bool) {
	if s.selected == "" {
		return Output{}, false
	}
	return s.Get(s.selected)
}

// SelectedName returns the selected output name or "".
func (s *Session) SelectedName() string {
	return s.selected
}

func (s *Session) Dirty() bool { return s.dirty }
func (s *Session) MarkDirty()  { s.dirty = true }
func (s *Session) ClearDirty() { s.dirty = false }

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := &Session{
		outputs:  make(map[string]Output, len(s.outputs)),
		selected: s.selected,
		dirty:    s.dirty,
	}
	for name, o := range s.outputs {
		c.outputs[name] = o.Clone()
	}
	return c
}
