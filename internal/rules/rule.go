package rules

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mango-display/mango-display/internal/state"
)

// Directive is the config key rule lines are written under.
const Directive = "monitorrule"

var (
	// ErrMalformedRule reports a rule line that cannot be turned into an output.
	ErrMalformedRule = errors.New("malformed rule")
	// ErrIO reports a failed read or write of a rule or config file.
	ErrIO = errors.New("i/o error")
)

// RuleError describes a rejected rule line. Line is 1-based, or 0 when the
// rule was not read from a file.
type RuleError struct {
	Line   int
	Text   string
	Reason string
}

func (e *RuleError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v: %s", e.Line, ErrMalformedRule, e.Reason)
	}
	return fmt.Sprintf("%v: %s", ErrMalformedRule, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return ErrMalformedRule
}

var requiredKeys = []string{"name", "width", "height", "refresh", "x", "y", "scale", "rr"}

func isRequired(key string) bool {
	for _, k := range requiredKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Serialize renders one output as a rule line. Known fields come first in a
// fixed order; preserved unknown fields follow in the order they were read.
func Serialize(o state.Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=name:%s,width:%d,height:%d,refresh:%s,x:%d,y:%d,scale:%s,rr:%d",
		Directive,
		o.Name,
		o.Mode.Width,
		o.Mode.Height,
		o.Mode.Refresh,
		o.Position.X,
		o.Position.Y,
		o.Scale,
		o.Transform.RuleCode(),
	)
	for _, f := range o.Extra {
		b.WriteString(",")
		b.WriteString(f.Key)
		b.WriteString(":")
		b.WriteString(f.Value)
	}
	return b.String()
}

// IsRuleLine reports whether line is a rule directive, ignoring surrounding
// whitespace.
func IsRuleLine(line string) bool {
	key, _, found := strings.Cut(strings.TrimSpace(line), "=")
	return found && strings.TrimSpace(key) == Directive
}

// Deserialize parses one rule line. Fields are matched by key, so order does
// not matter; keys this program does not know are kept in Extra.
func Deserialize(line string) (state.Output, error) {
	return deserializeAt(line, 0)
}

func deserializeAt(line string, lineNo int) (state.Output, error) {
	fail := func(format string, args ...any) (state.Output, error) {
		return state.Output{}, &RuleError{Line: lineNo, Text: line, Reason: fmt.Sprintf(format, args...)}
	}
	key, body, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || strings.TrimSpace(key) != Directive {
		return fail("not a %s line", Directive)
	}

	values := make(map[string]string, len(requiredKeys))
	var extra []state.Field
	for _, field := range strings.Split(strings.TrimSpace(body), ",") {
		k, v, ok := strings.Cut(field, ":")
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if !ok || k == "" {
			return fail("field %q is not key:value", field)
		}
		if !isRequired(k) {
			extra = append(extra, state.Field{Key: k, Value: v})
			continue
		}
		if _, dup := values[k]; dup {
			return fail("duplicate key %q", k)
		}
		values[k] = v
	}
	for _, k := range requiredKeys {
		if _, ok := values[k]; !ok {
			return fail("missing %s", k)
		}
	}

	ints := make(map[string]int, 5)
	for _, k := range []string{"width", "height", "x", "y", "rr"} {
		n, err := strconv.Atoi(values[k])
		if err != nil {
			return fail("%s %q is not an integer", k, values[k])
		}
		ints[k] = n
	}
	if ints["width"] <= 0 || ints["height"] <= 0 {
		return fail("resolution %dx%d must be positive", ints["width"], ints["height"])
	}
	refresh, err := state.ParseRefresh(values["refresh"])
	if err != nil {
		return fail("%v", err)
	}
	scale, err := state.ParseScale(values["scale"])
	if err != nil {
		return fail("%v", err)
	}
	transform, err := state.TransformFromRuleCode(ints["rr"])
	if err != nil {
		return fail("%v", err)
	}

	o := state.Output{
		Name:      values["name"],
		Mode:      state.Mode{Width: ints["width"], Height: ints["height"], Refresh: refresh},
		Scale:     scale,
		Transform: transform,
		Position:  state.Position{X: ints["x"], Y: ints["y"]},
		Enabled:   true,
		Extra:     extra,
	}
	if err := o.Validate(); err != nil {
		return fail("%v", err)
	}
	return o, nil
}

// ParseRules reads every rule line from r. Malformed or repeated rules are
// skipped and reported; other lines are ignored.
func ParseRules(r io.Reader) ([]state.Output, []error) {
	var (
		outputs []state.Output
		errs    []error
		seen    = map[string]int{}
	)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !IsRuleLine(line) {
			continue
		}
		o, err := deserializeAt(line, lineNo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if first, dup := seen[o.Name]; dup {
			errs = append(errs, &RuleError{Line: lineNo, Text: line, Reason: fmt.Sprintf("output %q already defined on line %d", o.Name, first)})
			continue
		}
		seen[o.Name] = lineNo
		outputs = append(outputs, o)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrIO, err))
	}
	return outputs, errs
}

// LoadFile parses the rule file at path. A missing file yields no outputs and
// no error; other read failures match ErrIO.
func LoadFile(path string) ([]state.Output, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()
	outputs, errs := ParseRules(f)
	return outputs, errs, nil
}
