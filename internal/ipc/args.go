package ipc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mango-display/mango-display/internal/state"
)

// Directive is the argument group configuring a single output.
type Directive []string

func (d Directive) String() string {
	return strings.Join(d, " ")
}

// BuildApplyArguments returns one directive per non-virtual output ordered by
// name. Enabled outputs get a full geometry directive; disabled outputs are
// switched off. Virtual outputs are not known to the tool and are skipped.
func BuildApplyArguments(outputs []state.Output) []Directive {
	sorted := make([]state.Output, 0, len(outputs))
	for _, o := range outputs {
		if o.Virtual {
			continue
		}
		sorted = append(sorted, o)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	directives := make([]Directive, 0, len(sorted))
	for _, o := range sorted {
		if !o.Enabled {
			directives = append(directives, Directive{"--output", o.Name, "--off"})
			continue
		}
		d := Directive{"--output", o.Name, "--on"}
		switch {
		case o.CustomMode:
			d = append(d, "--custom-mode", o.Mode.String())
		case !o.ModeUnknown:
			d = append(d, "--mode", o.Mode.String())
		}
		d = append(d,
			"--pos", fmt.Sprintf("%d,%d", o.Position.X, o.Position.Y),
			"--scale", o.Scale.String(),
			"--transform", o.Transform.String(),
		)
		directives = append(directives, d)
	}
	return directives
}

// PlanApply builds the directives for outputs, shifting a copy so no enabled
// output has a negative coordinate when normalizeOrigin is set. outputs is
// not modified.
func PlanApply(outputs []state.Output, normalizeOrigin bool) []Directive {
	if normalizeOrigin {
		shifted := make([]state.Output, len(outputs))
		for i, o := range outputs {
			shifted[i] = o.Clone()
		}
		state.NormalizeOrigin(shifted)
		outputs = shifted
	}
	return BuildApplyArguments(outputs)
}

// Flatten joins directives into a single argument vector.
func Flatten(directives []Directive) []string {
	var args []string
	for _, d := range directives {
		args = append(args, d...)
	}
	return args
}
