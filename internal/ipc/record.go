package ipc

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mango-display/mango-display/internal/state"
)

// rawMode and rawOutput mirror one entry of the wlr-randr listing. Every field
// the tool may omit is a pointer or slice so absence stays visible.
type rawMode struct {
	Width     *int     `json:"width"`
	Height    *int     `json:"height"`
	Refresh   *float64 `json:"refresh"`
	Preferred bool     `json:"preferred"`
	Current   bool     `json:"current"`
}

type rawSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type rawPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type rawOutput struct {
	Name         string       `json:"name"`
	Description  *string      `json:"description"`
	Make         *string      `json:"make"`
	Model        *string      `json:"model"`
	Serial       *string      `json:"serial"`
	PhysicalSize *rawSize     `json:"physical_size"`
	Enabled      *bool        `json:"enabled"`
	Modes        []rawMode    `json:"modes"`
	Position     *rawPosition `json:"position"`
	Transform    *string      `json:"transform"`
	Scale        *float64     `json:"scale"`
}

var fallbackMode = state.Mode{Width: 1920, Height: 1080, Refresh: 60000}

func decodeJSON(data []byte) ([]rawOutput, error) {
	var raws []rawOutput
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	return raws, nil
}

func (m rawMode) toMode() (state.Mode, bool) {
	if m.Width == nil || m.Height == nil || m.Refresh == nil {
		return state.Mode{}, false
	}
	mode := state.Mode{
		Width:     *m.Width,
		Height:    *m.Height,
		Refresh:   state.RefreshFromHz(*m.Refresh),
		Preferred: m.Preferred,
	}
	if mode.Width <= 0 || mode.Height <= 0 || mode.Refresh <= 0 {
		return state.Mode{}, false
	}
	return mode, true
}

// toOutput converts a raw record. Missing or broken fields fall back to safe
// defaults and are reported as warnings; they never reject the output.
func (r rawOutput) toOutput() (state.Output, []string) {
	var warnings []string
	out := state.Output{
		Name:      r.Name,
		Scale:     state.ScaleOne,
		Transform: state.Transform{},
	}
	if r.Description != nil {
		out.Description = *r.Description
	}
	if r.Make != nil {
		out.Make = *r.Make
	}
	if r.Model != nil {
		out.Model = *r.Model
	}
	if r.Serial != nil {
		out.Serial = *r.Serial
	}
	if r.PhysicalSize != nil {
		out.PhysicalSize = state.PhysicalSize{Width: r.PhysicalSize.Width, Height: r.PhysicalSize.Height}
	}

	var current *state.Mode
	if r.Modes != nil {
		out.Modes = make([]state.Mode, 0, len(r.Modes))
		for i, rm := range r.Modes {
			mode, ok := rm.toMode()
			if !ok {
				warnings = append(warnings, fmt.Sprintf("%s: skipping unreadable mode #%d", r.Name, i))
				continue
			}
			out.Modes = append(out.Modes, mode)
			if rm.Current && current == nil {
				m := mode
				current = &m
			}
		}
	}
	if current != nil {
		out.Mode = *current
	} else {
		out.ModeUnknown = true
		out.Mode = pickFallbackMode(out.Modes)
		if r.Enabled == nil || *r.Enabled {
			warnings = append(warnings, fmt.Sprintf("%s: current mode unknown, assuming %s", r.Name, out.Mode))
		}
	}

	if r.Scale != nil {
		if err := out.SetScaleFactor(*r.Scale); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, using 1.0", r.Name, err))
			out.Scale = state.ScaleOne
		}
	}
	if r.Transform != nil {
		t, err := state.ParseTransform(*r.Transform)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, using normal", r.Name, err))
		} else {
			out.Transform = t
		}
	}
	if r.Position != nil {
		out.Position = state.Position{X: r.Position.X, Y: r.Position.Y}
	}
	if r.Enabled != nil {
		out.Enabled = *r.Enabled
	} else {
		out.Enabled = current != nil
	}
	return out, warnings
}

func pickFallbackMode(modes []state.Mode) state.Mode {
	for _, m := range modes {
		if m.Preferred {
			return m
		}
	}
	if len(modes) > 0 {
		return modes[0]
	}
	return fallbackMode
}

// convertRecords turns raw records into validated outputs sorted by name.
// Records without a name or that still fail validation are dropped with a warning.
func convertRecords(raws []rawOutput) ([]state.Output, []string) {
	var warnings []string
	outputs := make([]state.Output, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i, raw := range raws {
		if raw.Name == "" {
			warnings = append(warnings, fmt.Sprintf("output #%d has no name, skipping", i))
			continue
		}
		if _, dup := seen[raw.Name]; dup {
			warnings = append(warnings, fmt.Sprintf("%s: listed twice, keeping the first entry", raw.Name))
			continue
		}
		out, warns := raw.toOutput()
		warnings = append(warnings, warns...)
		if err := out.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, skipping", raw.Name, err))
			continue
		}
		seen[raw.Name] = struct{}{}
		outputs = append(outputs, out)
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Name < outputs[j].Name })
	return outputs, warnings
}
