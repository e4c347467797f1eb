package ipc

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mango-display/mango-display/internal/state"
)

const sampleJSON = `[
  {
    "name": "DP-1",
    "description": "Dell Inc. DELL U2720Q ABC (DP-1)",
    "make": "Dell Inc.",
    "model": "DELL U2720Q",
    "serial": "ABC",
    "physical_size": {"width": 600, "height": 340},
    "enabled": true,
    "modes": [
      {"width": 3840, "height": 2160, "refresh": 59.997002, "preferred": true, "current": true},
      {"width": 2560, "height": 1440, "refresh": 59.951, "preferred": false, "current": false}
    ],
    "position": {"x": 1920, "y": 0},
    "transform": "normal",
    "scale": 1.5
  },
  {
    "name": "HDMI-A-1",
    "enabled": false,
    "modes": [
      {"width": 1920, "height": 1080, "refresh": 60.0, "preferred": true, "current": false}
    ]
  },
  {
    "description": "nameless"
  }
]`

const sampleText = `DP-1 "Dell Inc. DELL U2720Q ABC (DP-1)"
  Make: Dell Inc.
  Model: DELL U2720Q
  Serial: ABC
  Physical size: 600x340 mm
  Enabled: yes
  Modes:
    3840x2160 px, 59.997002 Hz (preferred, current)
    2560x1440 px, 59.951000 Hz
  Position: 1920,0
  Transform: normal
  Scale: 1.500000
  Adaptive Sync: disabled
HDMI-A-1 "Some Monitor"
  Enabled: no
  Modes:
    1920x1080 px, 60.000000 Hz (preferred)
    garbage line
  Position: 0,0
  Transform: 90
  Scale: 1.000000
`

func TestConvertJSONListing(t *testing.T) {
	raws, err := decodeJSON([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	outputs, warnings := convertRecords(raws)
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	dp := outputs[0]
	if dp.Name != "DP-1" || dp.Make != "Dell Inc." || dp.PhysicalSize.Width != 600 {
		t.Fatalf("unexpected identity: %+v", dp)
	}
	want := state.Mode{Width: 3840, Height: 2160, Refresh: 59997, Preferred: true}
	if diff := cmp.Diff(want, dp.Mode); diff != "" {
		t.Fatalf("unexpected current mode (-want +got):\n%s", diff)
	}
	if dp.Scale != state.ScaleFromFactor(1.5) {
		t.Fatalf("unexpected scale %v", dp.Scale)
	}
	if w, h := dp.LogicalSize(); w != 2560 || h != 1440 {
		t.Fatalf("unexpected logical size %dx%d", w, h)
	}

	hdmi := outputs[1]
	if hdmi.Enabled {
		t.Fatalf("expected HDMI-A-1 disabled")
	}
	if !hdmi.ModeUnknown || hdmi.Mode.Width != 1920 {
		t.Fatalf("expected preferred mode fallback, got %+v", hdmi.Mode)
	}
	joined := strings.Join(warnings, "\n")
	if !strings.Contains(joined, "no name") {
		t.Fatalf("expected nameless warning, got %q", joined)
	}
}

func TestConvertFillsMissingFields(t *testing.T) {
	raws, err := decodeJSON([]byte(`[{"name": "eDP-1", "transform": "sideways", "scale": -2}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	outputs, warnings := convertRecords(raws)
	if len(outputs) != 1 {
		t.Fatalf("expected output to survive bad fields")
	}
	o := outputs[0]
	if o.Mode != fallbackMode || o.Scale != state.ScaleOne || o.Transform != (state.Transform{}) {
		t.Fatalf("expected defaults, got %+v", o)
	}
	if len(warnings) < 3 {
		t.Fatalf("expected warnings for mode, scale and transform, got %v", warnings)
	}
}

func TestConvertSkipsDuplicateNames(t *testing.T) {
	raws, err := decodeJSON([]byte(`[{"name": "DP-1", "enabled": true}, {"name": "DP-1", "enabled": false}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	outputs, _ := convertRecords(raws)
	if len(outputs) != 1 || !outputs[0].Enabled {
		t.Fatalf("expected first record kept, got %+v", outputs)
	}
}

func TestParseTextMatchesJSON(t *testing.T) {
	raws, err := parseText([]byte(sampleText))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	outputs, warnings := convertRecords(raws)
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	dp := outputs[0]
	if dp.Description != "Dell Inc. DELL U2720Q ABC (DP-1)" {
		t.Fatalf("unexpected description %q", dp.Description)
	}
	if len(dp.Modes) != 2 || dp.Mode.Refresh != 59997 || dp.Position != (state.Position{X: 1920}) {
		t.Fatalf("unexpected DP-1: %+v", dp)
	}
	hdmi := outputs[1]
	if hdmi.Enabled || hdmi.Transform.Rotation != 90 {
		t.Fatalf("unexpected HDMI-A-1: %+v", hdmi)
	}
	if len(hdmi.Modes) != 1 {
		t.Fatalf("expected unreadable mode dropped, got %d modes", len(hdmi.Modes))
	}
	if !strings.Contains(strings.Join(warnings, "\n"), "unreadable mode") {
		t.Fatalf("expected unreadable mode warning, got %v", warnings)
	}
}

func TestParseTextRejectsOrphanFields(t *testing.T) {
	if _, err := parseText([]byte("  Enabled: yes\n")); err == nil {
		t.Fatalf("expected error for field without header")
	}
}

func TestBuildApplyArguments(t *testing.T) {
	dp := state.Output{
		Name:      "DP-1",
		Mode:      state.Mode{Width: 2560, Height: 1440, Refresh: 143998},
		Modes:     []state.Mode{{Width: 2560, Height: 1440, Refresh: 143998}},
		Scale:     state.ScaleFromFactor(1.25),
		Transform: state.Transform{Rotation: 90, Flipped: true},
		Position:  state.Position{X: -1440, Y: 0},
		Enabled:   true,
	}
	custom := dp.Clone()
	custom.Name = "DP-2"
	custom.CustomMode = true
	custom.Transform = state.Transform{}
	custom.Position = state.Position{X: 0, Y: 0}
	off := dp.Clone()
	off.Name = "HDMI-A-1"
	off.Enabled = false
	virtual := dp.Clone()
	virtual.Name = "PLANNED-1"
	virtual.Virtual = true

	got := BuildApplyArguments([]state.Output{off, virtual, custom, dp})
	want := []Directive{
		{"--output", "DP-1", "--on", "--mode", "2560x1440@143.998000Hz", "--pos", "-1440,0", "--scale", "1.250000", "--transform", "flipped-90"},
		{"--output", "DP-2", "--on", "--custom-mode", "2560x1440@143.998000Hz", "--pos", "0,0", "--scale", "1.250000", "--transform", "normal"},
		{"--output", "HDMI-A-1", "--off"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected directives (-want +got):\n%s", diff)
	}
	if n := len(Flatten(got)); n != 11+11+3 {
		t.Fatalf("unexpected flattened length %d", n)
	}
}

func TestBuildApplyArgumentsOmitsUnknownMode(t *testing.T) {
	o := state.Output{Name: "eDP-1", Mode: fallbackMode, ModeUnknown: true, Scale: state.ScaleOne, Enabled: true}
	got := BuildApplyArguments([]state.Output{o})
	if strings.Contains(got[0].String(), "--mode") {
		t.Fatalf("expected no mode flag, got %s", got[0])
	}
}

func TestPlanApplyNormalizesCopy(t *testing.T) {
	left := state.Output{Name: "DP-1", Mode: fallbackMode, Scale: state.ScaleOne, Enabled: true, Position: state.Position{X: -1920, Y: -100}}
	right := state.Output{Name: "HDMI-1", Mode: fallbackMode, Scale: state.ScaleOne, Enabled: true}
	outputs := []state.Output{left, right}

	got := Flatten(PlanApply(outputs, true))
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "--output DP-1 --on --mode 1920x1080@60.000000Hz --pos 0,0") ||
		!strings.Contains(joined, "--output HDMI-1 --on --mode 1920x1080@60.000000Hz --pos 1920,100") {
		t.Fatalf("unexpected normalized plan %q", joined)
	}
	if outputs[0].Position.X != -1920 {
		t.Fatalf("PlanApply modified its input: %+v", outputs[0].Position)
	}
	if diff := cmp.Diff(BuildApplyArguments(outputs), PlanApply(outputs, false)); diff != "" {
		t.Fatalf("plan without normalization differs (-want +got):\n%s", diff)
	}
}
