package state

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Refresh is a refresh rate in millihertz. Keeping it integral avoids drift
// when rates pass through the 6-decimal text formats repeatedly.
type Refresh int64

// Scale is an output scale factor in millionths (1.0 == 1000000).
type Scale int64

const (
	// ScaleOne is a scale factor of 1.0.
	ScaleOne Scale = 1_000_000
	// MinScale is the smallest accepted scale factor, 0.1.
	MinScale Scale = 100_000
	// ScaleStep is the increment used by StepScale, 0.05.
	ScaleStep Scale = 50_000
)

// RefreshFromHz converts a rate in hertz to millihertz, rounding to the nearest unit.
func RefreshFromHz(hz float64) Refresh {
	return Refresh(math.Round(hz * 1000))
}

// Hz returns the refresh rate in hertz.
func (r Refresh) Hz() float64 {
	return float64(r) / 1000
}

// String renders the rate with six decimals, e.g. "144.000000".
func (r Refresh) String() string {
	return formatFixed(int64(r), 1000, 3, 6)
}

// ParseRefresh parses a rate in hertz such as "144", "59.951000" or "60 Hz".
func ParseRefresh(s string) (Refresh, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(trimmed, "Hz"), "hz"))
	hz, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return 0, &ValueError{Field: "refresh", Value: s, Err: ErrInvalidValue}
	}
	r := RefreshFromHz(hz)
	if r <= 0 {
		return 0, &ValueError{Field: "refresh", Value: s, Err: ErrInvalidValue}
	}
	return r, nil
}

// ScaleFromFactor converts a float factor into a Scale, rounding to the nearest millionth.
func ScaleFromFactor(f float64) Scale {
	return Scale(math.Round(f * float64(ScaleOne)))
}

// Factor returns the scale as a float.
func (s Scale) Factor() float64 {
	return float64(s) / float64(ScaleOne)
}

// String renders the scale with six decimals, e.g. "1.000000".
func (s Scale) String() string {
	return formatFixed(int64(s), int64(ScaleOne), 6, 6)
}

// ParseScale parses a decimal scale factor. Values below MinScale are rejected.
func ParseScale(s string) (Scale, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValueError{Field: "scale", Value: s, Err: ErrInvalidValue}
	}
	scale := ScaleFromFactor(f)
	if scale < MinScale {
		return 0, &ValueError{Field: "scale", Value: s, Err: ErrInvalidValue}
	}
	return scale, nil
}

func formatFixed(v, unit int64, digits, width int) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	frac := v % unit
	for i := digits; i < width; i++ {
		frac *= 10
	}
	return fmt.Sprintf("%s%d.%0*d", sign, v/unit, width, frac)
}

// Transform is an output rotation with an optional horizontal flip.
type Transform struct {
	Rotation int
	Flipped  bool
}

var validRotations = map[int]struct{}{0: {}, 90: {}, 180: {}, 270: {}}

// TransformNames lists the transforms in the order the compositor numbers them.
var TransformNames = []string{
	"normal", "90", "180", "270",
	"flipped", "flipped-90", "flipped-180", "flipped-270",
}

// Valid reports whether the rotation is one of 0, 90, 180 or 270.
func (t Transform) Valid() bool {
	_, ok := validRotations[t.Rotation]
	return ok
}

// SwapsAxes reports whether the transform turns the output on its side.
func (t Transform) SwapsAxes() bool {
	return t.Rotation == 90 || t.Rotation == 270
}

// String returns the wlr-randr transform name.
func (t Transform) String() string {
	code := t.RuleCode()
	if code < 0 || code >= len(TransformNames) {
		return "normal"
	}
	return TransformNames[code]
}

// RuleCode returns the numeric transform: rotation/90, plus 4 when flipped.
func (t Transform) RuleCode() int {
	if !t.Valid() {
		return -1
	}
	code := t.Rotation / 90
	if t.Flipped {
		code += 4
	}
	return code
}

// TransformFromRuleCode is the inverse of RuleCode.
func TransformFromRuleCode(code int) (Transform, error) {
	if code < 0 || code >= len(TransformNames) {
		return Transform{}, &ValueError{Field: "rr", Value: code, Err: ErrInvalidValue}
	}
	return Transform{Rotation: (code % 4) * 90, Flipped: code >= 4}, nil
}

// ParseTransform parses a wlr-randr transform name.
func ParseTransform(name string) (Transform, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for code, candidate := range TransformNames {
		if n == candidate {
			return TransformFromRuleCode(code)
		}
	}
	return Transform{}, &ValueError{Field: "transform", Value: name, Err: ErrInvalidValue}
}
