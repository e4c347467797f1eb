package control

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/mango-display/mango-display/internal/controller"
	"github.com/mango-display/mango-display/internal/metrics"
	"github.com/mango-display/mango-display/internal/state"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// SocketEnv overrides the socket location.
	SocketEnv = "MANGO_DISPLAY_CONTROL_SOCKET"

	// Action names supported by the control protocol.
	ActionOutputsList    = "outputs.list"
	ActionOutputSelect   = "output.select"
	ActionOutputSet      = "output.set"
	ActionOutputAdd      = "output.add"
	ActionOutputRemove   = "output.remove"
	ActionDragBegin      = "drag.begin"
	ActionDragUpdate     = "drag.update"
	ActionDragEnd        = "drag.end"
	ActionDragCancel     = "drag.cancel"
	ActionPreview        = "preview"
	ActionSave           = "save"
	ActionReload         = "reload"
	ActionSettingsReload = "settings.reload"
	ActionStats          = "stats"
	ActionHistory        = "history"

	// Fields accepted by output.set.
	FieldResolution = "resolution"
	FieldMode       = "mode"
	FieldRefresh    = "refresh"
	FieldScale      = "scale"
	FieldScaleStep  = "scale.step"
	FieldRotation   = "rotation"
	FieldPosition   = "position"
	FieldNudge      = "nudge"
	FieldEnabled    = "enabled"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ModeInfo describes one supported mode.
type ModeInfo struct {
	Width     int     `json:"width" yaml:"width"`
	Height    int     `json:"height" yaml:"height"`
	Refresh   float64 `json:"refresh" yaml:"refresh"`
	Preferred bool    `json:"preferred,omitempty" yaml:"preferred,omitempty"`
}

// OutputInfo is the wire form of an output.
type OutputInfo struct {
	Name          string     `json:"name" yaml:"name"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty"`
	Make          string     `json:"make,omitempty" yaml:"make,omitempty"`
	Model         string     `json:"model,omitempty" yaml:"model,omitempty"`
	Enabled       bool       `json:"enabled" yaml:"enabled"`
	Virtual       bool       `json:"virtual,omitempty" yaml:"virtual,omitempty"`
	Width         int        `json:"width" yaml:"width"`
	Height        int        `json:"height" yaml:"height"`
	Refresh       float64    `json:"refresh" yaml:"refresh"`
	CustomMode    bool       `json:"customMode,omitempty" yaml:"customMode,omitempty"`
	ModeUnknown   bool       `json:"modeUnknown,omitempty" yaml:"modeUnknown,omitempty"`
	Scale         float64    `json:"scale" yaml:"scale"`
	Transform     string     `json:"transform" yaml:"transform"`
	X             int        `json:"x" yaml:"x"`
	Y             int        `json:"y" yaml:"y"`
	LogicalWidth  int        `json:"logicalWidth" yaml:"logicalWidth"`
	LogicalHeight int        `json:"logicalHeight" yaml:"logicalHeight"`
	Modes         []ModeInfo `json:"modes,omitempty" yaml:"modes,omitempty"`
}

// SessionStatus lists the outputs together with selection and dirty state.
type SessionStatus struct {
	Outputs  []OutputInfo `json:"outputs" yaml:"outputs"`
	Selected string       `json:"selected,omitempty" yaml:"selected,omitempty"`
	Dirty    bool         `json:"dirty" yaml:"dirty"`
}

// PositionResult is returned by drag actions.
type PositionResult struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// SaveResult mirrors the outcome of a save.
type SaveResult struct {
	Path    string `json:"path" yaml:"path"`
	Rules   int    `json:"rules" yaml:"rules"`
	Changed bool   `json:"changed" yaml:"changed"`
	Diff    string `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Stats is the metrics payload.
type Stats = metrics.Snapshot

// Activity mirrors a controller history entry.
type Activity = controller.Activity

// HistoryResult wraps recent controller activity.
type HistoryResult struct {
	Entries []Activity `json:"entries"`
}

// NewOutputInfo converts an output to its wire form.
func NewOutputInfo(o state.Output) OutputInfo {
	lw, lh := o.LogicalSize()
	info := OutputInfo{
		Name:          o.Name,
		Description:   o.Description,
		Make:          o.Make,
		Model:         o.Model,
		Enabled:       o.Enabled,
		Virtual:       o.Virtual,
		Width:         o.Mode.Width,
		Height:        o.Mode.Height,
		Refresh:       o.Mode.Refresh.Hz(),
		CustomMode:    o.CustomMode,
		ModeUnknown:   o.ModeUnknown,
		Scale:         o.Scale.Factor(),
		Transform:     o.Transform.String(),
		X:             o.Position.X,
		Y:             o.Position.Y,
		LogicalWidth:  lw,
		LogicalHeight: lh,
	}
	for _, m := range o.Modes {
		info.Modes = append(info.Modes, ModeInfo{Width: m.Width, Height: m.Height, Refresh: m.Refresh.Hz(), Preferred: m.Preferred})
	}
	return info
}

// NewSessionStatus reports the controller's outputs, selection and dirty flag.
func NewSessionStatus(ctrl *controller.Controller) SessionStatus {
	outputs := ctrl.Outputs()
	status := SessionStatus{
		Outputs: make([]OutputInfo, 0, len(outputs)),
		Dirty:   ctrl.Dirty(),
	}
	for _, o := range outputs {
		status.Outputs = append(status.Outputs, NewOutputInfo(o))
	}
	if sel, ok := ctrl.Selected(); ok {
		status.Selected = sel.Name
	}
	return status
}

// DefaultSocketPath returns the expected location of the control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv(SocketEnv); env != "" {
		return env, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	base := runtimeDir
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "mango-display", SocketFileName), nil
}
