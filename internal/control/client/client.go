package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mango-display/mango-display/internal/control"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to a running mango-display server over its control socket.
type Client struct {
	socketPath string
}

type (
	// OutputInfo mirrors a single output as reported by the server.
	OutputInfo = control.OutputInfo
	// SessionStatus lists outputs with the selection and dirty flag.
	SessionStatus = control.SessionStatus
	// PositionResult is the position returned by drag actions.
	PositionResult = control.PositionResult
	// SaveResult describes the outcome of a save.
	SaveResult = control.SaveResult
	// Stats mirrors the server's metrics snapshot.
	Stats = control.Stats
	// HistoryResult wraps recent controller activity.
	HistoryResult = control.HistoryResult
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Outputs retrieves the current session.
func (c *Client) Outputs(ctx context.Context) (SessionStatus, error) {
	var status SessionStatus
	if err := c.do(ctx, control.Request{Action: control.ActionOutputsList}, &status); err != nil {
		return SessionStatus{}, err
	}
	return status, nil
}

// Select marks name as the selected output.
func (c *Client) Select(ctx context.Context, name string) (SessionStatus, error) {
	if name == "" {
		return SessionStatus{}, errors.New("output name cannot be empty")
	}
	var status SessionStatus
	req := control.Request{Action: control.ActionOutputSelect, Params: map[string]any{"name": name}}
	if err := c.do(ctx, req, &status); err != nil {
		return SessionStatus{}, err
	}
	return status, nil
}

// Set edits a single field of an output. params carries the field's values,
// e.g. {"factor": 1.5} for scale or {"x": 0, "y": 0} for position.
func (c *Client) Set(ctx context.Context, name, field string, params map[string]any) (OutputInfo, error) {
	if name == "" {
		return OutputInfo{}, errors.New("output name cannot be empty")
	}
	payload := map[string]any{"name": name, "field": field}
	for k, v := range params {
		payload[k] = v
	}
	var info OutputInfo
	if err := c.do(ctx, control.Request{Action: control.ActionOutputSet, Params: payload}, &info); err != nil {
		return OutputInfo{}, err
	}
	return info, nil
}

// AddVirtual adds a planned output that is not connected.
func (c *Client) AddVirtual(ctx context.Context, name string, width, height int, refreshHz float64, enabled bool) (OutputInfo, error) {
	params := map[string]any{"name": name, "width": width, "height": height, "refresh": refreshHz, "enabled": enabled}
	var info OutputInfo
	if err := c.do(ctx, control.Request{Action: control.ActionOutputAdd, Params: params}, &info); err != nil {
		return OutputInfo{}, err
	}
	return info, nil
}

// Remove drops a virtual output.
func (c *Client) Remove(ctx context.Context, name string) error {
	return c.do(ctx, control.Request{Action: control.ActionOutputRemove, Params: map[string]any{"name": name}}, nil)
}

// BeginDrag starts dragging name.
func (c *Client) BeginDrag(ctx context.Context, name string) error {
	return c.do(ctx, control.Request{Action: control.ActionDragBegin, Params: map[string]any{"name": name}}, nil)
}

// UpdateDrag moves the dragged output towards the canvas point x,y.
func (c *Client) UpdateDrag(ctx context.Context, x, y float64) (PositionResult, error) {
	var pos PositionResult
	req := control.Request{Action: control.ActionDragUpdate, Params: map[string]any{"x": x, "y": y}}
	if err := c.do(ctx, req, &pos); err != nil {
		return PositionResult{}, err
	}
	return pos, nil
}

// EndDrag finishes the drag.
func (c *Client) EndDrag(ctx context.Context) (PositionResult, error) {
	var pos PositionResult
	if err := c.do(ctx, control.Request{Action: control.ActionDragEnd}, &pos); err != nil {
		return PositionResult{}, err
	}
	return pos, nil
}

// CancelDrag returns the dragged output to its starting position.
func (c *Client) CancelDrag(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionDragCancel}, nil)
}

// Preview applies the session to the compositor without saving.
func (c *Client) Preview(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionPreview}, nil)
}

// Save writes the monitor rules.
func (c *Client) Save(ctx context.Context) (SaveResult, error) {
	var result SaveResult
	if err := c.do(ctx, control.Request{Action: control.ActionSave}, &result); err != nil {
		return SaveResult{}, err
	}
	return result, nil
}

// Reload asks the server to re-query connected outputs.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

// ReloadSettings asks the server to reload its settings file.
func (c *Client) ReloadSettings(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionSettingsReload}, nil)
}

// Stats retrieves the server's operation counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.do(ctx, control.Request{Action: control.ActionStats}, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// History retrieves recent query, preview and save activity.
func (c *Client) History(ctx context.Context) (HistoryResult, error) {
	var history HistoryResult
	if err := c.do(ctx, control.Request{Action: control.ActionHistory}, &history); err != nil {
		return HistoryResult{}, err
	}
	return history, nil
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
