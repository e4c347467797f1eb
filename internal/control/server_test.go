package control

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mango-display/mango-display/internal/config"
	"github.com/mango-display/mango-display/internal/controller"
	"github.com/mango-display/mango-display/internal/ipc"
	"github.com/mango-display/mango-display/internal/metrics"
	"github.com/mango-display/mango-display/internal/state"
	"github.com/mango-display/mango-display/internal/util"
)

type fakeSource struct {
	mu      sync.Mutex
	outputs []state.Output
	queries int
}

func (f *fakeSource) QueryOutputs(ctx context.Context) ([]state.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	out := make([]state.Output, len(f.outputs))
	for i, o := range f.outputs {
		out[i] = o.Clone()
	}
	return out, nil
}

type recordingApplier struct {
	mu    sync.Mutex
	calls [][]ipc.Directive
}

func (r *recordingApplier) Apply(ctx context.Context, directives []ipc.Directive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, directives)
	return nil
}

func (r *recordingApplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func testOutput(name string, x int) state.Output {
	mode := state.Mode{Width: 1920, Height: 1080, Refresh: state.RefreshFromHz(60), Preferred: true}
	return state.Output{
		Name:     name,
		Mode:     mode,
		Modes:    []state.Mode{mode},
		Scale:    state.ScaleOne,
		Position: state.Position{X: x},
		Enabled:  true,
	}
}

type fixture struct {
	srv     *Server
	applier *recordingApplier
	source  *fakeSource
	ctrl    *controller.Controller
}

func newFixture(t *testing.T, reload func(string) error) fixture {
	t.Helper()
	t.Setenv(SocketEnv, filepath.Join(t.TempDir(), "control.sock"))
	dir := t.TempDir()
	settings := config.Defaults()
	settings.MonitorsPath = filepath.Join(dir, "monitors.conf")
	settings.ConfigPath = filepath.Join(dir, "config.conf")
	settings.QueryTimeout = time.Second
	settings.PreviewTimeout = time.Second

	source := &fakeSource{outputs: []state.Output{testOutput("DP-1", 0), testOutput("HDMI-1", 1920)}}
	applier := &recordingApplier{}
	collector := metrics.NewCollector(true)
	ctrl := controller.New(settings, controller.Deps{
		Source:  source,
		Applier: applier,
		Logger:  util.Discard(),
		Metrics: collector,
	})
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start controller: %v", err)
	}
	srv, err := NewServer(ctrl, collector, util.Discard(), reload)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return fixture{srv: srv, applier: applier, source: source, ctrl: ctrl}
}

func roundTrip(t *testing.T, srv *Server, req Request, out any) Response {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handle(context.Background(), serverConn)
	}()

	if err := json.NewEncoder(clientConn).Encode(req); err != nil {
		t.Fatalf("encode request: %v", err)
	}
	var raw struct {
		Status string          `json:"status"`
		Error  string          `json:"error"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(clientConn).Decode(&raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	<-done
	if out != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, out); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}
	return Response{Status: raw.Status, Error: raw.Error}
}

func TestOutputsListReportsSession(t *testing.T) {
	f := newFixture(t, nil)
	var status SessionStatus
	resp := roundTrip(t, f.srv, Request{Action: ActionOutputsList}, &status)
	if resp.Status != StatusOK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if len(status.Outputs) != 2 || status.Outputs[0].Name != "DP-1" || status.Selected != "DP-1" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Outputs[1].X != 1920 || status.Outputs[1].Refresh != 60 || status.Outputs[1].Scale != 1 {
		t.Fatalf("unexpected output info %+v", status.Outputs[1])
	}
	if status.Dirty {
		t.Fatalf("fresh session should be clean")
	}
}

func TestOutputSetScaleMarksDirty(t *testing.T) {
	f := newFixture(t, nil)
	var info OutputInfo
	req := Request{Action: ActionOutputSet, Params: map[string]any{"name": "HDMI-1", "field": FieldScale, "factor": 2.0}}
	if resp := roundTrip(t, f.srv, req, &info); resp.Status != StatusOK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if info.Scale != 2 || info.LogicalWidth != 960 || info.LogicalHeight != 540 {
		t.Fatalf("unexpected output after scale %+v", info)
	}
	if !f.ctrl.Dirty() {
		t.Fatalf("expected dirty session after edit")
	}
}

func TestOutputSetOverlapIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	req := Request{Action: ActionOutputSet, Params: map[string]any{"name": "DP-1", "field": FieldPosition, "x": 100.0, "y": 0.0}}
	resp := roundTrip(t, f.srv, req, nil)
	if resp.Status != StatusError || !strings.Contains(resp.Error, "overlap") {
		t.Fatalf("expected overlap error, got %+v", resp)
	}
	if o, _ := f.ctrl.Output("DP-1"); o.Position.X != 0 {
		t.Fatalf("rejected edit moved the output to %+v", o.Position)
	}
}

func TestOutputSetRejectsBadParams(t *testing.T) {
	f := newFixture(t, nil)
	cases := []map[string]any{
		{"field": FieldScale, "factor": 1.0},
		{"name": "DP-1", "field": "brightness"},
		{"name": "DP-1", "field": FieldPosition, "x": 1.5, "y": 0.0},
		{"name": "DP-1", "field": FieldEnabled, "enabled": "yes"},
		{"name": "DP-1", "field": FieldPosition, "x": 1e300, "y": 0.0},
		{"name": "DP-1", "field": FieldNudge, "dx": -1e300, "dy": 0.0},
	}
	for _, params := range cases {
		resp := roundTrip(t, f.srv, Request{Action: ActionOutputSet, Params: params}, nil)
		if resp.Status != StatusError {
			t.Fatalf("expected error for %v, got %+v", params, resp)
		}
	}
}

func TestParamsIntBounds(t *testing.T) {
	p := params{"ok": 2560.0, "neg": -1920.0, "huge": 1e300, "frac": 0.5, "text": "1"}
	if n, err := p.int("ok"); err != nil || n != 2560 {
		t.Fatalf("expected 2560, got %d, %v", n, err)
	}
	if n, err := p.int("neg"); err != nil || n != -1920 {
		t.Fatalf("expected -1920, got %d, %v", n, err)
	}
	for _, key := range []string{"huge", "frac", "text", "missing"} {
		if _, err := p.int(key); err == nil {
			t.Fatalf("expected error for %s", key)
		}
	}
}

func TestDragActionsSnapToNeighbor(t *testing.T) {
	f := newFixture(t, nil)
	req := Request{Action: ActionOutputSet, Params: map[string]any{"name": "HDMI-1", "field": FieldPosition, "x": 3000.0, "y": 0.0}}
	if resp := roundTrip(t, f.srv, req, nil); resp.Status != StatusOK {
		t.Fatalf("move: %+v", resp)
	}
	if resp := roundTrip(t, f.srv, Request{Action: ActionDragBegin, Params: map[string]any{"name": "HDMI-1"}}, nil); resp.Status != StatusOK {
		t.Fatalf("drag.begin: %+v", resp)
	}
	var pos PositionResult
	roundTrip(t, f.srv, Request{Action: ActionDragUpdate, Params: map[string]any{"x": 1930.0, "y": 4.0}}, &pos)
	if resp := roundTrip(t, f.srv, Request{Action: ActionDragEnd}, &pos); resp.Status != StatusOK {
		t.Fatalf("drag.end: %+v", resp)
	}
	if pos.X != 1920 || pos.Y != 0 {
		t.Fatalf("expected snap to 1920,0, got %+v", pos)
	}
}

func TestDragUpdateWithoutBeginFails(t *testing.T) {
	f := newFixture(t, nil)
	resp := roundTrip(t, f.srv, Request{Action: ActionDragUpdate, Params: map[string]any{"x": 1.0, "y": 1.0}}, nil)
	if resp.Status != StatusError {
		t.Fatalf("expected error, got %+v", resp)
	}
}

func TestPreviewAppliesOnce(t *testing.T) {
	f := newFixture(t, nil)
	if resp := roundTrip(t, f.srv, Request{Action: ActionPreview}, nil); resp.Status != StatusOK {
		t.Fatalf("preview: %+v", resp)
	}
	if f.applier.count() != 1 {
		t.Fatalf("expected one apply call, got %d", f.applier.count())
	}
	var history HistoryResult
	roundTrip(t, f.srv, Request{Action: ActionHistory}, &history)
	last := history.Entries[len(history.Entries)-1]
	if last.Operation != metrics.OpPreview || last.Status != controller.ActivityStatusOK {
		t.Fatalf("unexpected history entry %+v", last)
	}
}

func TestSaveReportsResult(t *testing.T) {
	f := newFixture(t, nil)
	var result SaveResult
	if resp := roundTrip(t, f.srv, Request{Action: ActionSave}, &result); resp.Status != StatusOK {
		t.Fatalf("save: %+v", resp)
	}
	if result.Rules != 2 || !result.Changed {
		t.Fatalf("unexpected save result %+v", result)
	}
	var stats Stats
	roundTrip(t, f.srv, Request{Action: ActionStats}, &stats)
	if stats.Totals.Succeeded == 0 {
		t.Fatalf("expected recorded successes, got %+v", stats)
	}
}

func TestAddAndRemoveVirtualOutput(t *testing.T) {
	f := newFixture(t, nil)
	var info OutputInfo
	add := Request{Action: ActionOutputAdd, Params: map[string]any{"name": "HEADLESS-1", "width": 1280.0, "height": 720.0, "refresh": 60.0}}
	if resp := roundTrip(t, f.srv, add, &info); resp.Status != StatusOK {
		t.Fatalf("add: %+v", resp)
	}
	if !info.Virtual || info.X != 3840 {
		t.Fatalf("unexpected virtual output %+v", info)
	}
	if resp := roundTrip(t, f.srv, Request{Action: ActionOutputRemove, Params: map[string]any{"name": "DP-1"}}, nil); resp.Status != StatusError {
		t.Fatalf("removing a detected output should fail, got %+v", resp)
	}
	var status SessionStatus
	if resp := roundTrip(t, f.srv, Request{Action: ActionOutputRemove, Params: map[string]any{"name": "HEADLESS-1"}}, &status); resp.Status != StatusOK {
		t.Fatalf("remove: %+v", resp)
	}
	if len(status.Outputs) != 2 {
		t.Fatalf("expected virtual output gone, got %+v", status.Outputs)
	}
}

func TestReloadRequeries(t *testing.T) {
	f := newFixture(t, nil)
	if resp := roundTrip(t, f.srv, Request{Action: ActionReload}, nil); resp.Status != StatusOK {
		t.Fatalf("reload: %+v", resp)
	}
	f.source.mu.Lock()
	queries := f.source.queries
	f.source.mu.Unlock()
	if queries != 2 {
		t.Fatalf("expected a second query, got %d", queries)
	}
}

func TestSettingsReloadUsesCallback(t *testing.T) {
	var reasons []string
	f := newFixture(t, func(reason string) error {
		reasons = append(reasons, reason)
		return nil
	})
	if resp := roundTrip(t, f.srv, Request{Action: ActionSettingsReload}, nil); resp.Status != StatusOK {
		t.Fatalf("settings.reload: %+v", resp)
	}
	if len(reasons) != 1 || reasons[0] != "control request" {
		t.Fatalf("unexpected reload calls %v", reasons)
	}

	bare := newFixture(t, nil)
	if resp := roundTrip(t, bare.srv, Request{Action: ActionSettingsReload}, nil); resp.Status != StatusError {
		t.Fatalf("expected unsupported reload error, got %+v", resp)
	}
}

func TestUnknownAction(t *testing.T) {
	f := newFixture(t, nil)
	resp := roundTrip(t, f.srv, Request{Action: "workspace.move"}, nil)
	if resp.Status != StatusError || !strings.Contains(resp.Error, "unknown action") {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestDefaultSocketPathPrefersEnv(t *testing.T) {
	t.Setenv(SocketEnv, "/tmp/custom.sock")
	path, err := DefaultSocketPath()
	if err != nil || path != "/tmp/custom.sock" {
		t.Fatalf("unexpected socket path %q, %v", path, err)
	}
	t.Setenv(SocketEnv, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	path, err = DefaultSocketPath()
	if err != nil || path != "/run/user/1000/mango-display/control.sock" {
		t.Fatalf("unexpected socket path %q, %v", path, err)
	}
}
