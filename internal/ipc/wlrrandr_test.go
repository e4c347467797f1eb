package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mango-display/mango-display/internal/state"
	"github.com/mango-display/mango-display/internal/util"
)

// fakeTool installs an executable named wlr-randr on PATH that runs script.
// Every invocation appends its arguments to the returned log file.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	body := "#!/bin/sh\necho \"$@\" >> " + logPath + "\n" + script + "\n"
	if err := os.WriteFile(filepath.Join(dir, "wlr-randr"), []byte(body), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	setEnv(t, "PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return logPath
}

func newTestClient() *Client {
	c := NewClient()
	c.Logger = util.Discard()
	return c
}

func readCalls(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestQueryOutputsUsesJSON(t *testing.T) {
	dir := t.TempDir()
	listing := filepath.Join(dir, "listing.json")
	if err := os.WriteFile(listing, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write listing: %v", err)
	}
	calls := fakeTool(t, `[ "$1" = "--json" ] && cat `+listing)

	outputs, err := newTestClient().QueryOutputs(context.Background())
	if err != nil {
		t.Fatalf("QueryOutputs: %v", err)
	}
	if len(outputs) != 2 || outputs[0].Name != "DP-1" {
		t.Fatalf("unexpected outputs %+v", outputs)
	}
	if got := readCalls(t, calls); len(got) != 1 || got[0] != "--json" {
		t.Fatalf("expected a single --json call, got %q", got)
	}
}

func TestQueryOutputsFallsBackToText(t *testing.T) {
	dir := t.TempDir()
	listing := filepath.Join(dir, "listing.txt")
	if err := os.WriteFile(listing, []byte(sampleText), 0o644); err != nil {
		t.Fatalf("write listing: %v", err)
	}
	fakeTool(t, `if [ "$1" = "--json" ]; then echo "unknown option" >&2; exit 1; fi
cat `+listing)

	outputs, err := newTestClient().QueryOutputs(context.Background())
	if err != nil {
		t.Fatalf("QueryOutputs: %v", err)
	}
	if len(outputs) != 2 || outputs[1].Name != "HDMI-A-1" {
		t.Fatalf("unexpected outputs %+v", outputs)
	}
}

func TestQueryOutputsTimeout(t *testing.T) {
	fakeTool(t, "exec sleep 5")
	c := newTestClient()
	c.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := c.QueryOutputs(context.Background())
	if !errors.Is(err, ErrQueryTimeout) {
		t.Fatalf("expected ErrQueryTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestApplyPassesDirectivesInOneCall(t *testing.T) {
	calls := fakeTool(t, "exit 0")
	s, err := state.NewSession(
		state.Output{Name: "DP-2", Mode: fallbackMode, Scale: state.ScaleOne, Enabled: true, Position: state.Position{X: 1920}},
		state.Output{Name: "DP-1", Mode: fallbackMode, Scale: state.ScaleOne, Enabled: true},
	)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := newTestClient().ApplyLive(context.Background(), s, false); err != nil {
		t.Fatalf("ApplyLive: %v", err)
	}
	got := readCalls(t, calls)
	if len(got) != 1 {
		t.Fatalf("expected one invocation, got %d", len(got))
	}
	if !strings.HasPrefix(got[0], "--output DP-1 --on") || !strings.Contains(got[0], "--output DP-2 --on --mode 1920x1080@60.000000Hz --pos 1920,0") {
		t.Fatalf("unexpected arguments %q", got[0])
	}
}

func TestApplyReportsNonZeroExit(t *testing.T) {
	fakeTool(t, `echo "mode not supported" >&2; exit 1`)
	err := newTestClient().Apply(context.Background(), []Directive{{"--output", "DP-1", "--off"}})
	if !errors.Is(err, ErrPreviewApplyFailed) {
		t.Fatalf("expected ErrPreviewApplyFailed, got %v", err)
	}
	var applyErr *ApplyError
	if !errors.As(err, &applyErr) || applyErr.Diagnostic != "mode not supported" {
		t.Fatalf("expected diagnostic to be kept, got %v", err)
	}
}

func TestApplyReportsFailureOnCleanExit(t *testing.T) {
	fakeTool(t, `echo "Failed to apply configuration" >&2; exit 0`)
	err := newTestClient().Apply(context.Background(), []Directive{{"--output", "DP-1", "--off"}})
	if !errors.Is(err, ErrPreviewApplyFailed) {
		t.Fatalf("expected ErrPreviewApplyFailed, got %v", err)
	}
}

func TestApplyWithoutDirectivesIsNoop(t *testing.T) {
	calls := fakeTool(t, "exit 1")
	if err := newTestClient().Apply(context.Background(), nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := os.Stat(calls); !os.IsNotExist(err) {
		t.Fatalf("expected tool not to run")
	}
}
