package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mango-display/mango-display/internal/state"
	"github.com/mango-display/mango-display/internal/util"
)

const defaultTimeout = 5 * time.Second

var (
	// ErrPreviewApplyFailed reports that the tool refused or failed to apply a configuration.
	ErrPreviewApplyFailed = errors.New("preview apply failed")
	// ErrQueryTimeout reports that listing outputs did not finish in time.
	ErrQueryTimeout = errors.New("query timed out")
)

// ApplyError carries the tool's diagnostic output for a failed apply.
type ApplyError struct {
	Args       []string
	Diagnostic string
	Err        error
}

func (e *ApplyError) Error() string {
	msg := "wlr-randr apply failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *ApplyError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPreviewApplyFailed}
	}
	return []error{ErrPreviewApplyFailed, e.Err}
}

// Client wraps wlr-randr shell-outs.
type Client struct {
	Binary  string
	Timeout time.Duration
	Logger  *util.Logger
}

// NewClient returns a wlr-randr client using the binary on PATH.
func NewClient() *Client {
	return &Client{Binary: "wlr-randr", Timeout: defaultTimeout}
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	c.Logger.Debugf("running %s %s", c.Binary, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s %s: %w", c.Binary, strings.Join(args, " "), err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// QueryOutputs lists connected outputs. The JSON listing is preferred; tools
// without --json are read through the text listing instead.
func (c *Client) QueryOutputs(ctx context.Context) ([]state.Output, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	raws, err := c.queryRaw(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrQueryTimeout, err)
		}
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	outputs, warnings := convertRecords(raws)
	for _, w := range warnings {
		c.Logger.Warnf("%s", w)
	}
	c.Logger.Debugf("detected %d outputs", len(outputs))
	return outputs, nil
}

func (c *Client) queryRaw(ctx context.Context) ([]rawOutput, error) {
	data, _, err := c.run(ctx, "--json")
	if err == nil {
		raws, decodeErr := decodeJSON(data)
		if decodeErr == nil {
			return raws, nil
		}
		c.Logger.Debugf("json listing unusable, trying text listing: %v", decodeErr)
	} else {
		if ctx.Err() != nil {
			return nil, err
		}
		c.Logger.Debugf("json listing failed, trying text listing: %v", err)
	}
	data, _, err = c.run(ctx)
	if err != nil {
		return nil, err
	}
	return parseText(data)
}

// Apply runs the tool once with all directives. A non-zero exit, a timeout,
// or a zero exit whose stderr reports a failure yields an *ApplyError.
func (c *Client) Apply(ctx context.Context, directives []Directive) error {
	args := Flatten(directives)
	if len(args) == 0 {
		return nil
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	_, stderr, err := c.run(ctx, args...)
	diagnostic := strings.TrimSpace(string(stderr))
	if err != nil {
		return &ApplyError{Args: args, Diagnostic: diagnostic, Err: err}
	}
	if strings.Contains(strings.ToLower(diagnostic), "failed") {
		return &ApplyError{Args: args, Diagnostic: diagnostic}
	}
	if diagnostic != "" {
		c.Logger.Warnf("wlr-randr: %s", diagnostic)
	}
	return nil
}

// ApplyLive previews the session's current state with the same plan a
// controller preview sends. The session is only read.
func (c *Client) ApplyLive(ctx context.Context, s *state.Session, normalizeOrigin bool) error {
	return c.Apply(ctx, PlanApply(s.Outputs(), normalizeOrigin))
}

var _ state.DataSource = (*Client)(nil)
