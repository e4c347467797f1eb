package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mango-display/mango-display/internal/control"
	"github.com/mango-display/mango-display/internal/control/client"
	"github.com/mango-display/mango-display/internal/ui/tui"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type ctl struct {
	socket  string
	timeout time.Duration
}

func (c *ctl) client() (*client.Client, error) {
	cli, err := client.New(c.socket)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return cli, nil
}

func (c *ctl) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(parent, c.timeout)
	}
	return context.WithCancel(parent)
}

// run wraps a request with the client and the request timeout.
func (c *ctl) run(fn func(ctx context.Context, cli *client.Client, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cli, err := c.client()
		if err != nil {
			return err
		}
		ctx, cancel := c.requestContext(cmd.Context())
		defer cancel()
		return fn(ctx, cli, cmd.OutOrStdout(), args)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &ctl{}
	root := &cobra.Command{
		Use:           "mango-displayctl",
		Short:         "Drive a running mango-display serve session over its control socket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.socket, "socket", "", "path to the mango-display control socket")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 3*time.Second, "control request timeout")

	root.AddCommand(
		&cobra.Command{
			Use:   "outputs",
			Short: "List outputs in the session",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, _ []string) error {
				status, err := cli.Outputs(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(out, tui.RenderTable(tui.NewStyles(out), status))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "select <output>",
			Short: "Select an output",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, args []string) error {
				_, err := cli.Select(ctx, args[0])
				return err
			}),
		},
		&cobra.Command{
			Use:   "set <output> <field> [values...]",
			Short: "Edit an output field",
			Long: `Fields and their values:
  resolution WIDTHxHEIGHT
  mode INDEX
  refresh HZ
  scale FACTOR
  scale.step STEPS
  rotation DEGREES [flipped]
  position X Y
  nudge DX DY
  enabled true|false`,
			Args: cobra.MinimumNArgs(2),
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, args []string) error {
				params, err := parseSetArgs(args[1], args[2:])
				if err != nil {
					return err
				}
				info, err := cli.Set(ctx, args[0], args[1], params)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %dx%d@%.3fHz scale %.2f %s at %d,%d\n",
					info.Name, info.Width, info.Height, info.Refresh, info.Scale, info.Transform, info.X, info.Y)
				return nil
			}),
		},
		newAddCmd(c),
		&cobra.Command{
			Use:   "remove <output>",
			Short: "Remove a virtual output",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, args []string) error {
				return cli.Remove(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "preview",
			Short: "Apply the session live without saving",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, _ []string) error {
				if err := cli.Preview(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Preview applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "save",
			Short: "Write the session as monitor rules",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, _ []string) error {
				res, err := cli.Save(ctx)
				if err != nil {
					return err
				}
				if !res.Changed {
					fmt.Fprintf(out, "%s is up to date\n", res.Path)
					return nil
				}
				fmt.Fprintf(out, "Wrote %d rules to %s\n", res.Rules, res.Path)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reload",
			Short: "Re-query connected outputs",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, _ []string) error {
				if err := cli.Reload(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Reload requested")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reload-settings",
			Short: "Reload the server's settings file",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, _ []string) error {
				if err := cli.ReloadSettings(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Settings reloaded")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show operation counters",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, _ []string) error {
				stats, err := cli.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "succeeded %d, failed %d, rejected %d\n", stats.Totals.Succeeded, stats.Totals.Failed, stats.Totals.Rejected)
				for _, op := range stats.Operations {
					line := fmt.Sprintf("  %-8s ok %d  failed %d  rejected %d", op.Operation, op.Succeeded, op.Failed, op.Rejected)
					if op.LastError != "" {
						line += "  last error: " + op.LastError
					}
					fmt.Fprintln(out, line)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "history",
			Short: "Show recent query, preview and save activity",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, _ []string) error {
				history, err := cli.History(ctx)
				if err != nil {
					return err
				}
				if len(history.Entries) == 0 {
					fmt.Fprintln(out, "No activity")
					return nil
				}
				for _, e := range history.Entries {
					fmt.Fprintf(out, "%s %s %s", e.Timestamp.Format(time.RFC3339), e.Operation, e.Status)
					if e.Error != "" {
						fmt.Fprintf(out, ": %s", e.Error)
					}
					fmt.Fprintln(out)
					for _, args := range e.Commands {
						fmt.Fprintf(out, "  wlr-randr %s\n", strings.Join(args, " "))
					}
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "tui",
			Short: "Show a live dashboard of the session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cli, err := c.client()
				if err != nil {
					return err
				}
				ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer cancel()
				if err := tui.New(cli, cmd.OutOrStdout()).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			},
		},
	)
	return root
}

func newAddCmd(c *ctl) *cobra.Command {
	var (
		refresh  float64
		disabled bool
	)
	cmd := &cobra.Command{
		Use:   "add <name> <WIDTHxHEIGHT>",
		Short: "Add a virtual output for planning",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(ctx context.Context, cli *client.Client, out io.Writer, args []string) error {
			w, h, err := parseResolution(args[1])
			if err != nil {
				return err
			}
			info, err := cli.AddVirtual(ctx, args[0], w, h, refresh, !disabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Added %s at %d,%d\n", info.Name, info.X, info.Y)
			return nil
		}),
	}
	cmd.Flags().Float64Var(&refresh, "refresh", 60, "refresh rate in Hz")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "add the output disabled")
	return cmd
}

// parseSetArgs turns the positional values of "set" into request params.
func parseSetArgs(field string, values []string) (map[string]any, error) {
	need := func(n int) error {
		if len(values) < n {
			return fmt.Errorf("%s needs %d value(s)", field, n)
		}
		return nil
	}
	switch field {
	case control.FieldResolution:
		if err := need(1); err != nil {
			return nil, err
		}
		w, h, err := parseResolution(values[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"width": w, "height": h}, nil
	case control.FieldMode, control.FieldScaleStep:
		if err := need(1); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(values[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", field, values[0])
		}
		key := "index"
		if field == control.FieldScaleStep {
			key = "steps"
		}
		return map[string]any{key: n}, nil
	case control.FieldRefresh, control.FieldScale:
		if err := need(1); err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(values[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", field, values[0])
		}
		key := "hz"
		if field == control.FieldScale {
			key = "factor"
		}
		return map[string]any{key: f}, nil
	case control.FieldRotation:
		if err := need(1); err != nil {
			return nil, err
		}
		deg, err := strconv.Atoi(values[0])
		if err != nil {
			return nil, fmt.Errorf("rotation: %q is not an integer", values[0])
		}
		flipped := len(values) > 1 && values[1] == "flipped"
		return map[string]any{"degrees": deg, "flipped": flipped}, nil
	case control.FieldPosition, control.FieldNudge:
		if err := need(2); err != nil {
			return nil, err
		}
		x, errX := strconv.Atoi(values[0])
		y, errY := strconv.Atoi(values[1])
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%s: coordinates must be integers", field)
		}
		if field == control.FieldNudge {
			return map[string]any{"dx": x, "dy": y}, nil
		}
		return map[string]any{"x": x, "y": y}, nil
	case control.FieldEnabled:
		if err := need(1); err != nil {
			return nil, err
		}
		on, err := strconv.ParseBool(values[0])
		if err != nil {
			return nil, fmt.Errorf("enabled: %q is not a boolean", values[0])
		}
		return map[string]any{"enabled": on}, nil
	default:
		return nil, fmt.Errorf("unknown field %q", field)
	}
}

func parseResolution(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("resolution %q is not WIDTHxHEIGHT", s)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution %q is not WIDTHxHEIGHT", s)
	}
	return w, h, nil
}
