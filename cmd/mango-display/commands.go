package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mango-display/mango-display/internal/config"
	"github.com/mango-display/mango-display/internal/control"
	"github.com/mango-display/mango-display/internal/controller"
	"github.com/mango-display/mango-display/internal/ipc"
	"github.com/mango-display/mango-display/internal/metrics"
	"github.com/mango-display/mango-display/internal/rules"
	"github.com/mango-display/mango-display/internal/state"
	"github.com/mango-display/mango-display/internal/ui/tui"
	"github.com/mango-display/mango-display/internal/util"
)

type session struct {
	settings *config.Settings
	logger   *util.Logger
	metrics  *metrics.Collector
	ctrl     *controller.Controller
}

// startSession loads settings and queries the connected outputs.
func (a *app) startSession(ctx context.Context) (*session, error) {
	s, err := a.loadSettings()
	if err != nil {
		return nil, err
	}
	logger := a.newLogger(s)
	collector := metrics.NewCollector(true)
	ctrl := a.newController(s, logger, collector)
	if _, err := ctrl.Start(ctx); err != nil {
		return nil, err
	}
	return &session{settings: s, logger: logger, metrics: collector, ctrl: ctrl}, nil
}

func newListCmd(a *app) *cobra.Command {
	var (
		noMap bool
		cols  int
		rows  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show connected and planned outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			st := tui.NewStyles(out)
			status := control.NewSessionStatus(sess.ctrl)
			fmt.Fprint(out, tui.RenderTable(st, status))
			if !noMap {
				fmt.Fprintln(out)
				fmt.Fprint(out, tui.Minimap(st, status, cols, rows))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noMap, "no-map", false, "omit the layout minimap")
	cmd.Flags().IntVar(&cols, "map-width", 60, "minimap width in columns")
	cmd.Flags().IntVar(&rows, "map-height", 12, "minimap height in rows")
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the session as YAML or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			return tui.Dump(cmd.OutOrStdout(), control.NewSessionStatus(sess.ctrl), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", tui.FormatYAML, "output format (yaml|json)")
	return cmd
}

func newPreviewCmd(a *app) *cobra.Command {
	var current, dryRun bool
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Apply the saved monitor rules live without touching any file",
		Long: `preview overlays the saved monitor rules onto the connected outputs and
applies the result through wlr-randr. With --current the live layout is
re-applied as queried. With --dry-run the wlr-randr arguments are printed
and nothing is applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			if !current {
				n, err := sess.ctrl.ApplySavedRules()
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No saved rules in %s match a connected output\n", sess.settings.MonitorsPath)
				}
			}
			if dryRun {
				for _, d := range ipc.PlanApply(sess.ctrl.Outputs(), sess.settings.NormalizeOrigin) {
					fmt.Fprintf(cmd.OutOrStdout(), "wlr-randr %s\n", strings.Join(d, " "))
				}
				return nil
			}
			if err := sess.ctrl.Preview(cmd.Context()); err != nil {
				return err
			}
			printLastCommands(cmd.OutOrStdout(), sess.ctrl.History())
			return nil
		},
	}
	cmd.Flags().BoolVar(&current, "current", false, "re-apply the live layout instead of the saved rules")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the wlr-randr arguments without applying them")
	return cmd
}

func printLastCommands(w io.Writer, history []controller.Activity) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Operation != metrics.OpPreview {
			continue
		}
		for _, c := range history[i].Commands {
			fmt.Fprintf(w, "wlr-randr %s\n", strings.Join(c, " "))
		}
		return
	}
}

func newSaveCmd(a *app) *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Write the live layout as monitor rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.startSession(cmd.Context())
			if err != nil {
				return err
			}
			res, err := sess.ctrl.Save(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Changed {
				fmt.Fprintf(out, "%s is up to date\n", res.Path)
				return nil
			}
			fmt.Fprintf(out, "Wrote %d rules to %s\n", res.Rules, res.Path)
			if showDiff && res.Diff != "" {
				fmt.Fprintln(out, res.Diff)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print the change to the rule file")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the settings file and the saved monitor rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(a.settingsPath, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runCheck(settingsPath string, stdout, stderr io.Writer) error {
	var issues []string
	for _, problem := range config.LintFile(settingsPath) {
		issues = append(issues, fmt.Sprintf("%s: %v", settingsPath, problem))
	}

	monitorsPath := config.Defaults().MonitorsPath
	if s, err := config.Load(settingsPath); err == nil {
		monitorsPath = s.MonitorsPath
	}
	saved, problems, err := rules.LoadFile(monitorsPath)
	if err != nil {
		issues = append(issues, err.Error())
	}
	for _, problem := range problems {
		issues = append(issues, fmt.Sprintf("%s: %v", monitorsPath, problem))
	}
	for _, pair := range state.OverlappingPairs(saved) {
		issues = append(issues, fmt.Sprintf("%s: %s overlaps %s", monitorsPath, pair[0], pair[1]))
	}

	if len(issues) == 0 {
		fmt.Fprintf(stdout, "Configuration OK (%d monitor rules)\n", len(saved))
		return nil
	}
	fmt.Fprintf(stderr, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(stderr, "- %s\n", issue)
	}
	return fmt.Errorf("configuration validation failed")
}
