package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mango-display/mango-display/internal/config"
	"github.com/mango-display/mango-display/internal/controller"
	"github.com/mango-display/mango-display/internal/ipc"
	"github.com/mango-display/mango-display/internal/metrics"
	"github.com/mango-display/mango-display/internal/util"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries the global flags shared by every subcommand.
type app struct {
	stderr       io.Writer
	settingsPath string
	logLevel     string
}

func (a *app) loadSettings() (*config.Settings, error) {
	s, err := config.Load(a.settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if a.logLevel != "" {
		s.LogLevel = a.logLevel
	}
	return s, nil
}

func (a *app) newLogger(s *config.Settings) *util.Logger {
	return util.NewLoggerWithWriter(util.ParseLogLevel(s.LogLevel), a.stderr)
}

func (a *app) newController(s *config.Settings, logger *util.Logger, collector *metrics.Collector) *controller.Controller {
	tool := ipc.NewClient()
	tool.Binary = s.WlrRandrBinary
	tool.Timeout = s.QueryTimeout
	tool.Logger = logger.With("wlr-randr")
	return controller.New(*s, controller.Deps{
		Source:  tool,
		Applier: tool,
		Logger:  logger.With("controller"),
		Metrics: collector,
	})
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}
	var (
		monitorsPath     string
		configPath       string
		autoAppendSource bool
	)
	root := &cobra.Command{
		Use:   "mango-display",
		Short: "Arrange mango compositor outputs and persist them as monitor rules",
		Long: `mango-display queries connected outputs through wlr-randr, previews layout
changes live and writes them as monitorrule lines the mango compositor reads
at startup.

Without a subcommand the --set-* flags update the settings file and exit.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("set-monitors-path") && !flags.Changed("set-config-path") && !flags.Changed("auto-append-source") {
				return cmd.Help()
			}
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			if flags.Changed("set-monitors-path") {
				s.MonitorsPath = util.ExpandHome(monitorsPath)
			}
			if flags.Changed("set-config-path") {
				s.ConfigPath = util.ExpandHome(configPath)
			}
			if flags.Changed("auto-append-source") {
				s.AutoAppendSource = autoAppendSource
			}
			if err := s.Validate(); err != nil {
				return err
			}
			if err := config.Save(a.settingsPath, *s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", a.settingsPath)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.settingsPath, "settings", config.DefaultPath(), "path to the settings file (json or yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (trace|debug|info|warn|error), overrides the settings file")

	f := root.Flags()
	f.StringVar(&monitorsPath, "set-monitors-path", "", "store the monitor rule file path in the settings and exit")
	f.StringVar(&configPath, "set-config-path", "", "store the compositor config path in the settings and exit")
	f.BoolVar(&autoAppendSource, "auto-append-source", false, "store whether save adds a source= line to the compositor config, then exit")

	root.AddCommand(
		newListCmd(a),
		newDumpCmd(a),
		newPreviewCmd(a),
		newSaveCmd(a),
		newCheckCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)
	return root
}
