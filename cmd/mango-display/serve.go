package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mango-display/mango-display/internal/control"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Hold a layout session and serve it on the control socket",
		Long: `serve queries the connected outputs once and keeps the session in memory.
A UI or mango-displayctl drives it over the control socket. The settings file
is watched and reloaded on change or on SIGHUP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sess, err := a.startSession(ctx)
			if err != nil {
				return err
			}
			logger := sess.logger
			reloader := newSettingsReloader(a.settingsPath, logger.With("settings"), sess.ctrl, a.logLevel != "")

			watcher, target, err := newFileWatcher(logger, a.settingsPath)
			if err != nil {
				return err
			}
			defer watcher.Close()
			reloadRequests := make(chan string, 1)
			go watchFile(logger, watcher, target, "settings file updated", reloadRequests)

			srv, err := control.NewServer(sess.ctrl, sess.metrics, logger.With("control"), reloader.Reload)
			if err != nil {
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer signal.Stop(sigs)

			errs := make(chan error, 1)
			go func() {
				errs <- srv.Serve(ctx)
			}()

			for {
				select {
				case err := <-errs:
					if err != nil && err != context.Canceled {
						return err
					}
					logger.Infof("control server stopped")
					return nil
				case reason := <-reloadRequests:
					if err := reloader.Reload(reason); err != nil {
						logger.Errorf("settings reload failed: %v", err)
					}
				case sig := <-sigs:
					switch sig {
					case syscall.SIGHUP:
						if err := reloader.Reload("received SIGHUP"); err != nil {
							logger.Errorf("settings reload failed: %v", err)
						}
					default:
						logger.Infof("received %s, shutting down", sig)
						cancel()
					}
				}
			}
		},
	}
}
