package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mango-display/mango-display/internal/util"
)

const debounceWindow = 250 * time.Millisecond

// newFileWatcher watches path and its directory, so editors that replace the
// file by renaming are still seen. It returns the cleaned absolute path that
// events are matched against.
func newFileWatcher(logger *util.Logger, path string) (*fsnotify.Watcher, string, error) {
	full, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", path, err)
	}
	full = filepath.Clean(full)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create %s: %w", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, "", fmt.Errorf("watch %s: %w", path, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, "", fmt.Errorf("watch dir %s: %w", dir, err)
	}
	if err := watcher.Add(full); err != nil {
		logger.Debugf("unable to watch %s directly: %v", full, err)
	}
	return watcher, full, nil
}

// watchFile sends reason on requests once writes to target have settled for
// debounceWindow. A pending request is not duplicated.
func watchFile(logger *util.Logger, watcher *fsnotify.Watcher, target, reason string, requests chan<- string) {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					<-timerCh
				}
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			select {
			case requests <- reason:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("file watcher error: %v", err)
		}
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-apply the saved monitor rules whenever the rule file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			sess, err := a.startSession(ctx)
			if err != nil {
				return err
			}
			watcher, target, err := newFileWatcher(sess.logger, sess.settings.MonitorsPath)
			if err != nil {
				return err
			}
			defer watcher.Close()

			requests := make(chan string, 1)
			go watchFile(sess.logger, watcher, target, "monitor rules updated", requests)
			requests <- "startup"

			for {
				select {
				case <-ctx.Done():
					sess.logger.Infof("watch stopped")
					return nil
				case reason := <-requests:
					if err := reapply(ctx, sess, reason); err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						sess.logger.Errorf("re-apply failed: %v", err)
					}
				}
			}
		},
	}
}

func reapply(ctx context.Context, sess *session, reason string) error {
	sess.logger.Infof("%s, applying %s", reason, sess.settings.MonitorsPath)
	if err := sess.ctrl.Reload(ctx); err != nil {
		return err
	}
	if _, err := sess.ctrl.ApplySavedRules(); err != nil {
		return err
	}
	return sess.ctrl.Preview(ctx)
}
