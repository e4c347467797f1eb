package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mango-display/mango-display/internal/config"
	"github.com/mango-display/mango-display/internal/controller"
	"github.com/mango-display/mango-display/internal/util"
)

// settingsReloader re-reads the settings file and hands valid settings to the
// controller. A rejected change keeps the previous settings.
type settingsReloader struct {
	mu             sync.Mutex
	path           string
	logger         *util.Logger
	ctrl           *controller.Controller
	pinLevel       bool
	lastSerialized []byte
}

// newSettingsReloader creates a reloader. With pinLevel the log level set on
// the command line is kept across reloads.
func newSettingsReloader(path string, logger *util.Logger, ctrl *controller.Controller, pinLevel bool) *settingsReloader {
	return &settingsReloader{
		path:           path,
		logger:         logger,
		ctrl:           ctrl,
		pinLevel:       pinLevel,
		lastSerialized: readSettingsFile(path),
	}
}

func readSettingsFile(path string) []byte {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return raw
}

func (r *settingsReloader) Reload(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Infof("%s, reloading settings", reason)
	raw, err := os.ReadFile(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read settings: %w", err)
	}
	if problems := config.LintFile(r.path); len(problems) > 0 {
		r.logProblems(problems)
		r.logDiff(raw)
		return problems[0]
	}
	s, err := config.Load(r.path)
	if err != nil {
		r.logDiff(raw)
		return err
	}

	changed := config.ChangedKeys(r.ctrl.Settings(), *s)
	if len(changed) == 0 {
		r.logger.Debugf("settings unchanged")
	} else {
		r.logger.Infof("settings changed: %s", strings.Join(changed, ", "))
	}
	r.ctrl.UpdateSettings(*s)
	if !r.pinLevel {
		r.logger.SetLevel(util.ParseLogLevel(s.LogLevel))
	}
	r.lastSerialized = append([]byte(nil), raw...)
	return nil
}

func (r *settingsReloader) logDiff(current []byte) {
	diff := config.DiffSerialized(r.lastSerialized, current)
	if diff == "" {
		r.logger.Warnf("settings change rejected; unable to compute diff vs last valid settings")
		return
	}
	r.logger.Warnf("settings change rejected; diff vs last valid settings:\n%s", diff)
}

func (r *settingsReloader) logProblems(problems []error) {
	r.logger.Warnf("settings validation failed with %d issue(s):", len(problems))
	for _, problem := range problems {
		r.logger.Warnf(" - %v", problem)
	}
}
