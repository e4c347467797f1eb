package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mango-display/mango-display/internal/util"
)

// EnvPrefix prefixes environment overrides, e.g. MANGO_DISPLAY_SNAP_THRESHOLD_PX.
const EnvPrefix = "MANGO_DISPLAY"

const (
	DefaultMonitorsPath   = "~/.config/mango/monitors.conf"
	DefaultConfigPath     = "~/.config/mango/config.conf"
	DefaultSnapThreshold  = 15.0
	DefaultPreviewTimeout = 5 * time.Second
	DefaultQueryTimeout   = 5 * time.Second
	DefaultBinary         = "wlr-randr"
)

// Settings holds user preferences. The controller receives a copy; nothing
// reads settings from global state.
type Settings struct {
	MonitorsPath     string        `mapstructure:"monitors_path"`
	ConfigPath       string        `mapstructure:"config_path"`
	AutoAppendSource bool          `mapstructure:"auto_append_source"`
	SnapThresholdPx  float64       `mapstructure:"snap_threshold_px"`
	PreviewTimeout   time.Duration `mapstructure:"preview_timeout"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
	MergeSavedRules  bool          `mapstructure:"merge_saved_rules"`
	NormalizeOrigin  bool          `mapstructure:"normalize_origin"`
	WlrRandrBinary   string        `mapstructure:"wlr_randr_binary"`
	LogLevel         string        `mapstructure:"log_level"`
}

// Defaults returns the settings used when no file or override is present.
func Defaults() Settings {
	return Settings{
		MonitorsPath:    util.ExpandHome(DefaultMonitorsPath),
		ConfigPath:      util.ExpandHome(DefaultConfigPath),
		SnapThresholdPx: DefaultSnapThreshold,
		PreviewTimeout:  DefaultPreviewTimeout,
		QueryTimeout:    DefaultQueryTimeout,
		MergeSavedRules: true,
		WlrRandrBinary:  DefaultBinary,
		LogLevel:        "info",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/mango-display/settings.json, falling
// back to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = util.ExpandHome("~/.config")
	}
	return filepath.Join(base, "mango-display", "settings.json")
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("monitors_path", DefaultMonitorsPath)
	v.SetDefault("config_path", DefaultConfigPath)
	v.SetDefault("auto_append_source", d.AutoAppendSource)
	v.SetDefault("snap_threshold_px", d.SnapThresholdPx)
	v.SetDefault("preview_timeout", d.PreviewTimeout.String())
	v.SetDefault("query_timeout", d.QueryTimeout.String())
	v.SetDefault("merge_saved_rules", d.MergeSavedRules)
	v.SetDefault("normalize_origin", d.NormalizeOrigin)
	v.SetDefault("wlr_randr_binary", d.WlrRandrBinary)
	v.SetDefault("log_level", d.LogLevel)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Load reads settings from path, applies defaults and environment overrides,
// and validates the result. A missing file is not an error.
func Load(path string) (*Settings, error) {
	s, err := decode(path)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func decode(path string) (*Settings, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read settings %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat settings %s: %w", path, err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	s.applyDefaults()
	return &s, nil
}

func (s *Settings) applyDefaults() {
	s.MonitorsPath = util.ExpandHome(strings.TrimSpace(s.MonitorsPath))
	s.ConfigPath = util.ExpandHome(strings.TrimSpace(s.ConfigPath))
	if strings.TrimSpace(s.WlrRandrBinary) == "" {
		s.WlrRandrBinary = DefaultBinary
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
}

// Validate performs basic sanity checks and returns the first problem.
func (s *Settings) Validate() error {
	if problems := s.problems(); len(problems) > 0 {
		return problems[0]
	}
	return nil
}

func (s *Settings) problems() []error {
	var errs []error
	if s.MonitorsPath == "" {
		errs = append(errs, fmt.Errorf("monitors_path cannot be empty"))
	}
	if s.ConfigPath == "" {
		errs = append(errs, fmt.Errorf("config_path cannot be empty"))
	}
	if s.SnapThresholdPx < 0 {
		errs = append(errs, fmt.Errorf("snap_threshold_px cannot be negative, got %v", s.SnapThresholdPx))
	}
	if s.PreviewTimeout <= 0 {
		errs = append(errs, fmt.Errorf("preview_timeout must be positive, got %s", s.PreviewTimeout))
	}
	if s.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("query_timeout must be positive, got %s", s.QueryTimeout))
	}
	switch strings.ToLower(s.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of trace, debug, info, warn, error", s.LogLevel))
	}
	return errs
}

// LintFile loads path and reports every problem instead of stopping at the
// first one.
func LintFile(path string) []error {
	s, err := decode(path)
	if err != nil {
		return []error{err}
	}
	return s.problems()
}

// Save writes s to path. The format follows the file extension.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType(configType(path))
	v.Set("monitors_path", s.MonitorsPath)
	v.Set("config_path", s.ConfigPath)
	v.Set("auto_append_source", s.AutoAppendSource)
	v.Set("snap_threshold_px", s.SnapThresholdPx)
	v.Set("preview_timeout", s.PreviewTimeout.String())
	v.Set("query_timeout", s.QueryTimeout.String())
	v.Set("merge_saved_rules", s.MergeSavedRules)
	v.Set("normalize_origin", s.NormalizeOrigin)
	v.Set("wlr_randr_binary", s.WlrRandrBinary)
	v.Set("log_level", s.LogLevel)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

// Serialize renders s as YAML for display and diffing.
func (s Settings) Serialize() ([]byte, error) {
	data, err := yaml.Marshal(settingsView{
		MonitorsPath:     s.MonitorsPath,
		ConfigPath:       s.ConfigPath,
		AutoAppendSource: s.AutoAppendSource,
		SnapThresholdPx:  s.SnapThresholdPx,
		PreviewTimeout:   s.PreviewTimeout.String(),
		QueryTimeout:     s.QueryTimeout.String(),
		MergeSavedRules:  s.MergeSavedRules,
		NormalizeOrigin:  s.NormalizeOrigin,
		WlrRandrBinary:   s.WlrRandrBinary,
		LogLevel:         s.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return data, nil
}

// settingsView is Settings with durations rendered as strings.
type settingsView struct {
	MonitorsPath     string  `yaml:"monitors_path"`
	ConfigPath       string  `yaml:"config_path"`
	AutoAppendSource bool    `yaml:"auto_append_source"`
	SnapThresholdPx  float64 `yaml:"snap_threshold_px"`
	PreviewTimeout   string  `yaml:"preview_timeout"`
	QueryTimeout     string  `yaml:"query_timeout"`
	MergeSavedRules  bool    `yaml:"merge_saved_rules"`
	NormalizeOrigin  bool    `yaml:"normalize_origin"`
	WlrRandrBinary   string  `yaml:"wlr_randr_binary"`
	LogLevel         string  `yaml:"log_level"`
}
