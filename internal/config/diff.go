package config

import (
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// DiffSerialized compares two text payloads line by line. Line endings are
// normalized first so a CRLF rewrite of an otherwise equal file is no change.
// An empty result means the payloads are equal.
func DiffSerialized(previous, current []byte) string {
	return cmp.Diff(lines(previous), lines(current))
}

func lines(data []byte) []string {
	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// ChangedKeys lists the settings keys whose values differ, sorted.
func ChangedKeys(previous, current Settings) []string {
	before := previous.fields()
	after := current.fields()
	var keys []string
	for key, value := range after {
		if !cmp.Equal(before[key], value) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s Settings) fields() map[string]any {
	return map[string]any{
		"monitors_path":      s.MonitorsPath,
		"config_path":        s.ConfigPath,
		"auto_append_source": s.AutoAppendSource,
		"snap_threshold_px":  s.SnapThresholdPx,
		"preview_timeout":    s.PreviewTimeout,
		"query_timeout":      s.QueryTimeout,
		"merge_saved_rules":  s.MergeSavedRules,
		"normalize_origin":   s.NormalizeOrigin,
		"wlr_randr_binary":   s.WlrRandrBinary,
		"log_level":          s.LogLevel,
	}
}
