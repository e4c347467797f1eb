package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mango-display/mango-display/internal/config"
	"github.com/mango-display/mango-display/internal/state"
)

const (
	// BlockStart and BlockEnd delimit the lines this program owns in a file.
	BlockStart = "# >>> mango-display monitors >>>"
	BlockEnd   = "# <<< mango-display monitors <<<"
)

// Result summarises a file update.
type Result struct {
	Path    string
	Rules   int
	Changed bool
	Diff    string
}

// Block returns the managed block for outputs: the markers around one rule
// per enabled output, ordered by name.
func Block(outputs []state.Output) []string {
	enabled := make([]state.Output, 0, len(outputs))
	for _, o := range outputs {
		if o.Enabled {
			enabled = append(enabled, o)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })

	lines := make([]string, 0, len(enabled)+2)
	lines = append(lines, BlockStart)
	for _, o := range enabled {
		lines = append(lines, Serialize(o))
	}
	return append(lines, BlockEnd)
}

// WriteConfig stores the rule block for outputs in the file at path.
//
// An existing marker block is replaced. Without markers, the first run of
// consecutive rule lines is replaced in place; otherwise the block is
// appended. All other bytes of the file are kept. The file is replaced
// atomically and only when its content changes.
func WriteConfig(outputs []state.Output, path string) (Result, error) {
	res := Result{Path: path}
	for _, o := range outputs {
		if o.Enabled {
			res.Rules++
		}
	}

	previous, perm, err := readExisting(path)
	if err != nil {
		return res, err
	}
	next := spliceBlock(previous, Block(outputs))
	if next == previous {
		return res, nil
	}
	if err := atomicWrite(path, []byte(next), perm); err != nil {
		return res, err
	}
	res.Changed = true
	res.Diff = config.DiffSerialized([]byte(previous), []byte(next))
	return res, nil
}

func readExisting(path string) (string, os.FileMode, error) {
	const defaultPerm os.FileMode = 0o644
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", defaultPerm, nil
		}
		return "", 0, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	return string(data), info.Mode().Perm(), nil
}

// spliceBlock returns content with block substituted for the managed region.
func spliceBlock(content string, block []string) string {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	eol := "\n"
	if strings.Contains(content, "\r\n") {
		eol = "\r\n"
	}
	rendered := make([]string, len(block))
	for i, l := range block {
		rendered[i] = l + eol
	}

	start, end, ok := findMarkers(lines)
	if !ok {
		start, end, ok = findRuleRun(lines)
	}
	if !ok {
		var b strings.Builder
		b.WriteString(content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			b.WriteString(eol)
		}
		for _, l := range rendered {
			b.WriteString(l)
		}
		return b.String()
	}

	// Keep the original terminator of the replaced region's last line so a
	// file without a trailing newline stays that way.
	if !strings.HasSuffix(lines[end-1], "\n") && end == len(lines) {
		last := len(rendered) - 1
		rendered[last] = strings.TrimRight(rendered[last], "\r\n")
	}
	var b strings.Builder
	for _, l := range lines[:start] {
		b.WriteString(l)
	}
	for _, l := range rendered {
		b.WriteString(l)
	}
	for _, l := range lines[end:] {
		b.WriteString(l)
	}
	return b.String()
}

// findMarkers returns the half-open line range of the marker block. A start
// marker without an end marker claims the rule lines directly after it.
func findMarkers(lines []string) (int, int, bool) {
	start := -1
	for i, l := range lines {
		trimmed := strings.TrimSpace(l)
		if start < 0 {
			if trimmed == BlockStart {
				start = i
			}
			continue
		}
		if trimmed == BlockEnd {
			return start, i + 1, true
		}
	}
	if start < 0 {
		return 0, 0, false
	}
	end := start + 1
	for end < len(lines) && IsRuleLine(lines[end]) {
		end++
	}
	return start, end, true
}

func findRuleRun(lines []string) (int, int, bool) {
	for i, l := range lines {
		if !IsRuleLine(l) {
			continue
		}
		end := i + 1
		for end < len(lines) && IsRuleLine(lines[end]) {
			end++
		}
		return i, end, true
	}
	return 0, 0, false
}
