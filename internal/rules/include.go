package rules

import (
	"path/filepath"
	"strings"

	"github.com/mango-display/mango-display/internal/util"
)

const includeKey = "source"

// EnsureSourceInclude makes configPath include monitorsPath through exactly
// one source= line. It reports whether the file was changed. The first line
// resolving to the same file is kept and later equivalent lines are dropped;
// without one, a line is appended. A missing config file is created.
func EnsureSourceInclude(configPath, monitorsPath string) (bool, error) {
	content, perm, err := readExisting(configPath)
	if err != nil {
		return false, err
	}
	want := resolveInclude(configPath, monitorsPath)
	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))
	found, dropped := false, false
	for _, line := range lines {
		if target, ok := includeTarget(line); ok && resolveInclude(configPath, target) == want {
			if found {
				dropped = true
				continue
			}
			found = true
		}
		kept = append(kept, line)
	}
	if found && !dropped {
		return false, nil
	}

	var next string
	if found {
		next = strings.Join(kept, "\n")
	} else {
		var b strings.Builder
		b.WriteString(content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(includeKey + "=" + monitorsPath + "\n")
		next = b.String()
	}
	if err := atomicWrite(configPath, []byte(next), perm); err != nil {
		return false, err
	}
	return true, nil
}

// includeTarget returns the value of a source= line. Comments and other
// keys are not includes.
func includeTarget(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	key, value, ok := strings.Cut(trimmed, "=")
	if !ok || strings.TrimSpace(key) != includeKey {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// resolveInclude turns an include target into a clean absolute path. Relative
// targets are taken relative to the including file's directory.
func resolveInclude(configPath, target string) string {
	target = util.ExpandHome(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(util.ExpandHome(configPath)), target)
	}
	return filepath.Clean(target)
}
