package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mango-display/mango-display/internal/state"
)

func twoOutputs() []state.Output {
	a := dp1()
	b := dp1()
	b.Name = "HDMI-A-1"
	b.Position = state.Position{X: 1920}
	b.Mode.Refresh = state.RefreshFromHz(60)
	off := dp1()
	off.Name = "eDP-1"
	off.Enabled = false
	return []state.Output{b, off, a}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBlockSkipsDisabledAndSorts(t *testing.T) {
	lines := Block(twoOutputs())
	require.Len(t, lines, 4)
	assert.Equal(t, BlockStart, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "monitorrule=name:DP-1,"))
	assert.True(t, strings.HasPrefix(lines[2], "monitorrule=name:HDMI-A-1,"))
	assert.Equal(t, BlockEnd, lines[3])
}

func TestWriteConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mango", "monitors.conf")
	res, err := WriteConfig(twoOutputs(), path)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Rules)
	assert.Equal(t, strings.Join(Block(twoOutputs()), "\n")+"\n", readFile(t, path))
}

func TestWriteConfigIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitors.conf")
	require.NoError(t, os.WriteFile(path, []byte("# mine\nexec-once=waybar"), 0o600))

	_, err := WriteConfig(twoOutputs(), path)
	require.NoError(t, err)
	first := readFile(t, path)

	res, err := WriteConfig(twoOutputs(), path)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Diff)
	assert.Equal(t, first, readFile(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteConfigReplacesOnlyManagedBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.conf")
	before := "# top\r\nbind=SUPER,q,killclient\r\n" + BlockStart + "\r\nmonitorrule=name:OLD-1,width:800,height:600,refresh:60.000000,x:0,y:0,scale:1.000000,rr:0\r\n" + BlockEnd + "\r\n# tail  \r\n"
	require.NoError(t, os.WriteFile(path, []byte(before), 0o644))

	res, err := WriteConfig(twoOutputs(), path)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Contains(t, res.Diff, "OLD-1")

	after := readFile(t, path)
	assert.True(t, strings.HasPrefix(after, "# top\r\nbind=SUPER,q,killclient\r\n"+BlockStart+"\r\n"))
	assert.True(t, strings.HasSuffix(after, BlockEnd+"\r\n# tail  \r\n"))
	assert.NotContains(t, after, "OLD-1")
	assert.Contains(t, after, "name:HDMI-A-1")
}

func TestWriteConfigReplacesBareRuleRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitors.conf")
	before := strings.Join([]string{
		"# hand written",
		"monitorrule=name:X-1,width:800,height:600,refresh:60.000000,x:0,y:0,scale:1.000000,rr:0",
		"monitorrule=name:X-2,width:800,height:600,refresh:60.000000,x:800,y:0,scale:1.000000,rr:0",
		"",
		"monitorrule=name:X-3,width:800,height:600,refresh:60.000000,x:1600,y:0,scale:1.000000,rr:0",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(before), 0o644))

	_, err := WriteConfig(twoOutputs(), path)
	require.NoError(t, err)

	want := "# hand written\n" + strings.Join(Block(twoOutputs()), "\n") + "\n\n" +
		"monitorrule=name:X-3,width:800,height:600,refresh:60.000000,x:1600,y:0,scale:1.000000,rr:0\n"
	assert.Equal(t, want, readFile(t, path))
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitors.conf")
	_, err := WriteConfig(twoOutputs(), path)
	require.NoError(t, err)

	loaded, errs, err := LoadFile(path)
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, loaded, 2)
	assert.Equal(t, "DP-1", loaded[0].Name)
	assert.Equal(t, state.Position{X: 1920}, loaded[1].Position)
	assert.Equal(t, state.RefreshFromHz(60), loaded[1].Mode.Refresh)
}

func TestWriteConfigReportsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := WriteConfig(twoOutputs(), filepath.Join(blocker, "monitors.conf"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestEnsureSourceIncludeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.conf")
	monitorsPath := filepath.Join(dir, "monitors.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("bind=SUPER,q,killclient"), 0o644))

	changed, err := EnsureSourceInclude(configPath, monitorsPath)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = EnsureSourceInclude(configPath, monitorsPath)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, "bind=SUPER,q,killclient\nsource="+monitorsPath+"\n", readFile(t, configPath))
}

func TestEnsureSourceIncludeMatchesEquivalentPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "mango")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	configPath := filepath.Join(dir, "config.conf")

	for _, existing := range []string{"source=~/.config/mango/monitors.conf", "source = ./monitors.conf", "source=monitors.conf"} {
		require.NoError(t, os.WriteFile(configPath, []byte(existing+"\n"), 0o644))
		changed, err := EnsureSourceInclude(configPath, filepath.Join(dir, "monitors.conf"))
		require.NoError(t, err)
		assert.False(t, changed, existing)
	}
}

func TestEnsureSourceIncludeCollapsesDuplicates(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.conf")
	monitorsPath := filepath.Join(dir, "monitors.conf")
	existing := "source=" + monitorsPath + "\nbind=SUPER,q,killclient\nsource=./monitors.conf\nsource=other.conf\n"
	require.NoError(t, os.WriteFile(configPath, []byte(existing), 0o644))

	changed, err := EnsureSourceInclude(configPath, monitorsPath)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "source="+monitorsPath+"\nbind=SUPER,q,killclient\nsource=other.conf\n", readFile(t, configPath))

	changed, err = EnsureSourceInclude(configPath, monitorsPath)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEnsureSourceIncludeCreatesConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "mango", "config.conf")
	changed, err := EnsureSourceInclude(configPath, "~/.config/mango/monitors.conf")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "source=~/.config/mango/monitors.conf\n", readFile(t, configPath))
}

func TestEnsureSourceIncludeIgnoresCommentedSource(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.conf")
	monitorsPath := filepath.Join(dir, "monitors.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("# source="+monitorsPath+"\n"), 0o644))

	changed, err := EnsureSourceInclude(configPath, monitorsPath)
	require.NoError(t, err)
	assert.True(t, changed)
}
