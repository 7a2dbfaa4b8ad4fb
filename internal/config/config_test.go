package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	// Empty file: everything defaulted
	path := writeConfig(t, "")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.Bot.CommandPrefix)
	assert.Equal(t, 1500, cfg.Stream.DebounceMs)
	assert.Equal(t, 3800, cfg.Stream.CharBudget)
	assert.Equal(t, 1, cfg.Stream.EditsPerSecond)
	assert.Equal(t, "claude", cfg.Claude.Binary)
	assert.Equal(t, "info", cfg.Logs.Level)
	assert.Equal(t, 7977, cfg.Hooks.Port)
	assert.False(t, cfg.Git.ForceBare)
}

func TestLoadFrom_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Stream.DebounceMs)
}

func TestLoadFrom_FileValues(t *testing.T) {
	path := writeConfig(t, `
[bot]
token = "tok-123"
channel_id = "chan-9"
command_prefix = ">"

[stream]
debounce_ms = 500
char_budget = 2000
skip_message_types = ["thinking", "system:info"]

[git]
force_bare = true

[claude]
binary = "/usr/local/bin/claude"
dangerous_mode = true
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.Bot.Token)
	assert.Equal(t, "chan-9", cfg.Bot.ChannelID)
	assert.Equal(t, ">", cfg.Bot.CommandPrefix)
	assert.Equal(t, 500, cfg.Stream.DebounceMs)
	assert.Equal(t, 2000, cfg.Stream.CharBudget)
	assert.Equal(t, []string{"thinking", "system:info"}, cfg.Stream.SkipMessageTypes)
	assert.True(t, cfg.Git.ForceBare)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Claude.Binary)
	assert.True(t, cfg.Claude.DangerousMode)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[bot]
token = "from-file"

[stream]
skip_message_types = ["other"]
`)

	t.Setenv("COURIER_TOKEN", "from-env")
	t.Setenv("COURIER_SKIP_MESSAGE_TYPES", "thinking, tool_result ,system:shutdown")
	t.Setenv("COURIER_FORCE_BARE", "1")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, []string{"thinking", "tool_result", "system:shutdown"}, cfg.Stream.SkipMessageTypes)
	assert.True(t, cfg.Git.ForceBare)
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Equal(t, []string{"a"}, splitTags("a"))
	assert.Equal(t, []string{"a", "b:c"}, splitTags(" a ,, b:c "))
}
