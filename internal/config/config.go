package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the TOML config file for user preferences
const ConfigFileName = "config.toml"

// Config represents user-facing configuration in TOML format
type Config struct {
	// Bot defines chat-platform connection settings
	Bot BotSettings `toml:"bot"`

	// Stream defines progress-message aggregation settings
	Stream StreamSettings `toml:"stream"`

	// Git defines repository topology settings
	Git GitSettings `toml:"git"`

	// Claude defines assistant CLI settings
	Claude ClaudeSettings `toml:"claude"`

	// Logs defines structured logging settings
	Logs LogSettings `toml:"logs"`

	// Hooks defines the local hook callback server settings
	Hooks HookSettings `toml:"hooks"`
}

// BotSettings defines chat-platform connection configuration
type BotSettings struct {
	// Token is the bot authentication token
	// Overridable via COURIER_TOKEN
	Token string `toml:"token"`

	// ChannelID is the channel that receives progress messages
	// Overridable via COURIER_CHANNEL_ID
	ChannelID string `toml:"channel_id"`

	// CommandPrefix marks inbound messages as commands (default: "!")
	CommandPrefix string `toml:"command_prefix"`

	// APIBase is the platform REST endpoint base URL
	APIBase string `toml:"api_base"`

	// GatewayURL is the platform websocket gateway URL
	GatewayURL string `toml:"gateway_url"`
}

// StreamSettings defines progress aggregation configuration
type StreamSettings struct {
	// DebounceMs is the deferred-edit delay in milliseconds (default: 1500)
	DebounceMs int `toml:"debounce_ms"`

	// CharBudget caps the rendered progress description (default: 3800)
	CharBudget int `toml:"char_budget"`

	// EditsPerSecond rate-caps debounced edit calls (default: 1)
	EditsPerSecond int `toml:"edits_per_second"`

	// SkipMessageTypes suppresses message types or type:subtype tags,
	// case-insensitive (e.g. ["thinking", "system:info"]).
	// system:completion and system:failure are never suppressible.
	// Overridable via COURIER_SKIP_MESSAGE_TYPES (comma-separated).
	SkipMessageTypes []string `toml:"skip_message_types"`
}

// GitSettings defines repository topology configuration
type GitSettings struct {
	// ForceBare treats the repository as bare regardless of what git reports.
	// Overridable via COURIER_FORCE_BARE (true/1).
	ForceBare bool `toml:"force_bare"`
}

// ClaudeSettings defines assistant CLI configuration
type ClaudeSettings struct {
	// Binary is the assistant CLI executable (default: "claude")
	Binary string `toml:"binary"`

	// WorkingDir is the initial working directory for assistant runs
	// (default: current directory, topology-resolved at startup)
	WorkingDir string `toml:"working_dir"`

	// DangerousMode enables --dangerously-skip-permissions for runs
	// Default: false
	DangerousMode bool `toml:"dangerous_mode"`
}

// LogSettings defines log management configuration
type LogSettings struct {
	// Dir is the log directory (default: ~/.courier)
	Dir string `toml:"dir"`

	// Level is the minimum log level (default: "info")
	Level string `toml:"level"`

	// Format is "json" or "text" (default: "json")
	Format string `toml:"format"`

	// Debug enables debug logging even without an explicit dir
	Debug bool `toml:"debug"`
}

// HookSettings defines the hook callback server configuration
type HookSettings struct {
	// Enabled starts the localhost hook server (default: false)
	Enabled bool `toml:"enabled"`

	// Port is the listen port for hook callbacks (default: 7977)
	Port int `toml:"port"`
}

// GetCourierDir returns the per-user state directory, creating it if needed.
func GetCourierDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".courier")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create courier dir: %w", err)
	}
	return dir, nil
}

// GetConfigPath returns the path to the user config file
func GetConfigPath() (string, error) {
	dir, err := GetCourierDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Load loads the configuration from the default path, applying defaults and
// environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.CommandPrefix == "" {
		c.Bot.CommandPrefix = "!"
	}
	if c.Stream.DebounceMs <= 0 {
		c.Stream.DebounceMs = 1500
	}
	if c.Stream.CharBudget <= 0 {
		c.Stream.CharBudget = 3800
	}
	if c.Stream.EditsPerSecond <= 0 {
		c.Stream.EditsPerSecond = 1
	}
	if c.Claude.Binary == "" {
		c.Claude.Binary = "claude"
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Hooks.Port <= 0 {
		c.Hooks.Port = 7977
	}
}

// applyEnv layers environment overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("COURIER_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("COURIER_CHANNEL_ID"); v != "" {
		c.Bot.ChannelID = v
	}
	if v := os.Getenv("COURIER_SKIP_MESSAGE_TYPES"); v != "" {
		c.Stream.SkipMessageTypes = splitTags(v)
	}
	if v := os.Getenv("COURIER_FORCE_BARE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Git.ForceBare = b
		}
	}
}

// splitTags splits a comma-separated tag list, trimming blanks.
func splitTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}
