// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tavern.
//
// Configuration is TOML with sensible defaults and TAVERN_* environment
// variable overrides. Default location: ~/.tavern/config.toml.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/tavern-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tavern configuration.
type Config struct {
	// Backend holds the chat backend endpoints.
	Backend BackendConfig `toml:"backend"`

	// Chat holds conversation behavior settings.
	Chat ChatConfig `toml:"chat"`

	// Recorder holds audio capture settings.
	Recorder RecorderConfig `toml:"recorder"`

	// Storage holds local persistence settings.
	Storage StorageConfig `toml:"storage"`

	// UI holds presentation settings.
	UI UIConfig `toml:"ui"`
}

// BackendConfig contains the chat backend endpoints.
type BackendConfig struct {
	// BaseURL is the HTTP API base URL (completions and upload signing).
	BaseURL string `toml:"base_url"`
	// RealtimeURL is the websocket endpoint for transcription events.
	RealtimeURL string `toml:"realtime_url"`
	// TimeoutSecs bounds completion requests in seconds.
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChatConfig contains conversation behavior settings.
type ChatConfig struct {
	// RevealIntervalMs is the delay between characters of the simulated
	// streaming reveal, in milliseconds.
	RevealIntervalMs int `toml:"reveal_interval_ms"`
	// ResolveUploadsImmediately finishes uploaded attachments with a
	// static confirmation instead of waiting for their transcription.
	ResolveUploadsImmediately bool `toml:"resolve_uploads_immediately"`
}

// RecorderConfig contains audio capture settings.
type RecorderConfig struct {
	// CaptureCommand overrides the capture tool. The command must write
	// s16le mono PCM to stdout; empty picks a platform default.
	CaptureCommand []string `toml:"capture_command"`
}

// StorageConfig contains local persistence settings.
type StorageConfig struct {
	// Path is the SQLite database location (empty = ~/.tavern/tavern.db).
	Path string `toml:"path"`
	// PersistHistory re-saves the transcript after each change so history
	// survives restarts. Off by default; without it only the last voice
	// recording is stored.
	PersistHistory bool `toml:"persist_history"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Theme is the UI theme: "dark" or "light".
	Theme string `toml:"theme"`
	// CompactMode tightens message spacing.
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:     "http://127.0.0.1:8000",
			RealtimeURL: "ws://127.0.0.1:8000/ws",
			TimeoutSecs: 60,
		},
		Chat: ChatConfig{
			RevealIntervalMs:          20,
			ResolveUploadsImmediately: false,
		},
		Storage: StorageConfig{
			// The transcript is in-memory per run; only the last voice
			// recording is stored. History persistence is opt-in.
			PersistHistory: false,
		},
		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// RevealInterval returns the reveal delay as a duration.
func (c *Config) RevealInterval() time.Duration {
	return time.Duration(c.Chat.RevealIntervalMs) * time.Millisecond
}

// BackendTimeout returns the completion timeout as a duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the tavern configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tavern"), nil
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the default path, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path. A missing
// file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default path atomically.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveToPath(path)
}

// SaveToPath writes the configuration to path atomically.
func (c *Config) SaveToPath(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies TAVERN_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TAVERN_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("TAVERN_REALTIME_URL"); v != "" {
		c.Backend.RealtimeURL = v
	}
	if v := os.Getenv("TAVERN_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.TimeoutSecs = n
		}
	}
	if v := os.Getenv("TAVERN_REVEAL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.RevealIntervalMs = n
		}
	}
	if v := os.Getenv("TAVERN_RESOLVE_UPLOADS_IMMEDIATELY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Chat.ResolveUploadsImmediately = b
		}
	}
	if v := os.Getenv("TAVERN_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TAVERN_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaults.Backend.BaseURL
	}
	if c.Backend.RealtimeURL == "" {
		c.Backend.RealtimeURL = defaults.Backend.RealtimeURL
	}
	if c.Backend.TimeoutSecs <= 0 {
		c.Backend.TimeoutSecs = defaults.Backend.TimeoutSecs
	}
	if c.Chat.RevealIntervalMs <= 0 {
		c.Chat.RevealIntervalMs = defaults.Chat.RevealIntervalMs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}

	w, err := url.Parse(c.Backend.RealtimeURL)
	if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
		return fmt.Errorf("backend.realtime_url must be a ws(s) URL, got %q", c.Backend.RealtimeURL)
	}

	if c.Chat.RevealIntervalMs > 1000 {
		return fmt.Errorf("chat.reveal_interval_ms = %d is too slow to be usable (max 1000)", c.Chat.RevealIntervalMs)
	}

	switch c.UI.Theme {
	case "dark", "light":
	default:
		return fmt.Errorf("ui.theme must be \"dark\" or \"light\", got %q", c.UI.Theme)
	}

	return nil
}
