// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chanterm/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete chanterm configuration.
type Config struct {
	// Workspace credentials. Usually supplied through the environment
	// rather than the file.
	Workspace WorkspaceConfig `toml:"workspace"`

	// Stream tunes the event-stream connection lifecycle.
	Stream StreamConfig `toml:"stream"`

	// Gateway tunes the REST side.
	Gateway GatewayConfig `toml:"gateway"`

	// UI configuration.
	UI UIConfig `toml:"ui"`
}

// WorkspaceConfig holds the two workspace credentials.
type WorkspaceConfig struct {
	// BotToken (xoxb-) authorizes REST calls.
	BotToken string `toml:"bot_token"`
	// AppToken (xapp-) authorizes the stream handshake.
	AppToken string `toml:"app_token"`
}

// StreamConfig tunes the event-stream client.
type StreamConfig struct {
	// HandshakeTimeoutSecs bounds URL minting, dialing, and the hello wait.
	HandshakeTimeoutSecs int `toml:"handshake_timeout_secs"`
	// ReadIdleTimeoutSecs is the longest tolerated stream silence.
	ReadIdleTimeoutSecs int `toml:"read_idle_timeout_secs"`
	// BackoffBaseMS and BackoffMaxSecs bound the reconnect schedule.
	BackoffBaseMS  int `toml:"backoff_base_ms"`
	BackoffMaxSecs int `toml:"backoff_max_secs"`
	// MaxAttempts is the consecutive-failure count before connectivity
	// is reported as fatal (retrying still continues).
	MaxAttempts int `toml:"max_attempts"`
}

// GatewayConfig tunes the REST gateway and dispatcher bounds.
type GatewayConfig struct {
	// SendTimeoutSecs caps one message send end to end.
	SendTimeoutSecs int `toml:"send_timeout_secs"`
	// FetchTimeoutSecs caps one history or channel-list fetch.
	FetchTimeoutSecs int `toml:"fetch_timeout_secs"`
	// HistoryPageSize is the page size for history fetches (1-200).
	HistoryPageSize int `toml:"history_page_size"`
	// MaxRetries bounds per-request REST retries.
	MaxRetries int `toml:"max_retries"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark" or "light".
	Theme string `toml:"theme"`
	// ShowTimestamps renders a timestamp next to each message.
	ShowTimestamps bool `toml:"show_timestamps"`
	// CompactMode drops blank lines between messages.
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			HandshakeTimeoutSecs: 10,
			ReadIdleTimeoutSecs:  70,
			BackoffBaseMS:        500,
			BackoffMaxSecs:       30,
			MaxAttempts:          10,
		},
		Gateway: GatewayConfig{
			SendTimeoutSecs:  15,
			FetchTimeoutSecs: 30,
			HistoryPageSize:  100,
			MaxRetries:       3,
		},
		UI: UIConfig{
			Theme:          "dark",
			ShowTimestamps: true,
			CompactMode:    false,
		},
	}
}

// HandshakeTimeout returns the stream handshake bound as a duration.
func (c *StreamConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSecs) * time.Second
}

// ReadIdleTimeout returns the stream idle bound as a duration.
func (c *StreamConfig) ReadIdleTimeout() time.Duration {
	return time.Duration(c.ReadIdleTimeoutSecs) * time.Second
}

// BackoffBase returns the reconnect backoff base as a duration.
func (c *StreamConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// BackoffMax returns the reconnect backoff cap as a duration.
func (c *StreamConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSecs) * time.Second
}

// SendTimeout returns the send bound as a duration.
func (c *GatewayConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSecs) * time.Second
}

// FetchTimeout returns the fetch bound as a duration.
func (c *GatewayConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chanterm configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chanterm"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config
// file. SECURITY: The file can hold tokens and must be owner-only.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.chanterm/config.toml, falling back
// to defaults when no file exists. Environment overrides apply last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file: %w", err)
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Stream.HandshakeTimeoutSecs == 0 {
		c.Stream.HandshakeTimeoutSecs = defaults.Stream.HandshakeTimeoutSecs
	}
	if c.Stream.ReadIdleTimeoutSecs == 0 {
		c.Stream.ReadIdleTimeoutSecs = defaults.Stream.ReadIdleTimeoutSecs
	}
	if c.Stream.BackoffBaseMS == 0 {
		c.Stream.BackoffBaseMS = defaults.Stream.BackoffBaseMS
	}
	if c.Stream.BackoffMaxSecs == 0 {
		c.Stream.BackoffMaxSecs = defaults.Stream.BackoffMaxSecs
	}
	if c.Stream.MaxAttempts == 0 {
		c.Stream.MaxAttempts = defaults.Stream.MaxAttempts
	}

	if c.Gateway.SendTimeoutSecs == 0 {
		c.Gateway.SendTimeoutSecs = defaults.Gateway.SendTimeoutSecs
	}
	if c.Gateway.FetchTimeoutSecs == 0 {
		c.Gateway.FetchTimeoutSecs = defaults.Gateway.FetchTimeoutSecs
	}
	if c.Gateway.HistoryPageSize == 0 {
		c.Gateway.HistoryPageSize = defaults.Gateway.HistoryPageSize
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = defaults.Gateway.MaxRetries
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides on top of
// the loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	// SLACK_BOT_TOKEN / SLACK_APP_TOKEN take precedence over the file:
	// tokens in the environment never need to touch disk.
	if tok := os.Getenv("SLACK_BOT_TOKEN"); tok != "" {
		c.Workspace.BotToken = tok
	}
	if tok := os.Getenv("SLACK_APP_TOKEN"); tok != "" {
		c.Workspace.AppToken = tok
	}

	if theme := os.Getenv("CHANTERM_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if size := os.Getenv("CHANTERM_PAGE_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			c.Gateway.HistoryPageSize = n
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# chanterm configuration file")
	fmt.Fprintln(&buf, "# Generated by chanterm - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Workspace.BotToken != "" && !strings.HasPrefix(c.Workspace.BotToken, "xoxb-") {
		errs = append(errs, ValidationError{
			Field:   "workspace.bot_token",
			Message: "must start with xoxb-",
		})
	}
	if c.Workspace.AppToken != "" && !strings.HasPrefix(c.Workspace.AppToken, "xapp-") {
		errs = append(errs, ValidationError{
			Field:   "workspace.app_token",
			Message: "must start with xapp-",
		})
	}

	if c.Stream.HandshakeTimeoutSecs < 1 || c.Stream.HandshakeTimeoutSecs > 120 {
		errs = append(errs, ValidationError{
			Field:   "stream.handshake_timeout_secs",
			Message: "must be between 1 and 120",
		})
	}
	if c.Stream.ReadIdleTimeoutSecs < 30 {
		errs = append(errs, ValidationError{
			Field:   "stream.read_idle_timeout_secs",
			Message: "must be at least 30 (server pings every ~30s)",
		})
	}
	if c.Stream.BackoffBaseMS < 1 {
		errs = append(errs, ValidationError{
			Field:   "stream.backoff_base_ms",
			Message: "must be positive",
		})
	}
	if c.Stream.BackoffMaxSecs*1000 < c.Stream.BackoffBaseMS {
		errs = append(errs, ValidationError{
			Field:   "stream.backoff_max_secs",
			Message: "must be at least the backoff base",
		})
	}
	if c.Stream.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "stream.max_attempts",
			Message: "must be at least 1",
		})
	}

	if c.Gateway.SendTimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "gateway.send_timeout_secs",
			Message: "must be positive",
		})
	}
	if c.Gateway.HistoryPageSize < 1 || c.Gateway.HistoryPageSize > 200 {
		errs = append(errs, ValidationError{
			Field:   "gateway.history_page_size",
			Message: "must be between 1 and 200",
		})
	}
	if c.Gateway.MaxRetries < 1 || c.Gateway.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "gateway.max_retries",
			Message: "must be between 1 and 10",
		})
	}

	if theme := strings.ToLower(c.UI.Theme); theme != "dark" && theme != "light" {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: "must be \"dark\" or \"light\"",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
