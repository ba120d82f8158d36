// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sarvex/rrg/lib/budget"
	"github.com/sarvex/rrg/protocol"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "5s" or "168h". Convert with time.Duration(d) at use sites.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the agent configuration.
type Config struct {
	// Transport configures the connection to the transport daemon.
	Transport TransportConfig `yaml:"transport"`

	// Session configures per-session ceilings and liveness timing.
	Session SessionConfig `yaml:"session"`

	// Actions configures the served action catalog.
	Actions ActionsConfig `yaml:"actions"`

	// Journal configures the request journal.
	Journal JournalConfig `yaml:"journal"`

	// Log configures the structured logger.
	Log LogConfig `yaml:"log"`
}

// TransportConfig configures the connection to the transport daemon.
type TransportConfig struct {
	// Socket is the Unix socket path where the daemon listens.
	Socket string `yaml:"socket"`

	// DialTimeout bounds the initial connection attempt.
	DialTimeout Duration `yaml:"dial_timeout"`
}

// SessionConfig configures per-session ceilings and liveness timing.
// MaxReplies and MaxBytes are the fallback budget for actions without
// a profile entry; zero means unlimited.
type SessionConfig struct {
	MaxReplies uint64 `yaml:"max_replies"`
	MaxBytes   uint64 `yaml:"max_bytes"`

	// HeartbeatInterval is the minimum spacing of wire heartbeats.
	// Handler heartbeats inside that window are absorbed.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// HeartbeatTimeout is how long a session may stay silent (no
	// reply, no heartbeat) before the monitor cancels it.
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`

	// PollInterval is the monitor's scan cadence.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxConcurrent is the number of requests served at once.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// FallbackBudget returns the session ceilings as the budget applied to
// actions without a profile entry.
func (s SessionConfig) FallbackBudget() budget.Budget {
	return budget.Budget{MaxReplies: s.MaxReplies, MaxBytes: s.MaxBytes}
}

// ActionsConfig configures the served action catalog.
type ActionsConfig struct {
	// Enabled lists the catalog names to serve. Empty serves every
	// compiled-in action.
	Enabled []string `yaml:"enabled"`

	// Budgets overrides the shipped per-action budget profiles, keyed
	// by action name.
	Budgets map[string]budget.Budget `yaml:"budgets,omitempty"`
}

// JournalConfig configures the request journal.
type JournalConfig struct {
	// Path is the SQLite database file. Empty disables the journal.
	Path string `yaml:"path"`

	// Retention is how long closed journal rows are kept.
	Retention Duration `yaml:"retention"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// SlogLevel parses the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}

// Default returns the stock agent configuration. It is valid as-is:
// an agent started without a config file runs on these values.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Socket:      "/run/rrg/transport.sock",
			DialTimeout: Duration(10 * time.Second),
		},
		Session: SessionConfig{
			MaxReplies:        10000,
			MaxBytes:          64 << 20,
			HeartbeatInterval: Duration(5 * time.Second),
			HeartbeatTimeout:  Duration(5 * time.Minute),
			PollInterval:      Duration(10 * time.Second),
			MaxConcurrent:     8,
		},
		Journal: JournalConfig{
			Path:      "/var/lib/rrg/journal.db",
			Retention: Duration(168 * time.Hour),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by RRG_CONFIG, or
// returns Default when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv("RRG_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, overlaying it on Default.
// The file is the single source of truth: environment variables do
// not override its values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All failures are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Transport.Socket == "" {
		errs = append(errs, fmt.Errorf("transport.socket is required"))
	}
	if c.Transport.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.dial_timeout must be positive"))
	}

	if c.Session.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.heartbeat_interval must be positive"))
	}
	if c.Session.HeartbeatTimeout <= c.Session.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("session.heartbeat_timeout must exceed session.heartbeat_interval"))
	}
	if c.Session.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.poll_interval must be positive"))
	}
	if c.Session.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("session.max_concurrent must be at least 1"))
	}

	for _, name := range c.Actions.Enabled {
		if _, err := protocol.ParseActionName(name); err != nil {
			errs = append(errs, fmt.Errorf("actions.enabled: %w", err))
		}
	}
	for name := range c.Actions.Budgets {
		if _, err := protocol.ParseActionName(name); err != nil {
			errs = append(errs, fmt.Errorf("actions.budgets: %w", err))
		}
	}

	if c.Journal.Path != "" && c.Journal.Retention <= 0 {
		errs = append(errs, fmt.Errorf("journal.retention must be positive when journal.path is set"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the directories the agent writes to. The
// transport socket's directory belongs to the daemon and is left
// alone.
func (c *Config) EnsurePaths() error {
	if c.Journal.Path == "" {
		return nil
	}
	dir := filepath.Dir(c.Journal.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
