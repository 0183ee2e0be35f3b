// Package config holds broker configuration loaded from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tunables for a broker instance.
type Config struct {
	Broker BrokerConfig `yaml:"broker"`
	Log    LogConfig    `yaml:"log"`
}

// BrokerConfig holds queue and delivery settings.
type BrokerConfig struct {
	// JournalDir is the directory holding queue.jsonl and dlq.jsonl.
	JournalDir string `yaml:"journal_dir"`

	// MaxRetries is the failed-acknowledgment budget before dead-lettering.
	MaxRetries int `yaml:"max_retries"`

	// PollInterval bounds the cooperative wait inside Receive.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			JournalDir:   "data",
			MaxRetries:   3,
			PollInterval: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the broker cannot run with.
func (c Config) Validate() error {
	if c.Broker.JournalDir == "" {
		return fmt.Errorf("config: broker.journal_dir must not be empty")
	}
	if c.Broker.MaxRetries < 0 {
		return fmt.Errorf("config: broker.max_retries must not be negative")
	}
	if c.Broker.PollInterval <= 0 {
		return fmt.Errorf("config: broker.poll_interval must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Logger builds a slog.Logger from the log settings, writing to stderr.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
