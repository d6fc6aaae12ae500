package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/designd/internal/config"
)

// Config holds logging configuration.
type Config struct {
	Level    zapcore.Level
	Format   string // "json" or "console"
	Output   OutputConfig
	Sampling SamplingConfig
	Caller   bool
	Fields   map[string]string
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool
	// Stderr is used instead of Stdout when stdout carries a protocol.
	Stderr bool
	OTEL   bool
	File   *FileOutput
}

// FileOutput is a size-rotated log file.
type FileOutput struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SamplingConfig controls log volume reduction below error level.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// NewDefaultConfig returns production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled:    false,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller: true,
		Fields: map[string]string{"service": "designd"},
	}
}

// FromSettings builds a Config from the operator-facing settings.
func FromSettings(s config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()

	if s.Level != "" {
		lvl, err := zapcore.ParseLevel(s.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
		}
		cfg.Level = lvl
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	cfg.Sampling.Enabled = s.Sampling
	cfg.Output.OTEL = s.OTEL
	if s.File.Path != "" {
		cfg.Output.File = &FileOutput{
			Path:       s.File.Path,
			MaxSizeMB:  s.File.MaxSizeMB,
			MaxBackups: s.File.MaxBackups,
			MaxAgeDays: s.File.MaxAgeDays,
			Compress:   s.File.Compress,
		}
	}
	for k, v := range s.Fields {
		cfg.Fields[k] = v
	}

	return cfg, cfg.Validate()
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.Stderr && !c.Output.OTEL && c.Output.File == nil {
		return fmt.Errorf("at least one output must be enabled (stdout, otel or file)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q must have a non-empty key and value", k)
		}
	}
	return nil
}
