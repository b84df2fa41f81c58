// Package config provides configuration management for llamacli.
// Values come from built-in defaults, an optional YAML file and LLAMACLI_*
// environment variables, in increasing order of precedence. Command-line
// flags are applied on top by the caller.
package config

import (
	"fmt"
	"time"

	"github.com/llamacli/llamacli/internal/core"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultModel   = "LlamaCLI"

	// DefaultAPIKey is sent as the bearer token. Ollama ignores it, but the
	// OpenAI client refuses an empty one on some endpoints.
	DefaultAPIKey = "ollama"
)

// Config holds all runtime configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint of the model server.
	BaseURL string `yaml:"base_url"`

	// Model is the model name passed to the server.
	Model string `yaml:"model"`

	APIKey string `yaml:"api_key"`

	// Timeout bounds a single model call. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// HistoryFile is the conversation file. Relative paths resolve against
	// the working directory.
	HistoryFile string `yaml:"history_file"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	LogFile string `yaml:"log_file"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		APIKey:      DefaultAPIKey,
		HistoryFile: core.HistoryFileName,
		LogLevel:    "info",
		LogFile:     core.LogFile(),
	}
}

// Validate reports configuration values that can never work.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.HistoryFile == "" {
		return fmt.Errorf("history_file must not be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if _, err := c.ZapLevel(); err != nil {
		return err
	}
	return nil
}

// ZapLevel converts LogLevel to a zap level.
func (c *Config) ZapLevel() (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
