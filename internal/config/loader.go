package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvBaseURL     = "LLAMACLI_BASE_URL"
	EnvModel       = "LLAMACLI_MODEL"
	EnvAPIKey      = "LLAMACLI_API_KEY"
	EnvTimeout     = "LLAMACLI_TIMEOUT"
	EnvHistoryFile = "LLAMACLI_HISTORY_FILE"
	EnvLogLevel    = "LLAMACLI_LOG_LEVEL"
	EnvLogFile     = "LLAMACLI_LOG_FILE"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Loader handles loading configuration from a YAML file and the environment.
type Loader struct {
	logger *zap.Logger
	lookup LookupFunc
}

// NewLoader creates a new configuration loader reading the process
// environment. The logger is optional (can be nil).
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		logger: logger,
		lookup: os.LookupEnv,
	}
}

// WithLookup replaces the environment lookup, mostly for tests.
func (l *Loader) WithLookup(lookup LookupFunc) *Loader {
	l.lookup = lookup
	return l
}

// Load reads the YAML file at path (if any) and applies environment
// overrides. A missing file is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	cfg, err := l.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := l.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration with no error.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Debug("config file not found, using defaults", zap.String("path", path))
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := l.LoadFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML on top of the defaults. Unknown keys are
// rejected so typos surface instead of being silently ignored.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with any LLAMACLI_* variables that are set and
// non-empty.
func (l *Loader) ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		EnvBaseURL:     &cfg.BaseURL,
		EnvModel:       &cfg.Model,
		EnvAPIKey:      &cfg.APIKey,
		EnvHistoryFile: &cfg.HistoryFile,
		EnvLogLevel:    &cfg.LogLevel,
		EnvLogFile:     &cfg.LogFile,
	}
	for key, dst := range strs {
		if v, ok := l.lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := l.lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}

	return nil
}
