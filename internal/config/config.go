// Package config holds runtime configuration, loaded from an optional JSON
// file with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"ubcc/internal/source"
)

// Config is the full runtime configuration.
type Config struct {
	// DataDir is where per-series database files live.
	DataDir string `json:"data_dir"`

	// ExportDir is where CSV exports are written.
	ExportDir string `json:"export_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// LogFile, when set, sends logs to a rotated file instead of stderr.
	LogFile string `json:"log_file"`

	// PageSize is the number of candles requested per source page.
	PageSize int `json:"page_size"`

	// RequestTimeout bounds each HTTP request to the source.
	RequestTimeout time.Duration `json:"request_timeout"`

	// Retry is the backoff policy applied to transient source failures.
	Retry source.RetryPolicy `json:"retry"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        "db",
		ExportDir:      "csv",
		LogLevel:       "info",
		PageSize:       source.MaxPageSize,
		RequestTimeout: 30 * time.Second,
		Retry:          source.DefaultRetryPolicy(),
	}
}

// Load builds a Config from defaults, an optional JSON file, and environment
// overrides, in that precedence order.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("UBCC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("UBCC_EXPORT_DIR"); v != "" {
		c.ExportDir = v
	}
	if v := os.Getenv("UBCC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("UBCC_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("UBCC_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PageSize = n
		}
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.PageSize < 1 || c.PageSize > source.MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", source.MaxPageSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return c.Retry.Validate()
}
