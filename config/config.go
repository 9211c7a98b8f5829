// Package config manages application configuration and logger setup.
// Priority: environment variables > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// APIBaseURL is the remote recording service root.
	APIBaseURL string `yaml:"api_base_url"`
	// TokenFile is where the external credential flow stores the bearer
	// token.
	TokenFile string `yaml:"token_file"`
	// Source namespaces item IDs in directory names and dataset entries.
	Source string `yaml:"source"`

	// OutputDir is the default sync output root.
	OutputDir string `yaml:"output_dir"`
	// Dataset is the default dataset name; empty disables the export sink.
	Dataset string `yaml:"dataset"`
	// Concurrency bounds in-flight item downloads.
	Concurrency int `yaml:"concurrency"`

	// MaxAttempts is the per-item retry ceiling (including the first try).
	MaxAttempts int `yaml:"max_attempts"`
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// LogFile receives the JSON log stream (rotated). Empty disables it.
	LogFile string `yaml:"log_file"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		TokenFile:    filepath.Join(home, ".config", "recsync", "token"),
		Source:       "recorder",
		OutputDir:    filepath.Join(home, "recordings"),
		Dataset:      "recordings",
		Concurrency:  3,
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		LogFile:      filepath.Join(home, ".local", "state", "recsync", "recsync.log"),
		LogLevel:     "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "recsync", "config.yaml")
}

// Load reads configuration from the YAML file at path (optional) and
// applies RECSYNC_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Config file is optional.
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.loadFromEnv()
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	setString(&c.APIBaseURL, "RECSYNC_API_BASE_URL")
	setString(&c.TokenFile, "RECSYNC_TOKEN_FILE")
	setString(&c.Source, "RECSYNC_SOURCE")
	setString(&c.OutputDir, "RECSYNC_OUTPUT_DIR")
	setString(&c.Dataset, "RECSYNC_DATASET")
	setInt(&c.Concurrency, "RECSYNC_CONCURRENCY")
	setInt(&c.MaxAttempts, "RECSYNC_MAX_ATTEMPTS")
	setDuration(&c.InitialDelay, "RECSYNC_INITIAL_DELAY")
	setString(&c.LogFile, "RECSYNC_LOG_FILE")
	setString(&c.LogLevel, "RECSYNC_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
