package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sidero/internal/logging"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const APP_NAME = "sidero" // application name used for config directory

// Environment variables recognized at startup. The environment always wins
// over the config file so MCP client configs can set everything inline.
const (
	EnvAppToken    = "SEMGREP_APP_TOKEN"
	EnvSemgrepPath = "SIDERO_SEMGREP_PATH"
	EnvScanTimeout = "SIDERO_SCAN_TIMEOUT"
	EnvMaxScans    = "SIDERO_MAX_SCANS"
	EnvAPIBaseURL  = "SEMGREP_API_URL"
)

// Config holds server configuration for sidero.
type Config struct {
	// SemgrepPath is the semgrep executable, resolved on PATH when relative.
	SemgrepPath string `yaml:"semgrep_path"`
	// ScanTimeout is the wall-clock limit for a single engine invocation.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	// MaxConcurrentScans bounds subprocess fan-out. 0 means unbounded.
	MaxConcurrentScans int `yaml:"max_concurrent_scans"`
	// APIBaseURL is the Semgrep platform endpoint for the findings tool.
	APIBaseURL string `yaml:"api_base_url"`
}

// ConfigPath returns the standard config file path for the current platform
func ConfigPath() (string, error) {
	configDir := filepath.Join(xdg.ConfigHome, APP_NAME)
	configPath := filepath.Join(configDir, "config.yaml")

	logging.Debug("Determined config path", "path", configPath)
	return configPath, nil
}

// Load assembles the effective configuration: defaults, overlaid by the
// config file when one exists, overlaid by the environment. A missing config
// file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, exists := FindConfigFile()
	if exists {
		fileCfg, err := LoadFrom(path)
		if err != nil {
			return nil, err
		}
		cfg.merge(fileCfg)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFrom loads config from a specific path
func LoadFrom(path string) (*Config, error) {
	logging.Debug("Reading config file", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// FindConfigFile returns the path to an existing config file, and whether it exists.
func FindConfigFile() (string, bool) {
	primary, err := ConfigPath()
	if err != nil {
		logging.Error("Failed to get config path", "error", err)
		return "", false
	}

	if _, err := os.Stat(primary); err == nil {
		logging.Debug("Config found at primary path", "path", primary)
		return primary, true
	}

	return primary, false
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SemgrepPath:        "semgrep",
		ScanTimeout:        5 * time.Minute,
		MaxConcurrentScans: 0,
		APIBaseURL:         "https://semgrep.dev",
	}
}

// merge overlays non-zero fields from other onto c.
func (c *Config) merge(other *Config) {
	if other.SemgrepPath != "" {
		c.SemgrepPath = other.SemgrepPath
	}
	if other.ScanTimeout > 0 {
		c.ScanTimeout = other.ScanTimeout
	}
	if other.MaxConcurrentScans > 0 {
		c.MaxConcurrentScans = other.MaxConcurrentScans
	}
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
}

// applyEnv overlays recognized environment variables onto c.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvSemgrepPath); v != "" {
		c.SemgrepPath = v
	}
	if v := os.Getenv(EnvScanTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvScanTimeout, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", EnvScanTimeout, v)
		}
		c.ScanTimeout = d
	}
	if v := os.Getenv(EnvMaxScans); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s %q: expected a non-negative integer", EnvMaxScans, v)
		}
		c.MaxConcurrentScans = n
	}
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		c.APIBaseURL = v
	}
	return nil
}

// SaveTo writes the config to a specific path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Restrictive permissions: the file can sit next to credential material.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	defer enc.Close()

	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
