// Package config handles workspace configuration for uibridge.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// DeviceConfig is the path to the INI device configuration file.
	DeviceConfig string `yaml:"deviceConfig"`

	// DefaultDevice selects the device index used when a command does
	// not name one.
	DefaultDevice int `yaml:"defaultDevice"`

	// ScreenshotDir is where screenshot commands write their output.
	ScreenshotDir string `yaml:"screenshotDir"`

	// Logging settings
	LogLevel string `yaml:"logLevel"` // debug, info, warn, error
	LogFile  string `yaml:"logFile"`  // empty disables the file core
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return empty config
	return &Config{}, nil
}
