package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nautidog/sonarsniffer/pkg/decode"
	"github.com/nautidog/sonarsniffer/pkg/dispatch"
)

// Config represents the SonarSniffer decoder configuration.
type Config struct {
	Decode    Decode  `yaml:"decode"`
	Execution string  `yaml:"execution"` // allow-native | force-reference
	Logging   Logging `yaml:"logging"`
}

// Decode contains the decode-tuning parameters. Scan window and failure
// bound trade recovery yield against runtime on heavily damaged media, so
// they are configurable rather than hard-coded.
type Decode struct {
	Mode                   string `yaml:"mode"` // strict | tolerant
	BufferSize             int    `yaml:"buffer_size"`
	MaxScanWindow          int    `yaml:"max_scan_window"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
}

// Logging contains logging configuration.
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a configuration with conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		Decode: Decode{
			Mode:                   "strict",
			BufferSize:             decode.DefaultBufferSize,
			MaxScanWindow:          decode.DefaultMaxScanWindow,
			MaxConsecutiveFailures: decode.DefaultMaxConsecutiveFailures,
		},
		Execution: "allow-native",
		Logging: Logging{
			Level: "info",
		},
	}
}

// Validate checks that the configured names parse and the numeric knobs are
// sane.
func (c *Config) Validate() error {
	if _, err := decode.ParseMode(c.Decode.Mode); err != nil {
		return err
	}
	if _, err := dispatch.ParseExecutionMode(c.Execution); err != nil {
		return err
	}
	if c.Decode.BufferSize < 0 || c.Decode.MaxScanWindow < 0 || c.Decode.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("config: decode tuning values must be non-negative")
	}
	return nil
}

// Options builds decode options from the configuration.
func (c *Config) Options() (decode.Options, error) {
	mode, err := decode.ParseMode(c.Decode.Mode)
	if err != nil {
		return decode.Options{}, err
	}
	return decode.Options{
		Mode:                   mode,
		BufferSize:             c.Decode.BufferSize,
		MaxScanWindow:          c.Decode.MaxScanWindow,
		MaxConsecutiveFailures: c.Decode.MaxConsecutiveFailures,
	}, nil
}

// ExecutionMode returns the configured dispatcher execution mode.
func (c *Config) ExecutionMode() (dispatch.ExecutionMode, error) {
	return dispatch.ParseExecutionMode(c.Execution)
}

// LoadConfig loads configuration from the specified path.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path.
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default configuration path for the
// current platform.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./sonarsniffer.yaml"
	}
	configDir := filepath.Join(homeDir, ".config", "sonarsniffer")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists.
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
