package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete dittoreg configuration.
//
// This structure captures all configurable aspects of the registry server:
//   - Logging configuration
//   - Server-wide settings (shutdown, periodic summary)
//   - Metrics and admin HTTP endpoints
//   - Client admission (per-client rate limiting)
//   - Export definitions seeded into the export registry at startup
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOREG_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin configures the admin HTTP API
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Clients configures client admission
	Clients ClientsConfig `mapstructure:"clients" yaml:"clients"`

	// Exports lists the exports known at startup
	Exports []ExportConfig `mapstructure:"exports" yaml:"exports" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// StatsLogInterval is how often a registry summary is logged
	StatsLogInterval time.Duration `mapstructure:"stats_log_interval" yaml:"stats_log_interval" validate:"required,gt=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection and the /metrics endpoint on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port for the metrics HTTP server
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	// Enabled turns the admin API on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port for the admin HTTP server
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// ClientsConfig configures client admission.
type ClientsConfig struct {
	// RateLimit holds the per-client throttle options, decoded by
	// RateLimitOptions. Keys: enabled, requests, per, burst.
	RateLimit map[string]any `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ExportConfig defines a single export.
type ExportConfig struct {
	// ID is the export id carried in file handles
	ID uint16 `mapstructure:"id" yaml:"id"`

	// Path is the exported path (e.g., "/export")
	Path string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOREG_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOREG_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only overrides keys viper already knows about.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.shutdown_timeout", "server.stats_log_interval",
		"metrics.enabled", "metrics.port",
		"admin.enabled", "admin.port",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/dittoreg/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Defaults only
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoreg")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoreg")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
