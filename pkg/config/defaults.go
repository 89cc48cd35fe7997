package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans are left alone so that "enabled: false" stays false
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminDefaults(&cfg.Admin)
	applyClientsDefaults(&cfg.Clients)

	if len(cfg.Exports) == 0 {
		cfg.Exports = []ExportConfig{{ID: 1, Path: "/export"}}
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.StatsLogInterval == 0 {
		cfg.StatsLogInterval = 5 * time.Minute
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
}

// applyClientsDefaults fills the rate limit options map. Entries are added
// for every key so that generated config files document them all.
func applyClientsDefaults(cfg *ClientsConfig) {
	if cfg.RateLimit == nil {
		cfg.RateLimit = make(map[string]any)
	}
	if _, ok := cfg.RateLimit["enabled"]; !ok {
		cfg.RateLimit["enabled"] = false
	}
	if _, ok := cfg.RateLimit["requests"]; !ok {
		cfg.RateLimit["requests"] = 1000
	}
	if _, ok := cfg.RateLimit["per"]; !ok {
		cfg.RateLimit["per"] = "1s"
	}
	if _, ok := cfg.RateLimit["burst"]; !ok {
		cfg.RateLimit["burst"] = 2000
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: false},
		Admin:   AdminConfig{Enabled: true},
	}

	ApplyDefaults(cfg)
	return cfg
}
