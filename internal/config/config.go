// Package config loads and validates service configuration.
//
// Configuration sources (priority order, high to low):
//  1. Environment variables (HARBORWATCH_* prefix)
//  2. YAML config file (default: /etc/harborwatch/config.yaml)
//  3. Built-in defaults
package config

import (
	"context"
	"time"
)

// EnvironmentConfig describes one Portainer-compatible environment to
// monitor.
type EnvironmentConfig struct {
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// Config contains all configuration fields.
type Config struct {
	// Server configuration
	Server struct {
		Port int
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
		// ActionRateLimitPerMinute caps remediation API calls per client.
		// Zero disables rate limiting.
		ActionRateLimitPerMinute int
	}

	// Environments lists the container management APIs to monitor.
	Environments []EnvironmentConfig

	// LLM provider configuration. When disabled or unreachable the
	// monitor falls back to rule-based insight generation.
	LLM struct {
		Enabled        bool
		Provider       string
		BaseURL        string
		APIKey         string
		Model          string
		Temperature    float64
		MaxTokens      int
		TimeoutSeconds int
	}

	// Remediation configuration
	Remediation struct {
		// Enabled gates suggestion of new remediation actions. Disabling
		// stops new suggestions; actions already filed can still be
		// approved, rejected, and executed.
		Enabled bool
	}

	// Anomaly detection configuration
	Anomaly struct {
		Threshold  float64
		MinSamples int
		WindowSize int
	}

	// Monitor configuration
	Monitor struct {
		SweepIntervalMinutes   int
		MetricsIntervalSeconds int
		LogTail                int
		StatsBudget            int
		MaxInsights            int
		MaxReports             int
	}

	// Database configuration
	Database struct {
		Path string
	}

	// Retention configuration
	Retention struct {
		ActionDays         int
		AnomalyDays        int
		PurgeIntervalHours int
	}

	// Logging configuration
	Logging struct {
		Level        string
		Format       string
		AppLogPath   string
		AuditLogPath string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// SweepInterval returns the monitoring sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Monitor.SweepIntervalMinutes) * time.Minute
}

// MetricsInterval returns the metric collection interval.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Monitor.MetricsIntervalSeconds) * time.Second
}

// PurgeInterval returns how often old records are purged.
func (c *Config) PurgeInterval() time.Duration {
	return time.Duration(c.Retention.PurgeIntervalHours) * time.Hour
}

// ActionRetention returns how long terminal actions are kept.
func (c *Config) ActionRetention() time.Duration {
	return time.Duration(c.Retention.ActionDays) * 24 * time.Hour
}

// AnomalyRetention returns how long anomaly records are kept.
func (c *Config) AnomalyRetention() time.Duration {
	return time.Duration(c.Retention.AnomalyDays) * 24 * time.Hour
}

// LLMTimeout returns the per-request LLM timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/harborwatch/config.yaml")
}
