package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("HARBORWATCH")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults plus env vars are enough to run.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// use defaults
		} else if os.IsNotExist(err) {
			// use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()
		select {
		case m.watchChan <- *m.config:
		default:
			// channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.action_rate_limit_per_minute", defaults.Server.ActionRateLimitPerMinute)

	// LLM defaults
	m.viper.SetDefault("llm.enabled", defaults.LLM.Enabled)
	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	m.viper.SetDefault("llm.model", defaults.LLM.Model)
	m.viper.SetDefault("llm.temperature", defaults.LLM.Temperature)
	m.viper.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)
	m.viper.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)

	// Remediation defaults
	m.viper.SetDefault("remediation.enabled", defaults.Remediation.Enabled)

	// Anomaly defaults
	m.viper.SetDefault("anomaly.threshold", defaults.Anomaly.Threshold)
	m.viper.SetDefault("anomaly.min_samples", defaults.Anomaly.MinSamples)
	m.viper.SetDefault("anomaly.window_size", defaults.Anomaly.WindowSize)

	// Monitor defaults
	m.viper.SetDefault("monitor.sweep_interval_minutes", defaults.Monitor.SweepIntervalMinutes)
	m.viper.SetDefault("monitor.metrics_interval_seconds", defaults.Monitor.MetricsIntervalSeconds)
	m.viper.SetDefault("monitor.log_tail", defaults.Monitor.LogTail)
	m.viper.SetDefault("monitor.stats_budget", defaults.Monitor.StatsBudget)
	m.viper.SetDefault("monitor.max_insights", defaults.Monitor.MaxInsights)
	m.viper.SetDefault("monitor.max_reports", defaults.Monitor.MaxReports)

	// Database defaults
	m.viper.SetDefault("database.path", defaults.Database.Path)

	// Retention defaults
	m.viper.SetDefault("retention.action_days", defaults.Retention.ActionDays)
	m.viper.SetDefault("retention.anomaly_days", defaults.Retention.AnomalyDays)
	m.viper.SetDefault("retention.purge_interval_hours", defaults.Retention.PurgeIntervalHours)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.ActionRateLimitPerMinute = m.viper.GetInt("server.action_rate_limit_per_minute")

	// Environments
	if err := m.viper.UnmarshalKey("environments", &cfg.Environments); err != nil {
		return fmt.Errorf("invalid environments section: %w", err)
	}

	// LLM
	cfg.LLM.Enabled = m.viper.GetBool("llm.enabled")
	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.BaseURL = m.viper.GetString("llm.base_url")
	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.Temperature = m.viper.GetFloat64("llm.temperature")
	cfg.LLM.MaxTokens = m.viper.GetInt("llm.max_tokens")
	cfg.LLM.TimeoutSeconds = m.viper.GetInt("llm.timeout_seconds")

	// Remediation
	cfg.Remediation.Enabled = m.viper.GetBool("remediation.enabled")

	// Anomaly
	cfg.Anomaly.Threshold = m.viper.GetFloat64("anomaly.threshold")
	cfg.Anomaly.MinSamples = m.viper.GetInt("anomaly.min_samples")
	cfg.Anomaly.WindowSize = m.viper.GetInt("anomaly.window_size")

	// Monitor
	cfg.Monitor.SweepIntervalMinutes = m.viper.GetInt("monitor.sweep_interval_minutes")
	cfg.Monitor.MetricsIntervalSeconds = m.viper.GetInt("monitor.metrics_interval_seconds")
	cfg.Monitor.LogTail = m.viper.GetInt("monitor.log_tail")
	cfg.Monitor.StatsBudget = m.viper.GetInt("monitor.stats_budget")
	cfg.Monitor.MaxInsights = m.viper.GetInt("monitor.max_insights")
	cfg.Monitor.MaxReports = m.viper.GetInt("monitor.max_reports")

	// Database
	cfg.Database.Path = m.viper.GetString("database.path")

	// Retention
	cfg.Retention.ActionDays = m.viper.GetInt("retention.action_days")
	cfg.Retention.AnomalyDays = m.viper.GetInt("retention.anomaly_days")
	cfg.Retention.PurgeIntervalHours = m.viper.GetInt("retention.purge_interval_hours")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// LLM API key from environment
	if apiKey := os.Getenv("HARBORWATCH_LLM_API_KEY"); apiKey != "" {
		m.config.LLM.APIKey = apiKey
	} else if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		m.config.LLM.APIKey = apiKey
	}

	// Single-environment API key from environment. With multiple
	// environments configured, keys must come from the config file.
	if apiKey := os.Getenv("PORTAINER_API_KEY"); apiKey != "" && len(m.config.Environments) == 1 {
		m.config.Environments[0].APIKey = apiKey
	}

	// Port from environment
	if portEnv := os.Getenv("HARBORWATCH_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}
}
