package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.ActionRateLimitPerMinute < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.action_rate_limit_per_minute",
			Message: fmt.Sprintf("rate limit cannot be negative, got %d", c.Server.ActionRateLimitPerMinute),
		})
	}

	// Validate environments
	if len(c.Environments) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "environments",
			Message: "at least one environment is required",
		})
	}
	seen := make(map[string]bool, len(c.Environments))
	for i, env := range c.Environments {
		field := fmt.Sprintf("environments[%d]", i)
		if env.Name == "" {
			errs = append(errs, &ValidationError{
				Field:   field + ".name",
				Message: "environment name is required",
			})
		} else if seen[env.Name] {
			errs = append(errs, &ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate environment name '%s'", env.Name),
			})
		}
		seen[env.Name] = true

		if env.URL == "" {
			errs = append(errs, &ValidationError{
				Field:   field + ".url",
				Message: "environment URL is required",
			})
		} else if u, err := url.Parse(env.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   field + ".url",
				Message: fmt.Sprintf("invalid URL '%s' (expected http(s)://host[:port])", env.URL),
			})
		}

		if env.APIKey == "" {
			errs = append(errs, &ValidationError{
				Field:   field + ".api_key",
				Message: "environment API key is required",
			})
		}
	}

	// Validate LLM configuration. The monitor runs in rule-based fallback
	// mode when disabled, so nothing is required then.
	if c.LLM.Enabled {
		if c.LLM.Provider == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.provider",
				Message: "provider is required when llm is enabled",
			})
		}
		if c.LLM.BaseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.base_url",
				Message: "base_url is required when llm is enabled",
			})
		}
		if c.LLM.Model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.model",
				Message: "model is required when llm is enabled",
			})
		}
		if c.LLM.TimeoutSeconds < 1 {
			errs = append(errs, &ValidationError{
				Field:   "llm.timeout_seconds",
				Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.LLM.TimeoutSeconds),
			})
		}
	}

	// Validate anomaly detection configuration
	if c.Anomaly.Threshold <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.threshold",
			Message: fmt.Sprintf("threshold must be positive, got %g", c.Anomaly.Threshold),
		})
	}
	if c.Anomaly.MinSamples < 2 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.min_samples",
			Message: fmt.Sprintf("min_samples must be at least 2, got %d", c.Anomaly.MinSamples),
		})
	}
	if c.Anomaly.WindowSize < c.Anomaly.MinSamples {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.window_size",
			Message: fmt.Sprintf("window_size (%d) must be at least min_samples (%d)", c.Anomaly.WindowSize, c.Anomaly.MinSamples),
		})
	}

	// Validate monitor configuration
	if c.Monitor.SweepIntervalMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "monitor.sweep_interval_minutes",
			Message: fmt.Sprintf("sweep interval must be at least 1 minute, got %d", c.Monitor.SweepIntervalMinutes),
		})
	}
	if c.Monitor.MetricsIntervalSeconds < 5 {
		errs = append(errs, &ValidationError{
			Field:   "monitor.metrics_interval_seconds",
			Message: fmt.Sprintf("metrics interval must be at least 5 seconds, got %d", c.Monitor.MetricsIntervalSeconds),
		})
	}
	if c.Monitor.LogTail < 1 {
		errs = append(errs, &ValidationError{
			Field:   "monitor.log_tail",
			Message: fmt.Sprintf("log_tail must be at least 1, got %d", c.Monitor.LogTail),
		})
	}
	if c.Monitor.StatsBudget < 0 {
		errs = append(errs, &ValidationError{
			Field:   "monitor.stats_budget",
			Message: fmt.Sprintf("stats_budget cannot be negative, got %d", c.Monitor.StatsBudget),
		})
	}
	if c.Monitor.MaxInsights < 1 {
		errs = append(errs, &ValidationError{
			Field:   "monitor.max_insights",
			Message: fmt.Sprintf("max_insights must be at least 1, got %d", c.Monitor.MaxInsights),
		})
	}
	if c.Monitor.MaxReports < 1 {
		errs = append(errs, &ValidationError{
			Field:   "monitor.max_reports",
			Message: fmt.Sprintf("max_reports must be at least 1, got %d", c.Monitor.MaxReports),
		})
	}

	// Validate database configuration
	if c.Database.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.path",
			Message: "database path is required",
		})
	}

	// Validate retention configuration
	if c.Retention.ActionDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retention.action_days",
			Message: fmt.Sprintf("action retention must be at least 1 day, got %d", c.Retention.ActionDays),
		})
	}
	if c.Retention.AnomalyDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retention.anomaly_days",
			Message: fmt.Sprintf("anomaly retention must be at least 1 day, got %d", c.Retention.AnomalyDays),
		})
	}
	if c.Retention.PurgeIntervalHours < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retention.purge_interval_hours",
			Message: fmt.Sprintf("purge interval must be at least 1 hour, got %d", c.Retention.PurgeIntervalHours),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	return errs
}
