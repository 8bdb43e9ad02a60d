package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.ActionRateLimitPerMinute = 60

	// LLM defaults
	cfg.LLM.Enabled = false
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.Temperature = 0.2
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.TimeoutSeconds = 60

	// Remediation defaults
	cfg.Remediation.Enabled = true

	// Anomaly detection defaults
	cfg.Anomaly.Threshold = 3.0
	cfg.Anomaly.MinSamples = 5
	cfg.Anomaly.WindowSize = 20

	// Monitor defaults
	cfg.Monitor.SweepIntervalMinutes = 15
	cfg.Monitor.MetricsIntervalSeconds = 60
	cfg.Monitor.LogTail = 100
	cfg.Monitor.StatsBudget = 50
	cfg.Monitor.MaxInsights = 100
	cfg.Monitor.MaxReports = 50

	// Database defaults
	cfg.Database.Path = "/var/lib/harborwatch/harborwatch.db"

	// Retention defaults
	cfg.Retention.ActionDays = 30
	cfg.Retention.AnomalyDays = 7
	cfg.Retention.PurgeIntervalHours = 6

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.AuditLogPath = "logs/audit.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
