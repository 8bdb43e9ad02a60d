package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environments = []EnvironmentConfig{
		{Name: "prod", URL: "https://portainer.example.com:9443", APIKey: "ptr_key"},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Server defaults
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)

	// LLM defaults
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, 60, cfg.LLM.TimeoutSeconds)

	// Anomaly defaults
	assert.Equal(t, 3.0, cfg.Anomaly.Threshold)
	assert.Equal(t, 5, cfg.Anomaly.MinSamples)
	assert.Equal(t, 20, cfg.Anomaly.WindowSize)

	// Monitor defaults
	assert.Equal(t, 15, cfg.Monitor.SweepIntervalMinutes)
	assert.Equal(t, 60, cfg.Monitor.MetricsIntervalSeconds)
	assert.Equal(t, 100, cfg.Monitor.LogTail)

	// Database defaults
	assert.NotEmpty(t, cfg.Database.Path)

	// Remediation suggestions are on unless switched off.
	assert.True(t, cfg.Remediation.Enabled)

	// Retention defaults
	assert.Equal(t, 30, cfg.Retention.ActionDays)
	assert.Equal(t, 7, cfg.Retention.AnomalyDays)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "invalid port - too low",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 0
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "invalid port - too high",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 70000
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "negative rate limit",
			modifyFn: func(cfg *Config) {
				cfg.Server.ActionRateLimitPerMinute = -1
			},
			wantError: true,
			errorMsg:  "rate limit cannot be negative",
		},
		{
			name: "no environments",
			modifyFn: func(cfg *Config) {
				cfg.Environments = nil
			},
			wantError: true,
			errorMsg:  "at least one environment is required",
		},
		{
			name: "environment missing name",
			modifyFn: func(cfg *Config) {
				cfg.Environments[0].Name = ""
			},
			wantError: true,
			errorMsg:  "environment name is required",
		},
		{
			name: "duplicate environment names",
			modifyFn: func(cfg *Config) {
				cfg.Environments = append(cfg.Environments, cfg.Environments[0])
			},
			wantError: true,
			errorMsg:  "duplicate environment name",
		},
		{
			name: "environment URL without scheme",
			modifyFn: func(cfg *Config) {
				cfg.Environments[0].URL = "portainer.example.com"
			},
			wantError: true,
			errorMsg:  "invalid URL",
		},
		{
			name: "environment missing api key",
			modifyFn: func(cfg *Config) {
				cfg.Environments[0].APIKey = ""
			},
			wantError: true,
			errorMsg:  "environment API key is required",
		},
		{
			name: "llm enabled without model",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Enabled = true
				cfg.LLM.Model = ""
			},
			wantError: true,
			errorMsg:  "model is required when llm is enabled",
		},
		{
			name: "llm disabled needs nothing",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Enabled = false
				cfg.LLM.Model = ""
				cfg.LLM.BaseURL = ""
			},
			wantError: false,
		},
		{
			name: "negative anomaly threshold",
			modifyFn: func(cfg *Config) {
				cfg.Anomaly.Threshold = -1
			},
			wantError: true,
			errorMsg:  "threshold must be positive",
		},
		{
			name: "window smaller than min samples",
			modifyFn: func(cfg *Config) {
				cfg.Anomaly.WindowSize = 3
			},
			wantError: true,
			errorMsg:  "must be at least min_samples",
		},
		{
			name: "sweep interval too small",
			modifyFn: func(cfg *Config) {
				cfg.Monitor.SweepIntervalMinutes = 0
			},
			wantError: true,
			errorMsg:  "sweep interval must be at least 1 minute",
		},
		{
			name: "missing database path",
			modifyFn: func(cfg *Config) {
				cfg.Database.Path = ""
			},
			wantError: true,
			errorMsg:  "database path is required",
		},
		{
			name: "invalid log level",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Level = "verbose"
			},
			wantError: true,
			errorMsg:  "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()
			if tt.wantError {
				require.NotEmpty(t, errs)
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected error containing %q, got %v", tt.errorMsg, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yaml := `
server:
  port: 9090
environments:
  - name: prod
    url: https://portainer.example.com:9443
    api_key: ptr_prod_key
  - name: staging
    url: http://staging.internal:9000
    api_key: ptr_staging_key
llm:
  enabled: true
  model: gpt-4o
anomaly:
  threshold: 2.5
monitor:
  sweep_interval_minutes: 5
remediation:
  enabled: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 9090, cfg.Server.Port)
	require.Len(t, cfg.Environments, 2)
	assert.Equal(t, "prod", cfg.Environments[0].Name)
	assert.Equal(t, "ptr_staging_key", cfg.Environments[1].APIKey)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 2.5, cfg.Anomaly.Threshold)
	assert.Equal(t, 5, cfg.Monitor.SweepIntervalMinutes)
	assert.False(t, cfg.Remediation.Enabled)

	// Values absent from the file keep their defaults.
	assert.Equal(t, 20, cfg.Anomaly.WindowSize)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, mgr.Validate(context.Background()))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Environments)

	// Defaults alone fail validation: no environments configured.
	assert.Error(t, mgr.Validate(context.Background()))
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	yaml := `
environments:
  - name: prod
    url: https://portainer.example.com
`
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))

	t.Setenv("PORTAINER_API_KEY", "env-ptr-key")
	t.Setenv("HARBORWATCH_LLM_API_KEY", "env-llm-key")

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, "env-ptr-key", cfg.Environments[0].APIKey)
	assert.Equal(t, "env-llm-key", cfg.LLM.APIKey)
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, 15*time.Minute, cfg.SweepInterval())
	assert.Equal(t, time.Minute, cfg.MetricsInterval())
	assert.Equal(t, 6*time.Hour, cfg.PurgeInterval())
	assert.Equal(t, 30*24*time.Hour, cfg.ActionRetention())
	assert.Equal(t, 7*24*time.Hour, cfg.AnomalyRetention())
	assert.Equal(t, time.Minute, cfg.LLMTimeout())
}
