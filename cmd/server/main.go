// Package main is the entry point for the harborwatch monitoring server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite store and run schema migrations
//   - Build one API client per configured container environment
//   - Wire the collector, monitor, anomaly detector, and remediation services
//   - Start the HTTP API, the WebSocket event stream, and the schedules
//   - Implement graceful shutdown with context cancellation
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/analytics/anomaly"
	"github.com/harborwatch/harborwatch-monitor/internal/audit"
	"github.com/harborwatch/harborwatch-monitor/internal/collector"
	"github.com/harborwatch/harborwatch-monitor/internal/config"
	"github.com/harborwatch/harborwatch-monitor/internal/db"
	"github.com/harborwatch/harborwatch-monitor/internal/insights"
	"github.com/harborwatch/harborwatch-monitor/internal/llm"
	"github.com/harborwatch/harborwatch-monitor/internal/monitor"
	"github.com/harborwatch/harborwatch-monitor/internal/portainer"
	"github.com/harborwatch/harborwatch-monitor/internal/remediation"
	"github.com/harborwatch/harborwatch-monitor/internal/server"
)

func main() {
	configPath := flag.String("config", "/etc/harborwatch/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	// Configuration
	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}
	cfg := mgr.Get(ctx)

	// Logging
	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	defer func() { _ = auditLog.Close() }()

	// Persistence
	store, err := db.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Environment clients
	environments := make([]portainer.Environment, 0, len(cfg.Environments))
	for _, env := range cfg.Environments {
		httpClient := portainer.NewHTTPClient(portainer.HTTPConfig{
			Name:    env.Name,
			BaseURL: env.URL,
			APIKey:  env.APIKey,
		}, logger)
		environments = append(environments, portainer.Environment{
			Name:   env.Name,
			Client: portainer.NewCachedClient(httpClient, portainer.DefaultEndpointTTL),
		})
	}

	// Pipeline components
	insightStore := insights.NewStore(cfg.Monitor.MaxInsights, cfg.Monitor.MaxReports, logger)
	hub := server.NewHub(cfg.Server.AllowedOrigins, logger)

	remediationSvc := remediation.NewService(remediation.Config{
		Enabled: cfg.Remediation.Enabled,
	}, store, environments, auditLog, logger, hub.Broadcast)

	coll := collector.New(environments, collector.Config{
		LogTail:     cfg.Monitor.LogTail,
		StatsBudget: cfg.Monitor.StatsBudget,
	}, logger)

	llmClient := llm.NewClient(llm.Config{
		Enabled:     cfg.LLM.Enabled,
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLMTimeout(),
	}, logger)

	monitorSvc := monitor.NewService(coll, llmClient, insightStore, remediationSvc, logger)

	detector := anomaly.NewDetector(anomaly.Config{
		Threshold:  cfg.Anomaly.Threshold,
		MinSamples: cfg.Anomaly.MinSamples,
		WindowSize: cfg.Anomaly.WindowSize,
	}, store, logger)

	scheduler := server.NewScheduler(cfg, monitorSvc, coll, detector, store, auditLog, hub.Broadcast, logger)

	srv, err := server.New(cfg, server.Deps{
		Store:       store,
		Monitor:     monitorSvc,
		Remediation: remediationSvc,
		Insights:    insightStore,
		Collector:   coll,
		Scheduler:   scheduler,
		Hub:         hub,
		Audit:       auditLog,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Log config file edits while running; changed settings need a restart.
	go func() {
		for range mgr.Watch(ctx) {
			logger.Info("configuration file changed, restart to apply")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("received shutdown signal")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("error stopping server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildLogger creates the application logger from the logging config.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Logging.Format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	return zapCfg.Build()
}
