package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogAction logs remediation action lifecycle events
	LogActionSuggested(ctx context.Context, action *models.RemediationAction) error
	LogActionApproved(ctx context.Context, action *models.RemediationAction, approver string) error
	LogActionRejected(ctx context.Context, action *models.RemediationAction, rejecter string) error
	LogActionExecuted(ctx context.Context, action *models.RemediationAction, result *models.ExecutionResult) error

	// LogSweepCompleted logs a completed monitoring sweep
	LogSweepCompleted(ctx context.Context, report *models.MonitoringReport) error

	// LogAnomalyDetected logs a detected metric anomaly
	LogAnomalyDetected(ctx context.Context, anomaly *models.AnomalyResult) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogActionSuggested logs when a remediation action is suggested
func (l *auditLogger) LogActionSuggested(ctx context.Context, action *models.RemediationAction) error {
	event := NewEvent(EventActionSuggested).
		WithCorrelationID(action.ID).
		WithAction(string(action.ActionType)).
		WithResource(action.ContainerName, "container").
		WithResult(ResultPending).
		WithMetadata("insight_id", action.InsightID).
		WithDescription(fmt.Sprintf("Action %s suggested for container %s", action.ActionType, action.ContainerName))

	return l.Log(ctx, event)
}

// LogActionApproved logs when an action is approved
func (l *auditLogger) LogActionApproved(ctx context.Context, action *models.RemediationAction, approver string) error {
	event := NewEvent(EventActionApproved).
		WithCorrelationID(action.ID).
		WithAction(string(action.ActionType)).
		WithResource(action.ContainerName, "container").
		WithUser(approver).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Action %s approved for container %s by %s", action.ActionType, action.ContainerName, approver))

	return l.Log(ctx, event)
}

// LogActionRejected logs when an action is rejected
func (l *auditLogger) LogActionRejected(ctx context.Context, action *models.RemediationAction, rejecter string) error {
	event := NewEvent(EventActionRejected).
		WithCorrelationID(action.ID).
		WithAction(string(action.ActionType)).
		WithResource(action.ContainerName, "container").
		WithUser(rejecter).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Action %s rejected for container %s by %s", action.ActionType, action.ContainerName, rejecter))
	if action.RejectionReason != "" {
		event = event.WithMetadata("reason", action.RejectionReason)
	}

	return l.Log(ctx, event)
}

// LogActionExecuted logs the outcome of an action execution
func (l *auditLogger) LogActionExecuted(ctx context.Context, action *models.RemediationAction, result *models.ExecutionResult) error {
	eventType := EventActionExecuted
	outcome := ResultSuccess
	if !result.Success {
		eventType = EventActionFailed
		outcome = ResultFailure
	}

	event := NewEvent(eventType).
		WithCorrelationID(action.ID).
		WithAction(string(action.ActionType)).
		WithResource(action.ContainerName, "container").
		WithResult(outcome).
		WithDescription(result.Message).
		WithError(result.Error)

	return l.Log(ctx, event)
}

// LogSweepCompleted logs a completed monitoring sweep
func (l *auditLogger) LogSweepCompleted(ctx context.Context, report *models.MonitoringReport) error {
	event := NewEvent(EventSweepCompleted).
		WithCorrelationID(report.ID).
		WithResult(ResultSuccess).
		WithMetadata("insights", len(report.Insights)).
		WithMetadata("llm_used", report.LLMUsed).
		WithDescription(report.Summary)

	return l.Log(ctx, event)
}

// LogAnomalyDetected logs a detected metric anomaly
func (l *auditLogger) LogAnomalyDetected(ctx context.Context, anomaly *models.AnomalyResult) error {
	event := NewEvent(EventAnomalyDetected).
		WithCorrelationID(anomaly.ID).
		WithResource(anomaly.ContainerName, "container").
		WithResult(ResultSuccess).
		WithMetadata("metric_type", string(anomaly.MetricType)).
		WithMetadata("zscore", anomaly.ZScore).
		WithMetadata("direction", string(anomaly.Direction)).
		WithDescription(fmt.Sprintf("Anomaly on %s: %s %.2f (expected %.2f)",
			anomaly.ContainerName, anomaly.MetricType, anomaly.CurrentValue, anomaly.ExpectedValue))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}
