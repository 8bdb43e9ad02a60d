package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

func newTestLogger(t *testing.T) (Logger, string) {
	t.Helper()
	tmpDir := t.TempDir()
	auditPath := filepath.Join(tmpDir, "audit.log")

	logger, err := NewLogger(&Config{
		AuditLogPath: auditPath,
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		LogLevel:     "info",
	})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, auditPath
}

func readAuditLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func testAction() *models.RemediationAction {
	return &models.RemediationAction{
		ID:            "act-001",
		InsightID:     "ins-001",
		ActionType:    models.ActionRestartContainer,
		ContainerName: "web",
	}
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := NewLogger(&Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "invalid",
	})
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected 'invalid log level' error, got: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/audit.log" {
		t.Errorf("Expected audit log path 'logs/audit.log', got %s", config.AuditLogPath)
	}
	if config.MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", config.MaxSize)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %s", config.LogLevel)
	}
}

func TestActionLifecycleEvents(t *testing.T) {
	logger, auditPath := newTestLogger(t)
	ctx := context.Background()
	action := testAction()

	if err := logger.LogActionSuggested(ctx, action); err != nil {
		t.Fatalf("LogActionSuggested: %v", err)
	}
	if err := logger.LogActionApproved(ctx, action, "operator"); err != nil {
		t.Fatalf("LogActionApproved: %v", err)
	}
	if err := logger.LogActionExecuted(ctx, action, &models.ExecutionResult{
		ActionID: action.ID,
		Success:  true,
		Message:  "Successfully executed restart_container",
	}); err != nil {
		t.Fatalf("LogActionExecuted: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	lines := readAuditLines(t, auditPath)
	if len(lines) != 3 {
		t.Fatalf("expected 3 audit lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], string(EventActionSuggested)) {
		t.Errorf("expected suggested event first, got: %s", lines[0])
	}
	if !strings.Contains(lines[1], "operator") {
		t.Errorf("expected approver in approval event, got: %s", lines[1])
	}
	if !strings.Contains(lines[2], string(EventActionExecuted)) {
		t.Errorf("expected executed event, got: %s", lines[2])
	}
}

func TestRejectionEventRecordsRejecter(t *testing.T) {
	logger, auditPath := newTestLogger(t)

	action := testAction()
	action.RejectionReason = "container is draining"
	if err := logger.LogActionRejected(context.Background(), action, "operator"); err != nil {
		t.Fatalf("LogActionRejected: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	lines := readAuditLines(t, auditPath)
	if len(lines) != 1 {
		t.Fatalf("expected 1 audit line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], string(EventActionRejected)) {
		t.Errorf("expected rejected event type, got: %s", lines[0])
	}
	if !strings.Contains(lines[0], "operator") {
		t.Errorf("expected rejecter in event, got: %s", lines[0])
	}
	if !strings.Contains(lines[0], "container is draining") {
		t.Errorf("expected rejection reason in event, got: %s", lines[0])
	}
}

func TestFailedExecutionLogsFailureEvent(t *testing.T) {
	logger, auditPath := newTestLogger(t)

	err := logger.LogActionExecuted(context.Background(), testAction(), &models.ExecutionResult{
		ActionID: "act-001",
		Success:  false,
		Message:  "Execution failed",
		Error:    "endpoint not found",
	})
	if err != nil {
		t.Fatalf("LogActionExecuted: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	lines := readAuditLines(t, auditPath)
	if len(lines) != 1 {
		t.Fatalf("expected 1 audit line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], string(EventActionFailed)) {
		t.Errorf("expected failed event type, got: %s", lines[0])
	}
	if !strings.Contains(lines[0], "endpoint not found") {
		t.Errorf("expected error message in event, got: %s", lines[0])
	}
}

func TestEventBuilderSerialization(t *testing.T) {
	event := NewEvent(EventAnomalyDetected).
		WithCorrelationID("an-001").
		WithResource("web", "container").
		WithMetadata("zscore", 38.8).
		WithDescription("Anomaly on web")

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if decoded["event_type"] != string(EventAnomalyDetected) {
		t.Errorf("unexpected event_type: %v", decoded["event_type"])
	}
	if decoded["correlation_id"] != "an-001" {
		t.Errorf("unexpected correlation_id: %v", decoded["correlation_id"])
	}
}

func TestWithErrorMarksFailure(t *testing.T) {
	event := NewEvent(EventActionExecuted).WithError("boom")
	if event.Result != ResultFailure {
		t.Errorf("expected failure result, got %s", event.Result)
	}
	if event.Error != "boom" {
		t.Errorf("expected error recorded, got %q", event.Error)
	}

	clean := NewEvent(EventActionExecuted).WithResult(ResultSuccess).WithError("")
	if clean.Result != ResultSuccess {
		t.Errorf("empty error must not flip result, got %s", clean.Result)
	}
}
