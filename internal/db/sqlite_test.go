package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestAction(id string) *models.RemediationAction {
	return &models.RemediationAction{
		ID:            id,
		InsightID:     "ins-001",
		Title:         "Restart Container: web",
		Description:   "Suggested action based on monitoring insight",
		ActionType:    models.ActionRestartContainer,
		ContainerID:   "abc123",
		ContainerName: "web",
		EndpointID:    1,
		EndpointName:  "local",
		Rationale:     "Container is unhealthy according to health check.",
		Status:        models.StatusPending,
		CreatedAt:     time.Now().UTC().Round(time.Second),
	}
}

// ─── Remediation actions ──────────────────────────────────────────────────────

func TestActionCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	action := newTestAction("act-001")
	if err := s.CreateAction(ctx, action); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	got, err := s.GetAction(ctx, "act-001")
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got == nil {
		t.Fatal("expected action, got nil")
	}
	if got.Status != models.StatusPending {
		t.Errorf("expected pending status, got %s", got.Status)
	}
	if got.ActionType != models.ActionRestartContainer {
		t.Errorf("expected restart_container, got %s", got.ActionType)
	}
	if got.ApprovedAt != nil || got.RejectedAt != nil || got.ExecutedAt != nil {
		t.Error("expected nil lifecycle timestamps on a new action")
	}
}

func TestGetActionMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetAction(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing action, got %+v", got)
	}
}

func TestActionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAction(ctx, newTestAction("act-001")); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	ok, err := s.ApproveAction(ctx, "act-001", "operator")
	if err != nil || !ok {
		t.Fatalf("ApproveAction: ok=%v err=%v", ok, err)
	}

	got, _ := s.GetAction(ctx, "act-001")
	if got.Status != models.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}
	if got.ApprovedBy != "operator" || got.ApprovedAt == nil {
		t.Error("expected approver and approval timestamp recorded")
	}

	ok, err = s.MarkExecuting(ctx, "act-001")
	if err != nil || !ok {
		t.Fatalf("MarkExecuting: ok=%v err=%v", ok, err)
	}

	ok, err = s.MarkExecuted(ctx, "act-001", "Successfully executed restart_container", "")
	if err != nil || !ok {
		t.Fatalf("MarkExecuted: ok=%v err=%v", ok, err)
	}

	got, _ = s.GetAction(ctx, "act-001")
	if got.Status != models.StatusExecuted {
		t.Errorf("expected executed, got %s", got.Status)
	}
	if got.ExecutedAt == nil {
		t.Error("expected executed_at set")
	}
	if got.ExecutionResult != "Successfully executed restart_container" {
		t.Errorf("unexpected execution result %q", got.ExecutionResult)
	}
}

func TestMarkExecutedWithErrorSetsFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAction(ctx, newTestAction("act-001")); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	if ok, _ := s.ApproveAction(ctx, "act-001", "operator"); !ok {
		t.Fatal("approve failed")
	}
	if ok, _ := s.MarkExecuting(ctx, "act-001"); !ok {
		t.Fatal("mark executing failed")
	}

	ok, err := s.MarkExecuted(ctx, "act-001", "Failed", "endpoint not reachable")
	if err != nil || !ok {
		t.Fatalf("MarkExecuted: ok=%v err=%v", ok, err)
	}

	got, _ := s.GetAction(ctx, "act-001")
	if got.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage != "endpoint not reachable" {
		t.Errorf("unexpected error message %q", got.ErrorMessage)
	}
	if got.ExecutedAt == nil {
		t.Error("expected executed_at set on failure too")
	}
}

func TestTransitionGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAction(ctx, newTestAction("act-001")); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	// Executing before approval must refuse.
	if ok, _ := s.MarkExecuting(ctx, "act-001"); ok {
		t.Error("MarkExecuting from pending should refuse")
	}
	// Finalizing before executing must refuse.
	if ok, _ := s.MarkExecuted(ctx, "act-001", "done", ""); ok {
		t.Error("MarkExecuted from pending should refuse")
	}

	if ok, _ := s.ApproveAction(ctx, "act-001", "operator"); !ok {
		t.Fatal("approve failed")
	}

	// Double approval must refuse.
	if ok, _ := s.ApproveAction(ctx, "act-001", "other"); ok {
		t.Error("second ApproveAction should refuse")
	}
	// Rejecting after approval must refuse.
	if ok, _ := s.RejectAction(ctx, "act-001", "operator", "too late"); ok {
		t.Error("RejectAction after approval should refuse")
	}

	got, _ := s.GetAction(ctx, "act-001")
	if got.ApprovedBy != "operator" {
		t.Errorf("approver overwritten: %q", got.ApprovedBy)
	}
}

func TestRejectAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAction(ctx, newTestAction("act-001")); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	ok, err := s.RejectAction(ctx, "act-001", "operator", "container is draining")
	if err != nil || !ok {
		t.Fatalf("RejectAction: ok=%v err=%v", ok, err)
	}

	got, _ := s.GetAction(ctx, "act-001")
	if got.Status != models.StatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
	if got.RejectedBy != "operator" {
		t.Errorf("expected rejecter recorded, got %q", got.RejectedBy)
	}
	if got.RejectionReason != "container is draining" {
		t.Errorf("expected rejection reason recorded, got %q", got.RejectionReason)
	}
	if got.RejectedAt == nil {
		t.Error("expected rejected_at set")
	}
	// Rejected is terminal.
	if ok, _ := s.ApproveAction(ctx, "act-001", "operator"); ok {
		t.Error("ApproveAction after rejection should refuse")
	}
}

func TestListActionsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		action := newTestAction(fmt.Sprintf("act-%03d", i))
		action.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Round(time.Second)
		if err := s.CreateAction(ctx, action); err != nil {
			t.Fatalf("CreateAction: %v", err)
		}
	}
	if ok, _ := s.ApproveAction(ctx, "act-001", "operator"); !ok {
		t.Fatal("approve failed")
	}

	pending, err := s.ListActionsByStatus(ctx, models.StatusPending)
	if err != nil {
		t.Fatalf("ListActionsByStatus: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	// Newest first.
	if pending[0].ID != "act-002" {
		t.Errorf("expected act-002 first, got %s", pending[0].ID)
	}

	open, err := s.ListActionsByStatus(ctx, models.StatusPending, models.StatusApproved)
	if err != nil {
		t.Fatalf("ListActionsByStatus: %v", err)
	}
	if len(open) != 3 {
		t.Errorf("expected 3 open actions, got %d", len(open))
	}
}

func TestListActionHistoryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		action := newTestAction(fmt.Sprintf("act-%03d", i))
		action.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Round(time.Second)
		if err := s.CreateAction(ctx, action); err != nil {
			t.Fatalf("CreateAction: %v", err)
		}
	}
	if ok, _ := s.RejectAction(ctx, "act-001", "operator", "noise"); !ok {
		t.Fatal("reject failed")
	}

	all, err := s.ListActionHistory(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("ListActionHistory: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 actions, got %d", len(all))
	}
	// Newest first.
	if all[0].ID != "act-003" {
		t.Errorf("expected act-003 first, got %s", all[0].ID)
	}

	rejected, err := s.ListActionHistory(ctx, models.StatusRejected, 0, 0)
	if err != nil {
		t.Fatalf("ListActionHistory: %v", err)
	}
	if len(rejected) != 1 || rejected[0].ID != "act-001" {
		t.Errorf("expected only act-001 rejected, got %+v", rejected)
	}

	page, err := s.ListActionHistory(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("ListActionHistory: %v", err)
	}
	if len(page) != 2 || page[0].ID != "act-003" || page[1].ID != "act-002" {
		t.Errorf("unexpected first page: %+v", page)
	}

	page, err = s.ListActionHistory(ctx, "", 2, 2)
	if err != nil {
		t.Fatalf("ListActionHistory: %v", err)
	}
	if len(page) != 2 || page[0].ID != "act-001" || page[1].ID != "act-000" {
		t.Errorf("unexpected second page: %+v", page)
	}

	// Offset without limit still skips rows.
	rest, err := s.ListActionHistory(ctx, "", 0, 3)
	if err != nil {
		t.Fatalf("ListActionHistory: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "act-000" {
		t.Errorf("expected only act-000 after offset, got %+v", rest)
	}
}

func TestHasOpenAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAction(ctx, newTestAction("act-001")); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	ok, err := s.HasOpenAction(ctx, "abc123", models.ActionRestartContainer)
	if err != nil {
		t.Fatalf("HasOpenAction: %v", err)
	}
	if !ok {
		t.Error("expected open action for pending")
	}

	// Approval keeps it open.
	if ok, _ := s.ApproveAction(ctx, "act-001", "operator"); !ok {
		t.Fatal("approve failed")
	}
	if ok, _ := s.HasOpenAction(ctx, "abc123", models.ActionRestartContainer); !ok {
		t.Error("expected open action for approved")
	}

	// Rejection or execution closes it.
	if ok, _ := s.MarkExecuting(ctx, "act-001"); !ok {
		t.Fatal("mark executing failed")
	}
	if ok, _ := s.MarkExecuted(ctx, "act-001", "done", ""); !ok {
		t.Fatal("mark executed failed")
	}
	if ok, _ := s.HasOpenAction(ctx, "abc123", models.ActionRestartContainer); ok {
		t.Error("expected no open action after execution")
	}

	// Other containers are unaffected.
	if ok, _ := s.HasOpenAction(ctx, "other", models.ActionRestartContainer); ok {
		t.Error("expected no open action for other container")
	}
}

func TestActionSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Three executed, one failed, one pending.
	for i := 0; i < 5; i++ {
		if err := s.CreateAction(ctx, newTestAction(fmt.Sprintf("act-%03d", i))); err != nil {
			t.Fatalf("CreateAction: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("act-%03d", i)
		if ok, _ := s.ApproveAction(ctx, id, "operator"); !ok {
			t.Fatalf("approve %s failed", id)
		}
		if ok, _ := s.MarkExecuting(ctx, id); !ok {
			t.Fatalf("mark executing %s failed", id)
		}
	}
	for i := 0; i < 3; i++ {
		if ok, _ := s.MarkExecuted(ctx, fmt.Sprintf("act-%03d", i), "done", ""); !ok {
			t.Fatal("mark executed failed")
		}
	}
	if ok, _ := s.MarkExecuted(ctx, "act-003", "Failed", "boom"); !ok {
		t.Fatal("mark executed failed")
	}

	summary, err := s.ActionSummary(ctx)
	if err != nil {
		t.Fatalf("ActionSummary: %v", err)
	}
	if summary.TotalActions != 5 {
		t.Errorf("expected 5 total, got %d", summary.TotalActions)
	}
	if summary.Executed != 3 || summary.Failed != 1 || summary.Pending != 1 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if summary.SuccessRate != 75.0 {
		t.Errorf("expected success rate 75.0, got %v", summary.SuccessRate)
	}
	if summary.ActionsLast24h != 5 {
		t.Errorf("expected 5 actions in last 24h, got %d", summary.ActionsLast24h)
	}
}

func TestActionSummaryEmpty(t *testing.T) {
	s := newTestStore(t)

	summary, err := s.ActionSummary(context.Background())
	if err != nil {
		t.Fatalf("ActionSummary: %v", err)
	}
	if summary.TotalActions != 0 {
		t.Errorf("expected 0 total, got %d", summary.TotalActions)
	}
	if summary.SuccessRate != 0 {
		t.Errorf("expected success rate 0 with no completions, got %v", summary.SuccessRate)
	}
}

func TestPurgeOldActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newTestAction("act-old")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := s.CreateAction(ctx, old); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	if ok, _ := s.RejectAction(ctx, "act-old", "operator", ""); !ok {
		t.Fatal("reject failed")
	}

	// Old but still pending: must survive the purge.
	oldPending := newTestAction("act-old-pending")
	oldPending.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := s.CreateAction(ctx, oldPending); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	if err := s.CreateAction(ctx, newTestAction("act-new")); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	n, err := s.PurgeOldActions(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeOldActions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	if got, _ := s.GetAction(ctx, "act-old"); got != nil {
		t.Error("expected old terminal action purged")
	}
	if got, _ := s.GetAction(ctx, "act-old-pending"); got == nil {
		t.Error("expected old pending action retained")
	}
	if got, _ := s.GetAction(ctx, "act-new"); got == nil {
		t.Error("expected recent action retained")
	}
}

// ─── Anomaly events ───────────────────────────────────────────────────────────

func newTestAnomaly(id, containerID string, metric models.MetricType) *models.AnomalyResult {
	return &models.AnomalyResult{
		ID:            id,
		EndpointID:    1,
		EndpointName:  "local",
		ContainerID:   containerID,
		ContainerName: "web",
		MetricType:    metric,
		CurrentValue:  95.0,
		ExpectedValue: 10.4,
		ZScore:        38.8,
		IsAnomaly:     true,
		Direction:     models.DirectionHigh,
		DetectedAt:    time.Now().UTC().Round(time.Second),
	}
}

func TestAnomalyRecordAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordAnomaly(ctx, newTestAnomaly("an-001", "abc123", models.MetricCPUPercent)); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}
	if err := s.RecordAnomaly(ctx, newTestAnomaly("an-002", "abc123", models.MetricMemoryPercent)); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}
	if err := s.RecordAnomaly(ctx, newTestAnomaly("an-003", "other", models.MetricCPUPercent)); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}

	got, err := s.QueryAnomalies(ctx, AnomalyQuery{ContainerID: "abc123"})
	if err != nil {
		t.Fatalf("QueryAnomalies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(got))
	}
	if !got[0].IsAnomaly {
		t.Error("persisted anomalies must scan back as anomalous")
	}

	got, err = s.QueryAnomalies(ctx, AnomalyQuery{MetricType: models.MetricCPUPercent})
	if err != nil {
		t.Fatalf("QueryAnomalies: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 cpu anomalies, got %d", len(got))
	}
}

func TestAnomalySummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordAnomaly(ctx, newTestAnomaly("an-001", "abc123", models.MetricCPUPercent)); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}
	if err := s.RecordAnomaly(ctx, newTestAnomaly("an-002", "abc123", models.MetricCPUPercent)); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}
	if err := s.RecordAnomaly(ctx, newTestAnomaly("an-003", "abc123", models.MetricMemoryPercent)); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}

	summary, err := s.AnomalySummary(ctx, "abc123")
	if err != nil {
		t.Fatalf("AnomalySummary: %v", err)
	}
	if summary.TotalCount != 3 {
		t.Errorf("expected 3 anomalies, got %d", summary.TotalCount)
	}
	if summary.ByMetric["cpu_percent"] != 2 || summary.ByMetric["memory_percent"] != 1 {
		t.Errorf("unexpected metric counts: %+v", summary.ByMetric)
	}
	if summary.ContainerName != "web" {
		t.Errorf("expected container name web, got %q", summary.ContainerName)
	}
	if summary.LastDetected == nil {
		t.Error("expected last detected timestamp")
	}

	empty, err := s.AnomalySummary(ctx, "missing")
	if err != nil {
		t.Fatalf("AnomalySummary: %v", err)
	}
	if empty.TotalCount != 0 || empty.LastDetected != nil {
		t.Errorf("expected empty summary, got %+v", empty)
	}
}

func TestPurgeOldAnomalies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newTestAnomaly("an-old", "abc123", models.MetricCPUPercent)
	old.DetectedAt = time.Now().UTC().Add(-72 * time.Hour)
	if err := s.RecordAnomaly(ctx, old); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}
	if err := s.RecordAnomaly(ctx, newTestAnomaly("an-new", "abc123", models.MetricCPUPercent)); err != nil {
		t.Fatalf("RecordAnomaly: %v", err)
	}

	n, err := s.PurgeOldAnomalies(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeOldAnomalies: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}

	remaining, _ := s.QueryAnomalies(ctx, AnomalyQuery{ContainerID: "abc123"})
	if len(remaining) != 1 || remaining[0].ID != "an-new" {
		t.Errorf("expected only an-new to remain, got %+v", remaining)
	}
}
