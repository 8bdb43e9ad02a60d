package db

import (
	"context"
	"time"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// Store is the main persistence interface for the monitoring layer.
type Store interface {
	ActionStore
	AnomalyStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Action store ─────────────────────────────────────────────────────────────

// ActionStore persists remediation actions and owns every status
// transition. All transitions are conditional updates keyed on the current
// status, so concurrent callers cannot move an action twice: exactly one
// caller observes true, the rest observe false.
type ActionStore interface {
	// CreateAction inserts a new action in pending status.
	CreateAction(ctx context.Context, action *models.RemediationAction) error

	// GetAction returns an action by id. Returns nil, nil when not found.
	GetAction(ctx context.Context, id string) (*models.RemediationAction, error)

	// ApproveAction moves pending → approved and records the approver.
	// Returns false when the action is missing or not pending.
	ApproveAction(ctx context.Context, id, approvedBy string) (bool, error)

	// RejectAction moves pending → rejected and records who rejected it
	// and why. Returns false when the action is missing or not pending.
	RejectAction(ctx context.Context, id, rejectedBy, reason string) (bool, error)

	// MarkExecuting moves approved → executing.
	// Returns false when the action is missing or not approved.
	MarkExecuting(ctx context.Context, id string) (bool, error)

	// MarkExecuted finalizes an executing action: failed when errMsg is
	// non-empty, executed otherwise. Sets executed_at either way.
	// Returns false when the action is missing or not executing.
	MarkExecuted(ctx context.Context, id, result, errMsg string) (bool, error)

	// ListActionsByStatus returns actions in any of the given statuses,
	// newest first.
	ListActionsByStatus(ctx context.Context, statuses ...models.ActionStatus) ([]*models.RemediationAction, error)

	// ListActionHistory returns actions newest first, optionally filtered
	// to one status ("" means all), skipping offset rows and capped at
	// limit (0 means no cap).
	ListActionHistory(ctx context.Context, status models.ActionStatus, limit, offset int) ([]*models.RemediationAction, error)

	// HasOpenAction reports whether a pending or approved action of the
	// given type already exists for the container.
	HasOpenAction(ctx context.Context, containerID string, actionType models.ActionType) (bool, error)

	// ActionSummary aggregates counts per status plus the trailing-24h
	// count and the success rate over completed executions.
	ActionSummary(ctx context.Context) (*models.ActionHistorySummary, error)

	// PurgeOldActions deletes terminal actions created before the cutoff.
	// Returns the number of rows removed.
	PurgeOldActions(ctx context.Context, cutoff time.Time) (int64, error)
}

// ─── Anomaly store ────────────────────────────────────────────────────────────

// AnomalyQuery filters persisted anomalies.
type AnomalyQuery struct {
	ContainerID string
	MetricType  models.MetricType
	From        time.Time
	To          time.Time
	Limit       int
}

// AnomalyStore persists detected metric anomalies for later inspection.
// Only anomalous results are stored.
type AnomalyStore interface {
	// RecordAnomaly writes a single anomalous detection result.
	RecordAnomaly(ctx context.Context, result *models.AnomalyResult) error

	// QueryAnomalies retrieves anomalies matching the query, newest first.
	QueryAnomalies(ctx context.Context, q AnomalyQuery) ([]*models.AnomalyResult, error)

	// AnomalySummary aggregates stored anomalies for one container.
	AnomalySummary(ctx context.Context, containerID string) (*models.AnomalySummary, error)

	// PurgeOldAnomalies deletes anomalies detected before the cutoff.
	PurgeOldAnomalies(ctx context.Context, cutoff time.Time) (int64, error)
}
