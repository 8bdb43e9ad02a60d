package models

import "time"

// ActionStatus is the lifecycle state of a remediation action.
//
// Transitions: pending → approved | rejected, approved → executing,
// executing → executed | failed. Everything else is invalid and every
// transition is guarded at the store level.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusApproved  ActionStatus = "approved"
	StatusRejected  ActionStatus = "rejected"
	StatusExecuting ActionStatus = "executing"
	StatusExecuted  ActionStatus = "executed"
	StatusFailed    ActionStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s ActionStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// ActionType is the operation a remediation action performs on a container.
type ActionType string

const (
	ActionRestartContainer ActionType = "restart_container"
	ActionStartContainer   ActionType = "start_container"
	ActionStopContainer    ActionType = "stop_container"
)

// RemediationAction is a suggested operation awaiting human approval.
type RemediationAction struct {
	ID              string       `json:"id"`
	InsightID       string       `json:"insight_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	ActionType      ActionType   `json:"action_type"`
	ContainerID     string       `json:"container_id"`
	ContainerName   string       `json:"container_name"`
	EndpointID      int          `json:"endpoint_id"`
	EndpointName    string       `json:"endpoint_name"`
	Rationale       string       `json:"rationale"`
	Status          ActionStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty"`
	RejectedBy      string       `json:"rejected_by,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	ExecutedAt      *time.Time   `json:"executed_at,omitempty"`
	ExecutionResult string       `json:"execution_result,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
}

// ActionTarget pins a suggestion to the exact container observed in a
// snapshot. Execution operates on the recorded endpoint and container
// ids; names are kept for display and audit only.
type ActionTarget struct {
	EndpointID    int
	EndpointName  string
	ContainerID   string
	ContainerName string
}

// Pinned reports whether the target identifies a concrete container.
func (t ActionTarget) Pinned() bool {
	return t.EndpointID != 0 && t.ContainerID != ""
}

// ExecutionResult is the outcome of attempting to execute an approved
// action. Execution failures are data, not errors.
type ExecutionResult struct {
	ActionID   string     `json:"action_id"`
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ActionHistorySummary aggregates action counts for the dashboard.
type ActionHistorySummary struct {
	TotalActions   int     `json:"total_actions"`
	Pending        int     `json:"pending"`
	Approved       int     `json:"approved"`
	Rejected       int     `json:"rejected"`
	Executed       int     `json:"executed"`
	Failed         int     `json:"failed"`
	ActionsLast24h int     `json:"actions_last_24h"`
	SuccessRate    float64 `json:"success_rate"`
}
