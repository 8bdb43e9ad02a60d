// Package remediation turns monitoring insights into approval-gated
// container actions and executes approved ones against the managed
// environments.
package remediation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/audit"
	"github.com/harborwatch/harborwatch-monitor/internal/db"
	"github.com/harborwatch/harborwatch-monitor/internal/metrics"
	"github.com/harborwatch/harborwatch-monitor/internal/models"
	"github.com/harborwatch/harborwatch-monitor/internal/portainer"
)

// Event types published to the notify callback.
const (
	EventActionSuggested = "action_suggested"
	EventActionApproved  = "action_approved"
	EventActionRejected  = "action_rejected"
	EventActionExecuted  = "action_executed"
)

// Notifier receives action lifecycle events for fan-out to clients.
type Notifier func(eventType string, payload interface{})

// Config tunes the remediation service.
type Config struct {
	// Enabled gates suggestion of new actions. Disabling stops new
	// suggestions; actions already filed can still be approved,
	// rejected, and executed.
	Enabled bool
}

// Service owns the remediation action lifecycle. Status transitions are
// delegated to the store, which enforces them atomically.
type Service struct {
	cfg          Config
	store        db.ActionStore
	environments []portainer.Environment
	audit        audit.Logger
	logger       *zap.Logger
	notify       Notifier
}

// NewService creates a remediation service. The audit logger and the
// notifier are optional.
func NewService(cfg Config, store db.ActionStore, environments []portainer.Environment, auditLog audit.Logger, logger *zap.Logger, notify Notifier) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:          cfg,
		store:        store,
		environments: environments,
		audit:        auditLog,
		logger:       logger,
		notify:       notify,
	}
}

func (s *Service) publish(eventType string, payload interface{}) {
	if s.notify != nil {
		s.notify(eventType, payload)
	}
}

// Approve moves a pending action to approved. Returns the updated action
// and false when the action is missing or not pending.
func (s *Service) Approve(ctx context.Context, id, approvedBy string) (*models.RemediationAction, bool, error) {
	ok, err := s.store.ApproveAction(ctx, id, approvedBy)
	if err != nil {
		return nil, false, fmt.Errorf("approve action %s: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}

	action, err := s.store.GetAction(ctx, id)
	if err != nil {
		return nil, true, fmt.Errorf("load action %s: %w", id, err)
	}

	metrics.ActionTransitions.WithLabelValues(string(models.StatusApproved)).Inc()
	if s.audit != nil {
		_ = s.audit.LogActionApproved(ctx, action, approvedBy)
	}
	s.logger.Info("action approved",
		zap.String("action_id", id),
		zap.String("approved_by", approvedBy))
	s.publish(EventActionApproved, action)

	return action, true, nil
}

// Reject moves a pending action to rejected, recording who rejected it
// and why. Returns the updated action and false when the action is
// missing or not pending.
func (s *Service) Reject(ctx context.Context, id, rejectedBy, reason string) (*models.RemediationAction, bool, error) {
	ok, err := s.store.RejectAction(ctx, id, rejectedBy, reason)
	if err != nil {
		return nil, false, fmt.Errorf("reject action %s: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}

	action, err := s.store.GetAction(ctx, id)
	if err != nil {
		return nil, true, fmt.Errorf("load action %s: %w", id, err)
	}

	metrics.ActionTransitions.WithLabelValues(string(models.StatusRejected)).Inc()
	if s.audit != nil {
		_ = s.audit.LogActionRejected(ctx, action, rejectedBy)
	}
	s.logger.Info("action rejected",
		zap.String("action_id", id),
		zap.String("rejected_by", rejectedBy))
	s.publish(EventActionRejected, action)

	return action, true, nil
}

// Pending returns all pending actions, newest first.
func (s *Service) Pending(ctx context.Context) ([]*models.RemediationAction, error) {
	return s.store.ListActionsByStatus(ctx, models.StatusPending)
}

// Approved returns all approved actions awaiting execution, newest first.
func (s *Service) Approved(ctx context.Context) ([]*models.RemediationAction, error) {
	return s.store.ListActionsByStatus(ctx, models.StatusApproved)
}

// History returns actions newest first, optionally filtered to one
// status ("" means all), skipping offset rows and capped at limit.
func (s *Service) History(ctx context.Context, status models.ActionStatus, limit, offset int) ([]*models.RemediationAction, error) {
	return s.store.ListActionHistory(ctx, status, limit, offset)
}

// Get returns one action by id, nil when not found.
func (s *Service) Get(ctx context.Context, id string) (*models.RemediationAction, error) {
	return s.store.GetAction(ctx, id)
}

// Summary aggregates action counts and the execution success rate.
func (s *Service) Summary(ctx context.Context) (*models.ActionHistorySummary, error) {
	return s.store.ActionSummary(ctx)
}

// Purge removes terminal actions older than the retention window and
// returns the number removed.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.PurgeOldActions(ctx, time.Now().UTC().Add(-retention))
}

// Execute runs an approved action against the environment currently
// hosting the container. It always returns a result; failures are
// reported in the result rather than as an error so callers can surface
// them uniformly.
func (s *Service) Execute(ctx context.Context, id string) *models.ExecutionResult {
	now := time.Now().UTC()

	action, err := s.store.GetAction(ctx, id)
	if err != nil {
		return s.failResult(ctx, nil, id, "Execution failed", err.Error(), now)
	}
	if action == nil {
		return &models.ExecutionResult{
			ActionID:   id,
			Success:    false,
			Message:    "Action not found",
			ExecutedAt: &now,
		}
	}
	if action.Status != models.StatusApproved {
		return &models.ExecutionResult{
			ActionID:   id,
			Success:    false,
			Message:    "Only approved actions can be executed. Approve the action first.",
			ExecutedAt: &now,
		}
	}

	ok, err := s.store.MarkExecuting(ctx, id)
	if err != nil {
		return s.failResult(ctx, action, id, "Execution failed", err.Error(), now)
	}
	if !ok {
		// Another caller won the transition.
		return &models.ExecutionResult{
			ActionID:   id,
			Success:    false,
			Message:    "Action is already being executed",
			ExecutedAt: &now,
		}
	}
	metrics.ActionTransitions.WithLabelValues(string(models.StatusExecuting)).Inc()

	start := time.Now()
	result := s.dispatch(ctx, action)
	metrics.ActionExecutionDuration.WithLabelValues(string(action.ActionType)).Observe(time.Since(start).Seconds())

	outcome := "success"
	errMsg := ""
	if !result.Success {
		outcome = "failure"
		errMsg = result.Error
		if errMsg == "" {
			errMsg = result.Message
		}
	}
	metrics.ActionExecutions.WithLabelValues(string(action.ActionType), outcome).Inc()

	if _, err := s.store.MarkExecuted(ctx, id, result.Message, errMsg); err != nil {
		s.logger.Error("failed to finalize action",
			zap.String("action_id", id),
			zap.Error(err))
	}

	if s.audit != nil {
		_ = s.audit.LogActionExecuted(ctx, action, result)
	}
	s.logger.Info("action executed",
		zap.String("action_id", id),
		zap.String("action_type", string(action.ActionType)),
		zap.Bool("success", result.Success))
	s.publish(EventActionExecuted, result)

	return result
}

// failResult records an infrastructure failure path that never reached
// the executing state.
func (s *Service) failResult(ctx context.Context, action *models.RemediationAction, id, message, errMsg string, at time.Time) *models.ExecutionResult {
	result := &models.ExecutionResult{
		ActionID:   id,
		Success:    false,
		Message:    message,
		Error:      errMsg,
		ExecutedAt: &at,
	}
	if action != nil && s.audit != nil {
		_ = s.audit.LogActionExecuted(ctx, action, result)
	}
	s.logger.Error("action execution failed",
		zap.String("action_id", id),
		zap.String("error", errMsg))
	return result
}

// dispatch resolves the environment serving the action's pinned endpoint
// and performs the container operation on the recorded ids.
func (s *Service) dispatch(ctx context.Context, action *models.RemediationAction) *models.ExecutionResult {
	now := time.Now().UTC()

	client, envName, found := s.resolveEndpoint(ctx, action)
	if !found {
		return &models.ExecutionResult{
			ActionID:   action.ID,
			Success:    false,
			Message:    "Failed",
			Error:      "Endpoint not found",
			ExecutedAt: &now,
		}
	}

	var err error
	switch action.ActionType {
	case models.ActionRestartContainer:
		err = client.RestartContainer(ctx, action.EndpointID, action.ContainerID)
	case models.ActionStartContainer:
		err = client.StartContainer(ctx, action.EndpointID, action.ContainerID)
	case models.ActionStopContainer:
		err = client.StopContainer(ctx, action.EndpointID, action.ContainerID)
	default:
		err = fmt.Errorf("unsupported action type: %s", action.ActionType)
	}

	if err != nil {
		return &models.ExecutionResult{
			ActionID:   action.ID,
			Success:    false,
			Message:    fmt.Sprintf("Failed to execute %s", action.ActionType),
			Error:      err.Error(),
			ExecutedAt: &now,
		}
	}

	s.logger.Info("container operation completed",
		zap.String("environment", envName),
		zap.Int("endpoint_id", action.EndpointID),
		zap.String("container_id", action.ContainerID),
		zap.String("action_type", string(action.ActionType)))

	return &models.ExecutionResult{
		ActionID:   action.ID,
		Success:    true,
		Message:    fmt.Sprintf("Successfully executed %s on container %s", action.ActionType, action.ContainerName),
		ExecutedAt: &now,
	}
}

// resolveEndpoint finds the environment serving the action's pinned
// endpoint. Suggestions record the endpoint and container ids observed
// in the snapshot, so execution never matches by name; a same-named
// container on another endpoint is untouched. Endpoint ids are scoped
// per environment, so the endpoint name disambiguates when two
// environments reuse an id. Unreachable environments are skipped.
func (s *Service) resolveEndpoint(ctx context.Context, action *models.RemediationAction) (portainer.Client, string, bool) {
	for _, env := range s.environments {
		endpoints, err := env.Client.ListEndpoints(ctx)
		if err != nil {
			s.logger.Warn("skipping unreachable environment",
				zap.String("environment", env.Name),
				zap.Error(err))
			continue
		}

		for _, ep := range endpoints {
			if ep.ID != action.EndpointID {
				continue
			}
			if action.EndpointName != "" && ep.Name != action.EndpointName {
				continue
			}
			if !ep.Online() {
				continue
			}
			return env.Client, env.Name, true
		}
	}
	return nil, "", false
}
