package remediation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/metrics"
	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// actionPattern maps an insight text fragment to a suggested action.
// Patterns are checked in order; the first match wins.
type actionPattern struct {
	substring  string
	actionType models.ActionType
	rationale  string
}

var insightActionPatterns = []actionPattern{
	{"unhealthy", models.ActionRestartContainer,
		"Container is unhealthy according to health check. Restarting may resolve the issue."},
	{"exited with error", models.ActionRestartContainer,
		"Container exited with an error. Restarting may bring it back up."},
	{"restarting", models.ActionRestartContainer,
		"Container is stuck in a restart loop. A restart may clear the fault."},
	{"out of memory", models.ActionRestartContainer,
		"Container hit an out-of-memory condition. Restarting frees its memory."},
	{"oom", models.ActionRestartContainer,
		"Container hit an out-of-memory condition. Restarting frees its memory."},
	{"memory issues", models.ActionRestartContainer,
		"Container shows memory pressure. Restarting frees its memory."},
	{"connection errors", models.ActionRestartContainer,
		"Container logs show connection errors. Restarting may re-establish connections."},
}

// Only these insight categories can produce actions.
var actionableCategories = map[string]bool{
	models.CategoryAvailability: true,
	models.CategoryLogs:         true,
	models.CategoryResource:     true,
}

var actionTitles = map[models.ActionType]string{
	models.ActionRestartContainer: "Restart Container",
	models.ActionStartContainer:   "Start Container",
	models.ActionStopContainer:    "Stop Container",
}

// SuggestFromInsight derives a remediation action from an insight,
// pinned to the target container resolved from the snapshot. Returns
// nil when suggestions are disabled, the insight is not actionable,
// matches no pattern, names no resource, the target is not pinned, or
// an equivalent action is already open for the container. The
// open-action check runs against the store, so two concurrent sweeps
// cannot both file the same suggestion once one of them has committed.
func (s *Service) SuggestFromInsight(ctx context.Context, insight models.Insight, target models.ActionTarget) (*models.RemediationAction, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	if !actionableCategories[insight.Category] {
		return nil, nil
	}
	if len(insight.AffectedResources) == 0 {
		return nil, nil
	}

	text := strings.ToLower(insight.Title + " " + insight.Description)
	var matched *actionPattern
	for i := range insightActionPatterns {
		if strings.Contains(text, insightActionPatterns[i].substring) {
			matched = &insightActionPatterns[i]
			break
		}
	}
	if matched == nil {
		return nil, nil
	}

	if !target.Pinned() {
		// The named resource was not in the snapshot; without a concrete
		// endpoint and container id there is nothing safe to act on.
		s.logger.Debug("suggestion skipped, no pinned target",
			zap.String("insight_id", insight.ID),
			zap.Strings("affected_resources", insight.AffectedResources))
		return nil, nil
	}

	open, err := s.store.HasOpenAction(ctx, target.ContainerID, matched.actionType)
	if err != nil {
		return nil, fmt.Errorf("check open actions for %s: %w", target.ContainerName, err)
	}
	if open {
		metrics.ActionsSuppressed.Inc()
		s.logger.Debug("duplicate suggestion suppressed",
			zap.String("container", target.ContainerName),
			zap.String("action_type", string(matched.actionType)))
		return nil, nil
	}

	action := &models.RemediationAction{
		ID:            uuid.NewString(),
		InsightID:     insight.ID,
		Title:         fmt.Sprintf("%s: %s", actionTitles[matched.actionType], target.ContainerName),
		Description:   fmt.Sprintf("Suggested action based on monitoring insight: %s", insight.Title),
		ActionType:    matched.actionType,
		ContainerID:   target.ContainerID,
		ContainerName: target.ContainerName,
		EndpointID:    target.EndpointID,
		EndpointName:  target.EndpointName,
		Rationale:     matched.rationale,
		Status:        models.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateAction(ctx, action); err != nil {
		return nil, fmt.Errorf("create action for %s: %w", target.ContainerName, err)
	}

	metrics.ActionsSuggested.WithLabelValues(string(action.ActionType)).Inc()
	if s.audit != nil {
		_ = s.audit.LogActionSuggested(ctx, action)
	}
	s.publish(EventActionSuggested, action)

	return action, nil
}
