// Package monitor orchestrates the sweep pipeline: collect a snapshot,
// turn it into insights (LLM when available, deterministic rules always
// as fallback), publish the report, and hand actionable insights to the
// suggestion engine.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/insights"
	"github.com/harborwatch/harborwatch-monitor/internal/llm"
	"github.com/harborwatch/harborwatch-monitor/internal/metrics"
	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// SnapshotSource produces infrastructure snapshots.
type SnapshotSource interface {
	Collect(ctx context.Context) (*models.InfrastructureSnapshot, error)
}

// Suggester derives remediation actions from insights. The target pins
// the insight's resource to the container observed in the snapshot; an
// unpinned target means the resource could not be resolved. A nil
// suggestion means the insight is not actionable or was suppressed.
type Suggester interface {
	SuggestFromInsight(ctx context.Context, insight models.Insight, target models.ActionTarget) (*models.RemediationAction, error)
}

// Service runs monitoring sweeps.
type Service struct {
	source    SnapshotSource
	llm       llm.Client
	store     *insights.Store
	suggester Suggester
	logger    *zap.Logger
}

// NewService creates the sweep service. llmClient and suggester may be
// nil; the sweep then runs rule-based analysis without suggestions.
func NewService(source SnapshotSource, llmClient llm.Client, store *insights.Store, suggester Suggester, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:    source,
		llm:       llmClient,
		store:     store,
		suggester: suggester,
		logger:    logger,
	}
}

// RunSweep executes one full monitoring pass and returns the published
// report. A collection failure still yields a report describing it; the
// error return is reserved for context cancellation.
func (s *Service) RunSweep(ctx context.Context) (*models.MonitoringReport, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now().UTC()
	snapshot, err := s.source.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.SweepsTotal.WithLabelValues("collect_failed").Inc()
		s.logger.Error("sweep data collection failed", zap.Error(err))

		report := models.MonitoringReport{
			ID:          uuid.NewString(),
			GeneratedAt: now,
			Summary:     fmt.Sprintf("Data collection failed: %v", err),
		}
		s.store.AddReport(report)
		return &report, nil
	}

	generated, llmUsed := s.generateInsights(ctx, snapshot, now)

	source := "fallback"
	if llmUsed {
		source = "llm"
	}
	for _, insight := range generated {
		metrics.InsightsGenerated.WithLabelValues(string(insight.Severity), source).Inc()
	}

	report := models.MonitoringReport{
		ID:                 uuid.NewString(),
		GeneratedAt:        now,
		Summary:            summarize(snapshot, generated),
		Insights:           generated,
		EndpointsAnalyzed:  snapshot.TotalEndpoints(),
		ContainersAnalyzed: snapshot.TotalContainers(),
		LLMUsed:            llmUsed,
	}
	s.store.AddReport(report)
	metrics.SweepsTotal.WithLabelValues("ok").Inc()

	s.suggestActions(ctx, snapshot, generated)

	s.logger.Info("sweep completed",
		zap.Int("endpoints", report.EndpointsAnalyzed),
		zap.Int("containers", report.ContainersAnalyzed),
		zap.Int("insights", len(generated)),
		zap.Bool("llm_used", llmUsed),
		zap.Duration("took", time.Since(start)))
	return &report, nil
}

// generateInsights tries the LLM path and falls back to rule-based
// analysis on any failure. The fallback is always safe to run.
func (s *Service) generateInsights(ctx context.Context, snapshot *models.InfrastructureSnapshot, now time.Time) ([]models.Insight, bool) {
	if s.llm != nil && s.llm.Enabled() {
		response, err := s.llm.Complete(ctx, systemPrompt, buildAnalysisPrompt(snapshot))
		if err == nil {
			return parseInsights(response, now), true
		}
		if !errors.Is(err, llm.ErrDisabled) {
			s.logger.Warn("llm analysis failed, using fallback rules", zap.Error(err))
		}
	}
	return generateFallbackInsights(snapshot, now), false
}

// suggestActions offers each insight to the suggestion engine, pinned
// to the container the snapshot observed for its affected resource.
func (s *Service) suggestActions(ctx context.Context, snapshot *models.InfrastructureSnapshot, generated []models.Insight) {
	if s.suggester == nil {
		return
	}
	targets := snapshotTargets(snapshot)
	for _, insight := range generated {
		action, err := s.suggester.SuggestFromInsight(ctx, insight, resolveTarget(targets, insight))
		if err != nil {
			s.logger.Error("action suggestion failed",
				zap.String("insight_id", insight.ID), zap.Error(err))
			continue
		}
		if action != nil {
			s.logger.Info("remediation action suggested",
				zap.String("action_id", action.ID),
				zap.String("action_type", string(action.ActionType)),
				zap.String("container", action.ContainerName))
		}
	}
}

// snapshotTargets indexes the snapshot's containers by name. Insights
// name resources; the index maps each name back to the endpoint and
// container ids the collector saw. A name appearing on more than one
// endpoint is left unpinned rather than guessed at.
func snapshotTargets(snapshot *models.InfrastructureSnapshot) map[string]models.ActionTarget {
	targets := make(map[string]models.ActionTarget, len(snapshot.ContainerDetails))
	for _, c := range snapshot.ContainerDetails {
		if _, seen := targets[c.ContainerName]; seen {
			targets[c.ContainerName] = models.ActionTarget{}
			continue
		}
		targets[c.ContainerName] = models.ActionTarget{
			EndpointID:    c.EndpointID,
			EndpointName:  c.EndpointName,
			ContainerID:   c.ContainerID,
			ContainerName: c.ContainerName,
		}
	}
	return targets
}

// resolveTarget returns the pinned target for the first affected
// resource found in the snapshot, or the zero target when none resolve.
func resolveTarget(targets map[string]models.ActionTarget, insight models.Insight) models.ActionTarget {
	for _, name := range insight.AffectedResources {
		if t, ok := targets[name]; ok && t.Pinned() {
			return t
		}
	}
	return models.ActionTarget{}
}

// summarize builds the human-readable report summary line.
func summarize(snapshot *models.InfrastructureSnapshot, generated []models.Insight) string {
	head := fmt.Sprintf("Analyzed %d endpoints and %d containers.",
		snapshot.TotalEndpoints(), snapshot.TotalContainers())
	if len(generated) == 0 {
		return head + " No issues detected."
	}

	critical, warning := 0, 0
	for _, insight := range generated {
		switch insight.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityWarning:
			warning++
		}
	}
	return fmt.Sprintf("%s Found %d issue(s): %d critical, %d warning.",
		head, len(generated), critical, warning)
}
