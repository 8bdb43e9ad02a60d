package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/audit"
	"github.com/harborwatch/harborwatch-monitor/internal/config"
	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// sweeper runs one monitoring sweep.
type sweeper interface {
	RunSweep(ctx context.Context) (*models.MonitoringReport, error)
}

// metricSource produces resource metric samples for running containers.
type metricSource interface {
	CollectMetrics(ctx context.Context) []models.MetricSample
}

// evaluator scores metric samples against their history.
type evaluator interface {
	EvaluateBatch(ctx context.Context, samples []models.MetricSample) []models.AnomalyResult
}

// retentionStore purges records past their retention window.
type retentionStore interface {
	PurgeOldActions(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeOldAnomalies(ctx context.Context, cutoff time.Time) (int64, error)
}

// broadcaster pushes events to connected clients.
type broadcaster func(eventType string, payload interface{})

// Scheduler drives the periodic work: monitoring sweeps, metric
// collection with anomaly detection, and retention purges.
type Scheduler struct {
	cfg       *config.Config
	monitor   sweeper
	metrics   metricSource
	detector  evaluator
	store     retentionStore
	audit     audit.Logger
	broadcast broadcaster
	logger    *zap.Logger

	// Guards against overlapping sweeps when one outlasts the interval.
	sweepInFlight atomic.Bool
}

// NewScheduler wires the periodic schedules. The audit logger and
// broadcast callback are optional.
func NewScheduler(cfg *config.Config, monitor sweeper, metrics metricSource, detector evaluator, store retentionStore, auditLog audit.Logger, broadcast broadcaster, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		monitor:   monitor,
		metrics:   metrics,
		detector:  detector,
		store:     store,
		audit:     auditLog,
		broadcast: broadcast,
		logger:    logger,
	}
}

// Run starts the schedule loops. They stop when ctx is cancelled.
func (sc *Scheduler) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(3)
	go sc.sweepLoop(ctx, wg)
	go sc.metricsLoop(ctx, wg)
	go sc.purgeLoop(ctx, wg)
}

func (sc *Scheduler) sweepLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	// First sweep shortly after startup instead of a full interval later.
	startup := time.NewTimer(10 * time.Second)
	defer startup.Stop()

	ticker := time.NewTicker(sc.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-startup.C:
			sc.RunSweepOnce(ctx)
		case <-ticker.C:
			sc.RunSweepOnce(ctx)
		}
	}
}

// RunSweepOnce runs a single sweep unless one is already in flight.
func (sc *Scheduler) RunSweepOnce(ctx context.Context) {
	if !sc.sweepInFlight.CompareAndSwap(false, true) {
		sc.logger.Warn("skipping sweep, previous sweep still running")
		return
	}
	defer sc.sweepInFlight.Store(false)

	report, err := sc.monitor.RunSweep(ctx)
	if err != nil {
		sc.logger.Error("scheduled sweep failed", zap.Error(err))
		if sc.audit != nil {
			_ = sc.audit.Log(ctx, audit.NewEvent(audit.EventSweepFailed).
				WithError(err.Error()).
				WithDescription("Scheduled monitoring sweep failed"))
		}
		return
	}

	if sc.audit != nil {
		_ = sc.audit.LogSweepCompleted(ctx, report)
	}
	sc.logger.Info("sweep completed",
		zap.Int("insights", len(report.Insights)),
		zap.Bool("llm_used", report.LLMUsed))
}

func (sc *Scheduler) metricsLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(sc.cfg.MetricsInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.CollectMetricsOnce(ctx)
		}
	}
}

// CollectMetricsOnce collects one round of container metrics and feeds
// them through the anomaly detector.
func (sc *Scheduler) CollectMetricsOnce(ctx context.Context) {
	samples := sc.metrics.CollectMetrics(ctx)
	if len(samples) == 0 {
		return
	}

	anomalies := sc.detector.EvaluateBatch(ctx, samples)
	for i := range anomalies {
		anomaly := anomalies[i]
		sc.logger.Warn("metric anomaly detected",
			zap.String("container", anomaly.ContainerName),
			zap.String("metric_type", string(anomaly.MetricType)),
			zap.Float64("zscore", anomaly.ZScore),
			zap.String("direction", string(anomaly.Direction)))

		if sc.audit != nil {
			_ = sc.audit.LogAnomalyDetected(ctx, &anomaly)
		}
		if sc.broadcast != nil {
			sc.broadcast("anomaly_detected", anomaly)
		}
	}
}

func (sc *Scheduler) purgeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(sc.cfg.PurgeInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce removes actions and anomalies past their retention windows.
func (sc *Scheduler) PurgeOnce(ctx context.Context) {
	now := time.Now().UTC()

	removed, err := sc.store.PurgeOldActions(ctx, now.Add(-sc.cfg.ActionRetention()))
	if err != nil {
		sc.logger.Error("action purge failed", zap.Error(err))
	} else if removed > 0 {
		sc.logger.Info("purged old actions", zap.Int64("removed", removed))
	}

	removed, err = sc.store.PurgeOldAnomalies(ctx, now.Add(-sc.cfg.AnomalyRetention()))
	if err != nil {
		sc.logger.Error("anomaly purge failed", zap.Error(err))
	} else if removed > 0 {
		sc.logger.Info("purged old anomalies", zap.Int64("removed", removed))
	}
}
