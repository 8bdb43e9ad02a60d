package anomaly

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/metrics"
	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// Config controls z-score detection.
type Config struct {
	// Threshold is the |z| above which a value is anomalous.
	Threshold float64
	// MinSamples is the minimum window size before detection runs.
	// Below it every value is treated as normal (cold start).
	MinSamples int
	// WindowSize is the trailing window length per series.
	WindowSize int
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:  3.0,
		MinSamples: 5,
		WindowSize: 20,
	}
}

// Recorder persists anomalous results. Normal results are never persisted.
type Recorder interface {
	RecordAnomaly(ctx context.Context, result *models.AnomalyResult) error
}

// Detector evaluates metric samples against their trailing windows using
// a population z-score. It is safe for concurrent use.
type Detector struct {
	cfg      Config
	windows  *WindowStore
	recorder Recorder
	logger   *zap.Logger
}

// NewDetector creates a detector. recorder may be nil, in which case
// anomalies are reported but not persisted.
func NewDetector(cfg Config, recorder Recorder, logger *zap.Logger) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3.0
	}
	if cfg.MinSamples < 2 {
		cfg.MinSamples = 2
	}
	if cfg.WindowSize < cfg.MinSamples {
		cfg.WindowSize = cfg.MinSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:      cfg,
		windows:  NewWindowStore(cfg.WindowSize),
		recorder: recorder,
		logger:   logger,
	}
}

// eligible metrics for batch evaluation. Counter-style series (network,
// block IO) grow monotonically and would always trip a mean-based score.
var batchEligible = map[models.MetricType]bool{
	models.MetricCPUPercent:    true,
	models.MetricMemoryPercent: true,
}

// Evaluate scores one sample against the trailing window of values seen
// before it, then appends the sample to the window. Returns nil during
// cold start (fewer than MinSamples prior values).
func (d *Detector) Evaluate(ctx context.Context, sample models.MetricSample) *models.AnomalyResult {
	metrics.SamplesEvaluated.Inc()

	window := d.windows.Recent(sample.ContainerID, sample.MetricType, d.cfg.WindowSize)
	d.windows.Append(sample.ContainerID, sample.MetricType, sample.Value)

	if len(window) < d.cfg.MinSamples {
		return nil
	}

	mean, stdDev := meanStdDev(window)
	z := 0.0
	if stdDev != 0 {
		z = (sample.Value - mean) / stdDev
	}

	direction := models.DirectionNormal
	switch {
	case z > d.cfg.Threshold:
		direction = models.DirectionHigh
	case z < -d.cfg.Threshold:
		direction = models.DirectionLow
	}

	result := &models.AnomalyResult{
		ID:            uuid.NewString(),
		EndpointID:    sample.EndpointID,
		EndpointName:  sample.EndpointName,
		ContainerID:   sample.ContainerID,
		ContainerName: sample.ContainerName,
		MetricType:    sample.MetricType,
		CurrentValue:  sample.Value,
		ExpectedValue: mean,
		ZScore:        z,
		IsAnomaly:     math.Abs(z) > d.cfg.Threshold,
		Direction:     direction,
		DetectedAt:    time.Now().UTC(),
	}

	if result.IsAnomaly {
		metrics.AnomaliesDetected.WithLabelValues(string(sample.MetricType), string(direction)).Inc()
		d.logger.Warn("anomaly detected",
			zap.String("container", sample.ContainerName),
			zap.String("metric", string(sample.MetricType)),
			zap.Float64("value", sample.Value),
			zap.Float64("expected", mean),
			zap.Float64("zscore", z))
		if d.recorder != nil {
			if err := d.recorder.RecordAnomaly(ctx, result); err != nil {
				d.logger.Error("failed to persist anomaly", zap.Error(err))
			}
		}
	}

	return result
}

// EvaluateBatch evaluates a set of samples, returning only the anomalous
// results. Only gauge-style metrics (cpu_percent, memory_percent) are
// scored; other samples are recorded into their windows and skipped.
func (d *Detector) EvaluateBatch(ctx context.Context, samples []models.MetricSample) []models.AnomalyResult {
	var anomalies []models.AnomalyResult
	for _, sample := range samples {
		if !batchEligible[sample.MetricType] {
			d.windows.Append(sample.ContainerID, sample.MetricType, sample.Value)
			continue
		}
		result := d.Evaluate(ctx, sample)
		if result != nil && result.IsAnomaly {
			anomalies = append(anomalies, *result)
		}
	}
	return anomalies
}

// Forget discards the trailing windows for a container.
func (d *Detector) Forget(containerID string) {
	d.windows.Drop(containerID)
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqSum float64
	for _, v := range values {
		diff := v - mean
		sqSum += diff * diff
	}
	return mean, math.Sqrt(sqSum / float64(len(values)))
}
