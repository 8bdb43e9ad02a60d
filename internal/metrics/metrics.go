package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fleet monitoring metrics for production dashboards
var (
	// Sweep metrics
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_sweeps_total",
			Help: "Total number of monitoring sweeps",
		},
		[]string{"status"}, // status: ok/collect_failed
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harborwatch_sweep_duration_seconds",
			Help:    "Monitoring sweep duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4min
		},
	)

	InsightsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_insights_generated_total",
			Help: "Total number of insights generated",
		},
		[]string{"severity", "source"}, // source: llm/fallback
	)

	// Anomaly detection metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_anomalies_detected_total",
			Help: "Total number of metric anomalies detected",
		},
		[]string{"metric_type", "direction"},
	)

	SamplesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harborwatch_samples_evaluated_total",
			Help: "Total number of metric samples evaluated",
		},
	)

	// Remediation metrics
	ActionsSuggested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_actions_suggested_total",
			Help: "Total number of remediation actions suggested",
		},
		[]string{"action_type"},
	)

	ActionsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harborwatch_actions_suppressed_total",
			Help: "Total number of duplicate suggestions suppressed",
		},
	)

	ActionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_action_transitions_total",
			Help: "Total number of action status transitions",
		},
		[]string{"to_status"},
	)

	ActionExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_action_executions_total",
			Help: "Total number of action execution attempts",
		},
		[]string{"action_type", "result"}, // result: success/failure
	)

	ActionExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harborwatch_action_execution_duration_seconds",
			Help:    "Action execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"action_type"},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harborwatch_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	// Upstream API metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_upstream_requests_total",
			Help: "Total number of container API requests",
		},
		[]string{"environment", "operation", "status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harborwatch_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harborwatch_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)
)
