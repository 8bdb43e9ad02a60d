package models

import "time"

// MetricType identifies a container metric series.
type MetricType string

const (
	MetricCPUPercent      MetricType = "cpu_percent"
	MetricMemoryPercent   MetricType = "memory_percent"
	MetricMemoryUsage     MetricType = "memory_usage"
	MetricNetworkRxBytes  MetricType = "network_rx_bytes"
	MetricNetworkTxBytes  MetricType = "network_tx_bytes"
	MetricBlockReadBytes  MetricType = "block_read_bytes"
	MetricBlockWriteBytes MetricType = "block_write_bytes"
)

// MetricSample is a single observation of one metric for one container.
type MetricSample struct {
	EndpointID    int        `json:"endpoint_id"`
	EndpointName  string     `json:"endpoint_name"`
	ContainerID   string     `json:"container_id"`
	ContainerName string     `json:"container_name"`
	MetricType    MetricType `json:"metric_type"`
	Value         float64    `json:"value"`
	Timestamp     time.Time  `json:"timestamp"`
}

// AnomalyDirection classifies which side of the expected range a value fell on.
type AnomalyDirection string

const (
	DirectionHigh   AnomalyDirection = "high"
	DirectionLow    AnomalyDirection = "low"
	DirectionNormal AnomalyDirection = "normal"
)

// AnomalyResult is the outcome of evaluating one sample against its
// trailing window. ExpectedValue is the window mean.
type AnomalyResult struct {
	ID            string           `json:"id"`
	EndpointID    int              `json:"endpoint_id"`
	EndpointName  string           `json:"endpoint_name"`
	ContainerID   string           `json:"container_id"`
	ContainerName string           `json:"container_name"`
	MetricType    MetricType       `json:"metric_type"`
	CurrentValue  float64          `json:"current_value"`
	ExpectedValue float64          `json:"expected_value"`
	ZScore        float64          `json:"zscore"`
	IsAnomaly     bool             `json:"is_anomaly"`
	Direction     AnomalyDirection `json:"direction"`
	DetectedAt    time.Time        `json:"detected_at"`
}

// AnomalySummary aggregates persisted anomalies for one container.
type AnomalySummary struct {
	ContainerID   string         `json:"container_id"`
	ContainerName string         `json:"container_name"`
	TotalCount    int            `json:"total_count"`
	ByMetric      map[string]int `json:"by_metric"`
	LastDetected  *time.Time     `json:"last_detected,omitempty"`
}
