package anomaly

import (
	"sync"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// WindowStore keeps the trailing metric values the detector compares
// against. Windows are bounded per (container, metric) series; appending
// beyond capacity evicts the oldest value.
type WindowStore struct {
	mu       sync.RWMutex
	capacity int
	series   map[seriesKey][]float64
}

type seriesKey struct {
	containerID string
	metricType  models.MetricType
}

// NewWindowStore creates a store holding up to capacity values per series.
func NewWindowStore(capacity int) *WindowStore {
	if capacity < 1 {
		capacity = 1
	}
	return &WindowStore{
		capacity: capacity,
		series:   make(map[seriesKey][]float64),
	}
}

// Append records a new observation for the series.
func (w *WindowStore) Append(containerID string, metricType models.MetricType, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := seriesKey{containerID: containerID, metricType: metricType}
	vals := append(w.series[key], value)
	if len(vals) > w.capacity {
		vals = vals[len(vals)-w.capacity:]
	}
	w.series[key] = vals
}

// Recent returns a copy of up to n most recent values for the series,
// oldest first. Returns nil when the series has no data.
func (w *WindowStore) Recent(containerID string, metricType models.MetricType, n int) []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	vals := w.series[seriesKey{containerID: containerID, metricType: metricType}]
	if len(vals) == 0 || n <= 0 {
		return nil
	}
	if n > len(vals) {
		n = len(vals)
	}
	out := make([]float64, n)
	copy(out, vals[len(vals)-n:])
	return out
}

// Len returns the number of stored values for the series.
func (w *WindowStore) Len(containerID string, metricType models.MetricType) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.series[seriesKey{containerID: containerID, metricType: metricType}])
}

// Drop discards all windows for a container, e.g. after it is removed.
func (w *WindowStore) Drop(containerID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key := range w.series {
		if key.containerID == containerID {
			delete(w.series, key)
		}
	}
}
