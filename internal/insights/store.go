// Package insights keeps recent monitoring output in memory. Both buffers
// are bounded; old entries are evicted oldest-first. Durable state lives in
// the action store, not here.
package insights

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

const (
	DefaultMaxInsights = 100
	DefaultMaxReports  = 50
)

// Event types delivered to subscribers.
const (
	EventNewReport  = "new_report"
	EventNewInsight = "new_insight"
)

// Subscriber receives store events. Callbacks run synchronously on the
// publishing goroutine; a panicking subscriber is isolated and logged,
// never propagated to the publisher.
type Subscriber func(eventType string, payload interface{})

// Store is a bounded in-memory buffer of reports and insights with
// subscription hooks. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	maxInsights int
	maxReports  int
	insights    []models.Insight
	reports     []models.MonitoringReport
	subscribers map[string]Subscriber
	logger      *zap.Logger
}

// NewStore creates a store with the given capacities. Non-positive
// capacities fall back to the defaults.
func NewStore(maxInsights, maxReports int, logger *zap.Logger) *Store {
	if maxInsights <= 0 {
		maxInsights = DefaultMaxInsights
	}
	if maxReports <= 0 {
		maxReports = DefaultMaxReports
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		maxInsights: maxInsights,
		maxReports:  maxReports,
		subscribers: make(map[string]Subscriber),
		logger:      logger,
	}
}

// AddReport appends a report, fans its insights into the insight buffer,
// and notifies subscribers.
func (s *Store) AddReport(report models.MonitoringReport) {
	s.mu.Lock()
	s.reports = append(s.reports, report)
	if len(s.reports) > s.maxReports {
		s.reports = s.reports[len(s.reports)-s.maxReports:]
	}
	for _, insight := range report.Insights {
		s.appendInsightLocked(insight)
	}
	subs := s.snapshotSubscribersLocked()
	s.mu.Unlock()

	s.notify(subs, EventNewReport, report)
	for _, insight := range report.Insights {
		s.notify(subs, EventNewInsight, insight)
	}
}

// AddInsight appends a single insight outside a report, e.g. one raised
// by the anomaly detector between sweeps.
func (s *Store) AddInsight(insight models.Insight) {
	s.mu.Lock()
	s.appendInsightLocked(insight)
	subs := s.snapshotSubscribersLocked()
	s.mu.Unlock()

	s.notify(subs, EventNewInsight, insight)
}

func (s *Store) appendInsightLocked(insight models.Insight) {
	s.insights = append(s.insights, insight)
	if len(s.insights) > s.maxInsights {
		s.insights = s.insights[len(s.insights)-s.maxInsights:]
	}
}

// GetInsights returns insights newest-first, optionally filtered to those
// created after since, capped at limit (0 means no cap).
func (s *Store) GetInsights(since *time.Time, limit int) []models.Insight {
	s.mu.RLock()
	out := make([]models.Insight, 0, len(s.insights))
	for _, insight := range s.insights {
		if since != nil && !insight.CreatedAt.After(*since) {
			continue
		}
		out = append(out, insight)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetReports returns reports newest-first, optionally filtered to those
// generated after since, capped at limit (0 means no cap).
func (s *Store) GetReports(since *time.Time, limit int) []models.MonitoringReport {
	s.mu.RLock()
	out := make([]models.MonitoringReport, 0, len(s.reports))
	for _, report := range s.reports {
		if since != nil && !report.GeneratedAt.After(*since) {
			continue
		}
		out = append(out, report)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LatestReport returns the most recent report, or nil when none exists.
func (s *Store) LatestReport() *models.MonitoringReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return nil
	}
	latest := s.reports[len(s.reports)-1]
	return &latest
}

// Subscribe registers a callback under id, replacing any previous
// subscriber with the same id.
func (s *Store) Subscribe(id string, fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[id] = fn
}

// Unsubscribe removes the subscriber with the given id.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

type namedSubscriber struct {
	id string
	fn Subscriber
}

func (s *Store) snapshotSubscribersLocked() []namedSubscriber {
	subs := make([]namedSubscriber, 0, len(s.subscribers))
	for id, fn := range s.subscribers {
		subs = append(subs, namedSubscriber{id: id, fn: fn})
	}
	return subs
}

func (s *Store) notify(subs []namedSubscriber, eventType string, payload interface{}) {
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("insight subscriber panicked",
						zap.String("subscriber", sub.id),
						zap.String("event", eventType),
						zap.Any("panic", r))
				}
			}()
			sub.fn(eventType, payload)
		}()
	}
}
