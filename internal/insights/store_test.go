package insights

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

func insightAt(id string, ts time.Time) models.Insight {
	return models.Insight{
		ID:        id,
		Severity:  models.SeverityInfo,
		Category:  models.CategoryGeneral,
		Title:     "insight " + id,
		CreatedAt: ts,
	}
}

func reportWith(id string, ts time.Time, insights ...models.Insight) models.MonitoringReport {
	return models.MonitoringReport{
		ID:          id,
		GeneratedAt: ts,
		Summary:     "report " + id,
		Insights:    insights,
	}
}

func TestAddReportFansInsights(t *testing.T) {
	s := NewStore(10, 10, nil)
	now := time.Now().UTC()

	s.AddReport(reportWith("r1", now,
		insightAt("i1", now.Add(-time.Second)),
		insightAt("i2", now)))

	require.Len(t, s.GetReports(nil, 0), 1)
	got := s.GetInsights(nil, 0)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, "i2", got[0].ID)
	assert.Equal(t, "i1", got[1].ID)
}

func TestInsightBufferEviction(t *testing.T) {
	s := NewStore(3, 3, nil)
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		s.AddInsight(insightAt(fmt.Sprintf("i%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	got := s.GetInsights(nil, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "i4", got[0].ID)
	assert.Equal(t, "i2", got[2].ID)
}

func TestGetInsightsSinceAndLimit(t *testing.T) {
	s := NewStore(10, 10, nil)
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		s.AddInsight(insightAt(fmt.Sprintf("i%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	since := base.Add(time.Second) // strictly after i1
	got := s.GetInsights(&since, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "i4", got[0].ID)

	got = s.GetInsights(&since, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "i4", got[0].ID)
	assert.Equal(t, "i3", got[1].ID)
}

func TestGetReportsSinceAndLimit(t *testing.T) {
	s := NewStore(10, 10, nil)
	base := time.Now().UTC()

	for i := 0; i < 4; i++ {
		s.AddReport(reportWith(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	since := base.Add(time.Second) // strictly after r1
	got := s.GetReports(&since, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "r3", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)

	got = s.GetReports(&since, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "r3", got[0].ID)
}

func TestLatestReport(t *testing.T) {
	s := NewStore(10, 10, nil)
	assert.Nil(t, s.LatestReport())

	now := time.Now().UTC()
	s.AddReport(reportWith("r1", now.Add(-time.Minute)))
	s.AddReport(reportWith("r2", now))

	latest := s.LatestReport()
	require.NotNil(t, latest)
	assert.Equal(t, "r2", latest.ID)
}

func TestSubscriberReceivesEvents(t *testing.T) {
	s := NewStore(10, 10, nil)
	var events []string
	s.Subscribe("test", func(eventType string, payload interface{}) {
		events = append(events, eventType)
	})

	now := time.Now().UTC()
	s.AddReport(reportWith("r1", now, insightAt("i1", now)))

	require.Equal(t, []string{EventNewReport, EventNewInsight}, events)
}

func TestSubscriberPanicIsolated(t *testing.T) {
	s := NewStore(10, 10, nil)
	s.Subscribe("bad", func(eventType string, payload interface{}) {
		panic("boom")
	})
	var delivered int
	s.Subscribe("zgood", func(eventType string, payload interface{}) {
		delivered++
	})

	assert.NotPanics(t, func() {
		s.AddInsight(insightAt("i1", time.Now().UTC()))
	})
	assert.Equal(t, 1, delivered)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := NewStore(10, 10, nil)
	var delivered int
	s.Subscribe("test", func(eventType string, payload interface{}) {
		delivered++
	})
	s.Unsubscribe("test")

	s.AddInsight(insightAt("i1", time.Now().UTC()))
	assert.Equal(t, 0, delivered)
}
