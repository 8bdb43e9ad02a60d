package monitor

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// rawInsight is the loosely-typed shape the model is asked to produce.
type rawInsight struct {
	Severity          string   `json:"severity"`
	Category          string   `json:"category"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	AffectedResources []string `json:"affected_resources"`
	RecommendedAction string   `json:"recommended_action"`
}

// parseInsights converts model output into insights. The model is not
// trusted: fences are stripped, non-array responses yield nil, items
// without a title are skipped, and unknown severities degrade to info.
func parseInsights(response string, now time.Time) []models.Insight {
	text := strings.TrimSpace(response)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var raw []rawInsight
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil
	}

	insights := make([]models.Insight, 0, len(raw))
	for _, item := range raw {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		category := item.Category
		if category == "" {
			category = models.CategoryGeneral
		}
		insights = append(insights, models.Insight{
			ID:                uuid.NewString(),
			Severity:          models.ParseSeverity(item.Severity),
			Category:          category,
			Title:             item.Title,
			Description:       item.Description,
			AffectedResources: item.AffectedResources,
			RecommendedAction: item.RecommendedAction,
			CreatedAt:         now,
		})
	}
	return insights
}
