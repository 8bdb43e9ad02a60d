package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// Log patterns the fallback analyzer scans for, in priority order.
var (
	oomPatterns        = []string{"out of memory", "oom", "killed"}
	connectionPatterns = []string{"connection refused", "connection reset", "timed out", "econnrefused"}
)

// generateFallbackInsights produces deterministic rule-based insights
// from the snapshot. Used whenever the LLM is unavailable, and always
// available as the baseline analysis path.
func generateFallbackInsights(snapshot *models.InfrastructureSnapshot, now time.Time) []models.Insight {
	var insights []models.Insight

	add := func(severity models.Severity, category, title, description string, resources []string, action string) {
		insights = append(insights, models.Insight{
			ID:                uuid.NewString(),
			Severity:          severity,
			Category:          category,
			Title:             title,
			Description:       description,
			AffectedResources: resources,
			RecommendedAction: action,
			CreatedAt:         now,
		})
	}

	// Offline endpoints roll into one critical insight.
	var offline []string
	for _, e := range snapshot.EndpointDetails {
		if e.EndpointStatus != "online" {
			offline = append(offline, e.EndpointName)
		}
	}
	if len(offline) > 0 {
		add(models.SeverityCritical, models.CategoryAvailability,
			fmt.Sprintf("%d endpoint(s) offline", len(offline)),
			fmt.Sprintf("The following endpoints are unreachable: %s. Containers on these endpoints cannot be monitored or managed.", strings.Join(offline, ", ")),
			offline,
			"Check network connectivity and the agent on the affected endpoints.")
	}

	// Unhealthy containers roll into one warning.
	if unhealthy := unhealthyContainers(snapshot); len(unhealthy) > 0 {
		add(models.SeverityWarning, models.CategoryAvailability,
			fmt.Sprintf("%d container(s) unhealthy", len(unhealthy)),
			fmt.Sprintf("Health checks are failing for: %s.", strings.Join(unhealthy, ", ")),
			unhealthy,
			"Inspect the failing health checks and restart the containers if needed.")
	}

	// One insight per security finding.
	for _, finding := range snapshot.SecurityFindings {
		severity := models.SeverityWarning
		if finding.Privileged {
			severity = models.SeverityCritical
		}
		add(severity, models.CategorySecurity,
			fmt.Sprintf("Elevated privileges on %s", finding.ContainerName),
			fmt.Sprintf("Container %s on %s runs with elevated privileges: %s.",
				finding.ContainerName, finding.EndpointName, strings.Join(finding.ElevatedRisks, ", ")),
			[]string{finding.ContainerName},
			"Review whether this container genuinely needs elevated privileges.")
	}

	// One insight per outdated image.
	for _, img := range snapshot.OutdatedImages {
		add(models.SeverityInfo, models.CategoryImage,
			fmt.Sprintf("Outdated image in stack %s", img.StackName),
			fmt.Sprintf("Image %s in stack %s is behind the registry version.", img.ImageName, img.StackName),
			[]string{img.StackName},
			"Pull the latest image and redeploy the stack.")
	}

	// Log pattern analysis per problem container.
	for _, excerpt := range snapshot.ContainerLogs {
		insights = append(insights, logInsights(excerpt, now)...)
	}

	return insights
}

// logInsights scans one container's log excerpt for known failure
// patterns.
func logInsights(excerpt models.ContainerLogExcerpt, now time.Time) []models.Insight {
	var insights []models.Insight
	logs := strings.ToLower(excerpt.Logs)

	add := func(severity models.Severity, category, title, description, action string) {
		insights = append(insights, models.Insight{
			ID:                uuid.NewString(),
			Severity:          severity,
			Category:          category,
			Title:             title,
			Description:       description,
			AffectedResources: []string{excerpt.ContainerName},
			RecommendedAction: action,
			CreatedAt:         now,
		})
	}

	if containsAny(logs, oomPatterns) {
		add(models.SeverityCritical, models.CategoryLogs,
			fmt.Sprintf("Out of memory condition in %s", excerpt.ContainerName),
			fmt.Sprintf("Logs from %s on %s show out-of-memory errors.", excerpt.ContainerName, excerpt.EndpointName),
			"Raise the memory limit or investigate the memory leak, then restart the container.")
	}

	if containsAny(logs, connectionPatterns) {
		add(models.SeverityWarning, models.CategoryLogs,
			fmt.Sprintf("Connection errors in %s", excerpt.ContainerName),
			fmt.Sprintf("Logs from %s on %s show repeated connection failures.", excerpt.ContainerName, excerpt.EndpointName),
			"Check the dependent service and network path, then restart the container if errors persist.")
	}

	if excerpt.State == "restarting" {
		add(models.SeverityWarning, models.CategoryAvailability,
			fmt.Sprintf("Container stuck restarting: %s", excerpt.ContainerName),
			fmt.Sprintf("Container %s on %s is in a restart loop.", excerpt.ContainerName, excerpt.EndpointName),
			"Inspect recent logs for the crash cause before restarting manually.")
	} else if (excerpt.State == "exited" || excerpt.State == "dead") && excerpt.ExitCode != 0 {
		add(models.SeverityWarning, models.CategoryLogs,
			fmt.Sprintf("Container exited with error: %s", excerpt.ContainerName),
			fmt.Sprintf("Container %s on %s exited with code %d.", excerpt.ContainerName, excerpt.EndpointName, excerpt.ExitCode),
			"Review the exit logs and restart the container once the cause is addressed.")
	}

	return insights
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
