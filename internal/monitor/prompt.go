package monitor

import (
	"fmt"
	"strings"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// systemPrompt instructs the model to return a strict JSON array of
// insight objects. Anything else is discarded by the parser.
const systemPrompt = `You are an infrastructure monitoring analyst for a Docker container fleet.
Analyze the provided infrastructure state and produce actionable insights.

Respond with ONLY a JSON array of insight objects. No prose, no markdown.
Each insight object has these fields:
  "severity": one of "critical", "warning", "info", "optimization"
  "category": one of "availability", "security", "image", "logs", "resource", "general"
  "title": short summary (under 80 characters)
  "description": what is wrong and why it matters
  "affected_resources": array of affected container or endpoint names
  "recommended_action": what an operator should do about it

Focus on genuine problems. An empty array [] is the correct response for a
healthy fleet. Never invent resources that are not in the provided data.`

// buildAnalysisPrompt renders the snapshot into the user prompt sections
// the model analyzes.
func buildAnalysisPrompt(snapshot *models.InfrastructureSnapshot) string {
	var b strings.Builder

	b.WriteString("## Infrastructure Summary\n")
	fmt.Fprintf(&b, "- Endpoints online: %d\n", snapshot.EndpointsOnline)
	fmt.Fprintf(&b, "- Endpoints offline: %d\n", snapshot.EndpointsOffline)
	fmt.Fprintf(&b, "- Containers running: %d\n", snapshot.ContainersRunning)
	fmt.Fprintf(&b, "- Containers stopped: %d\n", snapshot.ContainersStopped)
	fmt.Fprintf(&b, "- Containers unhealthy: %d\n", snapshot.ContainersUnhealthy)

	if len(snapshot.SecurityFindings) > 0 {
		b.WriteString("\n## Security Issues Detected\n")
		for _, f := range snapshot.SecurityFindings {
			fmt.Fprintf(&b, "- %s (endpoint: %s): %s\n",
				f.ContainerName, f.EndpointName, strings.Join(f.ElevatedRisks, ", "))
		}
	}

	if len(snapshot.OutdatedImages) > 0 {
		b.WriteString("\n## Outdated Images\n")
		for _, img := range snapshot.OutdatedImages {
			fmt.Fprintf(&b, "- stack %s: image %s is behind the registry\n", img.StackName, img.ImageName)
		}
	}

	b.WriteString("\n## Endpoints\n")
	for _, e := range snapshot.EndpointDetails {
		fmt.Fprintf(&b, "- %s: %s\n", e.EndpointName, e.EndpointStatus)
	}

	unhealthy := unhealthyContainers(snapshot)
	if len(unhealthy) > 0 {
		b.WriteString("\n## Unhealthy Containers\n")
		for _, name := range unhealthy {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	if len(snapshot.ContainerLogs) > 0 {
		b.WriteString("\n## Container Logs for Analysis\n")
		for _, excerpt := range snapshot.ContainerLogs {
			fmt.Fprintf(&b, "\n### %s (endpoint: %s, state: %s, exit_code: %d)\n",
				excerpt.ContainerName, excerpt.EndpointName, excerpt.State, excerpt.ExitCode)
			if excerpt.Truncated {
				b.WriteString("(log output truncated to most recent portion)\n")
			}
			b.WriteString(excerpt.Logs)
			if !strings.HasSuffix(excerpt.Logs, "\n") {
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// unhealthyContainers extracts names of containers whose status text
// carries an unhealthy health check.
func unhealthyContainers(snapshot *models.InfrastructureSnapshot) []string {
	var names []string
	for _, c := range snapshot.ContainerDetails {
		if strings.Contains(strings.ToLower(c.Status), "unhealthy") {
			names = append(names, c.ContainerName)
		}
	}
	return names
}
