package models

import "time"

// Severity ranks how urgently an insight needs attention.
type Severity string

const (
	SeverityCritical     Severity = "critical"
	SeverityWarning      Severity = "warning"
	SeverityInfo         Severity = "info"
	SeverityOptimization Severity = "optimization"
)

// ParseSeverity maps a free-form string to a Severity, defaulting to info
// for anything unrecognized. Model output is not trusted to stay in-range.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityWarning, SeverityInfo, SeverityOptimization:
		return Severity(s)
	default:
		return SeverityInfo
	}
}

// Insight categories. Suggestion logic only considers a subset actionable.
const (
	CategoryAvailability = "availability"
	CategorySecurity     = "security"
	CategoryImage        = "image"
	CategoryLogs         = "logs"
	CategoryResource     = "resource"
	CategoryGeneral      = "general"
)

// Insight is a single finding produced by a monitoring sweep.
type Insight struct {
	ID                string    `json:"id"`
	Severity          Severity  `json:"severity"`
	Category          string    `json:"category"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	AffectedResources []string  `json:"affected_resources"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// MonitoringReport is the result of one full sweep over the fleet.
type MonitoringReport struct {
	ID                 string    `json:"id"`
	GeneratedAt        time.Time `json:"generated_at"`
	Summary            string    `json:"summary"`
	Insights           []Insight `json:"insights"`
	EndpointsAnalyzed  int       `json:"endpoints_analyzed"`
	ContainersAnalyzed int       `json:"containers_analyzed"`
	LLMUsed            bool      `json:"llm_used"`
}

// SecurityFinding flags a container running with elevated privileges.
type SecurityFinding struct {
	ContainerName string   `json:"container_name"`
	EndpointName  string   `json:"endpoint_name"`
	Privileged    bool     `json:"privileged"`
	CapAdd        []string `json:"cap_add,omitempty"`
	SecurityOpt   []string `json:"security_opt,omitempty"`
	ElevatedRisks []string `json:"elevated_risks,omitempty"`
}

// OutdatedImage records a stack whose deployed image digest lags the registry.
type OutdatedImage struct {
	StackName     string `json:"stack_name"`
	ImageName     string `json:"image_name"`
	CurrentDigest string `json:"current_digest,omitempty"`
	LatestDigest  string `json:"latest_digest,omitempty"`
}

// EndpointDetail is the per-endpoint slice of a snapshot.
type EndpointDetail struct {
	EndpointName   string `json:"endpoint_name"`
	EndpointStatus string `json:"endpoint_status"`
}

// ContainerDetail is the per-container slice of a snapshot. The ids pin
// the container so suggestions derived from it can be executed without
// a name lookup.
type ContainerDetail struct {
	ContainerID   string `json:"container_id"`
	ContainerName string `json:"container_name"`
	EndpointID    int    `json:"endpoint_id"`
	EndpointName  string `json:"endpoint_name"`
	Status        string `json:"status"`
}

// ContainerLogExcerpt carries recent log output from a problematic container.
type ContainerLogExcerpt struct {
	ContainerName string `json:"container_name"`
	EndpointName  string `json:"endpoint_name"`
	State         string `json:"state"`
	ExitCode      int    `json:"exit_code"`
	LogLines      int    `json:"log_lines"`
	Truncated     bool   `json:"truncated"`
	Logs          string `json:"logs"`
}

// InfrastructureSnapshot is the collected state a sweep analyzes.
type InfrastructureSnapshot struct {
	CollectedAt         time.Time             `json:"collected_at"`
	EndpointsOnline     int                   `json:"endpoints_online"`
	EndpointsOffline    int                   `json:"endpoints_offline"`
	ContainersRunning   int                   `json:"containers_running"`
	ContainersStopped   int                   `json:"containers_stopped"`
	ContainersUnhealthy int                   `json:"containers_unhealthy"`
	EndpointDetails     []EndpointDetail      `json:"endpoint_details"`
	ContainerDetails    []ContainerDetail     `json:"container_details"`
	SecurityFindings    []SecurityFinding     `json:"security_findings"`
	OutdatedImages      []OutdatedImage       `json:"outdated_images"`
	ContainerLogs       []ContainerLogExcerpt `json:"container_logs"`
}

// TotalEndpoints returns the number of endpoints the snapshot covers.
func (s *InfrastructureSnapshot) TotalEndpoints() int {
	return s.EndpointsOnline + s.EndpointsOffline
}

// TotalContainers returns the number of containers the snapshot covers.
func (s *InfrastructureSnapshot) TotalContainers() int {
	return s.ContainersRunning + s.ContainersStopped
}
