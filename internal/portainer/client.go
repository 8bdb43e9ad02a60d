// Package portainer talks to a Portainer-compatible container management
// API. The rest of the system depends on the Client interface; the HTTP
// implementation lives in http.go.
package portainer

import (
	"context"
	"fmt"
	"strings"
)

// Endpoint status values reported by the management API.
const (
	EndpointUp   = 1
	EndpointDown = 2
)

// Endpoint is a managed Docker environment.
type Endpoint struct {
	ID     int    `json:"Id"`
	Name   string `json:"Name"`
	Status int    `json:"Status"`
	URL    string `json:"URL"`
}

// Online reports whether the endpoint is reachable.
func (e Endpoint) Online() bool { return e.Status == EndpointUp }

// Container is a summary entry from the container list API.
type Container struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`  // running, exited, restarting, ...
	Status string            `json:"Status"` // human text, includes health
	Labels map[string]string `json:"Labels"`
}

// Name returns the primary container name without the leading slash.
func (c Container) Name() string {
	if len(c.Names) == 0 {
		return c.ID
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// Unhealthy reports whether the status text carries an unhealthy health check.
func (c Container) Unhealthy() bool {
	return strings.Contains(strings.ToLower(c.Status), "unhealthy")
}

// ContainerDetails is the inspect view of a single container.
type ContainerDetails struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status    string `json:"Status"`
		ExitCode  int    `json:"ExitCode"`
		OOMKilled bool   `json:"OOMKilled"`
		Health    *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
	HostConfig struct {
		Privileged  bool     `json:"Privileged"`
		CapAdd      []string `json:"CapAdd"`
		SecurityOpt []string `json:"SecurityOpt"`
	} `json:"HostConfig"`
}

// ContainerStats is a single non-streaming stats read.
type ContainerStats struct {
	CPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemCPUUsage uint64 `json:"system_cpu_usage"`
		OnlineCPUs     int    `json:"online_cpus"`
	} `json:"cpu_stats"`
	PreCPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemCPUUsage uint64 `json:"system_cpu_usage"`
	} `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
		Limit uint64 `json:"limit"`
	} `json:"memory_stats"`
	Networks map[string]struct {
		RxBytes uint64 `json:"rx_bytes"`
		TxBytes uint64 `json:"tx_bytes"`
	} `json:"networks"`
}

// CPUPercent derives CPU usage from the stats deltas.
func (s *ContainerStats) CPUPercent() float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemCPUUsage) - float64(s.PreCPUStats.SystemCPUUsage)
	if sysDelta <= 0 || cpuDelta < 0 {
		return 0
	}
	cpus := s.CPUStats.OnlineCPUs
	if cpus == 0 {
		cpus = 1
	}
	return cpuDelta / sysDelta * float64(cpus) * 100
}

// MemoryPercent derives memory usage relative to the limit.
func (s *ContainerStats) MemoryPercent() float64 {
	if s.MemoryStats.Limit == 0 {
		return 0
	}
	return float64(s.MemoryStats.Usage) / float64(s.MemoryStats.Limit) * 100
}

// APIError is a non-2xx response from the management API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portainer api error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == 404
}

// Client is the management API surface the monitoring pipeline needs.
type Client interface {
	// ListEndpoints returns all endpoints the environment manages.
	ListEndpoints(ctx context.Context) ([]Endpoint, error)

	// ListContainers returns containers on an endpoint. When all is false
	// only running containers are returned.
	ListContainers(ctx context.Context, endpointID int, all bool) ([]Container, error)

	// InspectContainer returns the detailed view of one container.
	InspectContainer(ctx context.Context, endpointID int, containerID string) (*ContainerDetails, error)

	// ContainerStats returns a single stats snapshot for one container.
	ContainerStats(ctx context.Context, endpointID int, containerID string) (*ContainerStats, error)

	// ContainerLogs returns up to tail lines of recent log output.
	ContainerLogs(ctx context.Context, endpointID int, containerID string, tail int) (string, error)

	// RestartContainer restarts a container.
	RestartContainer(ctx context.Context, endpointID int, containerID string) error

	// StartContainer starts a stopped container.
	StartContainer(ctx context.Context, endpointID int, containerID string) error

	// StopContainer stops a running container.
	StopContainer(ctx context.Context, endpointID int, containerID string) error
}

// Environment pairs a configured environment name with its API client.
type Environment struct {
	Name   string
	Client Client
}
