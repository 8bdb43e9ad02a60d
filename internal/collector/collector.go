// Package collector builds infrastructure snapshots by walking every
// configured environment. A failing environment degrades its own
// contribution; it never fails the sweep.
package collector

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/models"
	"github.com/harborwatch/harborwatch-monitor/internal/portainer"
)

const (
	defaultLogTail     = 100
	maxLogChars        = 3000
	maxLogExcerpts     = 10
	defaultStatsBudget = 50
)

// Config tunes snapshot collection.
type Config struct {
	// LogTail is the number of log lines fetched from problem containers.
	LogTail int
	// StatsBudget caps the number of per-container stats reads per
	// metrics pass, protecting slow upstreams.
	StatsBudget int
}

// Collector walks environments and produces snapshots and metric samples.
type Collector struct {
	environments []portainer.Environment
	cfg          Config
	logger       *zap.Logger
}

// New creates a collector over the given environments.
func New(environments []portainer.Environment, cfg Config, logger *zap.Logger) *Collector {
	if cfg.LogTail <= 0 {
		cfg.LogTail = defaultLogTail
	}
	if cfg.StatsBudget <= 0 {
		cfg.StatsBudget = defaultStatsBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{environments: environments, cfg: cfg, logger: logger}
}

// Collect walks all environments and assembles a snapshot. It returns an
// error only when every environment fails; partial data is returned
// otherwise.
func (c *Collector) Collect(ctx context.Context) (*models.InfrastructureSnapshot, error) {
	snapshot := &models.InfrastructureSnapshot{CollectedAt: time.Now().UTC()}
	reachable := 0

	for _, env := range c.environments {
		endpoints, err := env.Client.ListEndpoints(ctx)
		if err != nil {
			c.logger.Warn("environment unreachable, skipping",
				zap.String("environment", env.Name), zap.Error(err))
			continue
		}
		reachable++

		for _, endpoint := range endpoints {
			c.collectEndpoint(ctx, env, endpoint, snapshot)
		}
	}

	if reachable == 0 && len(c.environments) > 0 {
		return nil, &CollectionError{Environments: len(c.environments)}
	}
	return snapshot, nil
}

// CollectionError reports that no environment could be reached.
type CollectionError struct {
	Environments int
}

func (e *CollectionError) Error() string {
	return "data collection failed: no reachable environments"
}

func (c *Collector) collectEndpoint(ctx context.Context, env portainer.Environment, endpoint portainer.Endpoint, snapshot *models.InfrastructureSnapshot) {
	status := "offline"
	if endpoint.Online() {
		status = "online"
	}
	snapshot.EndpointDetails = append(snapshot.EndpointDetails, models.EndpointDetail{
		EndpointName:   endpoint.Name,
		EndpointStatus: status,
	})
	if !endpoint.Online() {
		snapshot.EndpointsOffline++
		return
	}
	snapshot.EndpointsOnline++

	containers, err := env.Client.ListContainers(ctx, endpoint.ID, true)
	if err != nil {
		c.logger.Warn("failed to list containers",
			zap.String("environment", env.Name),
			zap.String("endpoint", endpoint.Name), zap.Error(err))
		return
	}

	for _, container := range containers {
		c.collectContainer(ctx, env, endpoint, container, snapshot)
	}
}

func (c *Collector) collectContainer(ctx context.Context, env portainer.Environment, endpoint portainer.Endpoint, container portainer.Container, snapshot *models.InfrastructureSnapshot) {
	if container.State == "running" {
		snapshot.ContainersRunning++
	} else {
		snapshot.ContainersStopped++
	}

	snapshot.ContainerDetails = append(snapshot.ContainerDetails, models.ContainerDetail{
		ContainerID:   container.ID,
		ContainerName: container.Name(),
		EndpointID:    endpoint.ID,
		EndpointName:  endpoint.Name,
		Status:        container.Status,
	})

	unhealthy := container.Unhealthy()
	if unhealthy {
		snapshot.ContainersUnhealthy++
	}

	details, err := env.Client.InspectContainer(ctx, endpoint.ID, container.ID)
	if err != nil {
		c.logger.Debug("inspect failed",
			zap.String("container", container.Name()), zap.Error(err))
		return
	}

	if finding, ok := securityFinding(endpoint.Name, container.Name(), details); ok {
		snapshot.SecurityFindings = append(snapshot.SecurityFindings, finding)
	}

	if c.problematic(container, details, unhealthy) && len(snapshot.ContainerLogs) < maxLogExcerpts {
		c.collectLogs(ctx, env, endpoint, container, details, snapshot)
	}
}

// problematic decides whether a container's logs are worth analyzing.
func (c *Collector) problematic(container portainer.Container, details *portainer.ContainerDetails, unhealthy bool) bool {
	if unhealthy || details.State.OOMKilled {
		return true
	}
	switch container.State {
	case "restarting":
		return true
	case "exited", "dead":
		return details.State.ExitCode != 0
	}
	return false
}

func (c *Collector) collectLogs(ctx context.Context, env portainer.Environment, endpoint portainer.Endpoint, container portainer.Container, details *portainer.ContainerDetails, snapshot *models.InfrastructureSnapshot) {
	logs, err := env.Client.ContainerLogs(ctx, endpoint.ID, container.ID, c.cfg.LogTail)
	if err != nil {
		c.logger.Debug("log fetch failed",
			zap.String("container", container.Name()), zap.Error(err))
		return
	}

	truncated := false
	if len(logs) > maxLogChars {
		logs = logs[len(logs)-maxLogChars:]
		truncated = true
	}

	snapshot.ContainerLogs = append(snapshot.ContainerLogs, models.ContainerLogExcerpt{
		ContainerName: container.Name(),
		EndpointName:  endpoint.Name,
		State:         container.State,
		ExitCode:      details.State.ExitCode,
		LogLines:      strings.Count(logs, "\n"),
		Truncated:     truncated,
		Logs:          logs,
	})
}

// securityFinding inspects host config for elevated privileges.
func securityFinding(endpointName, containerName string, details *portainer.ContainerDetails) (models.SecurityFinding, bool) {
	var risks []string
	if details.HostConfig.Privileged {
		risks = append(risks, "privileged mode")
	}
	for _, added := range details.HostConfig.CapAdd {
		switch strings.ToUpper(added) {
		case "SYS_ADMIN", "NET_ADMIN", "SYS_PTRACE", "ALL":
			risks = append(risks, "added capability "+strings.ToUpper(added))
		}
	}
	for _, opt := range details.HostConfig.SecurityOpt {
		if strings.Contains(strings.ToLower(opt), "unconfined") {
			risks = append(risks, "security profile disabled ("+opt+")")
		}
	}
	if len(risks) == 0 {
		return models.SecurityFinding{}, false
	}
	return models.SecurityFinding{
		ContainerName: containerName,
		EndpointName:  endpointName,
		Privileged:    details.HostConfig.Privileged,
		CapAdd:        details.HostConfig.CapAdd,
		SecurityOpt:   details.HostConfig.SecurityOpt,
		ElevatedRisks: risks,
	}, true
}

// CollectMetrics samples gauge metrics from running containers across all
// environments. Stats reads stop once the per-pass budget is spent.
func (c *Collector) CollectMetrics(ctx context.Context) []models.MetricSample {
	now := time.Now().UTC()
	budget := c.cfg.StatsBudget
	var samples []models.MetricSample

	for _, env := range c.environments {
		endpoints, err := env.Client.ListEndpoints(ctx)
		if err != nil {
			c.logger.Warn("environment unreachable for metrics",
				zap.String("environment", env.Name), zap.Error(err))
			continue
		}
		for _, endpoint := range endpoints {
			if !endpoint.Online() {
				continue
			}
			containers, err := env.Client.ListContainers(ctx, endpoint.ID, false)
			if err != nil {
				c.logger.Warn("failed to list containers for metrics",
					zap.String("endpoint", endpoint.Name), zap.Error(err))
				continue
			}
			for _, container := range containers {
				if budget <= 0 {
					c.logger.Debug("stats budget exhausted for this pass")
					return samples
				}
				budget--

				stats, err := env.Client.ContainerStats(ctx, endpoint.ID, container.ID)
				if err != nil {
					c.logger.Debug("stats read failed",
						zap.String("container", container.Name()), zap.Error(err))
					continue
				}
				samples = append(samples, containerSamples(endpoint, container, stats, now)...)
			}
		}
	}
	return samples
}

func containerSamples(endpoint portainer.Endpoint, container portainer.Container, stats *portainer.ContainerStats, now time.Time) []models.MetricSample {
	base := models.MetricSample{
		EndpointID:    endpoint.ID,
		EndpointName:  endpoint.Name,
		ContainerID:   container.ID,
		ContainerName: container.Name(),
		Timestamp:     now,
	}

	var rx, tx uint64
	for _, net := range stats.Networks {
		rx += net.RxBytes
		tx += net.TxBytes
	}

	sample := func(metric models.MetricType, value float64) models.MetricSample {
		s := base
		s.MetricType = metric
		s.Value = value
		return s
	}
	return []models.MetricSample{
		sample(models.MetricCPUPercent, stats.CPUPercent()),
		sample(models.MetricMemoryPercent, stats.MemoryPercent()),
		sample(models.MetricMemoryUsage, float64(stats.MemoryStats.Usage)),
		sample(models.MetricNetworkRxBytes, float64(rx)),
		sample(models.MetricNetworkTxBytes, float64(tx)),
	}
}
