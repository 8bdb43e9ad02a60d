package portainer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// HTTPConfig configures an HTTP client for one environment.
type HTTPConfig struct {
	Name    string        // environment name, used in logs and metrics
	BaseURL string        // e.g. https://portainer.example.com
	APIKey  string        // X-API-Key credential
	Timeout time.Duration // per-request timeout, default 15s
}

// httpClient implements Client against the Portainer REST API.
type httpClient struct {
	cfg    HTTPConfig
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a Client for one environment.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *httpClient) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint
	if err := c.getJSON(ctx, "list_endpoints", "/api/endpoints", &endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

func (c *httpClient) ListContainers(ctx context.Context, endpointID int, all bool) ([]Container, error) {
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/json", endpointID)
	if all {
		path += "?all=1"
	}
	var containers []Container
	if err := c.getJSON(ctx, "list_containers", path, &containers); err != nil {
		return nil, err
	}
	return containers, nil
}

func (c *httpClient) InspectContainer(ctx context.Context, endpointID int, containerID string) (*ContainerDetails, error) {
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/%s/json", endpointID, url.PathEscape(containerID))
	details := &ContainerDetails{}
	if err := c.getJSON(ctx, "inspect_container", path, details); err != nil {
		return nil, err
	}
	return details, nil
}

func (c *httpClient) ContainerStats(ctx context.Context, endpointID int, containerID string) (*ContainerStats, error) {
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/%s/stats?stream=false", endpointID, url.PathEscape(containerID))
	stats := &ContainerStats{}
	if err := c.getJSON(ctx, "container_stats", path, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *httpClient) ContainerLogs(ctx context.Context, endpointID int, containerID string, tail int) (string, error) {
	if tail <= 0 {
		tail = 100
	}
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/%s/logs?stdout=1&stderr=1&tail=%d",
		endpointID, url.PathEscape(containerID), tail)

	body, err := c.do(ctx, "container_logs", http.MethodGet, path)
	if err != nil {
		return "", err
	}
	return sanitizeLogs(body), nil
}

func (c *httpClient) RestartContainer(ctx context.Context, endpointID int, containerID string) error {
	return c.containerAction(ctx, "restart", endpointID, containerID)
}

func (c *httpClient) StartContainer(ctx context.Context, endpointID int, containerID string) error {
	return c.containerAction(ctx, "start", endpointID, containerID)
}

func (c *httpClient) StopContainer(ctx context.Context, endpointID int, containerID string) error {
	return c.containerAction(ctx, "stop", endpointID, containerID)
}

func (c *httpClient) containerAction(ctx context.Context, action string, endpointID int, containerID string) error {
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/%s/%s", endpointID, url.PathEscape(containerID), action)
	_, err := c.do(ctx, action+"_container", http.MethodPost, path)
	return err
}

func (c *httpClient) getJSON(ctx context.Context, operation, path string, out interface{}) error {
	body, err := c.do(ctx, operation, http.MethodGet, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, operation, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(c.cfg.Name, operation, "error").Inc()
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(c.cfg.Name, operation, "error").Inc()
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequests.WithLabelValues(c.cfg.Name, operation, strconv.Itoa(resp.StatusCode)).Inc()
		c.logger.Debug("upstream request failed",
			zap.String("environment", c.cfg.Name),
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(body)}
	}

	metrics.UpstreamRequests.WithLabelValues(c.cfg.Name, operation, "ok").Inc()
	return body, nil
}

// apiMessage extracts the message field from an API error body, falling
// back to the raw body text.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		if payload.Details != "" {
			return payload.Message + ": " + payload.Details
		}
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "no error details"
	}
	return msg
}

// sanitizeLogs strips the 8-byte multiplexed stream headers Docker
// prepends to each log frame when TTY is disabled, plus control bytes.
func sanitizeLogs(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range string(raw) {
		if r == '\n' || r == '\t' || (r >= 32 && r != 127 && r != 0xFFFD) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
