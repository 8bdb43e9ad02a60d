// Package llm provides a minimal chat-completion client for
// OpenAI-compatible APIs. The monitoring pipeline treats it as an
// optional enrichment: every caller must handle ErrDisabled and API
// failures by falling back to deterministic analysis.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/metrics"
)

// ErrDisabled is returned when no LLM is configured.
var ErrDisabled = errors.New("llm client disabled")

// Config holds the provider settings.
type Config struct {
	Enabled     bool
	Provider    string // openai | custom (any chat-completions compatible API)
	BaseURL     string // e.g. https://api.openai.com
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client sends chat-completion requests.
type Client interface {
	// Enabled reports whether requests can be attempted.
	Enabled() bool

	// Complete sends one system+user exchange and returns the assistant
	// text. Returns ErrDisabled when the client is not configured.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type httpClient struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a chat-completion client from config.
func NewClient(cfg Config, logger *zap.Logger) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
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

func (c *httpClient) Enabled() bool {
	return c.cfg.Enabled && c.cfg.BaseURL != "" && c.cfg.Model != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *httpClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	start := time.Now()
	text, err := c.complete(ctx, systemPrompt, userPrompt)
	metrics.LLMRequestDuration.WithLabelValues(c.cfg.Provider, c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Provider, c.cfg.Model, "error").Inc()
		return "", err
	}
	metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Provider, c.cfg.Model, "ok").Inc()
	return text, nil
}

func (c *httpClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "unknown error"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("chat api status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
