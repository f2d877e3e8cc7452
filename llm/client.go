// Package llm provides a provider-agnostic LLM client with retry and fallback support.
// It integrates with the model.Registry for capability-based model selection.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/chainweave/forge/model"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultRequestTimeout bounds a single HTTP round trip to a provider.
const defaultRequestTimeout = 30 * time.Second

// Client is a provider-agnostic LLM client with retry and fallback support.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request.
type Request struct {
	// Capability determines model selection via the registry.
	Capability string

	// Messages is the conversation history.
	Messages []Message

	// Temperature controls randomness. Nil uses the provider default.
	Temperature *float64

	// MaxTokens caps the response length. 0 uses the provider default.
	MaxTokens int

	// ReasoningEffort requests more or less deliberation from providers
	// that expose an effort parameter ("low", "medium", "high"). Providers
	// without one ignore it.
	ReasoningEffort string
}

// Response is an LLM completion response.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the endpoint name that produced the response.
	Model string

	// Refusal is non-empty when the provider declined to answer. Content
	// is usually empty in that case.
	Refusal string

	// Usage reports token consumption when the provider provides it.
	Usage Usage

	// FinishReason describes why generation stopped.
	FinishReason string
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig sets custom retry behavior.
func WithRetryConfig(rc RetryConfig) ClientOption {
	return func(c *Client) {
		c.retryConfig = rc
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates an LLM client backed by the given model registry.
func NewClient(registry *model.Registry, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		registry:    registry,
		httpClient:  &http.Client{Timeout: defaultRequestTimeout},
		retryConfig: DefaultRetryConfig(),
		logger:      logger.With("component", "llm-client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, walking the capability's fallback
// chain until an endpoint succeeds. Endpoints with open circuits are
// skipped up front; a fatal provider error (bad request, bad credentials)
// aborts the walk because every endpoint would reject the same payload.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Capability == "" {
		return nil, fmt.Errorf("capability is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	capability := model.Capability(req.Capability)
	chain := c.registry.GetAvailableFallbackChain(capability)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no endpoints for capability %q", req.Capability)
	}

	var lastErr error
	for _, endpointName := range chain {
		endpoint := c.registry.GetEndpoint(endpointName)
		if endpoint == nil {
			c.logger.Warn("endpoint not configured, skipping",
				"endpoint", endpointName,
				"capability", req.Capability)
			continue
		}

		provider := GetProvider(endpoint.Provider)
		if provider == nil {
			c.logger.Warn("provider not registered, skipping",
				"endpoint", endpointName,
				"provider", endpoint.Provider)
			continue
		}

		resp, err := c.tryEndpoint(ctx, provider, endpointName, endpoint, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			c.logger.Error("fatal error, aborting fallback chain",
				"endpoint", endpointName,
				"error", err)
			return nil, err
		}

		c.logger.Warn("endpoint failed, trying next in chain",
			"endpoint", endpointName,
			"error", err)
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no usable endpoints for capability %q", req.Capability)
	}
	return nil, fmt.Errorf("all endpoints failed for capability %q: %w", req.Capability, lastErr)
}

// tryEndpoint attempts a single endpoint with retries. Success and retry
// exhaustion are reported to the registry's health tracker; fatal errors
// are not, because they say nothing about endpoint availability.
func (c *Client) tryEndpoint(ctx context.Context, provider Provider, endpointName string, endpoint *model.EndpointConfig, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 && endpoint.MaxTokens > 0 {
		maxTokens = endpoint.MaxTokens
	}

	opts := RequestOptions{
		Temperature:     req.Temperature,
		MaxTokens:       maxTokens,
		ReasoningEffort: req.ReasoningEffort,
	}

	body, err := provider.BuildRequestBody(endpoint.Model, req.Messages, opts)
	if err != nil {
		return nil, NewFatalError(endpointName, fmt.Errorf("build request: %w", err))
	}

	url := provider.BuildURL(endpoint.URL, endpoint.Model)

	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.calculateBackoff(attempt - 1)
			c.logger.Debug("retrying after backoff",
				"endpoint", endpointName,
				"attempt", attempt,
				"delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.doRequest(ctx, provider, url, body, endpointName)
		if err == nil {
			c.registry.MarkEndpointSuccess(endpointName)
			c.logger.Debug("completion succeeded",
				"endpoint", endpointName,
				"attempt", attempt,
				"tokens", resp.Usage.TotalTokens)
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	c.registry.MarkEndpointFailure(endpointName)
	return nil, fmt.Errorf("endpoint %s exhausted %d attempts: %w", endpointName, c.retryConfig.MaxAttempts, lastErr)
}

// doRequest performs one HTTP round trip and parses the provider response.
func (c *Client) doRequest(ctx context.Context, provider Provider, url string, body []byte, endpointName string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(endpointName, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(endpointName, fmt.Errorf("http request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(endpointName, fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(endpointName, httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody, endpointName)
	if err != nil {
		return nil, NewTransientError(endpointName, fmt.Errorf("parse response: %w", err))
	}
	return resp, nil
}

// calculateBackoff returns the delay before retry number n (1-based),
// exponentially increasing with +/-25% jitter.
func (c *Client) calculateBackoff(n int) time.Duration {
	delay := float64(c.retryConfig.BackoffBase)
	for i := 1; i < n; i++ {
		delay *= c.retryConfig.BackoffMultiplier
	}
	if max := float64(c.retryConfig.MaxBackoff); delay > max {
		delay = max
	}

	// Jitter spreads retries from concurrent generations.
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(delay * jitter)
}

// classifyHTTPError maps an HTTP status to a transient or fatal error.
// Rate limits and server errors are worth retrying; client errors mean
// the request itself is wrong and will fail everywhere.
func classifyHTTPError(endpointName string, status int, body []byte) error {
	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200]
	}

	err := fmt.Errorf("status %d: %s", status, preview)
	switch {
	case status == http.StatusTooManyRequests:
		return NewTransientError(endpointName, err)
	case status >= 500:
		return NewTransientError(endpointName, err)
	default:
		return NewFatalError(endpointName, err)
	}
}
