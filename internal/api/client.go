// ABOUTME: Resilient HTTP client with auth injection, timing, and retry/backoff
// ABOUTME: Single request path shared by every backend operation

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// healthTimeout is the short per-call timeout for liveness probes.
const healthTimeout = 10 * time.Second

// TokenSource supplies the bearer token for authenticated requests.
// Implementations may refresh expired tokens; a failure to produce a token
// is surfaced as a 401-shaped error.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Limits caps user-supplied input lengths before a request leaves the
// client.
type Limits struct {
	MaxMessageLength         int
	MaxTaskDescriptionLength int
	MaxRepositoryPathLength  int
	MaxRequirementsLength    int
}

// DefaultLimits returns the documented input caps.
func DefaultLimits() Limits {
	return Limits{
		MaxMessageLength:         1000,
		MaxTaskDescriptionLength: 500,
		MaxRepositoryPathLength:  255,
		MaxRequirementsLength:    2000,
	}
}

// Config holds the client's endpoint, timing, and retry configuration.
type Config struct {
	BaseURL      string
	ChatEndpoint string // prefix for /actions and /messages, default "/copilotkit"

	RequestTimeout  time.Duration // default per-call timeout
	AgentTimeout    time.Duration // timeout for executeAgentTask
	WorkflowTimeout time.Duration // timeout for executeWorkflow

	Retry  RetryPolicy
	Limits Limits
}

// Client issues requests against the Agent Orchestra backend. All operations
// share one request path with auth injection, per-call timeouts, timing, and
// structured retry.
type Client struct {
	baseURL      string
	chatEndpoint string

	requestTimeout  time.Duration
	agentTimeout    time.Duration
	workflowTimeout time.Duration

	policy RetryPolicy
	limits Limits

	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	tokens TokenSource

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client. Zero-valued Config fields fall back to documented
// defaults. Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		chatEndpoint:    cfg.ChatEndpoint,
		requestTimeout:  cfg.RequestTimeout,
		agentTimeout:    cfg.AgentTimeout,
		workflowTimeout: cfg.WorkflowTimeout,
		policy:          cfg.Retry,
		limits:          cfg.Limits,
		httpClient:      &http.Client{},
		logger:          logger.With("component", "api"),
		sleep:           sleepCtx,
	}
	if c.chatEndpoint == "" {
		c.chatEndpoint = "/copilotkit"
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = 300 * time.Second
	}
	if c.agentTimeout <= 0 {
		c.agentTimeout = 300 * time.Second
	}
	if c.workflowTimeout <= 0 {
		c.workflowTimeout = 1800 * time.Second
	}
	if c.policy.MaxAttempts == 0 {
		c.policy = DefaultRetryPolicy()
	}
	if c.limits == (Limits{}) {
		c.limits = DefaultLimits()
	}
	return c
}

// SetTokenSource installs the bearer token provider. The client is usable
// without one, but authenticated endpoints will be rejected by the backend.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *Client) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// callConfig holds per-call overrides.
type callConfig struct {
	timeout  time.Duration
	skipAuth bool
}

type callOption func(*callConfig)

// withTimeout overrides the per-call wall-clock timeout.
func withTimeout(d time.Duration) callOption {
	return func(cc *callConfig) { cc.timeout = d }
}

// withoutAuth skips bearer injection; used by the auth endpoints themselves.
func withoutAuth() callOption {
	return func(cc *callConfig) { cc.skipAuth = true }
}

// do issues method path with an optional JSON body, decoding a 2xx response
// into out when out is non-nil. Transient failures are retried per the
// policy with strictly sequential attempts; the returned error is always a
// structured *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any, opts ...callOption) error {
	cc := callConfig{timeout: c.requestTimeout}
	for _, o := range opts {
		o(&cc)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &Error{Message: "encoding request body: " + err.Error(), Code: CodeEncode}
		}
	}

	var lastErr *Error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.policy.Delay(attempt - 1)
			c.logger.Warn("retrying request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr.Message,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return lastErr
			}
		}

		apiErr := c.attempt(ctx, cc, method, path, payload, out)
		if apiErr == nil {
			return nil
		}
		lastErr = apiErr
		if !apiErr.Retryable {
			return apiErr
		}
	}
	return lastErr
}

// attempt performs a single request/response cycle. Every cycle is timed and
// logged for diagnostics.
func (c *Client) attempt(ctx context.Context, cc callConfig, method, path string, payload []byte, out any) *Error {
	reqCtx, cancel := context.WithTimeout(ctx, cc.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Message: "creating request: " + err.Error(), Code: CodeEncode}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !cc.skipAuth {
		if ts := c.tokenSource(); ts != nil {
			token, err := ts.AccessToken(reqCtx)
			if err != nil {
				return &Error{
					Message: "resolving access token: " + err.Error(),
					Code:    CodeAuth,
					Status:  401,
				}
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Debug("request failed",
			"method", method, "path", path,
			"duration_ms", duration.Milliseconds(), "error", err)
		return &Error{
			Message:   "request failed: " + err.Error(),
			Code:      CodeTransport,
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.logger.Debug("request completed",
		"method", method, "path", path,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds())
	if err != nil {
		return &Error{
			Message:   "reading response: " + err.Error(),
			Code:      CodeTransport,
			Retryable: true,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return &Error{
					Message: fmt.Sprintf("decoding response: %v", err),
					Code:    CodeDecode,
					Status:  resp.StatusCode,
				}
			}
		}
		return nil
	}
	return classifyStatus(resp.StatusCode, respBody)
}

// Health probes GET /health with a short timeout.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil,
		withTimeout(healthTimeout), withoutAuth())
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
