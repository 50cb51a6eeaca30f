// Package llm provides a resilient text-generation client with retry,
// typed failure classification, and a deterministic fallback response, plus
// a conversation store for multi-turn report chats.
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
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Endpoint identifies the remote completion endpoint.
type Endpoint struct {
	// Provider is the adapter name ("openai", "anthropic", "ollama").
	Provider string

	// URL is the base API URL. Empty uses the provider default.
	URL string

	// Model is the model identifier sent to the provider.
	Model string
}

// CompletionOptions configures a single completion request. All fields are
// optional; zero values fall back to documented defaults.
type CompletionOptions struct {
	// SystemPrompt replaces the default system message.
	SystemPrompt string

	// Temperature controls randomness. nil uses the default of 0.3.
	Temperature *float64

	// MaxTokens limits response length. 0 uses 3000.
	MaxTokens int

	// Model overrides the endpoint's configured model.
	Model string

	// Strict surfaces a *ProviderError after exhausted retries instead of
	// returning the deterministic fallback text.
	Strict bool
}

// defaultSystemPrompt is used when the caller provides none.
const defaultSystemPrompt = "Sei un esperto analista finanziario."

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 3000
)

// Observer receives the outcome of every completion call. Implementations
// must be safe for concurrent use.
type Observer interface {
	ObserveCompletion(provider string, duration time.Duration, attempts int, err error)
}

// Client issues completion requests against one configured endpoint.
type Client struct {
	endpoint    Endpoint
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	observer    Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithObserver sets the completion observer (e.g. for metrics).
func WithObserver(o Observer) ClientOption {
	return func(client *Client) {
		client.observer = o
	}
}

// NewClient creates a client for the given endpoint.
func NewClient(endpoint Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for long generations
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends one prompt and returns the generated text. After exhausting
// retries it either returns a *ProviderError (Strict) or the deterministic
// fallback analysis embedding the failure reason.
func (c *Client) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	system := opts.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	messages := []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: prompt},
	}

	return c.CompleteMessages(ctx, messages, opts)
}

// CompleteMessages sends a full message history. Used by Complete and by the
// conversation store for multi-turn chats.
func (c *Client) CompleteMessages(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("at least one message is required")
	}

	started := time.Now()
	resp, attempts, err := c.tryWithRetry(ctx, messages, opts)
	if c.observer != nil {
		c.observer.ObserveCompletion(c.endpoint.Provider, time.Since(started), attempts, err)
	}

	if err == nil {
		return resp.Content, nil
	}

	// Context cancellation is terminal regardless of mode: the caller gave
	// up, a placeholder would be discarded anyway.
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if opts.Strict {
		return "", &ProviderError{Provider: c.endpoint.Provider, Attempts: attempts, Err: err}
	}

	c.logger.Warn("All completion attempts failed, returning fallback analysis",
		"provider", c.endpoint.Provider,
		"attempts", attempts,
		"error", err)
	return FallbackAnalysis(attempts, err), nil
}

// tryWithRetry attempts a request with retry logic and returns the attempt
// count alongside the result.
func (c *Client) tryWithRetry(ctx context.Context, messages []Message, opts CompletionOptions) (*Response, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, messages, opts)
		if err == nil {
			return resp, attempt, nil
		}

		lastErr = err

		// Fatal errors indicate bad credentials or malformed requests:
		// retrying cannot help.
		if IsFatal(err) {
			return nil, attempt, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("Completion failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, c.retryConfig.MaxAttempts, lastErr
}

// calculateBackoff computes base * 2^(attempt-1) plus up to MaxJitter of
// random delay, capped at MaxBackoff. Jitter prevents thundering herd when
// multiple sessions retry simultaneously.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryConfig.BackoffBase
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := time.Duration(rand.Float64() * float64(c.retryConfig.MaxJitter))
	return backoff + jitter
}

// doRequest executes a single HTTP request to the completion endpoint.
func (c *Client) doRequest(ctx context.Context, messages []Message, opts CompletionOptions) (*Response, error) {
	provider := GetProvider(c.endpoint.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", c.endpoint.Provider))
	}

	model := opts.Model
	if model == "" {
		model = c.endpoint.Model
	}
	temperature := opts.Temperature
	if temperature == nil {
		t := defaultTemperature
		temperature = &t
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	url := provider.BuildURL(c.endpoint.URL)
	body, err := provider.BuildRequestBody(model, messages, temperature, maxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending completion request",
		"provider", c.endpoint.Provider,
		"model", model,
		"url", url,
		"messages", len(messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, model)
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("provider API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		// Bad requests are fatal
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal
		return NewFatalError(err)
	}
}

// FallbackAnalysis is the deterministic placeholder returned when the
// provider is unreachable after all retries. The wording matches the
// product's established fallback so downstream parsing stays stable.
func FallbackAnalysis(attempts int, cause error) string {
	return fmt.Sprintf(`Analisi finanziaria generica basata sui dati forniti:

L'azienda mostra indicatori che richiedono un'analisi approfondita.
I principali punti da considerare sono la liquidità, la struttura del capitale
e la redditività. Si consiglia di verificare in particolare il rapporto
debito/EBITDA e la posizione finanziaria netta.

[Nota: Questa è un'analisi generica generata in seguito a un errore di
comunicazione con il servizio AI dopo %d tentativi. Errore: %v]`, attempts, cause)
}
