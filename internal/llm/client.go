package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrNoAPIKey is returned when the client is constructed without
// credentials and a call is attempted.
var ErrNoAPIKey = errors.New("llm: api key is not configured")

// Config holds configuration for the text-generation client.
type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RPS        float64
	Burst      int
}

// Client calls an OpenAI-compatible chat-completions endpoint. A
// client-side limiter smooths request bursts so the breaker sees real
// dependency failures rather than self-inflicted rate-limit storms.
type Client struct {
	client     *resty.Client
	model      string
	apiKey     string
	endpoint   string
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
}

// GenerateRequest is one prompt submission.
type GenerateRequest struct {
	System          string
	Prompt          string
	MaxOutputTokens int
	Temperature     float64
}

// NewClient creates a new generation client.
// Parameters:
//   - cfg: model, credentials, endpoint, and call limits.
// Returns:
//   - *Client: initialized client wrapper.
func NewClient(cfg *Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 8
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Client{
		client:     client,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimSuffix(baseURL, "/") + "/chat/completions",
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

// GetModel returns the model name being used.
// Parameters: none.
// Returns:
//   - string: model identifier.
func (c *Client) GetModel() string {
	return c.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// retryableError marks failures worth retrying (throttling, server
// errors, transport failures).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Generate submits a prompt and returns the generated text.
// Parameters:
//   - ctx: context for cancellation; each attempt also carries the
//     configured per-call timeout.
//   - req: prompt, token budget, and temperature.
// Returns:
//   - string: generated text.
//   - error: non-nil if every attempt fails.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("llm: prompt is required")
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, callErr := c.call(ctx, body)
		if callErr == nil {
			return text, nil
		}
		lastErr = callErr

		var retryable *retryableError
		if !errors.As(callErr, &retryable) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(350*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", lastErr
}

func (c *Client) call(ctx context.Context, body chatRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(callCtx).
		SetBody(body).
		SetResult(&resp).
		Post(c.endpoint)

	if err != nil {
		return "", &retryableError{err: fmt.Errorf("call generation API: %w", err)}
	}

	status := httpResp.StatusCode()
	if status < 200 || status >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", status)
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", status, resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", status, string(httpResp.Body()))
		}
		wrapped := fmt.Errorf("generation API returned error: %s", errorMsg)
		if status == 429 || status >= 500 {
			return "", &retryableError{err: wrapped}
		}
		return "", wrapped
	}

	if resp.Error != nil {
		return "", fmt.Errorf("generation API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in generation response (status: %d)", status)
	}
	return resp.Choices[0].Message.Content, nil
}
