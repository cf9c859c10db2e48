// Package xai is a minimal client for the xAI chat-completions API, which
// speaks the OpenAI wire format.
package xai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const (
	defaultBaseURL   = "https://api.x.ai/v1"
	defaultMaxTokens = 1024

	// fallbackTokens is charged when the response omits usage.
	fallbackTokens = 1000
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxTokens         int
	Temperature       float64
}

// Completion is one model reply with its token usage.
type Completion struct {
	Content     string
	TotalTokens int
}

// Client calls the chat-completions endpoint. It does not retry; callers
// decide how to treat transient failures.
type Client struct {
	url         string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	http        *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimSuffix(base, "/chat/completions")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.2
	}

	return &Client{
		url:         base + "/chat/completions",
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temp,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, 1),
	}
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
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends a system and user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("xai: rate limiter: %w", err)
	}

	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("xai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("xai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("xai: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("xai: read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return Completion{}, err
	}

	var r chatResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return Completion{}, fmt.Errorf("xai: decode response: %w", err)
	}
	if len(r.Choices) == 0 || strings.TrimSpace(r.Choices[0].Message.Content) == "" {
		return Completion{}, fmt.Errorf("xai: empty response")
	}

	tokens := r.Usage.TotalTokens
	if tokens <= 0 {
		tokens = fallbackTokens
	}
	return Completion{Content: r.Choices[0].Message.Content, TotalTokens: tokens}, nil
}

// checkStatus maps provider errors onto domain sentinels.
func checkStatus(code int, body []byte) error {
	if code/100 == 2 {
		return nil
	}
	var e errorResponse
	msg := http.StatusText(code)
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	lower := strings.ToLower(msg + " " + e.Error.Type + " " + fmt.Sprint(e.Error.Code))

	switch {
	case strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "resource exhausted"):
		return fmt.Errorf("xai: %w: %s", domain.ErrResourceExhausted, msg)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("xai: %w: %s", domain.ErrRateLimited, msg)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("xai: %w: %s", domain.ErrUnauthorized, msg)
	default:
		return fmt.Errorf("xai: status %d: %s", code, msg)
	}
}
