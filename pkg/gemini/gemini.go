// Package gemini is a minimal client for the generative-language API
// used by the generation pipeline. It covers exactly one operation,
// generateContent with a system instruction and a single user turn.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an upstream error body is carried
	// around for diagnostics.
	maxErrorBody = 4096
)

var (
	// ErrRateLimited is returned on upstream HTTP 429. Retryable after backoff.
	ErrRateLimited = errors.New("gemini: rate limited")

	// ErrCreditsExhausted is returned on upstream HTTP 402. Requires an
	// operator-level fix, not user-retryable.
	ErrCreditsExhausted = errors.New("gemini: credits exhausted")

	// ErrEmptyResponse is returned when the upstream response carries no
	// candidate text.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// StatusError is returned for upstream failures other than rate limiting
// and credit exhaustion. It carries the raw body for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: upstream status %d: %s", e.StatusCode, e.Body)
}

// Client calls the generative-language API over plain HTTP.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the model to invoke.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new client. The default HTTP client carries a 30s timeout.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// API wire types.
type generateRequest struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateContent sends one system instruction plus one user turn and
// returns the first candidate's text.
func (c *Client) GenerateContent(ctx context.Context, system, user string) (string, error) {
	body := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: system}}},
		Contents: []content{
			{Role: "user", Parts: []part{{Text: user}}},
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: send request: %w", err)
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrCreditsExhausted
	default:
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
