// Package client is the Go client for the generation service. It owns
// the client half of the usage-metering contract: a persistent anonymous
// session identity and an optimistic local usage cache that is
// overwritten by the server's authoritative snapshot on every response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/postforge/postforge/pkg/api"
	"github.com/postforge/postforge/pkg/quota"
	"github.com/postforge/postforge/pkg/session"
)

const (
	// UsageStoreKey is the store key for the cached usage snapshot.
	UsageStoreKey = "postforge-usage"

	defaultTimeout = 60 * time.Second
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode      int
	Message         string
	LimitReached    bool
	GenerationCount int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the generation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	bearer     string

	store    session.Store
	provider *session.Provider

	mu    sync.Mutex
	usage *api.Usage
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken sets the auth token for authenticated (unlimited) calls.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearer = token }
}

// New creates a client. The store persists the session identity and the
// usage cache across runs.
func New(baseURL string, store session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      store,
		provider:   session.NewProvider(store),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionToken returns the stable session identity for this installation.
func (c *Client) SessionToken() string {
	return c.provider.Token()
}

// Usage returns the locally cached usage snapshot. It is a hint for
// presentation only; the server decides, and every response replaces it.
func (c *Client) Usage() api.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loadUsage()
}

// CanGenerate reports whether the cached snapshot suggests a generation
// would be admitted. The server may still disagree.
func (c *Client) CanGenerate() bool {
	u := c.Usage()
	return u.IsAuthenticated || u.Remaining != 0
}

// Generate requests one post and updates the usage cache from the
// response, successful or not.
func (c *Client) Generate(ctx context.Context, topic, tone string) (*api.GenerateResponse, error) {
	body, err := json.Marshal(api.GenerateRequest{
		Topic:     topic,
		Tone:      tone,
		SessionID: c.SessionToken(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var out api.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.setUsage(out.Usage)
	return &out, nil
}

// RefreshUsage fetches the authoritative snapshot without generating.
func (c *Client) RefreshUsage(ctx context.Context) (api.Usage, error) {
	url := fmt.Sprintf("%s/usage?sessionId=%s", c.baseURL, c.SessionToken())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return api.Usage{}, fmt.Errorf("create request: %w", err)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return api.Usage{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return api.Usage{}, c.apiError(resp)
	}

	var out api.UsageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.Usage{}, fmt.Errorf("decode response: %w", err)
	}

	c.setUsage(out.Usage)
	return out.Usage, nil
}

// apiError decodes an error body and folds the authoritative count into
// the local cache when the limit was reached.
func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: "request failed"}

	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		}
		apiErr.LimitReached = body.LimitReached
		if body.GenerationCount != nil {
			apiErr.GenerationCount = *body.GenerationCount
		}
	}

	if apiErr.LimitReached {
		c.setUsage(api.Usage{
			GenerationCount: apiErr.GenerationCount,
			Remaining:       0,
		})
	}

	return apiErr
}

func (c *Client) setUsage(usage api.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.usage = &usage

	data, err := json.Marshal(usage)
	if err != nil {
		return
	}
	// Best-effort persistence; the cache is advisory.
	_ = c.store.Set(UsageStoreKey, string(data))
}

// loadUsage must be called with the mutex held.
func (c *Client) loadUsage() api.Usage {
	if c.usage != nil {
		return *c.usage
	}

	if stored, ok := c.store.Get(UsageStoreKey); ok {
		var u api.Usage
		if err := json.Unmarshal([]byte(stored), &u); err == nil {
			c.usage = &u
			return u
		}
		// Invalid stored data, reset
		_ = c.store.Clear(UsageStoreKey)
	}

	u := api.Usage{GenerationCount: 0, Remaining: quota.DefaultMaxFree}
	c.usage = &u
	return u
}
