// Package auth resolves bearer tokens to user ids through an external
// identity provider. The provider is opaque to the rest of the system:
// a token either maps to a user id or the caller stays anonymous.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// ErrInvalidToken is returned when the identity provider rejects a token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	// Verify returns the user id for a valid token, or an error.
	Verify(ctx context.Context, token string) (string, error)
}

// HTTPVerifier verifies tokens against a user-info endpoint that
// responds with {"id": "<user id>"} for a valid bearer token.
type HTTPVerifier struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Option configures the verifier.
type Option func(*HTTPVerifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(v *HTTPVerifier) { v.httpClient = hc }
}

// WithAPIKey sets the provider API key sent alongside the bearer token.
func WithAPIKey(key string) Option {
	return func(v *HTTPVerifier) { v.apiKey = key }
}

// NewHTTPVerifier creates a verifier for the given user-info endpoint.
func NewHTTPVerifier(endpoint string, opts ...Option) *HTTPVerifier {
	v := &HTTPVerifier{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify implements Verifier
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("auth: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ErrInvalidToken
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("auth: decode user: %w", err)
	}
	if user.ID == "" {
		return "", ErrInvalidToken
	}

	return user.ID, nil
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (string, error)

// Verify implements Verifier
func (f VerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}
