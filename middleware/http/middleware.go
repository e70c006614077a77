// Package http provides HTTP middleware that gates handlers on the
// usage quota: the enforcer's atomic check-and-increment runs before the
// wrapped handler, and the resulting snapshot rides the request context.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/postforge/postforge/pkg/auth"
	"github.com/postforge/postforge/pkg/quota"
)

// SessionExtractor extracts the anonymous session token from a request.
// Return empty string if no session identity is present.
type SessionExtractor func(r *http.Request) string

// UserExtractor extracts the authenticated user id from a request.
// Return empty string if the caller is anonymous.
type UserExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Enforcer is the quota authority (required)
	Enforcer *quota.Enforcer

	// GetSession extracts the session token from the request (required)
	GetSession SessionExtractor

	// GetUser extracts the authenticated user id (optional)
	GetUser UserExtractor

	// OnQuotaExceeded is called when the free limit is reached
	// If nil, returns 403 with a JSON body
	OnQuotaExceeded func(w http.ResponseWriter, r *http.Request, snap *quota.Snapshot)

	// OnError is called when an internal error occurs
	// If nil, returns 500 (or 400 for an invalid identity)
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

type contextKey string

const usageKey contextKey = "postforge:usage"

// Middleware creates an HTTP middleware that enforces the generation quota
func Middleware(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if config.GetUser != nil {
				userID = config.GetUser(r)
			}
			sessionToken := config.GetSession(r)

			snap, err := config.Enforcer.CheckAndIncrement(r.Context(), sessionToken, userID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
					return
				}
				if errors.Is(err, quota.ErrInvalidIdentity) {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid session ID format"})
				} else {
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to check usage limits"})
				}
				return
			}

			if !snap.CanGenerate {
				if config.OnQuotaExceeded != nil {
					config.OnQuotaExceeded(w, r, snap)
					return
				}
				writeJSON(w, http.StatusForbidden, map[string]interface{}{
					"error":           "Free limit reached",
					"limitReached":    true,
					"generationCount": snap.GenerationCount,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUsage(r.Context(), snap)))
		})
	}
}

// WithUsage stores a usage snapshot in the context
func WithUsage(ctx context.Context, snap *quota.Snapshot) context.Context {
	return context.WithValue(ctx, usageKey, snap)
}

// UsageFromContext returns the snapshot recorded by the middleware
func UsageFromContext(ctx context.Context) (*quota.Snapshot, bool) {
	snap, ok := ctx.Value(usageKey).(*quota.Snapshot)
	return snap, ok
}

// Common extractors for convenience

// SessionFromHeader returns a SessionExtractor reading a header
func SessionFromHeader(headerName string) SessionExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// SessionFromQuery returns a SessionExtractor reading a query parameter
func SessionFromQuery(param string) SessionExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

// BearerUser returns a UserExtractor that verifies the Authorization
// bearer token. Verification failures yield an anonymous caller.
func BearerUser(verifier auth.Verifier) UserExtractor {
	return func(r *http.Request) string {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			return ""
		}
		userID, err := verifier.Verify(r.Context(), strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			return ""
		}
		return userID
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response already committed
	_ = json.NewEncoder(w).Encode(body)
}
