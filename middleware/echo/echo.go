// Package echo provides Echo middleware for generation-quota enforcement
package echo

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/postforge/postforge/pkg/auth"
	"github.com/postforge/postforge/pkg/quota"
)

// UsageContextKey is the Echo context key under which the snapshot is stored
const UsageContextKey = "postforge:usage"

// SessionExtractor extracts the anonymous session token from an Echo context
type SessionExtractor func(c echo.Context) string

// UserExtractor extracts the authenticated user id from an Echo context
// Return empty string if the caller is anonymous
type UserExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Enforcer is the quota authority (required)
	Enforcer *quota.Enforcer

	// GetSession extracts the session token (required)
	GetSession SessionExtractor

	// GetUser extracts the authenticated user id (optional)
	GetUser UserExtractor

	// OnQuotaExceeded is called when the free limit is reached
	// If nil, returns 403 JSON
	OnQuotaExceeded func(c echo.Context, snap *quota.Snapshot) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 (or 400 for an invalid identity)
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that enforces the generation quota
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Enforcer == nil {
		panic("postforge/echo: Config.Enforcer is required")
	}
	if cfg.GetSession == nil {
		panic("postforge/echo: Config.GetSession is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var userID string
			if cfg.GetUser != nil {
				userID = cfg.GetUser(c)
			}

			snap, err := cfg.Enforcer.CheckAndIncrement(c.Request().Context(), cfg.GetSession(c), userID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				if errors.Is(err, quota.ErrInvalidIdentity) {
					return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session ID format"})
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to check usage limits"})
			}

			if !snap.CanGenerate {
				if cfg.OnQuotaExceeded != nil {
					return cfg.OnQuotaExceeded(c, snap)
				}
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"error":           "Free limit reached",
					"limitReached":    true,
					"generationCount": snap.GenerationCount,
				})
			}

			c.Set(UsageContextKey, snap)
			return next(c)
		}
	}
}

// UsageFromContext returns the snapshot recorded by the middleware
func UsageFromContext(c echo.Context) (*quota.Snapshot, bool) {
	snap, ok := c.Get(UsageContextKey).(*quota.Snapshot)
	return snap, ok
}

// SessionFromHeader returns a SessionExtractor reading a header
func SessionFromHeader(headerName string) SessionExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// BearerUser returns a UserExtractor that verifies the Authorization
// bearer token. Verification failures yield an anonymous caller.
func BearerUser(verifier auth.Verifier) UserExtractor {
	return func(c echo.Context) string {
		authz := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			return ""
		}
		userID, err := verifier.Verify(c.Request().Context(), strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			return ""
		}
		return userID
	}
}
