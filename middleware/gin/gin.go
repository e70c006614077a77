// Package gin provides Gin middleware for generation-quota enforcement
package gin

import (
	"errors"
	"net/http"
	"strings"

	gongin "github.com/gin-gonic/gin"

	"github.com/postforge/postforge/pkg/auth"
	"github.com/postforge/postforge/pkg/quota"
)

// UsageContextKey is the Gin context key under which the snapshot is stored
const UsageContextKey = "postforge:usage"

// SessionExtractor extracts the anonymous session token from a Gin context
type SessionExtractor func(c *gongin.Context) string

// UserExtractor extracts the authenticated user id from a Gin context
// Return empty string if the caller is anonymous
type UserExtractor func(c *gongin.Context) string

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
	OnQuotaExceeded func(c *gongin.Context, snap *quota.Snapshot)

	// OnError is called when an internal error occurs
	// If nil, returns 500 (or 400 for an invalid identity)
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that enforces the generation quota
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Enforcer == nil {
		panic("postforge/gin: Config.Enforcer is required")
	}
	if cfg.GetSession == nil {
		panic("postforge/gin: Config.GetSession is required")
	}

	return func(c *gongin.Context) {
		var userID string
		if cfg.GetUser != nil {
			userID = cfg.GetUser(c)
		}

		snap, err := cfg.Enforcer.CheckAndIncrement(c.Request.Context(), cfg.GetSession(c), userID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else if errors.Is(err, quota.ErrInvalidIdentity) {
				c.JSON(http.StatusBadRequest, gongin.H{"error": "Invalid session ID format"})
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Failed to check usage limits"})
			}
			c.Abort()
			return
		}

		if !snap.CanGenerate {
			if cfg.OnQuotaExceeded != nil {
				cfg.OnQuotaExceeded(c, snap)
			} else {
				c.JSON(http.StatusForbidden, gongin.H{
					"error":           "Free limit reached",
					"limitReached":    true,
					"generationCount": snap.GenerationCount,
				})
			}
			c.Abort()
			return
		}

		c.Set(UsageContextKey, snap)
		c.Next()
	}
}

// UsageFromContext returns the snapshot recorded by the middleware
func UsageFromContext(c *gongin.Context) (*quota.Snapshot, bool) {
	v, ok := c.Get(UsageContextKey)
	if !ok {
		return nil, false
	}
	snap, ok := v.(*quota.Snapshot)
	return snap, ok
}

// SessionFromHeader returns a SessionExtractor reading a header
func SessionFromHeader(headerName string) SessionExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// BearerUser returns a UserExtractor that verifies the Authorization
// bearer token. Verification failures yield an anonymous caller.
func BearerUser(verifier auth.Verifier) UserExtractor {
	return func(c *gongin.Context) string {
		authz := c.GetHeader("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			return ""
		}
		userID, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			return ""
		}
		return userID
	}
}
