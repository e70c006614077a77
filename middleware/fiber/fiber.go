// Package fiber provides Fiber middleware for generation-quota enforcement
package fiber

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/postforge/postforge/pkg/auth"
	"github.com/postforge/postforge/pkg/quota"
)

// UsageContextKey is the Fiber locals key under which the snapshot is stored
const UsageContextKey = "postforge:usage"

// SessionExtractor extracts the anonymous session token from a Fiber context
type SessionExtractor func(c *fiber.Ctx) string

// UserExtractor extracts the authenticated user id from a Fiber context
// Return empty string if the caller is anonymous
type UserExtractor func(c *fiber.Ctx) string

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
	OnQuotaExceeded func(c *fiber.Ctx, snap *quota.Snapshot) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 (or 400 for an invalid identity)
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that enforces the generation quota
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Enforcer == nil {
		panic("postforge/fiber: Config.Enforcer is required")
	}
	if cfg.GetSession == nil {
		panic("postforge/fiber: Config.GetSession is required")
	}

	return func(c *fiber.Ctx) error {
		var userID string
		if cfg.GetUser != nil {
			userID = cfg.GetUser(c)
		}

		snap, err := cfg.Enforcer.CheckAndIncrement(c.UserContext(), cfg.GetSession(c), userID)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			if errors.Is(err, quota.ErrInvalidIdentity) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID format"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to check usage limits"})
		}

		if !snap.CanGenerate {
			if cfg.OnQuotaExceeded != nil {
				return cfg.OnQuotaExceeded(c, snap)
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":           "Free limit reached",
				"limitReached":    true,
				"generationCount": snap.GenerationCount,
			})
		}

		c.Locals(UsageContextKey, snap)
		return c.Next()
	}
}

// UsageFromContext returns the snapshot recorded by the middleware
func UsageFromContext(c *fiber.Ctx) (*quota.Snapshot, bool) {
	snap, ok := c.Locals(UsageContextKey).(*quota.Snapshot)
	return snap, ok
}

// SessionFromHeader returns a SessionExtractor reading a header
func SessionFromHeader(headerName string) SessionExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// BearerUser returns a UserExtractor that verifies the Authorization
// bearer token. Verification failures yield an anonymous caller.
func BearerUser(verifier auth.Verifier) UserExtractor {
	return func(c *fiber.Ctx) string {
		authz := c.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			return ""
		}
		userID, err := verifier.Verify(c.UserContext(), strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			return ""
		}
		return userID
	}
}
