package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/postforge/postforge/pkg/session"
)

// Enforcer is the authoritative component deciding whether a generation
// is permitted and recording it. Exactly one identity applies per call:
// a verified user id, which removes the ceiling, or an anonymous session
// token metered against MaxFree.
type Enforcer struct {
	storage Storage
	config  Config
}

// NewEnforcer creates an enforcer backed by the given storage.
func NewEnforcer(storage Storage, config Config) (*Enforcer, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	// Set defaults
	if config.MaxFree <= 0 {
		config.MaxFree = DefaultMaxFree
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Enforcer{
		storage: storage,
		config:  config,
	}, nil
}

// MaxFree returns the configured anonymous generation ceiling.
func (e *Enforcer) MaxFree() int {
	return e.config.MaxFree
}

// CheckAndIncrement decides whether a generation is permitted for the
// identity and, if so, records it. Authenticated identities are always
// permitted; their counter still increments for bookkeeping. The check
// and the increment are one atomic storage operation.
func (e *Enforcer) CheckAndIncrement(ctx context.Context, sessionToken, userID string) (*Snapshot, error) {
	key, limit, authed, err := e.identity(sessionToken, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := e.storage.CheckAndIncrement(ctx, &CheckRequest{Key: key, Limit: limit})
	e.config.Metrics.RecordStorageOperation("check_and_increment", time.Since(start), err)
	if err != nil {
		e.config.Logger.Error("usage check failed",
			Field{Key: "authenticated", Value: authed},
			Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("check and increment: %w", err)
	}

	snap := e.snapshot(res.Count, res.Allowed, authed)
	e.config.Metrics.RecordCheck(authed, snap.CanGenerate)
	e.config.Logger.Debug("usage check",
		Field{Key: "authenticated", Value: authed},
		Field{Key: "allowed", Value: snap.CanGenerate},
		Field{Key: "count", Value: snap.GenerationCount})

	return snap, nil
}

// Refund returns one consumed slot to the identity, clamping at zero.
// Used when a charged generation never happened (upstream failure).
func (e *Enforcer) Refund(ctx context.Context, sessionToken, userID string) error {
	key, _, authed, err := e.identity(sessionToken, userID)
	if err != nil {
		return err
	}

	start := time.Now()
	err = e.storage.Refund(ctx, key, 1)
	e.config.Metrics.RecordStorageOperation("refund", time.Since(start), err)
	e.config.Metrics.RecordRefund(err)
	if err != nil {
		e.config.Logger.Warn("refund failed",
			Field{Key: "authenticated", Value: authed},
			Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("refund: %w", err)
	}

	return nil
}

// Usage returns the identity's current standing without consuming a slot.
func (e *Enforcer) Usage(ctx context.Context, sessionToken, userID string) (*Snapshot, error) {
	key, limit, authed, err := e.identity(sessionToken, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	count, err := e.storage.GetCount(ctx, key)
	e.config.Metrics.RecordStorageOperation("get_count", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("get count: %w", err)
	}

	allowed := limit == Unlimited || count < limit
	return e.snapshot(count, allowed, authed), nil
}

// identity resolves the storage key and ceiling for a request. A user id
// takes precedence over a session token; an anonymous request with a
// malformed token is rejected before it reaches storage.
func (e *Enforcer) identity(sessionToken, userID string) (key string, limit int, authed bool, err error) {
	if userID != "" {
		return "user:" + userID, Unlimited, true, nil
	}
	if !session.Valid(sessionToken) {
		return "", 0, false, ErrInvalidIdentity
	}
	return "session:" + sessionToken, e.config.MaxFree, false, nil
}

func (e *Enforcer) snapshot(count int, allowed, authed bool) *Snapshot {
	remaining := Unlimited
	if !authed {
		remaining = e.config.MaxFree - count
		if remaining < 0 {
			remaining = 0
		}
	}

	return &Snapshot{
		CanGenerate:     allowed,
		GenerationCount: count,
		Remaining:       remaining,
		Authenticated:   authed,
	}
}
