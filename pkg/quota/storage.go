package quota

import "context"

// Storage defines the interface for usage-counter persistence.
//
// CheckAndIncrement is the authority for quota decisions: the check and
// the increment must execute as a single atomic operation against the
// shared counter so that two concurrent requests for the same key can
// never both observe a free slot. How atomicity is achieved is the
// adapter's concern (mutex, Lua script, transaction).
type Storage interface {
	// CheckAndIncrement atomically increments the counter for req.Key
	// if it is below req.Limit (or unconditionally when the limit is
	// Unlimited). The record is created on first use.
	CheckAndIncrement(ctx context.Context, req *CheckRequest) (*CheckResult, error)

	// GetCount returns the current counter for a key, 0 if no record exists.
	GetCount(ctx context.Context, key string) (int, error)

	// Refund decrements the counter for a key by amount, clamping at zero.
	// Used to return slots consumed by generations that never happened.
	Refund(ctx context.Context, key string, amount int) error
}
