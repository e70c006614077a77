package quota

// Unlimited marks an identity with no generation ceiling.
// It is used both as a Limit value in storage requests and as the
// Remaining value reported for authenticated identities.
const Unlimited = -1

// DefaultMaxFree is the number of free generations granted to an
// anonymous session before sign-in is required.
const DefaultMaxFree = 3

// Snapshot reports an identity's usage standing after an enforcement decision.
type Snapshot struct {
	// CanGenerate indicates whether the generation was admitted.
	CanGenerate bool

	// GenerationCount is the persistent counter for the identity.
	// Post-increment when the generation was admitted, unchanged otherwise.
	GenerationCount int

	// Remaining is max(0, limit - count) for anonymous identities,
	// or Unlimited for authenticated identities.
	Remaining int

	// Authenticated indicates the identity was a verified user rather
	// than an anonymous session.
	Authenticated bool
}

// CheckRequest is a conditional-increment request against storage.
type CheckRequest struct {
	// Key identifies the usage record (session token or user id).
	Key string

	// Limit is the generation ceiling. Unlimited disables the check
	// while still incrementing the counter for bookkeeping.
	Limit int
}

// CheckResult is the outcome of an atomic conditional increment.
type CheckResult struct {
	// Allowed indicates the increment was applied.
	Allowed bool

	// Count is the counter value after the operation: post-increment
	// when allowed, the unchanged current count otherwise.
	Count int
}

// Config holds enforcer configuration.
type Config struct {
	// MaxFree is the generation ceiling for anonymous identities (default: DefaultMaxFree).
	MaxFree int

	// Logger is used for structured logging (default: NoopLogger).
	Logger Logger

	// Metrics is used for tracking enforcement operations (default: NoopMetrics).
	Metrics Metrics
}
