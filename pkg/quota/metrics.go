package quota

import "time"

// Metrics defines the interface for tracking quota and generation operations.
type Metrics interface {
	// RecordCheck records an enforcement decision.
	RecordCheck(authenticated, allowed bool)

	// RecordRefund records a refund attempt.
	RecordRefund(err error)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordGeneration records the outcome and duration of a full
	// generation pipeline run (e.g. "ok", "quota_exceeded", "rate_limited").
	RecordGeneration(status string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordCheck(authenticated, allowed bool)                                    {}
func (n *NoopMetrics) RecordRefund(err error)                                                     {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordGeneration(status string, duration time.Duration)                     {}
