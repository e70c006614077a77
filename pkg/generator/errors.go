package generator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for a bad topic, tone, or session format.
	// Not retryable until the input is corrected.
	ErrInvalidInput = errors.New("invalid input")

	// ErrQuotaExceeded is the sentinel wrapped by QuotaExceededError.
	ErrQuotaExceeded = errors.New("free limit reached")

	// ErrMalformedResponse is returned when no usable JSON draft can be
	// extracted from the model's text.
	ErrMalformedResponse = errors.New("malformed generation response")
)

// QuotaExceededError is returned when the enforcer denies a generation.
// It carries the current count so the caller can present the standing.
type QuotaExceededError struct {
	GenerationCount int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("free limit reached after %d generations", e.GenerationCount)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}
