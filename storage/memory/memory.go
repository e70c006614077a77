// Package memory provides an in-memory implementation of the quota.Storage
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"sync"

	"github.com/postforge/postforge/pkg/quota"
)

// Storage implements quota.Storage using an in-memory map
type Storage struct {
	mu     sync.Mutex
	counts map[string]int
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{counts: make(map[string]int)}
}

// CheckAndIncrement implements quota.Storage. The mutex makes the
// check-then-increment a single atomic step.
func (s *Storage) CheckAndIncrement(ctx context.Context, req *quota.CheckRequest) (*quota.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.counts[req.Key]
	if req.Limit != quota.Unlimited && current >= req.Limit {
		return &quota.CheckResult{Allowed: false, Count: current}, nil
	}

	s.counts[req.Key] = current + 1
	return &quota.CheckResult{Allowed: true, Count: current + 1}, nil
}

// GetCount implements quota.Storage
func (s *Storage) GetCount(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[key], nil
}

// Refund implements quota.Storage
func (s *Storage) Refund(ctx context.Context, key string, amount int) error {
	if amount <= 0 {
		return quota.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.counts[key] - amount
	if current < 0 {
		current = 0
	}
	s.counts[key] = current

	return nil
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts = make(map[string]int)
}
