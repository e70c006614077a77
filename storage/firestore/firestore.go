// Package firestore provides a Firestore implementation of the quota.Storage
// interface. The conditional increment runs inside a Firestore transaction,
// which retries on contention, so concurrent requests for the same identity
// can never both observe a free slot.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/postforge/postforge/pkg/quota"
)

// Storage implements quota.Storage using Google Cloud Firestore
type Storage struct {
	client          *firestore.Client
	usageCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// UsageCollection is the Firestore collection for usage counters
	// Default: "usage_counters"
	UsageCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.UsageCollection == "" {
		config.UsageCollection = "usage_counters"
	}

	return &Storage{
		client:          client,
		usageCollection: config.UsageCollection,
	}, nil
}

// CheckAndIncrement implements quota.Storage with transaction-safe consumption
func (s *Storage) CheckAndIncrement(ctx context.Context, req *quota.CheckRequest) (*quota.CheckResult, error) {
	doc := s.client.Collection(s.usageCollection).Doc(req.Key)
	var result quota.CheckResult

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)

		current := 0
		if err == nil && snap.Exists() {
			current = getInt(snap.Data(), "generationCount")
		} else if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if req.Limit != quota.Unlimited && current >= req.Limit {
			result = quota.CheckResult{Allowed: false, Count: current}
			return nil
		}

		result = quota.CheckResult{Allowed: true, Count: current + 1}
		return tx.Set(doc, map[string]interface{}{
			"generationCount": current + 1,
			"updatedAt":       time.Now().UTC(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check and increment: %w", err)
	}

	return &result, nil
}

// GetCount implements quota.Storage
func (s *Storage) GetCount(ctx context.Context, key string) (int, error) {
	snap, err := s.client.Collection(s.usageCollection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil // No usage yet is not an error
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}

	if !snap.Exists() {
		return 0, nil
	}

	return getInt(snap.Data(), "generationCount"), nil
}

// Refund implements quota.Storage
func (s *Storage) Refund(ctx context.Context, key string, amount int) error {
	if amount <= 0 {
		return quota.ErrInvalidAmount
	}

	doc := s.client.Collection(s.usageCollection).Doc(key)

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)

		current := 0
		if err == nil && snap.Exists() {
			current = getInt(snap.Data(), "generationCount")
		} else if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		current -= amount
		if current < 0 {
			current = 0
		}

		return tx.Set(doc, map[string]interface{}{
			"generationCount": current,
			"updatedAt":       time.Now().UTC(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("failed to refund counter: %w", err)
	}

	return nil
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
