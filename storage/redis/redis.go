// Package redis provides a Redis implementation of the quota.Storage
// interface. The conditional increment runs as a Lua script so the check
// and the write execute atomically inside Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/postforge/postforge/pkg/quota"
)

// Storage implements quota.Storage using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "postforge:usage:")
	KeyPrefix string

	// CounterTTL is the TTL for usage counters (0 = no expiration).
	// Counters not expiring is the default: free-tier usage has no reset window.
	CounterTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "postforge:usage:",
		CounterTTL: 0,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "postforge:usage:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}

	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Storage) loadScripts() {
	// Conditional increment: admit when below the limit or when the
	// limit is negative (unlimited bookkeeping).
	s.scripts["checkAndIncrement"] = redis.NewScript(`
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local ttl = tonumber(ARGV[2])

		local current = tonumber(redis.call('GET', key) or '0')
		if limit >= 0 and current >= limit then
			return {current, 0}
		end

		local count = redis.call('INCR', key)
		if ttl > 0 then
			redis.call('EXPIRE', key, ttl)
		end

		return {count, 1}
	`)

	// Refund: decrement clamped at zero.
	s.scripts["refund"] = redis.NewScript(`
		local key = KEYS[1]
		local amount = tonumber(ARGV[1])

		local current = tonumber(redis.call('GET', key) or '0')
		local count = current - amount
		if count < 0 then
			count = 0
		end

		redis.call('SET', key, count, 'KEEPTTL')
		return count
	`)
}

// CheckAndIncrement implements quota.Storage
func (s *Storage) CheckAndIncrement(ctx context.Context, req *quota.CheckRequest) (*quota.CheckResult, error) {
	key := s.config.KeyPrefix + req.Key
	ttl := int(s.config.CounterTTL / time.Second)

	result, err := s.scripts["checkAndIncrement"].Run(ctx, s.client, []string{key}, req.Limit, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to run check script: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected script result: %v", result)
	}

	count, _ := values[0].(int64)
	allowed, _ := values[1].(int64)

	return &quota.CheckResult{
		Allowed: allowed == 1,
		Count:   int(count),
	}, nil
}

// GetCount implements quota.Storage
func (s *Storage) GetCount(ctx context.Context, key string) (int, error) {
	count, err := s.client.Get(ctx, s.config.KeyPrefix+key).Int()
	if err == redis.Nil {
		return 0, nil // No usage yet is not an error
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get count: %w", err)
	}

	return count, nil
}

// Refund implements quota.Storage
func (s *Storage) Refund(ctx context.Context, key string, amount int) error {
	if amount <= 0 {
		return quota.ErrInvalidAmount
	}

	if err := s.scripts["refund"].Run(ctx, s.client, []string{s.config.KeyPrefix + key}, amount).Err(); err != nil {
		return fmt.Errorf("failed to run refund script: %w", err)
	}

	return nil
}
