// Package postgres provides a PostgreSQL implementation of the quota.Storage
// interface. The conditional increment runs inside a transaction with
// SELECT FOR UPDATE so concurrent requests for the same identity serialize
// on the counter row.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/postforge/postforge/pkg/quota"
)

// Storage implements quota.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the usage_counters table if it does not exist
func (s *Storage) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS usage_counters (
			identity_key     TEXT PRIMARY KEY,
			generation_count INT NOT NULL DEFAULT 0,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create usage_counters table: %w", err)
	}

	return nil
}

// CheckAndIncrement implements quota.Storage with atomic consumption via transaction
func (s *Storage) CheckAndIncrement(ctx context.Context, req *quota.CheckRequest) (*quota.CheckResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	// Upsert avoids the insert race: the row is guaranteed to exist
	// before the SELECT FOR UPDATE below.
	_, err = tx.Exec(ctx,
		`INSERT INTO usage_counters (identity_key, generation_count, updated_at)
			VALUES ($1, 0, NOW())
			ON CONFLICT (identity_key) DO NOTHING`,
		req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure counter row exists: %w", err)
	}

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT generation_count FROM usage_counters
			WHERE identity_key = $1
			FOR UPDATE`,
		req.Key).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("failed to get counter for update: %w", err)
	}

	if req.Limit != quota.Unlimited && current >= int64(req.Limit) {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit: %w", err)
		}
		return &quota.CheckResult{Allowed: false, Count: int(current)}, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE usage_counters
			SET generation_count = $1, updated_at = NOW()
			WHERE identity_key = $2`,
		current+1, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to update counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &quota.CheckResult{Allowed: true, Count: int(current + 1)}, nil
}

// GetCount implements quota.Storage
func (s *Storage) GetCount(ctx context.Context, key string) (int, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT generation_count FROM usage_counters WHERE identity_key = $1`,
		key).Scan(&count)

	if err == pgx.ErrNoRows {
		return 0, nil // No usage yet is not an error
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}

	return int(count), nil
}

// Refund implements quota.Storage
func (s *Storage) Refund(ctx context.Context, key string, amount int) error {
	if amount <= 0 {
		return quota.ErrInvalidAmount
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE usage_counters
			SET generation_count = GREATEST(generation_count - $1, 0), updated_at = NOW()
			WHERE identity_key = $2`,
		amount, key)
	if err != nil {
		return fmt.Errorf("failed to refund counter: %w", err)
	}

	return nil
}
