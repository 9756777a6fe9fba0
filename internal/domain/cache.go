package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
//
// The cache is only used for derived read paths (latest snapshot per case).
// Resolved tags and catalog lookups are never cached: every evaluation must
// reflect current state.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetLatestSnapshot retrieves the cached latest snapshot for a case.
	// Returns nil, nil on a miss.
	GetLatestSnapshot(ctx context.Context, tenantID string, caseID string) (*RiskSnapshot, error)

	// SetLatestSnapshot caches the latest snapshot for a case. The
	// recorder overwrites this entry on every Record, so the cache can
	// never serve a snapshot older than the newest recorded one.
	SetLatestSnapshot(ctx context.Context, tenantID string, caseID string, snap *RiskSnapshot, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
