package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. Decisions are cached
// keyed by applicant and catalog version so a catalog reload never serves
// stale results.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetDecision retrieves a cached decision for an applicant under a
	// specific catalog version. Returns nil, nil on miss.
	GetDecision(ctx context.Context, applicantID, catalogVersion string) (*Decision, error)

	// SetDecision caches a decision.
	SetDecision(ctx context.Context, d *Decision, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
