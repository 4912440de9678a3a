// Package cache provides caching implementations for Kestrel.
package cache

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a new cache based on configuration.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// decisionKey builds the cache key for an applicant's decision under one
// catalog version. The version in the key guarantees a catalog reload never
// serves a decision computed against older rules.
func decisionKey(applicantID, catalogVersion string) string {
	return "decision:" + catalogVersion + ":" + applicantID
}
