package interfaces

import (
	"context"
	"time"

	"go-upstream-guard/internal/models"
)

//go:generate mockgen -package=mock -source=cache.go -destination=mock/cache.go

// Cache defines the contract for one TTL cache level
type Cache interface {
	// Get returns the live entry for namespace/key; expired entries are reported as not found
	Get(ctx context.Context, namespace, key string) (*models.CacheEntry, bool)
	// Set upserts the value; failures are logged by the implementation and never returned
	Set(ctx context.Context, namespace, key string, val []byte, ttl time.Duration)
	Delete(ctx context.Context, namespace, key string)
}

// LevelAwareCache is a composite cache that reports which level served a hit
type LevelAwareCache interface {
	Cache
	GetWithLevel(ctx context.Context, namespace, key string) models.CacheResult
}
