package multi

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

// Ensure MultiCache implements interfaces.LevelAwareCache
var _ interfaces.LevelAwareCache = (*MultiCache)(nil)

// MultiCache implements a composite cache that tries multiple cache implementations.
// caches[0] is treated as L1 and caches[1] as L2 for level reporting.
type MultiCache struct {
	caches            []interfaces.Cache
	enablePropagation bool
	clock             clock.Clock
	logger            *zap.Logger
}

// NewMultiCache creates a new MultiCache instance with provided cache implementations
func NewMultiCache(caches []interfaces.Cache, enablePropagation bool, clk clock.Clock, logger *zap.Logger) *MultiCache {
	return &MultiCache{
		caches:            caches,
		enablePropagation: enablePropagation,
		clock:             clk,
		logger:            logger,
	}
}

// Get retrieves value from the first cache that has the key
func (mc *MultiCache) Get(ctx context.Context, namespace, key string) (*models.CacheEntry, bool) {
	result := mc.GetWithLevel(ctx, namespace, key)
	return result.Entry, result.Found
}

// GetWithLevel tries each cache in order and reports the level that served the hit.
// A hit from a lower level is copied into the levels above it for its remaining TTL.
func (mc *MultiCache) GetWithLevel(ctx context.Context, namespace, key string) models.CacheResult {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for get operation", zap.String("key", key))
		return models.CacheResult{Level: models.CacheLevelMiss}
	}

	for i, cache := range mc.caches {
		entry, found := cache.Get(ctx, namespace, key)
		if !found || entry == nil {
			continue
		}

		if i > 0 && mc.enablePropagation {
			mc.propagate(ctx, namespace, key, entry, i)
		}

		return models.CacheResult{Entry: entry, Found: true, Level: levelOf(i)}
	}

	return models.CacheResult{Level: models.CacheLevelMiss}
}

func (mc *MultiCache) propagate(ctx context.Context, namespace, key string, entry *models.CacheEntry, hitIndex int) {
	remaining := entry.ExpiresAt().Sub(mc.clock.Now())
	if remaining <= 0 {
		return
	}

	for j := 0; j < hitIndex; j++ {
		mc.caches[j].Set(ctx, namespace, key, entry.Value, remaining)
	}

	mc.logger.Debug("Propagated cache entry to upper levels",
		zap.String("key", key),
		zap.Int("from_level", hitIndex),
		zap.Duration("remaining_ttl", remaining))
}

// Set stores value in all available caches
func (mc *MultiCache) Set(ctx context.Context, namespace, key string, val []byte, ttl time.Duration) {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for set operation", zap.String("key", key))
		return
	}

	for _, cache := range mc.caches {
		cache.Set(ctx, namespace, key, val, ttl)
	}
}

// Delete removes entry from all available caches
func (mc *MultiCache) Delete(ctx context.Context, namespace, key string) {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for delete operation", zap.String("key", key))
		return
	}

	for _, cache := range mc.caches {
		cache.Delete(ctx, namespace, key)
	}
}

// GetCacheCount returns the number of caches in the multi-cache
func (mc *MultiCache) GetCacheCount() int {
	return len(mc.caches)
}

func levelOf(index int) models.CacheLevel {
	if index == 0 {
		return models.CacheLevelL1
	}
	return models.CacheLevelL2
}
