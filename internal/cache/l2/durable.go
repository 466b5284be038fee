package l2

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
)

// Collection holds one document per cache entry
const Collection = "cache_entries"

// Ensure DurableCache implements interfaces.Cache
var _ interfaces.Cache = (*DurableCache)(nil)

// DurableCache implements the L2 cache on the shared document store.
// Expiry is lazy: stale documents stay in the store and are treated as absent.
type DurableCache struct {
	store   interfaces.DocumentStore
	clock   clock.Clock
	timeout time.Duration
	logger  *zap.Logger
}

// NewDurableCache creates a new DurableCache instance
func NewDurableCache(store interfaces.DocumentStore, clk clock.Clock, timeout time.Duration, logger *zap.Logger) *DurableCache {
	return &DurableCache{
		store:   store,
		clock:   clk,
		timeout: timeout,
		logger:  logger,
	}
}

func (dc *DurableCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if dc.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, dc.timeout)
}

// Get retrieves a live entry; store errors are logged and reported as a miss
func (dc *DurableCache) Get(ctx context.Context, namespace, key string) (*models.CacheEntry, bool) {
	ctx, cancel := dc.withTimeout(ctx)
	defer cancel()

	doc, found, err := dc.store.Get(ctx, Collection, key)
	if err != nil {
		dc.logger.Error("L2 cache get error", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("l2", "get")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry models.CacheEntry
	if err := doc.Decode(&entry); err != nil {
		dc.logger.Error("Failed to decode L2 cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("l2", "decode")
		return nil, false
	}

	if entry.IsExpired(dc.clock.Now()) {
		return nil, false
	}

	return &entry, true
}

// Set upserts the entry, last writer wins; errors are logged and swallowed
func (dc *DurableCache) Set(ctx context.Context, namespace, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	dc.write(ctx, models.NewCacheEntry(namespace, key, val, ttl, dc.clock.Now()))
}

// Delete overwrites the entry with one that is already expired
func (dc *DurableCache) Delete(ctx context.Context, namespace, key string) {
	dc.write(ctx, models.NewCacheEntry(namespace, key, nil, 0, dc.clock.Now()))
}

func (dc *DurableCache) write(ctx context.Context, entry models.CacheEntry) {
	ctx, cancel := dc.withTimeout(ctx)
	defer cancel()

	doc, err := models.ToDocument(entry)
	if err != nil {
		dc.logger.Error("Failed to encode L2 cache entry", zap.String("key", entry.Key), zap.Error(err))
		metrics.RecordCacheError("l2", "encode")
		return
	}

	if err := dc.store.Set(ctx, Collection, entry.Key, doc, false); err != nil {
		dc.logger.Error("Failed to set L2 cache entry", zap.String("key", entry.Key), zap.Error(err))
		metrics.RecordCacheError("l2", "set")
	}
}
