package l1

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/scheduler"
)

// lifeWindow only bounds how long bigcache keeps bytes around; the entry's own TTL decides visibility
const lifeWindow = 7 * 24 * time.Hour

// Ensure BigCache implements interfaces.Cache
var _ interfaces.Cache = (*BigCache)(nil)

// BigCache implements L1 cache using BigCache
type BigCache struct {
	cache            *bigcache.BigCache
	clock            clock.Clock
	logger           *zap.Logger
	metricsScheduler *scheduler.Scheduler
}

// NewBigCache creates a new BigCache instance
func NewBigCache(bigcacheCfg *config.BigCacheConfig, clk clock.Clock, logger *zap.Logger) (*BigCache, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.HardMaxCacheSize = bigcacheCfg.Size // Size in MB
	cfg.CleanWindow = 0
	cfg.Verbose = false
	if bigcacheCfg.MaxEntrySize > 0 {
		cfg.MaxEntrySize = bigcacheCfg.MaxEntrySize
	}

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	bc := &BigCache{
		cache:  cache,
		clock:  clk,
		logger: logger,
	}

	interval := bigcacheCfg.MetricsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	bc.startMetricsCollection(interval)

	return bc, nil
}

// Get retrieves a live entry; expired entries are removed and reported as a miss
func (bc *BigCache) Get(ctx context.Context, namespace, key string) (*models.CacheEntry, bool) {
	data, err := bc.cache.Get(key)
	if err != nil {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		bc.logger.Warn("Failed to unmarshal L1 cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("l1", "decode")
		_ = bc.cache.Delete(key) // Remove corrupted entry
		return nil, false
	}

	if entry.IsExpired(bc.clock.Now()) {
		_ = bc.cache.Delete(key)
		return nil, false
	}

	return &entry, true
}

// Set stores value in cache with TTL
func (bc *BigCache) Set(ctx context.Context, namespace, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	entry := models.NewCacheEntry(namespace, key, val, ttl, bc.clock.Now())

	data, err := json.Marshal(entry)
	if err != nil {
		bc.logger.Error("Failed to marshal cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("l1", "encode")
		return
	}

	if err := bc.cache.Set(key, data); err != nil {
		bc.logger.Error("Failed to set cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("l1", "set")
	}
}

// Delete removes entry from cache
func (bc *BigCache) Delete(ctx context.Context, namespace, key string) {
	_ = bc.cache.Delete(key)
}

// Close closes the cache
func (bc *BigCache) Close() error {
	bc.stopMetricsCollection()
	return bc.cache.Close()
}

// GetStats returns the allocated capacity in bytes and the number of entries
func (bc *BigCache) GetStats() (capacity, keys int64) {
	return int64(bc.cache.Capacity()), int64(bc.cache.Len())
}

func (bc *BigCache) startMetricsCollection(interval time.Duration) {
	bc.metricsScheduler = scheduler.NewWithClock(interval, bc.updateMetrics, bc.clock)
	bc.metricsScheduler.Start()

	// Initial collection
	bc.updateMetrics()

	bc.logger.Debug("Started L1 cache metrics collection", zap.Duration("interval", interval))
}

func (bc *BigCache) stopMetricsCollection() {
	if bc.metricsScheduler != nil {
		bc.metricsScheduler.Stop()
		bc.logger.Debug("Stopped L1 cache metrics collection")
	}
}

func (bc *BigCache) updateMetrics() {
	capacity, keys := bc.GetStats()
	metrics.UpdateL1CacheCapacity(capacity)
	metrics.UpdateCacheKeys("l1", keys)
}
