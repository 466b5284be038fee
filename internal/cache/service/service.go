package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/cache"
	"go-upstream-guard/internal/cache/multi"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
)

// CacheService is the TTL cache used by the domain services. It resolves
// namespace TTLs, builds storage keys and records hit/miss metrics.
type CacheService struct {
	multiCache interfaces.LevelAwareCache
	keyBuilder interfaces.KeyBuilder
	policy     interfaces.CachePolicy
	logger     *zap.Logger
}

// NewCacheService creates a new cache service over an L1 and an L2 level
func NewCacheService(l1Cache, l2Cache interfaces.Cache, policy interfaces.CachePolicy, enablePropagation bool, clk clock.Clock, logger *zap.Logger) *CacheService {
	caches := []interfaces.Cache{l1Cache, l2Cache}

	return &CacheService{
		multiCache: multi.NewMultiCache(caches, enablePropagation, clk, logger),
		keyBuilder: cache.NewKeyBuilder(),
		policy:     policy,
		logger:     logger,
	}
}

// GetResponse represents the result of a cache get operation
type GetResponse struct {
	Found      bool              `json:"found"`
	Value      []byte            `json:"value,omitempty"`
	Key        string            `json:"key"`
	Bypass     bool              `json:"bypass"`
	CacheLevel models.CacheLevel `json:"cache_level,omitempty"`
}

// Get looks up key in namespace
func (s *CacheService) Get(ctx context.Context, namespace models.Namespace, key string) (*GetResponse, error) {
	storageKey, err := s.keyBuilder.Build(string(namespace), key)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache key: %w", err)
	}

	if s.policy.TTLFor(namespace) == 0 {
		return &GetResponse{Key: storageKey, Bypass: true, CacheLevel: models.CacheLevelMiss}, nil
	}

	metrics.RecordCacheRequest(string(namespace))

	timer := metrics.TimeCacheOperation("get", "multi")
	defer timer()

	result := s.multiCache.GetWithLevel(ctx, string(namespace), storageKey)
	if result.Found && result.Entry != nil {
		metrics.RecordCacheHit(string(namespace), levelLabel(result.Level))
		return &GetResponse{
			Found:      true,
			Value:      result.Entry.Value,
			Key:        storageKey,
			CacheLevel: result.Level,
		}, nil
	}

	metrics.RecordCacheMiss(string(namespace))
	return &GetResponse{Key: storageKey, CacheLevel: models.CacheLevelMiss}, nil
}

// Set stores value with the namespace TTL
func (s *CacheService) Set(ctx context.Context, namespace models.Namespace, key string, value []byte) error {
	return s.SetWithTTL(ctx, namespace, key, value, s.policy.TTLFor(namespace))
}

// SetWithTTL stores value with an explicit TTL; a zero TTL stores nothing
func (s *CacheService) SetWithTTL(ctx context.Context, namespace models.Namespace, key string, value []byte, ttl time.Duration) error {
	storageKey, err := s.keyBuilder.Build(string(namespace), key)
	if err != nil {
		return fmt.Errorf("failed to build cache key: %w", err)
	}

	if ttl <= 0 {
		return nil
	}

	timer := metrics.TimeCacheOperation("set", "multi")
	defer timer()

	s.multiCache.Set(ctx, string(namespace), storageKey, value, ttl)
	return nil
}

// Delete invalidates key in every level
func (s *CacheService) Delete(ctx context.Context, namespace models.Namespace, key string) error {
	storageKey, err := s.keyBuilder.Build(string(namespace), key)
	if err != nil {
		return fmt.Errorf("failed to build cache key: %w", err)
	}

	s.multiCache.Delete(ctx, string(namespace), storageKey)
	return nil
}

// GetJSON decodes a cached value into v. Undecodable values are invalidated and reported as a miss.
func (s *CacheService) GetJSON(ctx context.Context, namespace models.Namespace, key string, v interface{}) bool {
	resp, err := s.Get(ctx, namespace, key)
	if err != nil {
		s.logger.Warn("Cache lookup failed", zap.String("namespace", string(namespace)), zap.Error(err))
		return false
	}
	if !resp.Found {
		return false
	}

	if err := json.Unmarshal(resp.Value, v); err != nil {
		s.logger.Warn("Dropping undecodable cache value",
			zap.String("namespace", string(namespace)),
			zap.String("key", resp.Key),
			zap.Error(err))
		metrics.RecordCacheError("multi", "decode")
		s.multiCache.Delete(ctx, string(namespace), resp.Key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it with the namespace TTL
func (s *CacheService) SetJSON(ctx context.Context, namespace models.Namespace, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return s.Set(ctx, namespace, key, data)
}

// KeyFromParams derives a logical key from structured parameters
func (s *CacheService) KeyFromParams(params interface{}) (string, error) {
	return s.keyBuilder.BuildFromParams(params)
}

func levelLabel(level models.CacheLevel) string {
	switch level {
	case models.CacheLevelL1:
		return "l1"
	case models.CacheLevelL2:
		return "l2"
	default:
		return "unknown"
	}
}
