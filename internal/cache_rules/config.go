package cache_rules

import (
	"time"

	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

// CacheConfig implements the CachePolicy interface
type CacheConfig struct {
	config *CacheRulesConfig
	logger *zap.Logger
}

// Ensure CacheConfig implements the CachePolicy interface
var _ interfaces.CachePolicy = (*CacheConfig)(nil)

// NewCacheConfig creates a new CacheConfig instance
func NewCacheConfig(config *CacheRulesConfig, logger *zap.Logger) *CacheConfig {
	if config == nil {
		config = &CacheRulesConfig{}
	}
	return &CacheConfig{
		config: config,
		logger: logger,
	}
}

// TTLFor implements CachePolicy interface
func (cr *CacheConfig) TTLFor(namespace models.Namespace) time.Duration {
	for _, ns := range cr.config.Disabled {
		if ns == namespace {
			return 0
		}
	}

	if ttl, ok := cr.config.TTLDefaults[namespace]; ok && ttl > 0 {
		return ttl
	}

	ttl := getFallbackTTL(namespace)
	if ttl == 0 && cr.logger != nil {
		cr.logger.Debug("No TTL configured for namespace, bypassing cache",
			zap.String("namespace", string(namespace)))
	}
	return ttl
}

// getFallbackTTL provides fallback TTL values when config is not available
func getFallbackTTL(namespace models.Namespace) time.Duration {
	fallbackTTLs := map[models.Namespace]time.Duration{
		models.NamespacePlaces: 24 * time.Hour,
		models.NamespaceScores: 7 * 24 * time.Hour,
	}

	return fallbackTTLs[namespace]
}
