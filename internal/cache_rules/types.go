package cache_rules

import (
	"time"

	"go-upstream-guard/internal/models"
)

// CacheRulesConfig represents the cache rules configuration
type CacheRulesConfig struct {
	TTLDefaults map[models.Namespace]time.Duration `yaml:"ttl_defaults"`
	// Disabled namespaces bypass the cache entirely
	Disabled []models.Namespace `yaml:"disabled"`
}
