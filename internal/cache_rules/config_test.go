package cache_rules

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

func TestNewCacheConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := &CacheRulesConfig{}

	cacheConfig := NewCacheConfig(config, logger)

	if cacheConfig == nil {
		t.Fatal("NewCacheConfig returned nil")
	}
	if cacheConfig.config != config {
		t.Error("Config not set correctly")
	}
	if cacheConfig.logger != logger {
		t.Error("Logger not set correctly")
	}
}

func TestNewCacheConfig_NilConfigUsesFallbacks(t *testing.T) {
	cacheConfig := NewCacheConfig(nil, zap.NewNop())

	if got := cacheConfig.TTLFor(models.NamespacePlaces); got != 24*time.Hour {
		t.Errorf("TTLFor(places) = %v, want 24h", got)
	}
}

func TestTTLFor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name      string
		config    *CacheRulesConfig
		namespace models.Namespace
		expected  time.Duration
	}{
		{
			name:      "empty defaults fall back to built-in TTL",
			config:    &CacheRulesConfig{},
			namespace: models.NamespaceScores,
			expected:  7 * 24 * time.Hour,
		},
		{
			name: "configured TTL wins",
			config: &CacheRulesConfig{
				TTLDefaults: map[models.Namespace]time.Duration{models.NamespacePlaces: time.Hour},
			},
			namespace: models.NamespacePlaces,
			expected:  time.Hour,
		},
		{
			name: "zero configured TTL falls back",
			config: &CacheRulesConfig{
				TTLDefaults: map[models.Namespace]time.Duration{models.NamespacePlaces: 0},
			},
			namespace: models.NamespacePlaces,
			expected:  24 * time.Hour,
		},
		{
			name: "disabled namespace bypasses cache",
			config: &CacheRulesConfig{
				TTLDefaults: map[models.Namespace]time.Duration{models.NamespacePlaces: time.Hour},
				Disabled:    []models.Namespace{models.NamespacePlaces},
			},
			namespace: models.NamespacePlaces,
			expected:  0,
		},
		{
			name:      "unknown namespace bypasses cache",
			config:    &CacheRulesConfig{},
			namespace: models.Namespace("other"),
			expected:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cacheConfig := NewCacheConfig(tt.config, logger)
			if got := cacheConfig.TTLFor(tt.namespace); got != tt.expected {
				t.Errorf("TTLFor(%s) = %v, want %v", tt.namespace, got, tt.expected)
			}
		})
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ interfaces.CachePolicy = NewCacheConfig(&CacheRulesConfig{}, zap.NewNop())
}

func BenchmarkTTLFor(b *testing.B) {
	cacheConfig := NewCacheConfig(&CacheRulesConfig{
		TTLDefaults: map[models.Namespace]time.Duration{models.NamespacePlaces: time.Hour},
	}, zap.NewNop())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cacheConfig.TTLFor(models.NamespacePlaces)
	}
}
