package models

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Namespace groups cache entries that share a TTL policy
type Namespace string

const (
	NamespacePlaces Namespace = "places"
	NamespaceScores Namespace = "ai_scores"
)

// UnmarshalYAML implements custom YAML unmarshaling for Namespace
func (n *Namespace) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	switch Namespace(str) {
	case NamespacePlaces, NamespaceScores:
		*n = Namespace(str)
		return nil
	default:
		return fmt.Errorf("invalid cache namespace '%s': must be one of '%s', '%s'", str, NamespacePlaces, NamespaceScores)
	}
}

// CacheLevel identifies which cache level served a hit
type CacheLevel string

const (
	CacheLevelL1   CacheLevel = "L1"
	CacheLevelL2   CacheLevel = "L2"
	CacheLevelMiss CacheLevel = "MISS"
)

// CacheEntry is a single cached value. The entry is considered absent once
// CreatedAt+TTLMs is not after now, even if the stored record still exists.
type CacheEntry struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     []byte `json:"value"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
	TTLMs     int64  `json:"ttlMs"`
}

// NewCacheEntry builds an entry created at now
func NewCacheEntry(namespace, key string, value []byte, ttl time.Duration, now time.Time) CacheEntry {
	return CacheEntry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		CreatedAt: now.UnixMilli(),
		TTLMs:     ttl.Milliseconds(),
	}
}

// IsExpired reports whether the entry must be treated as a miss at now
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.UnixMilli()-e.CreatedAt >= e.TTLMs
}

// ExpiresAt returns the instant the entry stops being served
func (e *CacheEntry) ExpiresAt() time.Time {
	return time.UnixMilli(e.CreatedAt + e.TTLMs)
}

// CacheResult is a cache lookup result carrying the level that served it
type CacheResult struct {
	Entry *CacheEntry
	Found bool
	Level CacheLevel
}
