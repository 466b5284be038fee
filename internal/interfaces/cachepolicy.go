package interfaces

import (
	"time"

	"go-upstream-guard/internal/models"
)

//go:generate mockgen -package=mock -source=cachepolicy.go -destination=mock/cachepolicy.go

// CachePolicy resolves the TTL of a cache namespace
type CachePolicy interface {
	// TTLFor returns the TTL for namespace; zero means the namespace bypasses the cache
	TTLFor(namespace models.Namespace) time.Duration
}
