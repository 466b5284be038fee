package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Core request/hit/miss counters
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of cache requests",
		},
		[]string{"namespace"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace", "level"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Total number of swallowed cache level errors",
		},
		[]string{"level", "reason"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "level"},
	)

	// L1 capacity metrics only (bigcache is the only in-memory level)
	CacheCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_capacity_bytes",
			Help: "L1 cache capacity in bytes",
		},
		[]string{"level"},
	)

	CacheKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_keys",
			Help: "Number of entries held by a cache level",
		},
		[]string{"level"},
	)

	RateLimitChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Rate limit decisions by outcome",
		},
		[]string{"outcome"},
	)

	QuotaChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_checks_total",
			Help: "Usage quota checks by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	QuotaResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_resets_total",
			Help: "Usage periods reset during a check",
		},
	)

	FetchExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_executions_total",
			Help: "Computations actually executed by the single-flight fetcher",
		},
		[]string{"resource"},
	)

	FetchCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_coalesced_total",
			Help: "Callers that joined an already pending computation",
		},
		[]string{"resource"},
	)

	FetchFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_fallbacks_total",
			Help: "Results replaced by the fallback value",
		},
		[]string{"resource", "reason"},
	)

	FetchInflight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetcher_inflight",
			Help: "Pending computations per resource",
		},
		[]string{"resource"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of upstream provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation", "status"},
	)

	AnalyticsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_events_dropped_total",
			Help: "Analytics events dropped because the buffer was full or the write failed",
		},
	)
)

// RecordCacheRequest records a cache request
func RecordCacheRequest(namespace string) {
	CacheRequests.WithLabelValues(namespace).Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(namespace string, level string) {
	CacheHits.WithLabelValues(namespace, level).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(namespace string) {
	CacheMisses.WithLabelValues(namespace).Inc()
}

// RecordCacheError records an error a cache level swallowed
func RecordCacheError(level, reason string) {
	CacheErrors.WithLabelValues(level, reason).Inc()
}

// UpdateL1CacheCapacity updates L1 cache capacity metrics only
func UpdateL1CacheCapacity(capacity int64) {
	CacheCapacity.WithLabelValues("l1").Set(float64(capacity))
}

// UpdateCacheKeys updates the entry count of a cache level
func UpdateCacheKeys(level string, keys int64) {
	CacheKeys.WithLabelValues(level).Set(float64(keys))
}

// TimeCacheOperation returns a timer function for measuring a cache operation
func TimeCacheOperation(operation, level string) func() {
	timer := prometheus.NewTimer(CacheOperationDuration.WithLabelValues(operation, level))
	return func() {
		timer.ObserveDuration()
	}
}

// RecordRateLimit records a rate limit outcome: allowed, rejected or fail_open
func RecordRateLimit(outcome string) {
	RateLimitChecks.WithLabelValues(outcome).Inc()
}

// RecordQuotaCheck records a quota decision for a tier
func RecordQuotaCheck(tier string, limitReached bool) {
	outcome := "allowed"
	if limitReached {
		outcome = "limited"
	}
	QuotaChecks.WithLabelValues(tier, outcome).Inc()
}

// RecordQuotaReset records a usage period reset
func RecordQuotaReset() {
	QuotaResets.Inc()
}

// RecordFetchExecution records a computation start and returns its completion hook
func RecordFetchExecution(resource string) func() {
	FetchExecutions.WithLabelValues(resource).Inc()
	gauge := FetchInflight.WithLabelValues(resource)
	gauge.Inc()
	return gauge.Dec
}

// RecordFetchCoalesced records a caller served by a shared computation
func RecordFetchCoalesced(resource string) {
	FetchCoalesced.WithLabelValues(resource).Inc()
}

// RecordFetchFallback records a fallback substitution
func RecordFetchFallback(resource, reason string) {
	FetchFallbacks.WithLabelValues(resource, reason).Inc()
}

// TimeUpstreamRequest returns a function that records the call duration with its final status
func TimeUpstreamRequest(provider, operation string) func(status string) {
	start := time.Now()
	return func(status string) {
		UpstreamDuration.WithLabelValues(provider, operation, status).Observe(time.Since(start).Seconds())
	}
}

// RecordAnalyticsDropped records a lost analytics event
func RecordAnalyticsDropped() {
	AnalyticsDropped.Inc()
}
