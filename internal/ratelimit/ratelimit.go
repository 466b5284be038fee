package ratelimit

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
)

// Collection holds one fixed-window counter per identifier
const Collection = "rate_limits"

// contentionRetryAfter is the reset hint given to requests rejected under contention
const contentionRetryAfter = time.Second

var ErrInvalidIdentifier = errors.New("rate limit identifier cannot be empty")

// Limiter is a fixed-window rate limiter whose read-decide-write sequence
// runs in one store transaction. Store failures fail open; a transaction
// that keeps losing to concurrent writers fails closed.
type Limiter struct {
	store  interfaces.DocumentStore
	clock  clock.Clock
	logger *zap.Logger
}

// NewLimiter creates a limiter on top of the durable store
func NewLimiter(store interfaces.DocumentStore, clk clock.Clock, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// Check consumes one request from the identifier's budget of limit requests per window.
// The only error is ErrInvalidIdentifier; infrastructure failures admit the request
// and contention on the counter rejects it.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) (models.RateLimitResult, error) {
	if identifier == "" {
		return models.RateLimitResult{}, ErrInvalidIdentifier
	}

	now := l.clock.Now()

	if limit <= 0 {
		metrics.RecordRateLimit("rejected")
		return models.RateLimitResult{LimitReached: true, Limit: limit, ResetAt: now.Add(window)}, nil
	}

	if window <= 0 {
		l.logger.Warn("Rate limit window is not positive, admitting request",
			zap.String("identifier", identifier),
			zap.Duration("window", window))
		metrics.RecordRateLimit("fail_open")
		return failOpen(limit, now), nil
	}

	var result models.RateLimitResult
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		// re-read the clock on every attempt; the store may retry fn
		now := l.clock.Now()

		counter, found, err := l.readCounter(tx, identifier)
		if err != nil {
			return err
		}

		if !found || now.UnixMilli() > counter.WindowResetAt {
			counter = models.RateLimitCounter{
				Identifier:    identifier,
				Count:         1,
				WindowResetAt: now.Add(window).UnixMilli(),
			}
			result = models.RateLimitResult{
				Limit:     limit,
				Remaining: limit - 1,
				ResetAt:   time.UnixMilli(counter.WindowResetAt),
			}
			return writeCounter(tx, counter)
		}

		if counter.Count >= limit {
			result = models.RateLimitResult{
				LimitReached: true,
				Limit:        limit,
				Remaining:    0,
				ResetAt:      time.UnixMilli(counter.WindowResetAt),
			}
			return nil
		}

		counter.Count++
		result = models.RateLimitResult{
			Limit:     limit,
			Remaining: limit - counter.Count,
			ResetAt:   time.UnixMilli(counter.WindowResetAt),
		}
		return writeCounter(tx, counter)
	})

	if errors.Is(err, interfaces.ErrContention) {
		l.logger.Warn("Rate limit counter contended, rejecting request",
			zap.String("identifier", identifier),
			zap.Error(err))
		metrics.RecordRateLimit("contention")
		return models.RateLimitResult{
			LimitReached: true,
			Limit:        limit,
			Remaining:    0,
			ResetAt:      l.clock.Now().Add(contentionRetryAfter),
		}, nil
	}

	if err != nil {
		l.logger.Error("Rate limit transaction failed, admitting request",
			zap.String("identifier", identifier),
			zap.Error(err))
		metrics.RecordRateLimit("fail_open")
		return failOpen(limit, now), nil
	}

	if result.LimitReached {
		metrics.RecordRateLimit("rejected")
	} else {
		metrics.RecordRateLimit("allowed")
	}
	return result, nil
}

func (l *Limiter) readCounter(tx interfaces.Transaction, identifier string) (models.RateLimitCounter, bool, error) {
	var counter models.RateLimitCounter

	doc, found, err := tx.Get(Collection, documentID(identifier))
	if err != nil || !found {
		return counter, false, err
	}

	if err := doc.Decode(&counter); err != nil {
		// an unreadable counter starts a new window
		l.logger.Warn("Discarding malformed rate limit counter",
			zap.String("identifier", identifier),
			zap.Error(err))
		return models.RateLimitCounter{}, false, nil
	}
	return counter, true, nil
}

func writeCounter(tx interfaces.Transaction, counter models.RateLimitCounter) error {
	doc, err := models.ToDocument(counter)
	if err != nil {
		return err
	}
	tx.Set(Collection, documentID(counter.Identifier), doc, false)
	return nil
}

// documentID keeps identifiers such as IPv6 addresses or paths usable as document ids
func documentID(identifier string) string {
	return url.PathEscape(identifier)
}

func failOpen(limit int, now time.Time) models.RateLimitResult {
	return models.RateLimitResult{
		LimitReached: false,
		Limit:        limit,
		Remaining:    limit,
		ResetAt:      now,
	}
}
