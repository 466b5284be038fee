package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"go-upstream-guard/internal/utils"
)

type limitExceededResponse struct {
	Error     string    `json:"error"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Middleware rejects requests over limit per window for the key returned by keyFunc
func (l *Limiter) Middleware(limit int, window time.Duration, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				// nothing to count against; the limiter fails open in the same way
				next.ServeHTTP(w, r)
				return
			}

			result, err := l.Check(r.Context(), "ip:"+key, limit, window)
			if err != nil {
				l.logger.Warn("Rate limit check rejected identifier", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.LimitReached {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := result.ResetAt.Sub(l.clock.Now())
			if seconds := utils.DurationCeilSeconds(retryAfter); seconds > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(limitExceededResponse{
				Error:     "rate limit exceeded",
				Remaining: result.Remaining,
				ResetAt:   result.ResetAt,
			})
		})
	}
}

// ClientIPKey keys requests by client IP
func ClientIPKey(trustProxyHeaders bool) func(*http.Request) string {
	return func(r *http.Request) string {
		return utils.ClientIP(r, trustProxyHeaders)
	}
}
