package models

import "time"

// RateLimitCounter is the persisted fixed-window counter for one identifier
type RateLimitCounter struct {
	Identifier    string `json:"identifier"`
	Count         int    `json:"count"`
	WindowResetAt int64  `json:"windowResetAt"` // unix milliseconds
}

// RateLimitResult is the outcome of a rate limit check
type RateLimitResult struct {
	LimitReached bool      `json:"limitReached"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	ResetAt      time.Time `json:"resetAt"`
}
