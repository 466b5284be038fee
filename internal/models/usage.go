package models

import "time"

// Tier is the subscription tier of a user
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Unlimited is reported as remaining allowance for tiers without a cap
const Unlimited = -1

// UsageRecord is the canonical usage document of one user
type UsageRecord struct {
	UserID        string    `json:"userId"`
	Count         int       `json:"count"`
	LastResetDate time.Time `json:"lastResetDate"`
	Tier          Tier      `json:"tier"`
}

// UsageStatus is the result of a quota check
type UsageStatus struct {
	Count         int       `json:"count"`
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining"`
	Tier          Tier      `json:"tier"`
	LimitReached  bool      `json:"limitReached"`
	LastResetDate time.Time `json:"lastResetDate"`
	ResetsAt      time.Time `json:"resetsAt"`
}
