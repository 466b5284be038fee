package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
)

// Collection holds one usage document per user, keyed by user id
const Collection = "usage"

var ErrInvalidUserID = errors.New("user id cannot be empty")

// Tracker enforces the per-period allowance of free-tier users.
// Premium users are counted but never gated.
type Tracker struct {
	store       interfaces.DocumentStore
	freeLimit   int
	resetPeriod time.Duration
	clock       clock.Clock
	logger      *zap.Logger
}

// NewTracker creates a usage tracker
func NewTracker(store interfaces.DocumentStore, cfg *config.QuotaConfig, clk clock.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:       store,
		freeLimit:   cfg.FreeLimit,
		resetPeriod: cfg.ResetPeriod,
		clock:       clk,
		logger:      logger,
	}
}

// CheckLimit returns the user's usage status, resetting the period first when it has elapsed.
// A missing usage document yields a fresh free-tier status and is not persisted.
// Store failures admit the user; the only error is ErrInvalidUserID.
func (t *Tracker) CheckLimit(ctx context.Context, userID string) (models.UsageStatus, error) {
	if userID == "" {
		return models.UsageStatus{}, ErrInvalidUserID
	}

	var (
		record models.UsageRecord
		reset  bool
	)
	err := t.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		now := t.clock.Now()
		reset = false

		doc, found, err := tx.Get(Collection, userID)
		if err != nil {
			return err
		}
		if !found {
			record = models.UsageRecord{UserID: userID, LastResetDate: now, Tier: models.TierFree}
			return nil
		}

		// re-validated on every attempt so concurrent checks reset once
		record = normalizeUsage(userID, doc, now)
		if t.resetDue(record, now) {
			record.Count = 0
			record.LastResetDate = now
			reset = true
			return writeUsage(tx, record, false)
		}
		return nil
	})

	if err != nil {
		t.logger.Error("Usage check failed, admitting user",
			zap.String("user_id", userID),
			zap.Error(err))
		now := t.clock.Now()
		record = models.UsageRecord{UserID: userID, LastResetDate: now, Tier: models.TierFree}
		status := t.status(record)
		status.LimitReached = false
		metrics.RecordQuotaCheck("fail_open", false)
		return status, nil
	}

	if reset {
		metrics.RecordQuotaReset()
		t.logger.Debug("Usage period reset",
			zap.String("user_id", userID),
			zap.Time("last_reset", record.LastResetDate))
	}

	status := t.status(record)
	metrics.RecordQuotaCheck(string(status.Tier), status.LimitReached)
	return status, nil
}

// Increment records one successful use of the gated operation.
// Call it only after the operation succeeded. Callers that gate concurrent
// operations use Reserve instead, which cannot overdraw the allowance.
func (t *Tracker) Increment(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	err := t.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		now := t.clock.Now()

		doc, found, err := tx.Get(Collection, userID)
		if err != nil {
			return err
		}

		if !found {
			record := models.UsageRecord{UserID: userID, Count: 1, LastResetDate: now, Tier: models.TierFree}
			return writeUsage(tx, record, true)
		}

		record := normalizeUsage(userID, doc, now)
		if t.resetDue(record, now) {
			record.Count = 0
			record.LastResetDate = now
		}

		record.Count++
		return writeUsage(tx, record, false)
	})
	if err != nil {
		return fmt.Errorf("failed to increment usage for %s: %w", userID, err)
	}
	return nil
}

// Reservation is one unit of allowance held by an operation in flight
type Reservation struct {
	UserID string
	// Granted reports that the operation may run
	Granted bool
	// Status is the usage after the reservation
	Status models.UsageStatus
	// periodStart pins the unit to the period it was taken from
	periodStart time.Time
	// held is false when nothing was written, e.g. when the store failed open
	held bool
}

// Reserve checks the allowance and takes one unit in the same transaction, so
// concurrent callers can never overdraw a free user's remaining units. Premium
// users are always granted; their unit is telemetry. Store failures grant
// without holding a unit. The only error is ErrInvalidUserID.
func (t *Tracker) Reserve(ctx context.Context, userID string) (Reservation, error) {
	if userID == "" {
		return Reservation{}, ErrInvalidUserID
	}

	var (
		record  models.UsageRecord
		granted bool
		reset   bool
	)
	err := t.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		now := t.clock.Now()
		granted, reset = false, false

		doc, found, err := tx.Get(Collection, userID)
		if err != nil {
			return err
		}

		if found {
			record = normalizeUsage(userID, doc, now)
			if t.resetDue(record, now) {
				record.Count = 0
				record.LastResetDate = now
				reset = true
			}
		} else {
			record = models.UsageRecord{UserID: userID, LastResetDate: now, Tier: models.TierFree}
		}

		if record.Tier != models.TierPremium && record.Count >= t.freeLimit {
			if reset {
				return writeUsage(tx, record, false)
			}
			return nil
		}

		record.Count++
		granted = true
		return writeUsage(tx, record, !found)
	})

	if err != nil {
		t.logger.Error("Usage reservation failed, admitting user",
			zap.String("user_id", userID),
			zap.Error(err))
		status := t.status(models.UsageRecord{UserID: userID, LastResetDate: t.clock.Now(), Tier: models.TierFree})
		status.LimitReached = false
		metrics.RecordQuotaCheck("fail_open", false)
		return Reservation{UserID: userID, Granted: true, Status: status}, nil
	}

	if reset {
		metrics.RecordQuotaReset()
	}

	status := t.status(record)
	metrics.RecordQuotaCheck(string(status.Tier), !granted)
	return Reservation{
		UserID:      userID,
		Granted:     granted,
		Status:      status,
		periodStart: record.LastResetDate,
		held:        granted,
	}, nil
}

// Release returns the unit taken by r when the operation produced nothing.
// A unit from an already reset period is not returned.
func (t *Tracker) Release(ctx context.Context, r Reservation) error {
	if !r.held {
		return nil
	}

	err := t.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		doc, found, err := tx.Get(Collection, r.UserID)
		if err != nil || !found {
			return err
		}

		record := normalizeUsage(r.UserID, doc, t.clock.Now())
		if !record.LastResetDate.Equal(r.periodStart) || record.Count <= 0 {
			return nil
		}
		record.Count--
		return writeUsage(tx, record, false)
	})
	if err != nil {
		return fmt.Errorf("failed to release usage for %s: %w", r.UserID, err)
	}
	return nil
}

// EnsureRecord creates the user's usage document unless one exists.
// Concurrent first requests are safe: the first write wins and later calls leave it untouched.
func (t *Tracker) EnsureRecord(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	err := t.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		_, found, err := tx.Get(Collection, userID)
		if err != nil || found {
			return err
		}
		return writeUsage(tx, models.UsageRecord{
			UserID:        userID,
			LastResetDate: t.clock.Now(),
			Tier:          models.TierFree,
		}, true)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize usage for %s: %w", userID, err)
	}
	return nil
}

func (t *Tracker) resetDue(record models.UsageRecord, now time.Time) bool {
	if t.resetPeriod <= 0 {
		return false
	}
	return now.Sub(record.LastResetDate) >= t.resetPeriod
}

func (t *Tracker) status(record models.UsageRecord) models.UsageStatus {
	status := models.UsageStatus{
		Count:         record.Count,
		Tier:          record.Tier,
		LastResetDate: record.LastResetDate,
	}
	if t.resetPeriod > 0 {
		status.ResetsAt = record.LastResetDate.Add(t.resetPeriod)
	}

	if record.Tier == models.TierPremium {
		status.Limit = models.Unlimited
		status.Remaining = models.Unlimited
		return status
	}

	status.Limit = t.freeLimit
	status.Remaining = t.freeLimit - record.Count
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	status.LimitReached = record.Count >= t.freeLimit
	return status
}

// writeUsage merges the usage fields into the user's document. The tier is
// owned by billing and only written when the document is created.
func writeUsage(tx interfaces.Transaction, record models.UsageRecord, withTier bool) error {
	doc := models.Document{
		"userId":        record.UserID,
		"count":         record.Count,
		"lastResetDate": record.LastResetDate.UTC().Format(time.RFC3339Nano),
	}
	if withTier {
		doc["tier"] = string(record.Tier)
	}
	tx.Set(Collection, record.UserID, doc, true)
	return nil
}
