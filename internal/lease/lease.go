package lease

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

// Collection holds one lease document per fetch key
const Collection = "fetch_leases"

type record struct {
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expiresAt"` // unix milliseconds
}

// Manager hands out short-lived leases so that only one instance performs a
// given fetch at a time. A lease expires on its own, so a crashed holder
// never blocks the key for longer than the TTL.
type Manager struct {
	store  interfaces.DocumentStore
	ttl    time.Duration
	owner  string
	clock  clock.Clock
	logger *zap.Logger
}

// NewManager creates a lease manager with a random owner id for this process
func NewManager(store interfaces.DocumentStore, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *Manager {
	owner := uuid.NewString()
	return &Manager{
		store:  store,
		ttl:    ttl,
		owner:  owner,
		clock:  clk,
		logger: logger.With(zap.String("lease_owner", owner)),
	}
}

// Owner returns the id written into leases held by this manager
func (m *Manager) Owner() string {
	return m.owner
}

// Acquire takes the lease for key when it is free, expired or already ours
func (m *Manager) Acquire(ctx context.Context, key string) (bool, error) {
	var acquired bool
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		now := m.clock.Now()
		acquired = false

		current, found, err := read(tx, key)
		if err != nil {
			return err
		}
		if found && current.Owner != m.owner && current.ExpiresAt > now.UnixMilli() {
			return nil
		}

		acquired = true
		return write(tx, key, record{Owner: m.owner, ExpiresAt: now.Add(m.ttl).UnixMilli()})
	})
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return acquired, nil
}

// Release gives up the lease if this manager still holds it
func (m *Manager) Release(ctx context.Context, key string) error {
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		current, found, err := read(tx, key)
		if err != nil || !found || current.Owner != m.owner {
			return err
		}
		return write(tx, key, record{Owner: m.owner, ExpiresAt: 0})
	})
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

// Held reports whether another owner holds an unexpired lease for key
func (m *Manager) Held(ctx context.Context, key string) (bool, error) {
	doc, found, err := m.store.Get(ctx, Collection, documentID(key))
	if err != nil || !found {
		return false, err
	}
	var current record
	if err := doc.Decode(&current); err != nil {
		return false, nil
	}
	return current.Owner != m.owner && current.ExpiresAt > m.clock.Now().UnixMilli(), nil
}

// Await polls until ready reports true or the lease for key is no longer held
// by someone else. It returns whether ready was observed; false means the
// caller should do the work itself.
func (m *Manager) Await(ctx context.Context, key string, pollInterval time.Duration, ready func(ctx context.Context) bool) bool {
	ticker := m.clock.Ticker(pollInterval)
	defer ticker.Stop()

	for {
		if ready(ctx) {
			return true
		}

		held, err := m.Held(ctx, key)
		if err != nil {
			m.logger.Warn("Failed to read lease, proceeding without it",
				zap.String("key", key),
				zap.Error(err))
			return false
		}
		if !held {
			// one last look in case the holder finished between the two reads
			return ready(ctx)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}

func read(tx interfaces.Transaction, key string) (record, bool, error) {
	doc, found, err := tx.Get(Collection, documentID(key))
	if err != nil || !found {
		return record{}, false, err
	}

	var current record
	if err := doc.Decode(&current); err != nil {
		// a malformed lease is treated as free
		return record{}, false, nil
	}
	return current, true, nil
}

func write(tx interfaces.Transaction, key string, r record) error {
	doc, err := models.ToDocument(r)
	if err != nil {
		return err
	}
	tx.Set(Collection, documentID(key), doc, false)
	return nil
}

func documentID(key string) string {
	return url.PathEscape(key)
}
