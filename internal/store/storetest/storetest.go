// Package storetest holds the behavioural suite every DocumentStore must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

// Concurrency is the number of goroutines used by the contention test
const Concurrency = 10

// Run exercises store against the DocumentStore contract
func Run(t *testing.T, newStore func(t *testing.T) interfaces.DocumentStore) {
	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)

		doc, found, err := store.Get(context.Background(), "things", "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, doc)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "things", "a", models.Document{"name": "alpha", "count": 1}, false))

		doc, found, err := store.Get(ctx, "things", "a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "alpha", doc["name"])
		assert.EqualValues(t, 1, toInt(doc["count"]))

		// collections are separate namespaces
		_, found, err = store.Get(ctx, "other", "a")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SetOverwriteAndMerge", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "things", "a", models.Document{"name": "alpha", "tier": "free"}, false))
		require.NoError(t, store.Set(ctx, "things", "a", models.Document{"tier": "premium"}, true))

		doc, _, err := store.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, "alpha", doc["name"])
		assert.Equal(t, "premium", doc["tier"])

		require.NoError(t, store.Set(ctx, "things", "a", models.Document{"tier": "free"}, false))
		doc, _, err = store.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.NotContains(t, doc, "name")
		assert.Equal(t, "free", doc["tier"])
	})

	t.Run("TransactionCommits", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		err := store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			_, found, err := tx.Get("things", "a")
			if err != nil {
				return err
			}
			assert.False(t, found)

			tx.Set("things", "a", models.Document{"count": 1}, false)
			tx.Set("things", "b", models.Document{"count": 2}, false)

			// reads observe pending writes
			doc, found, err := tx.Get("things", "a")
			if err != nil {
				return err
			}
			assert.True(t, found)
			assert.EqualValues(t, 1, toInt(doc["count"]))
			return nil
		})
		require.NoError(t, err)

		for id, want := range map[string]int{"a": 1, "b": 2} {
			doc, found, err := store.Get(ctx, "things", id)
			require.NoError(t, err)
			require.True(t, found, id)
			assert.EqualValues(t, want, toInt(doc["count"]))
		}
	})

	t.Run("TransactionRollsBackOnError", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			tx.Set("things", "a", models.Document{"count": 1}, false)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, found, err := store.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.False(t, found, "writes of a failed transaction must not be visible")
	})

	t.Run("TransactionMerge", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "things", "a", models.Document{"name": "alpha", "count": 1}, false))

		err := store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			tx.Set("things", "a", models.Document{"count": 5}, true)
			return nil
		})
		require.NoError(t, err)

		doc, _, err := store.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, "alpha", doc["name"])
		assert.EqualValues(t, 5, toInt(doc["count"]))
	})

	t.Run("ConcurrentIncrementsAreSerialized", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, Concurrency)
		for i := 0; i < Concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
					doc, _, err := tx.Get("counters", "shared")
					if err != nil {
						return err
					}
					tx.Set("counters", "shared", models.Document{"count": toInt(doc["count"]) + 1}, false)
					return nil
				})
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		doc, found, err := store.Get(ctx, "counters", "shared")
		require.NoError(t, err)
		require.True(t, found)
		assert.EqualValues(t, Concurrency, toInt(doc["count"]))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			tx.Set("things", "a", models.Document{"count": 1}, false)
			return nil
		})
		assert.Error(t, err)

		_, found, _ := store.Get(context.Background(), "things", "a")
		assert.False(t, found)
	})
}

// toInt reads a numeric field regardless of how the backend decoded it
func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
