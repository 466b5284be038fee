package keydb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/interfaces/mock"
	keydbclient "go-upstream-guard/internal/keydb"
	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/store/storetest"
)

func newMiniredisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := keydbclient.NewRedisKeyDbClient(&config.KeyDBConfig{DialTimeout: time.Second, PoolSize: storetest.Concurrency + 2}, "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "test:", zap.NewNop()), mr
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) interfaces.DocumentStore {
		store, _ := newMiniredisStore(t)
		return store
	})
}

func TestStore_KeyLayout(t *testing.T) {
	store, mr := newMiniredisStore(t)

	require.NoError(t, store.Set(context.Background(), "rate_limits", "1.2.3.4", models.Document{"count": 1}, false))

	raw, err := mr.Get("test:doc:rate_limits/1.2.3.4")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1}`, raw)
}

func TestStore_CorruptDocument(t *testing.T) {
	store, mr := newMiniredisStore(t)
	require.NoError(t, mr.Set("test:doc:things/a", "{not json"))

	_, _, err := store.Get(context.Background(), "things", "a")
	assert.Error(t, err)
}

func TestStore_RetriesOnWatchConflict(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	attempts := 0
	err := store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		attempts++
		doc, _, err := tx.Get("counters", "c")
		if err != nil {
			return err
		}
		if attempts == 1 {
			// a concurrent writer touches the watched key before commit
			require.NoError(t, mr.Set("test:doc:counters/c", `{"count":10}`))
		}
		count, _ := doc["count"].(float64)
		tx.Set("counters", "c", models.Document{"count": count + 1}, false)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, _, err := store.Get(ctx, "counters", "c")
	require.NoError(t, err)
	assert.EqualValues(t, 11, doc["count"])
}

func TestStore_GetError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockKeyDbClient(ctrl)
	mockClient.EXPECT().Get(gomock.Any(), "p:doc:things/a").Return(redis.NewStringResult("", errors.New("connection refused")))

	store := NewStore(mockClient, "p:", zap.NewNop())

	_, found, err := store.Get(context.Background(), "things", "a")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestStore_ContentionExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockKeyDbClient(ctrl)
	mockClient.EXPECT().Watch(gomock.Any(), gomock.Any()).Return(redis.TxFailedErr).Times(maxTxAttempts)

	store := NewStore(mockClient, "p:", zap.NewNop())
	store.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx interfaces.Transaction) error {
		return nil
	})
	assert.ErrorIs(t, err, interfaces.ErrContention)
}

func TestStore_ConflictThenCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockKeyDbClient(ctrl)
	gomock.InOrder(
		mockClient.EXPECT().Watch(gomock.Any(), gomock.Any()).Return(redis.TxFailedErr).Times(3),
		mockClient.EXPECT().Watch(gomock.Any(), gomock.Any()).Return(nil),
	)

	store := NewStore(mockClient, "p:", zap.NewNop())
	store.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx interfaces.Transaction) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestStore_InfrastructureErrorIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockKeyDbClient(ctrl)
	mockClient.EXPECT().Watch(gomock.Any(), gomock.Any()).Return(errors.New("connection refused")).Times(1)

	store := NewStore(mockClient, "p:", zap.NewNop())

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx interfaces.Transaction) error {
		return nil
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrContention)
}
