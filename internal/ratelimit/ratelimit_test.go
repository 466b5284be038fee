package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/interfaces/mock"
	"go-upstream-guard/internal/keydb"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
	keydbstore "go-upstream-guard/internal/store/keydb"
	"go-upstream-guard/internal/store/memory"
)

func TestLimiter_FiveAdmittedSixthRejected(t *testing.T) {
	mockClock := clock.NewMock()
	limiter := NewLimiter(memory.NewStore(), mockClock, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result, err := limiter.Check(ctx, "1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.LimitReached, "call %d", i)
		assert.Equal(t, 5-i, result.Remaining, "call %d", i)
		mockClock.Add(100 * time.Millisecond)
	}

	result, err := limiter.Check(ctx, "1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.LimitReached)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, time.UnixMilli(time.Minute.Milliseconds()), result.ResetAt)
}

func TestLimiter_RejectionDoesNotMutate(t *testing.T) {
	store := memory.NewStore()
	limiter := NewLimiter(store, clock.NewMock(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := limiter.Check(ctx, "user", 2, time.Minute)
		require.NoError(t, err)
	}

	doc, found, err := store.Get(ctx, Collection, "user")
	require.NoError(t, err)
	require.True(t, found)

	var counter models.RateLimitCounter
	require.NoError(t, doc.Decode(&counter))
	assert.Equal(t, 2, counter.Count)
}

func TestLimiter_WindowResetsAfterResetAt(t *testing.T) {
	mockClock := clock.NewMock()
	limiter := NewLimiter(memory.NewStore(), mockClock, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "id", 2, time.Minute)
		require.NoError(t, err)
	}

	// exactly at resetAt the window is still current
	mockClock.Add(time.Minute)
	result, err := limiter.Check(ctx, "id", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.LimitReached)

	mockClock.Add(time.Millisecond)
	result, err = limiter.Check(ctx, "id", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.LimitReached)
	assert.Equal(t, 1, result.Remaining)
	assert.Equal(t, mockClock.Now().Add(time.Minute).UnixMilli(), result.ResetAt.UnixMilli())
}

func TestLimiter_IdentifiersAreIndependent(t *testing.T) {
	limiter := NewLimiter(memory.NewStore(), clock.NewMock(), zap.NewNop())
	ctx := context.Background()

	_, err := limiter.Check(ctx, "a", 1, time.Minute)
	require.NoError(t, err)

	result, err := limiter.Check(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.LimitReached)
}

func runConcurrent(t *testing.T, limiter *Limiter, calls, limit int) int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.Check(context.Background(), "1.2.3.4", limit, time.Minute)
			require.NoError(t, err)
			if !result.LimitReached {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return admitted
}

func TestLimiter_NoOverAdmissionUnderConcurrency(t *testing.T) {
	limiter := NewLimiter(memory.NewStore(), clock.NewMock(), zap.NewNop())

	assert.Equal(t, 5, runConcurrent(t, limiter, 50, 5))
}

func TestLimiter_NoOverAdmissionOnKeyDB(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := keydb.NewRedisKeyDbClient(&config.KeyDBConfig{DialTimeout: time.Second, PoolSize: 10}, "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	limiter := NewLimiter(keydbstore.NewStore(client, "test:", zap.NewNop()), clock.NewMock(), zap.NewNop())

	assert.Equal(t, 3, runConcurrent(t, limiter, 8, 3))
}

func TestLimiter_NoOverAdmissionOnKeyDBUnderHeavyContention(t *testing.T) {
	if testing.Short() {
		t.Skip("heavy contention test")
	}

	mr := miniredis.RunT(t)
	client, err := keydb.NewRedisKeyDbClient(&config.KeyDBConfig{DialTimeout: time.Second, PoolSize: 50}, "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	limiter := NewLimiter(keydbstore.NewStore(client, "test:", zap.NewNop()), clock.NewMock(), zap.NewNop())

	admitted := runConcurrent(t, limiter, 1000, 500)

	assert.LessOrEqual(t, admitted, 500)
	assert.Positive(t, admitted)
}

func TestLimiter_RejectsOnContention(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock.NewMockDocumentStore(ctrl)
	store.EXPECT().RunTransaction(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("keydb store: %w after 200 attempts", interfaces.ErrContention))

	mockClock := clock.NewMock()
	limiter := NewLimiter(store, mockClock, zap.NewNop())
	beforeOpen := testutil.ToFloat64(metrics.RateLimitChecks.WithLabelValues("fail_open"))
	beforeContention := testutil.ToFloat64(metrics.RateLimitChecks.WithLabelValues("contention"))

	result, err := limiter.Check(context.Background(), "1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.LimitReached)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, mockClock.Now().Add(time.Second), result.ResetAt)
	assert.Equal(t, beforeOpen, testutil.ToFloat64(metrics.RateLimitChecks.WithLabelValues("fail_open")))
	assert.Equal(t, beforeContention+1, testutil.ToFloat64(metrics.RateLimitChecks.WithLabelValues("contention")))
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock.NewMockDocumentStore(ctrl)
	store.EXPECT().RunTransaction(gomock.Any(), gomock.Any()).Return(errors.New("store unavailable"))

	limiter := NewLimiter(store, clock.NewMock(), zap.NewNop())
	before := testutil.ToFloat64(metrics.RateLimitChecks.WithLabelValues("fail_open"))

	result, err := limiter.Check(context.Background(), "1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.LimitReached)
	assert.Equal(t, 5, result.Remaining)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitChecks.WithLabelValues("fail_open")))
}

func TestLimiter_FailsOpenOnTransactionReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tx := mock.NewMockTransaction(ctrl)
	tx.EXPECT().Get(Collection, "1.2.3.4").Return(nil, false, errors.New("read failed"))

	store := mock.NewMockDocumentStore(ctrl)
	store.EXPECT().RunTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context, interfaces.Transaction) error) error {
			return fn(ctx, tx)
		})

	limiter := NewLimiter(store, clock.NewMock(), zap.NewNop())

	result, err := limiter.Check(context.Background(), "1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.LimitReached)
}

func TestLimiter_EdgeCases(t *testing.T) {
	limiter := NewLimiter(memory.NewStore(), clock.NewMock(), zap.NewNop())
	ctx := context.Background()

	_, err := limiter.Check(ctx, "", 5, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	result, err := limiter.Check(ctx, "id", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.LimitReached, "a zero limit admits nothing")

	result, err = limiter.Check(ctx, "id", 5, 0)
	require.NoError(t, err)
	assert.False(t, result.LimitReached, "a non-positive window fails open")
}

func TestLimiter_MalformedCounterStartsNewWindow(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, Collection, "id", models.Document{"count": "lots"}, false))

	limiter := NewLimiter(store, clock.NewMock(), zap.NewNop())

	result, err := limiter.Check(ctx, "id", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.LimitReached)
	assert.Equal(t, 4, result.Remaining)
}
