package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/cache/l2"
	"go-upstream-guard/internal/cache/noop"
	"go-upstream-guard/internal/cache_rules"
	"go-upstream-guard/internal/interfaces/mock"
	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/store/memory"
)

type testPlace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newDurableService(t *testing.T, mockClock *clock.Mock) *CacheService {
	policy := cache_rules.NewCacheConfig(&cache_rules.CacheRulesConfig{
		TTLDefaults: map[models.Namespace]time.Duration{models.NamespacePlaces: time.Hour},
	}, zap.NewNop())
	durable := l2.NewDurableCache(memory.NewStore(), mockClock, time.Second, zap.NewNop())
	return NewCacheService(noop.NewNoOpCache(), durable, policy, true, mockClock, zap.NewNop())
}

func TestCacheService_SetAndGetJSON(t *testing.T) {
	mockClock := clock.NewMock()
	svc := newDurableService(t, mockClock)
	ctx := context.Background()

	require.NoError(t, svc.SetJSON(ctx, models.NamespacePlaces, "abc", testPlace{ID: "abc", Name: "Cafe"}))

	var got testPlace
	assert.True(t, svc.GetJSON(ctx, models.NamespacePlaces, "abc", &got))
	assert.Equal(t, testPlace{ID: "abc", Name: "Cafe"}, got)

	resp, err := svc.Get(ctx, models.NamespacePlaces, "abc")
	require.NoError(t, err)
	assert.Equal(t, "places:abc", resp.Key)
	assert.Equal(t, models.CacheLevelL2, resp.CacheLevel)
}

func TestCacheService_ExpiresAfterNamespaceTTL(t *testing.T) {
	mockClock := clock.NewMock()
	svc := newDurableService(t, mockClock)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, models.NamespacePlaces, "abc", []byte(`{}`)))

	mockClock.Add(time.Hour - time.Millisecond)
	resp, err := svc.Get(ctx, models.NamespacePlaces, "abc")
	require.NoError(t, err)
	assert.True(t, resp.Found)

	mockClock.Add(time.Millisecond)
	resp, err = svc.Get(ctx, models.NamespacePlaces, "abc")
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestCacheService_ExplicitTTL(t *testing.T) {
	mockClock := clock.NewMock()
	svc := newDurableService(t, mockClock)
	ctx := context.Background()

	require.NoError(t, svc.SetWithTTL(ctx, models.NamespacePlaces, "abc", []byte("v"), time.Second))

	mockClock.Add(time.Second)
	resp, err := svc.Get(ctx, models.NamespacePlaces, "abc")
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestCacheService_Delete(t *testing.T) {
	svc := newDurableService(t, clock.NewMock())
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, models.NamespacePlaces, "abc", []byte("v")))
	require.NoError(t, svc.Delete(ctx, models.NamespacePlaces, "abc"))

	resp, err := svc.Get(ctx, models.NamespacePlaces, "abc")
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestCacheService_BypassWhenTTLIsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	policy := mock.NewMockCachePolicy(ctrl)
	policy.EXPECT().TTLFor(models.NamespaceScores).Return(time.Duration(0)).AnyTimes()

	// no expectations on the levels: a bypassed namespace never reaches them
	l1 := mock.NewMockCache(ctrl)
	l2Cache := mock.NewMockCache(ctrl)
	svc := NewCacheService(l1, l2Cache, policy, true, clock.NewMock(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, models.NamespaceScores, "k", []byte("v")))

	resp, err := svc.Get(ctx, models.NamespaceScores, "k")
	require.NoError(t, err)
	assert.True(t, resp.Bypass)
	assert.False(t, resp.Found)
}

func TestCacheService_StoreOutageIsMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock.NewMockDocumentStore(ctrl)
	store.EXPECT().Get(gomock.Any(), l2.Collection, "places:abc").Return(nil, false, errors.New("unavailable"))
	store.EXPECT().Set(gomock.Any(), l2.Collection, "places:abc", gomock.Any(), false).Return(errors.New("unavailable"))

	policy := cache_rules.NewCacheConfig(nil, zap.NewNop())
	durable := l2.NewDurableCache(store, clock.NewMock(), time.Second, zap.NewNop())
	svc := NewCacheService(noop.NewNoOpCache(), durable, policy, true, clock.NewMock(), zap.NewNop())
	ctx := context.Background()

	var got testPlace
	assert.False(t, svc.GetJSON(ctx, models.NamespacePlaces, "abc", &got))
	assert.NoError(t, svc.SetJSON(ctx, models.NamespacePlaces, "abc", testPlace{ID: "abc"}))
}

func TestCacheService_UndecodableValueIsInvalidated(t *testing.T) {
	mockClock := clock.NewMock()
	svc := newDurableService(t, mockClock)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, models.NamespacePlaces, "abc", []byte("not json")))

	var got testPlace
	assert.False(t, svc.GetJSON(ctx, models.NamespacePlaces, "abc", &got))

	resp, err := svc.Get(ctx, models.NamespacePlaces, "abc")
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestCacheService_InvalidKey(t *testing.T) {
	svc := newDurableService(t, clock.NewMock())

	_, err := svc.Get(context.Background(), models.NamespacePlaces, "")
	assert.Error(t, err)

	key, err := svc.KeyFromParams(map[string]string{"placeId": "abc"})
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
