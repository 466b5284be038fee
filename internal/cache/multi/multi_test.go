package multi

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/interfaces/mock"
	"go-upstream-guard/internal/models"
)

func newEntry(now time.Time, ttl time.Duration) *models.CacheEntry {
	entry := models.NewCacheEntry("places", "test-key", []byte("test-value"), ttl, now)
	return &entry
}

func TestNewMultiCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache1 := mock.NewMockCache(ctrl)
	cache2 := mock.NewMockCache(ctrl)

	mc := NewMultiCache([]interfaces.Cache{cache1, cache2}, false, clock.NewMock(), zap.NewNop())

	assert.Equal(t, 2, mc.GetCacheCount())
	assert.Equal(t, cache1, mc.caches[0])
	assert.Equal(t, cache2, mc.caches[1])
}

func TestMultiCache_Get_FirstCacheHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	mockClock := clock.NewMock()

	cache1 := mock.NewMockCache(ctrl)
	cache2 := mock.NewMockCache(ctrl)
	mc := NewMultiCache([]interfaces.Cache{cache1, cache2}, true, mockClock, zap.NewNop())

	entry := newEntry(mockClock.Now(), time.Minute)
	cache1.EXPECT().Get(ctx, "places", "test-key").Return(entry, true).Times(1)
	// cache2.Get should not be called since cache1 has the value

	result := mc.GetWithLevel(ctx, "places", "test-key")

	assert.True(t, result.Found)
	assert.Equal(t, models.CacheLevelL1, result.Level)
	assert.Equal(t, entry, result.Entry)
}

func TestMultiCache_Get_SecondCacheHitPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	mockClock := clock.NewMock()

	cache1 := mock.NewMockCache(ctrl)
	cache2 := mock.NewMockCache(ctrl)
	mc := NewMultiCache([]interfaces.Cache{cache1, cache2}, true, mockClock, zap.NewNop())

	entry := newEntry(mockClock.Now(), time.Minute)
	mockClock.Add(20 * time.Second)

	cache1.EXPECT().Get(ctx, "places", "test-key").Return(nil, false)
	cache2.EXPECT().Get(ctx, "places", "test-key").Return(entry, true)
	cache1.EXPECT().Set(ctx, "places", "test-key", []byte("test-value"), 40*time.Second)

	result := mc.GetWithLevel(ctx, "places", "test-key")

	assert.True(t, result.Found)
	assert.Equal(t, models.CacheLevelL2, result.Level)
}

func TestMultiCache_Get_SecondCacheHitWithoutPropagation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	mockClock := clock.NewMock()

	cache1 := mock.NewMockCache(ctrl)
	cache2 := mock.NewMockCache(ctrl)
	mc := NewMultiCache([]interfaces.Cache{cache1, cache2}, false, mockClock, zap.NewNop())

	cache1.EXPECT().Get(ctx, "places", "test-key").Return(nil, false)
	cache2.EXPECT().Get(ctx, "places", "test-key").Return(newEntry(mockClock.Now(), time.Minute), true)
	// cache1.Set must not be called

	entry, found := mc.Get(ctx, "places", "test-key")

	assert.True(t, found)
	assert.Equal(t, []byte("test-value"), entry.Value)
}

func TestMultiCache_Get_Miss(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	cache1 := mock.NewMockCache(ctrl)
	cache2 := mock.NewMockCache(ctrl)
	mc := NewMultiCache([]interfaces.Cache{cache1, cache2}, true, clock.NewMock(), zap.NewNop())

	cache1.EXPECT().Get(ctx, "places", "test-key").Return(nil, false)
	cache2.EXPECT().Get(ctx, "places", "test-key").Return(nil, false)

	result := mc.GetWithLevel(ctx, "places", "test-key")

	assert.False(t, result.Found)
	assert.Nil(t, result.Entry)
	assert.Equal(t, models.CacheLevelMiss, result.Level)
}

func TestMultiCache_SetAndDelete_AllLevels(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	cache1 := mock.NewMockCache(ctrl)
	cache2 := mock.NewMockCache(ctrl)
	mc := NewMultiCache([]interfaces.Cache{cache1, cache2}, true, clock.NewMock(), zap.NewNop())

	cache1.EXPECT().Set(ctx, "places", "k", []byte("v"), time.Hour)
	cache2.EXPECT().Set(ctx, "places", "k", []byte("v"), time.Hour)
	mc.Set(ctx, "places", "k", []byte("v"), time.Hour)

	cache1.EXPECT().Delete(ctx, "places", "k")
	cache2.EXPECT().Delete(ctx, "places", "k")
	mc.Delete(ctx, "places", "k")
}

func TestMultiCache_NoCaches(t *testing.T) {
	mc := NewMultiCache(nil, true, clock.NewMock(), zap.NewNop())
	ctx := context.Background()

	result := mc.GetWithLevel(ctx, "places", "k")
	assert.False(t, result.Found)

	assert.NotPanics(t, func() {
		mc.Set(ctx, "places", "k", []byte("v"), time.Minute)
		mc.Delete(ctx, "places", "k")
	})
}
