package keydb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/blob"
	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces/mock"
	keydbclient "go-upstream-guard/internal/keydb"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := keydbclient.NewRedisKeyDbClient(&config.KeyDBConfig{DialTimeout: time.Second}, "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "test:", "https://cdn.example.com/blobs", zap.NewNop()), mr
}

func TestStore_PutGetExists(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "places/X/abc.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, "places/X/abc.jpg", []byte("jpeg-bytes"), "image/jpeg", true))
	assert.True(t, mr.Exists("test:blob:places/X/abc.jpg"))

	exists, err = store.Exists(ctx, "places/X/abc.jpg")
	require.NoError(t, err)
	assert.True(t, exists)

	data, contentType, public, err := store.Get(ctx, "places/X/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	assert.Equal(t, "image/jpeg", contentType)
	assert.True(t, public)

	assert.Equal(t, "https://cdn.example.com/blobs/places/X/abc.jpg", store.PublicURL("places/X/abc.jpg"))
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, _, _, err := store.Get(context.Background(), "places/none.jpg")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestStore_InvalidPath(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Put(context.Background(), "../x", []byte("x"), "image/png", true)
	assert.ErrorIs(t, err, blob.ErrInvalidPath)
}

func TestStore_ExistsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mock.NewMockKeyDbClient(ctrl)
	mockClient.EXPECT().Exists(gomock.Any(), "p:blob:a.jpg").Return(redis.NewIntResult(0, errors.New("connection refused")))

	store := NewStore(mockClient, "p:", "http://localhost/blobs", zap.NewNop())

	exists, err := store.Exists(context.Background(), "a.jpg")
	assert.Error(t, err)
	assert.False(t, exists)
}
