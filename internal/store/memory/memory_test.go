package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/store/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) interfaces.DocumentStore {
		return NewStore()
	})
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "things", "a", models.Document{"name": "alpha"}, false))

	doc, _, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	doc["name"] = "mutated"

	again, _, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", again["name"])
}
