package memory

import (
	"context"
	"testing"
	"time"

	"canvasd/domain/core/aggregates"
	pkgerrors "canvasd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStoreWithCanvas(t *testing.T, owner string) (*CanvasStore, *aggregates.Canvas) {
	t.Helper()
	store := NewCanvasStore(zap.NewNop())
	canvas, err := aggregates.NewCanvas("test", owner)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), canvas))
	return store, canvas
}

func TestCanvasStore_SaveAndGet(t *testing.T) {
	store, canvas := newStoreWithCanvas(t, "user-1")

	got, err := store.Get(context.Background(), canvas.ID())
	require.NoError(t, err)
	assert.Same(t, canvas, got)
}

func TestCanvasStore_SaveNil(t *testing.T) {
	store := NewCanvasStore(zap.NewNop())
	assert.Error(t, store.Save(context.Background(), nil))
}

func TestCanvasStore_GetMissing(t *testing.T) {
	store := NewCanvasStore(zap.NewNop())
	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvasStore_Delete(t *testing.T) {
	store, canvas := newStoreWithCanvas(t, "user-1")

	require.NoError(t, store.Delete(context.Background(), canvas.ID()))
	assert.Zero(t, store.Len())

	err := store.Delete(context.Background(), canvas.ID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvasStore_ListFiltersByOwner(t *testing.T) {
	store, _ := newStoreWithCanvas(t, "user-1")
	other, err := aggregates.NewCanvas("other", "user-2")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), other))

	mine, err := store.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCache_SetGetDelete(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", 60))
	v, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, cache.Delete(ctx, "k"))
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", 0))
	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)
}
