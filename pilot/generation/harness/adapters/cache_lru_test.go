package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2, clockwork.NewFakeClockAt(epoch))

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))

	// touch a so b becomes the eviction candidate
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, cache.Set(ctx, "c", []byte("3"), 0))

	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)
	v, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, 2, cache.Len())
}

func TestLRUCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClockAt(epoch)
	cache := NewLRUCache(4, clk)

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))

	clk.Advance(59 * time.Second)
	_, ok := cache.Get(ctx, "k")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestLRUCacheOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(4, clockwork.NewFakeClockAt(epoch))

	require.NoError(t, cache.Set(ctx, "k", []byte("old"), 0))
	require.NoError(t, cache.Set(ctx, "k", []byte("new"), 0))

	v, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Delete(ctx, "k"))
	require.NoError(t, cache.Delete(ctx, "missing"))
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
}
