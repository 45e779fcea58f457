package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(WithMaxSize(10))
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, c.Get(ctx, "k1", &got))
	assert.Equal(t, 1, got["a"])
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	var got string
	err := c.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiration(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "short", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	var got string
	err := c.Get(ctx, "short", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheEviction(t *testing.T) {
	c := NewMemoryCache(WithMaxSize(2))
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	ok, err := c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry should be evicted")

	ok, err = c.Exists(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
