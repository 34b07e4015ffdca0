package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, ResultKey("abc"), entry{Name: "x", Value: 1.5}, 0))
	var got entry
	require.NoError(t, c.Get(ctx, ResultKey("abc"), &got))
	assert.Equal(t, entry{Name: "x", Value: 1.5}, got)

	assert.ErrorIs(t, c.Get(ctx, JobKey("abc"), &got), ErrCacheMiss)

	require.NoError(t, c.Delete(ctx, ResultKey("abc")))
	assert.ErrorIs(t, c.Get(ctx, ResultKey("abc"), &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	var v int
	require.NoError(t, c.Get(ctx, "k", &v))

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMaxSize(2))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	now = now.Add(time.Second)
	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}
