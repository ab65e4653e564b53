package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/timing-service-go/pkg/utils/cache"
)

func TestLoaderCache(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	c := New(
		WithExpiration[string, int](30*time.Second),
		WithClock[string, int](func() time.Time { return now }),
		WithLoader(func(ctx context.Context, key string) (*int, error) {
			calls++
			if key == "broken" {
				return nil, errors.New("upstream down")
			}
			v := calls
			return &v, nil
		}),
	)
	ctx := context.Background()

	v, err := c.Get(ctx, "2025")
	require.NoError(t, err)
	assert.Equal(t, 1, *v)

	now = now.Add(10 * time.Second)
	v, err = c.Get(ctx, "2025")
	require.NoError(t, err)
	assert.Equal(t, 1, *v, "served from cache")

	now = now.Add(30 * time.Second)
	v, err = c.Get(ctx, "2025")
	require.NoError(t, err)
	assert.Equal(t, 2, *v, "expired entry reloaded")

	c.Invalidate(ctx, "2025")
	v, err = c.Get(ctx, "2025")
	require.NoError(t, err)
	assert.Equal(t, 3, *v)

	_, err = c.Get(ctx, "broken")
	require.Error(t, err)
	_, err = c.Get(ctx, "broken")
	require.Error(t, err)
	assert.Equal(t, 5, calls, "errors are not cached")

	c.InvalidateAll(ctx)
	v, err = c.Get(ctx, "2025")
	require.NoError(t, err)
	assert.Equal(t, 6, *v)
}

func TestLoaderCacheWithoutLoader(t *testing.T) {
	c := New[string, int]()
	_, err := c.Get(context.Background(), "x")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestLoaderCacheLifetime(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := map[string]int{}
	c := New(
		WithClock[string, string](func() time.Time { return now }),
		WithLifetime(func(key string, _ *string) time.Duration {
			if key == "final" {
				return -1
			}
			return 10 * time.Second
		}),
		WithMaxEntries[string, string](2),
		WithLoader(func(ctx context.Context, key string) (*string, error) {
			calls[key]++
			return &key, nil
		}),
	)
	ctx := context.Background()

	for _, key := range []string{"final", "running"} {
		_, err := c.Get(ctx, key)
		require.NoError(t, err)
	}
	now = now.Add(time.Hour)
	for _, key := range []string{"final", "running"} {
		_, err := c.Get(ctx, key)
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]int{"final": 1, "running": 2}, calls)

	// "final" is the least recently loaded entry
	now = now.Add(time.Second)
	_, err := c.Get(ctx, "other")
	require.NoError(t, err)
	_, err = c.Get(ctx, "running")
	require.NoError(t, err)
	_, err = c.Get(ctx, "final")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"final": 2, "running": 2, "other": 1}, calls)
}
