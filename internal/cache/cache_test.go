// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()

	c.Set(ctx, "key1", []byte("value1"), 5*time.Minute)

	val, ok := c.Get(ctx, "key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, []byte("value1"), val)

	_, ok = c.Get(ctx, "nonexistent")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	in := []byte("abc")
	c.Set(ctx, "k", in, time.Minute)
	in[0] = 'X'

	out, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "abc", string(out))

	out[1] = 'Y'
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	c.Set(ctx, "shortlived", []byte("value"), 50*time.Millisecond)
	_, ok := c.Get(ctx, "shortlived")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok = c.Get(ctx, "shortlived")
	assert.False(t, ok, "expected key to be expired")
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	c.Set(ctx, "key1", []byte("value1"), 5*time.Minute)
	c.Delete(ctx, "key1")

	_, ok := c.Get(ctx, "key1")
	assert.False(t, ok)
}

func TestMemoryCache_JanitorEvicts(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10 * time.Millisecond)
	defer func() { _ = c.Close() }()

	c.Set(ctx, "a", []byte("1"), time.Millisecond)
	c.Set(ctx, "b", []byte("2"), time.Hour)

	require.Eventually(t, func() bool {
		return c.Stats().CurrentSize == 1
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, c.Stats().Evictions, int64(1))
}

func TestMemoryCache_CloseIdempotent(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Millisecond)
	defer func() { _ = c.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set(ctx, "shared", []byte("v"), time.Millisecond)
				c.Get(ctx, "shared")
				c.Stats()
			}
		}()
	}
	wg.Wait()
}

func TestNoOpCache(t *testing.T) {
	ctx := context.Background()
	c := NewNoOpCache()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	c.Delete(ctx, "k")
	assert.Equal(t, CacheStats{}, c.Stats())
	assert.NoError(t, c.Close())
}
