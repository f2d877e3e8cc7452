package cache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/cache"
)

func TestGetSet(t *testing.T) {
	c := cache.New[string](4, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "alpha")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	c.Set("a", "updated")
	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUEviction(t *testing.T) {
	c := cache.New[int](3, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "entry %q should survive", key)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestUpdateMovesToFront(t *testing.T) {
	c := cache.New[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // refresh "a"; "b" is now LRU
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestLazyExpiry(t *testing.T) {
	c := cache.New[string](4, 15*time.Millisecond)
	c.Set("a", "alpha")

	time.Sleep(40 * time.Millisecond)

	// The entry is still stored until a read observes the expiry.
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Expirations)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestSetRefreshesTTL(t *testing.T) {
	c := cache.New[string](4, 40*time.Millisecond)
	c.Set("a", "alpha")
	time.Sleep(25 * time.Millisecond)
	c.Set("a", "alpha2")
	time.Sleep(25 * time.Millisecond)

	v, ok := c.Get("a")
	require.True(t, ok, "refreshed entry should not expire on the original clock")
	assert.Equal(t, "alpha2", v)
}

func TestDelete(t *testing.T) {
	c := cache.New[int](2, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("a") // double delete is harmless

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCapacityOne(t *testing.T) {
	c := cache.New[string](1, time.Minute)
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		c.Set(key, key)
		v, ok := c.Get(key)
		require.True(t, ok)
		assert.Equal(t, key, v)
	}
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint64(4), c.Stats().Evictions)
}

func TestStatsCounters(t *testing.T) {
	c := cache.New[int](2, time.Minute)
	c.Set("a", 1)

	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("nope")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}
