package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidCapacity(t *testing.T) {
	_, err := New[[]byte](0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New[[]byte](-3)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestCacheAddAndGet(t *testing.T) {
	c, err := New[[]byte](4)
	require.NoError(t, err)

	c.Add(1, []byte{1}, 0)

	v, found := c.Get(1)
	require.True(t, found, "Failed to find inserted record")
	assert.Equal(t, []byte{1}, v)

	_, found = c.Get(2)
	assert.False(t, found)
}

func TestCacheLen(t *testing.T) {
	c, err := New[int](4)
	require.NoError(t, err)

	c.Add(1, 1, 0)
	assert.Equal(t, 1, c.Len())

	c.Add(1, 1, 0)
	assert.Equal(t, 1, c.Len())

	c.Add(2, 2, 0)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 4, c.Cap())
}

func TestCacheRemoveAndPurge(t *testing.T) {
	c, err := New[int](4)
	require.NoError(t, err)

	c.Add(1, 1, 0)
	c.Add(2, 2, 0)

	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())

	_, found := c.Get(2)
	assert.False(t, found)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	const capacity = 3

	c, err := New[int](capacity)
	require.NoError(t, err)

	for k := uint64(1); k <= capacity+1; k++ {
		c.Add(k, int(k), 0)
	}

	assert.Equal(t, capacity, c.Len())

	_, found := c.Get(1)
	assert.False(t, found, "oldest entry should be evicted")

	for k := uint64(2); k <= capacity+1; k++ {
		_, found := c.Get(k)
		assert.True(t, found, "key %d should survive", k)
	}
}

func TestCacheGetPromotes(t *testing.T) {
	const capacity = 4

	c, err := New[int](capacity)
	require.NoError(t, err)

	// visited and peer are inserted together; only visited is read.
	const visited, peer = uint64(100), uint64(101)
	c.Add(visited, 0, 0)
	c.Add(peer, 0, 0)

	_, found := c.Get(visited)
	require.True(t, found)

	for k := uint64(1); k < capacity; k++ {
		c.Add(k, int(k), 0)
	}

	_, found = c.Get(peer)
	assert.False(t, found, "unvisited peer is evicted first")

	_, found = c.Get(visited)
	assert.True(t, found, "visited key lives one eviction longer")

	c.Add(capacity, 0, 0)
	c.Add(capacity+1, 0, 0)

	_, found = c.Get(1)
	assert.False(t, found)
}

func TestCacheReplaceDoesNotEvict(t *testing.T) {
	c, err := New[string](2)
	require.NoError(t, err)

	c.Add(1, "a", 0)
	c.Add(2, "b", 0)
	c.Add(1, "c", 0)

	assert.Equal(t, 2, c.Len())

	v, found := c.Get(1)
	assert.True(t, found)
	assert.Equal(t, "c", v)

	_, found = c.Get(2)
	assert.True(t, found)
}

func TestCacheExpiry(t *testing.T) {
	c, err := New[int](4)
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Add(1, 1, time.Minute)
	c.Add(2, 2, 0)

	now = now.Add(59 * time.Second)
	_, found := c.Get(1)
	assert.True(t, found)

	now = now.Add(time.Second)
	_, found = c.Get(1)
	assert.False(t, found)
	assert.Equal(t, 1, c.Len(), "expired entry is removed on lookup")

	now = now.Add(24 * time.Hour)
	_, found = c.Get(2)
	assert.True(t, found, "entries without ttl never expire")
}

func TestCacheConcurrent(t *testing.T) {
	c, err := New[int](64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := uint64((g*1000 + i) % 128)
				c.Add(k, i, 0)
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}

func BenchmarkCache(b *testing.B) {
	b.ReportAllocs()

	c, _ := New[int](1024)
	for n := 0; n < b.N; n++ {
		c.Add(uint64(n), 1, 0)
		c.Get(uint64(n))
	}
}

func TestCacheReAddAfterExpiry(t *testing.T) {
	c, err := New[int](2)
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Add(1, 1, time.Second)
	now = now.Add(2 * time.Second)

	c.Add(1, 2, time.Minute)

	v, found := c.Get(1)
	require.True(t, found)
	assert.Equal(t, 2, v)

	c.Add(2, 2, 0)
	c.Add(3, 3, 0)

	_, found = c.Get(1)
	assert.False(t, found, "capacity bound still evicts the least recently used entry")
	assert.Equal(t, 2, c.Len())
}
