package cache_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/cache"
)

func TestLRU_Basic(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](3)

	assert.False(t, c.Put("a", 1))
	assert.False(t, c.Put("b", 2))
	assert.True(t, c.Put("a", 10))

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	v, ok = c.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Remove("a")
	assert.False(t, ok)
}

func TestLRU_Eviction(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := cache.NewLRU[string, int](2, cache.WithEvictCallback(func(k string, _ int) {
		evicted = append(evicted, k)
	}))

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most recent
	c.Put("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	_, ok := c.Peek("b")
	assert.False(t, ok)
}

func TestLRU_PeekDoesNotPromote(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("c", 3)
	_, ok = c.Peek("a")
	assert.False(t, ok, "peeked key must still be the eviction candidate")
}

func TestLRU_GetOrPut(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](2)
	calls := 0
	create := func() int { calls++; return 7 }

	v, existed := c.GetOrPut("k", create)
	assert.False(t, existed)
	assert.Equal(t, 7, v)

	v, existed = c.GetOrPut("k", create)
	assert.True(t, existed)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, calls)
}

func TestLRU_RemoveOldestWhile(t *testing.T) {
	t.Parallel()

	var evicted []int
	c := cache.NewLRU[int, int](10, cache.WithEvictCallback(func(k int, _ int) {
		evicted = append(evicted, k)
	}))
	for i := range 5 {
		c.Put(i, i*10)
	}

	n := c.RemoveOldestWhile(func(_ int, v int) bool { return v < 25 })
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{0, 1, 2}, evicted)
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 0, c.RemoveOldestWhile(func(int, int) bool { return false }))
}

func TestLRU_Clear(t *testing.T) {
	t.Parallel()

	count := 0
	c := cache.NewLRU[string, int](5, cache.WithEvictCallback(func(string, int) { count++ }))
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 2, count)
}

func TestLRU_PanicsOnInvalidCapacity(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { cache.NewLRU[string, int](0) })
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](100)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("%d-%d", g, i%50)
				c.Put(key, i)
				c.Get(key)
				c.Peek(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}
