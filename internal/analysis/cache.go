package analysis

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// runCache keeps the latest finished run per product URL.
type runCache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	ttl   time.Duration
	clock func() time.Time
}

type cacheEntry struct {
	run      *types.Run
	storedAt time.Time
}

func newRunCache(size int, ttl time.Duration, clock func() time.Time) *runCache {
	if size <= 0 {
		size = 1
	}
	return &runCache{lru: lru.New(size), ttl: ttl, clock: clock}
}

func (c *runCache) get(url string) (*types.Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(url)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if c.ttl > 0 && c.clock().Sub(entry.storedAt) > c.ttl {
		c.lru.Remove(url)
		return nil, false
	}
	return entry.run, true
}

func (c *runCache) put(url string, run *types.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(url, cacheEntry{run: run, storedAt: c.clock()})
}

func (c *runCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
