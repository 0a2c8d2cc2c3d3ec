// Package cache memoizes processed series between frames.
//
// The render loop normalizes each data reference once per snapshot version;
// later frames that see the same version reuse the cached result. Entries
// are evicted least recently used first once the capacity is reached.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/chart/series"
)

// DefaultCapacity is the default number of data references kept.
const DefaultCapacity = 64

// Stats is a snapshot of cache counters.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
}

func (s Stats) String() string {
	return fmt.Sprintf("Cache[%d/%d entries, %.1f%% hits, %d evictions]",
		s.Len, s.Capacity, s.HitRate*100, s.Evictions)
}

type entry[K comparable] struct {
	version uint64
	value   series.Series
	node    *lruNode[K]
}

// Series caches one processed series per key, tagged with the version of
// the snapshot it was derived from. A lookup with a different version is a
// miss. Safe for concurrent use.
type Series[K comparable] struct {
	mu       sync.Mutex
	entries  map[K]*entry[K]
	lru      lruList[K]
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewSeries returns a cache holding up to capacity keys. If capacity <= 0,
// DefaultCapacity is used.
func NewSeries[K comparable](capacity int) *Series[K] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series[K]{
		entries:  make(map[K]*entry[K]),
		capacity: capacity,
	}
}

// Get returns the cached series for key if it was stored for version.
func (c *Series[K]) Get(key K, version uint64) (series.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.version != version {
		c.misses.Add(1)
		return series.Series{}, false
	}
	c.lru.moveToFront(e.node)
	c.hits.Add(1)
	return e.value, true
}

// Set stores value for key at version, replacing any older version.
func (c *Series[K]) Set(key K, version uint64, value series.Series) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, version, value)
}

// GetOrCompute returns the cached series or stores and returns compute().
// compute runs with the cache lock held.
func (c *Series[K]) GetOrCompute(key K, version uint64, compute func() series.Series) series.Series {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.version == version {
		c.lru.moveToFront(e.node)
		c.hits.Add(1)
		return e.value
	}
	c.misses.Add(1)
	v := compute()
	c.setLocked(key, version, v)
	return v
}

func (c *Series[K]) setLocked(key K, version uint64, value series.Series) {
	if e, ok := c.entries[key]; ok {
		e.version = version
		e.value = value
		c.lru.moveToFront(e.node)
		return
	}
	for c.lru.len >= c.capacity {
		oldest, ok := c.lru.removeOldest()
		if !ok {
			break
		}
		delete(c.entries, oldest)
		c.evictions.Add(1)
	}
	c.entries[key] = &entry[K]{version: version, value: value, node: c.lru.pushFront(key)}
}

// Delete drops key. It reports whether the key was present.
func (c *Series[K]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.lru.unlink(e.node)
	delete(c.entries, key)
	return true
}

// Len returns the number of cached keys.
func (c *Series[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the current counters.
func (c *Series[K]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   rate,
	}
}
