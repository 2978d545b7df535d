package prolink

import (
	lru "github.com/hashicorp/golang-lru"
)

// CacheKey is the composite identifier a CacheStore is keyed by: target
// device, media slot, and item id (track id, artwork id, …) — the "exactly
// three elements" parameter tuple of §4.2's memoization rule.
type CacheKey struct {
	Device int
	Slot   Slot
	ID     int
}

// CacheStore maps a CacheKey to a previously-fetched, parsed reply. One
// store exists per memoizable request kind (metadata, artwork, waveform,
// preview waveform, beatgrid). The core never evicts entries from the
// default store; NewBoundedCacheStore is available for callers who want an
// LRU cap instead (§9 design note — this is an additive option, not a
// change to the unbounded default's observable behavior).
type CacheStore interface {
	Get(key CacheKey) (interface{}, bool)
	Put(key CacheKey, value interface{})
	Len() int
}

// unboundedCacheStore is a plain map-backed CacheStore: the default, since
// spec.md states entries "are never evicted by the core."
type unboundedCacheStore struct {
	entries map[CacheKey]interface{}
}

// NewCacheStore creates the default, unbounded CacheStore.
func NewCacheStore() CacheStore {
	return &unboundedCacheStore{entries: make(map[CacheKey]interface{})}
}

func (c *unboundedCacheStore) Get(key CacheKey) (interface{}, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *unboundedCacheStore) Put(key CacheKey, value interface{}) {
	c.entries[key] = value
}

func (c *unboundedCacheStore) Len() int {
	return len(c.entries)
}

// boundedCacheStore evicts least-recently-used entries once it reaches its
// capacity, for libraries large enough that an unbounded cache is
// undesirable.
type boundedCacheStore struct {
	cache *lru.Cache
}

// NewBoundedCacheStore creates an LRU-evicting CacheStore holding at most
// size entries.
func NewBoundedCacheStore(size int) (CacheStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &boundedCacheStore{cache: cache}, nil
}

func (c *boundedCacheStore) Get(key CacheKey) (interface{}, bool) {
	return c.cache.Get(key)
}

func (c *boundedCacheStore) Put(key CacheKey, value interface{}) {
	c.cache.Add(key, value)
}

func (c *boundedCacheStore) Len() int {
	return c.cache.Len()
}
