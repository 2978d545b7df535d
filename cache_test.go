package prolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedCacheStoreRoundTrip(t *testing.T) {
	store := NewCacheStore()
	key := CacheKey{Device: 1, Slot: SlotUSB, ID: 42}

	_, ok := store.Get(key)
	assert.False(t, ok)

	store.Put(key, "value")
	v, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, store.Len())
}

func TestBoundedCacheStoreEvicts(t *testing.T) {
	store, err := NewBoundedCacheStore(2)
	require.NoError(t, err)

	store.Put(CacheKey{Device: 1, ID: 1}, "a")
	store.Put(CacheKey{Device: 1, ID: 2}, "b")
	store.Put(CacheKey{Device: 1, ID: 3}, "c")

	assert.Equal(t, 2, store.Len())
	_, ok := store.Get(CacheKey{Device: 1, ID: 1})
	assert.False(t, ok, "oldest entry should have been evicted")
}
