package prolink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDBClient(t *testing.T) *DBClient {
	t.Helper()
	cfg := DefaultConfig().DBClient
	cfg.BackPressureSleep = time.Millisecond
	c, err := NewDBClient(NewRegistry(), cfg)
	require.NoError(t, err)
	return c
}

func TestDispatchUnknownDeviceDropsSilently(t *testing.T) {
	c := newTestDBClient(t)
	called := false
	c.dispatch(&Request{
		Kind:   KindTitle,
		Params: []int{99},
		Callback: func(RequestKind, []int, interface{}) {
			called = true
		},
	})
	assert.False(t, called, "unknown device must not invoke the callback")
}

func TestDispatchDefersBlobRequestInNonPlayableState(t *testing.T) {
	c := newTestDBClient(t)
	c.registry.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})
	c.registry.IngestStatus(StatusPacket{DeviceNumber: 1, PlayState: PlayStateNoTrack})

	called := false
	c.dispatch(&Request{
		Kind:   KindArtwork,
		Params: []int{1, 1, int(slotWireID[SlotUSB]), 5},
		Callback: func(RequestKind, []int, interface{}) {
			called = true
		},
	})

	assert.False(t, called)
	assert.Equal(t, 1, c.queue.len(), "deferred request must be re-enqueued at the tail")
}

func TestDispatchCacheHitSkipsWire(t *testing.T) {
	c := newTestDBClient(t)
	c.registry.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})
	c.registry.IngestStatus(StatusPacket{DeviceNumber: 1, PlayState: PlayStatePlaying})

	store := c.caches[KindArtwork]
	key := CacheKey{Device: 1, Slot: SlotUSB, ID: 5}
	store.Put(key, []byte("cached-art"))

	var got interface{}
	c.dispatch(&Request{
		Kind:   KindArtwork,
		Store:  store,
		Params: []int{1, 1, int(slotWireID[SlotUSB]), 5},
		Callback: func(_ RequestKind, _ []int, result interface{}) {
			got = result
		},
	})

	assert.Equal(t, []byte("cached-art"), got)
}

func TestListSetupArgsRootMenu(t *testing.T) {
	c := newTestDBClient(t)
	args := c.listSetupArgs(&Request{Kind: KindRootMenu, Params: []int{1, 1, 0}}, 42)
	require.Len(t, args, 3)
	assert.Equal(t, int32(42), args[0].Int)
	assert.Equal(t, int32(0), args[1].Int)
	assert.Equal(t, int32(0x00FFFFFF), args[2].Int)
}

func TestListSetupArgsTitleByAlbumPutsSortBeforeID(t *testing.T) {
	c := newTestDBClient(t)
	req := &Request{Kind: KindTitleByAlbum, Params: []int{1, 1, 0, 77}, SortMode: "bpm"}
	args := c.listSetupArgs(req, 42)
	require.Len(t, args, 3)
	assert.Equal(t, int32(4), args[1].Int, "sort id must precede the album id")
	assert.Equal(t, int32(77), args[2].Int)
}

func TestListSetupArgsPlaylistFolderMode(t *testing.T) {
	c := newTestDBClient(t)
	req := &Request{Kind: KindPlaylist, Params: []int{1, 1, 0, 9, 0}}
	args := c.listSetupArgs(req, 42)
	require.Len(t, args, 4)
	assert.Equal(t, int32(9), args[2].Int, "falls back to the folder id")
	assert.Equal(t, int32(1), args[3].Int, "mode=1 selects folder")
}

func TestListSetupArgsPlaylistPlaylistMode(t *testing.T) {
	c := newTestDBClient(t)
	req := &Request{Kind: KindPlaylist, Params: []int{1, 1, 0, 9, 21}}
	args := c.listSetupArgs(req, 42)
	require.Len(t, args, 4)
	assert.Equal(t, int32(21), args[2].Int)
	assert.Equal(t, int32(0), args[3].Int, "mode=0 selects playlist")
}

func TestGetPlaylistValidatesParams(t *testing.T) {
	c := newTestDBClient(t)
	err := c.GetPlaylist(0, 1, 1, 9, 21, "", func(RequestKind, []int, interface{}) {})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDispatchNotesMetadataOnCacheHit(t *testing.T) {
	c := newTestDBClient(t)
	c.registry.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})
	c.registry.IngestStatus(StatusPacket{DeviceNumber: 1, PlayState: PlayStatePlaying})

	store := c.caches[KindMetadata]
	key := CacheKey{Device: 1, Slot: SlotUSB, ID: 5}
	rec := Record{"title": "Test Track"}
	store.Put(key, rec)

	c.dispatch(&Request{
		Kind:   KindMetadata,
		Store:  store,
		Params: []int{1, 1, int(slotWireID[SlotUSB]), 5},
	})

	snap, ok := c.registry.Get(1)
	require.True(t, ok)
	assert.Equal(t, rec, snap.LoadedTrackMetadata)
}

func TestQueueDepthReflectsPending(t *testing.T) {
	c := newTestDBClient(t)
	assert.Equal(t, 0, c.QueueDepth())
	c.queue.push(&Request{Kind: KindTitle, Params: []int{1}})
	assert.Equal(t, 1, c.QueueDepth())
}
