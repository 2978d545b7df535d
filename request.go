package prolink

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestKind names the operation a Request performs. The blob-class kinds
// (listed in blobKinds below) are subject to the admission-control defer
// policy of §4.2; the list-class kinds drive a two-phase setup/render
// exchange; metadata is list-shaped on the wire but synthesizes a single
// merged record instead of a sequence.
type RequestKind string

const (
	KindMetadata         RequestKind = "metadata"
	KindRootMenu         RequestKind = "root_menu"
	KindTitle            RequestKind = "title"
	KindTitleByAlbum     RequestKind = "title_by_album"
	KindArtist           RequestKind = "artist"
	KindAlbumByArtist    RequestKind = "album_by_artist"
	KindTitleByArtistAlbum RequestKind = "title_by_artist_album"
	KindPlaylist         RequestKind = "playlist"
	KindArtwork          RequestKind = "artwork"
	KindWaveform         RequestKind = "waveform"
	KindPreviewWaveform  RequestKind = "preview_waveform"
	KindBeatgrid         RequestKind = "beatgrid"
)

// blobKinds is the admission-control deferral and memoization set of §4.2:
// requests of these kinds are re-enqueued rather than dispatched while the
// target device sits in a non-playable state, and are eligible for
// CacheStore memoization. It is not the same set as dbclient.go's
// singlePhaseKinds — metadata belongs here but still uses the two-phase
// list exchange on the wire.
var blobKinds = map[RequestKind]bool{
	KindMetadata:        true,
	KindArtwork:         true,
	KindWaveform:        true,
	KindPreviewWaveform: true,
	KindBeatgrid:        true,
}

// ResultCallback receives a request's outcome: the kind, its parameter
// tuple, and the parsed result (nil on any failure per §7's "nil means try
// again" contract).
type ResultCallback func(kind RequestKind, params []int, result interface{})

// Request is the immutable four-tuple of §3: kind, optional backing store,
// parameter tuple (element 0 is always the target device number), and an
// optional completion callback. CorrelationID is a local addition purely
// for log/metric correlation — it plays no role in the wire protocol.
type Request struct {
	Kind          RequestKind
	Store         CacheStore
	Params        []int
	SortMode      string // "" when not applicable
	Callback      ResultCallback
	CorrelationID string
}

func newCorrelationID() string {
	return uuid.NewString()
}

// requestQueue is an unbounded, thread-safe FIFO. Push never blocks; Pop
// blocks up to timeout waiting for an item, matching the worker loop's
// "pop with 1s timeout, else run the idle sweep" behavior (§4.2 step 1).
type requestQueue struct {
	mu     sync.Mutex
	items  []*Request
	notify chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{notify: make(chan struct{}, 1)}
}

func (q *requestQueue) push(r *Request) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *requestQueue) pop(timeout time.Duration) (*Request, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return r, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
			continue
		case <-deadline.C:
			return nil, false
		}
	}
}

func (q *requestQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
