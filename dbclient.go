package prolink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// sortModeCode maps the caller-facing sort mode name to the wire's integer
// sort-mode argument, drawn from §4.2's fixed enumeration. A mode not
// present in this table is rejected by validateSortMode rather than
// silently falling back to the default.
var sortModeCode = map[string]int32{
	"":                0,
	"default":         0,
	"title":           1,
	"artist":          2,
	"album":           3,
	"bpm":             4,
	"rating":          5,
	"genre":           6,
	"comment":         7,
	"duration":        8,
	"remixer":         9,
	"label":           10,
	"original_artist": 11,
	"key":             12,
	"bitrate":         13,
	"dj_play_count":   14,
}

// locator packs the (querying device, source device, media slot) triple
// every list/blob request's first argument carries (§4.2).
func locator(ownDevice, sourceDevice int, slot Slot) int32 {
	return int32(uint32(ownDevice)<<24 | uint32(sourceDevice)<<16 | uint32(slotWireID[slot])<<8 | 1)
}

// DBClient is the request-queueing, connection-pooling client that speaks
// the tagged-field query protocol to every device's database server (§4.2).
// One DBClient serves an entire session; callers never touch a
// ConnectionEntry or the wire codec directly.
type DBClient struct {
	registry *Registry
	pool     *connectionPool
	queue    *requestQueue
	caches   map[RequestKind]CacheStore
	config   DBClientConfig
	metrics  *Metrics
	mqtt     *MQTTBridge

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDBClient builds a DBClient bound to registry, with one memoization
// store per blob-class request kind. cfg.CacheBound, if positive, makes
// those stores LRU-bounded instead of unbounded (§9 design note).
func NewDBClient(registry *Registry, cfg DBClientConfig) (*DBClient, error) {
	caches := make(map[RequestKind]CacheStore, len(blobKinds))
	for kind := range blobKinds {
		if cfg.CacheBound > 0 {
			store, err := NewBoundedCacheStore(cfg.CacheBound)
			if err != nil {
				return nil, fmt.Errorf("prolink: building cache for %s: %w", kind, err)
			}
			caches[kind] = store
		} else {
			caches[kind] = NewCacheStore()
		}
	}

	return &DBClient{
		registry: registry,
		pool:     newConnectionPool(cfg.ConnectionTTLTicks, cfg.OwnDeviceNumber, cfg.ReceiveBufferBytes, nil),
		queue:    newRequestQueue(),
		caches:   caches,
		config:   cfg,
	}, nil
}

// AttachMetrics wires Prometheus observation into the client and its
// connection pool.
func (c *DBClient) AttachMetrics(m *Metrics) {
	c.metrics = m
	c.pool.metrics = m
}

// AttachMQTT wires an MQTTBridge so completed requests are also published
// out of process.
func (c *DBClient) AttachMQTT(b *MQTTBridge) {
	c.mqtt = b
}

// Start launches the single dedicated worker goroutine (§4.2 — one worker,
// not a pool, since request ordering and connection reuse both assume a
// single in-flight dispatcher).
func (c *DBClient) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the worker to exit and waits for it, then closes every
// pooled connection.
func (c *DBClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.pool.closeAll()
}

func (c *DBClient) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, ok := c.queue.pop(c.config.PopTimeout)
		if !ok {
			c.pool.sweep()
			continue
		}
		if c.metrics != nil {
			c.metrics.SetQueueDepth(c.queue.len())
		}
		c.dispatch(req)
	}
}

// dispatch resolves the request's target device, applies admission control,
// checks memoization, performs the wire exchange, and invokes the caller's
// callback exactly once. A request for an unknown device is dropped without
// invoking its callback; a deferred request is re-enqueued and its callback
// runs when a later dispatch completes it.
func (c *DBClient) dispatch(req *Request) {
	deviceNumber := req.Params[0]
	snap, ok := c.registry.Get(deviceNumber)
	if !ok {
		log.Printf("prolink: request %s for device %d dropped: %v", req.Kind, deviceNumber, ErrUnknownDevice)
		c.observe(req, "unknown_device", false)
		return
	}

	if blobKinds[req.Kind] && blobDeferStates[snap.PlayState] {
		time.Sleep(c.config.BackPressureSleep)
		c.queue.push(req)
		if c.metrics != nil {
			c.metrics.ObserveDeferred(string(req.Kind))
		}
		return
	}

	var key CacheKey
	cacheable := blobKinds[req.Kind] && req.Store != nil
	if cacheable {
		key = CacheKey{Device: deviceNumber, Slot: Slot(""), ID: lastParam(req.Params)}
		if len(req.Params) > 2 {
			key.Slot = slotFromWireID(req.Params[2])
		}
		if v, ok := req.Store.Get(key); ok {
			if c.metrics != nil {
				c.metrics.ObserveCacheHit(string(req.Kind))
			}
			if req.Kind == KindMetadata {
				if rec, ok := v.(Record); ok {
					c.registry.NoteLoadedTrackMetadata(deviceNumber, rec)
				}
			}
			c.complete(req, v, true)
			return
		}
		if c.metrics != nil {
			c.metrics.ObserveCacheMiss(string(req.Kind))
		}
	}

	start := time.Now()
	result, err := c.execute(req, snap)
	if c.metrics != nil {
		c.metrics.ObserveRequest(string(req.Kind), outcomeLabel(err), time.Since(start))
	}
	if err != nil {
		log.Printf("prolink: request %s for device %d failed: %v", req.Kind, deviceNumber, err)
		c.complete(req, nil, false)
		return
	}

	if cacheable {
		req.Store.Put(key, result)
	}
	if req.Kind == KindMetadata {
		if rec, ok := result.(Record); ok {
			c.registry.NoteLoadedTrackMetadata(deviceNumber, rec)
		}
	}
	c.complete(req, result, true)
}

func lastParam(params []int) int {
	if len(params) == 0 {
		return 0
	}
	return params[len(params)-1]
}

func slotFromWireID(id int) Slot {
	for slot, wireID := range slotWireID {
		if int(wireID) == id {
			return slot
		}
	}
	return SlotEmpty
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrConnectionFailure):
		return "connection_failure"
	case errors.Is(err, ErrProtocolFailure):
		return "protocol_failure"
	case errors.Is(err, ErrParseFailure):
		return "parse_failure"
	default:
		return "failure"
	}
}

func (c *DBClient) observe(req *Request, outcome string, success bool) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(string(req.Kind), outcome, 0)
	}
	if c.mqtt != nil {
		c.mqtt.PublishResult(string(req.Kind), req.Params[0], success)
	}
}

func (c *DBClient) complete(req *Request, result interface{}, success bool) {
	if c.mqtt != nil {
		c.mqtt.PublishResult(string(req.Kind), req.Params[0], success)
	}
	if req.Callback != nil {
		req.Callback(req.Kind, req.Params, result)
	}
}

// execute performs the wire-level work for one request against its already
// resolved device snapshot: establishing/reusing the connection, building
// and sending the request, and parsing its reply.
func (c *DBClient) execute(req *Request, snap DeviceSnapshot) (interface{}, error) {
	entry, err := c.pool.get(snap.Number, snap.IP)
	if err != nil {
		return nil, err
	}

	sourceDevice := snap.Number
	if len(req.Params) > 1 {
		sourceDevice = req.Params[1]
	}
	slot := SlotUSB
	if len(req.Params) > 2 {
		slot = slotFromWireID(req.Params[2])
	}
	loc := locator(c.config.OwnDeviceNumber, sourceDevice, slot)

	if singlePhaseKinds[req.Kind] {
		return c.executeBlob(entry, req, loc)
	}
	return c.executeList(entry, req, loc)
}

// singlePhaseKinds are the request kinds that use the one-phase
// setup/reply blob exchange (§4.2). This is distinct from blobKinds: that
// set also gates metadata's admission-control deferral and memoization,
// but metadata itself rides the two-phase list exchange like any other
// list query, just merged into a single record afterward.
var singlePhaseKinds = map[RequestKind]bool{
	KindArtwork:         true,
	KindWaveform:        true,
	KindPreviewWaveform: true,
	KindBeatgrid:        true,
}

func requestTypeName(kind RequestKind) string {
	switch kind {
	case KindMetadata:
		return "metadata_request"
	case KindRootMenu:
		return "root_menu_request"
	case KindTitle:
		return "title_request"
	case KindTitleByAlbum:
		return "title_by_album_request"
	case KindArtist:
		return "artist_request"
	case KindAlbumByArtist:
		return "album_by_artist_request"
	case KindTitleByArtistAlbum:
		return "title_by_artist_album_request"
	case KindPlaylist:
		return "playlist_request"
	case KindArtwork:
		return "artwork_request"
	case KindWaveform:
		return "waveform_request"
	case KindPreviewWaveform:
		return "preview_waveform_request"
	case KindBeatgrid:
		return "beatgrid_request"
	default:
		return ""
	}
}

// executeBlob performs the single-phase request/reply exchange blob-class
// queries use: one request frame, one reply carrying the payload as a blob
// argument.
func (c *DBClient) executeBlob(entry *ConnectionEntry, req *Request, loc int32) (interface{}, error) {
	args := []Argument{Int32Arg(loc), Int32Arg(int32(lastParam(req.Params)))}
	typeName := requestTypeName(req.Kind)

	msgs, err := entry.sendAndReceive(typeName, args, c.config.SingleMessageRetries, c.config.ReceiveBufferBytes, singleMessageDone)
	if err != nil {
		return nil, err
	}

	reply := msgs[0]
	if reply.TypeName == "invalid_request" {
		return nil, fmt.Errorf("%w: %s reply was invalid_request", ErrProtocolFailure, typeName)
	}
	if len(reply.Args) < 3 || reply.Args[2].Type != argInt32 || reply.Args[2].Int == 0 {
		return nil, fmt.Errorf("%w: %s reply success flag was zero", ErrProtocolFailure, typeName)
	}

	var blob []byte
	if len(reply.Args) > 3 && reply.Args[3].Type == argBlob {
		blob = reply.Args[3].Bytes
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: %s reply carried no blob argument", ErrParseFailure, typeName)
	}

	if req.Kind == KindBeatgrid {
		entries, err := ParseBeatgrid(blob)
		if err != nil {
			return nil, err
		}
		return entries, nil
	}
	return blob, nil
}

// executeList performs the two-phase setup/render exchange every
// list-shaped query (including metadata, which is list-shaped on the wire
// but merges to a single record) uses: a setup request whose reply carries
// the item count, followed by a render request whose reply streams
// menu_header/menu_item.../menu_footer.
func (c *DBClient) executeList(entry *ConnectionEntry, req *Request, loc int32) (interface{}, error) {
	setupArgs := c.listSetupArgs(req, loc)
	typeName := requestTypeName(req.Kind)

	setupReply, err := entry.sendAndReceive(typeName, setupArgs, c.config.SingleMessageRetries, c.config.ReceiveBufferBytes, singleMessageDone)
	if err != nil {
		return nil, err
	}

	if setupReply[0].TypeName != "success" {
		return nil, fmt.Errorf("%w: %s setup reply was %s", ErrProtocolFailure, typeName, setupReply[0].TypeName)
	}

	// The reply's second argument (index 1) is the entry count; the first
	// echoes the locator.
	count := int32(0)
	if len(setupReply[0].Args) > 1 && setupReply[0].Args[1].Type == argInt32 {
		count = setupReply[0].Args[1].Int
	}

	renderArgs := []Argument{
		Int32Arg(loc),
		Int32Arg(0),
		Int32Arg(count),
		Int32Arg(0),
		Int32Arg(count),
		Int32Arg(0),
	}
	renderReply, err := entry.sendAndReceive("render", renderArgs, c.config.RenderRetries, c.config.ReceiveBufferBytes, renderStreamDone)
	if err != nil {
		return nil, err
	}

	if req.Kind == KindMetadata {
		return ParseMetadata(renderReply), nil
	}
	return ParseList(renderReply), nil
}

// listSetupArgs builds the kind-specific setup request arguments. Params
// layout (documented on the exported Get* methods): Params[0] device,
// Params[1] source device, Params[2] slot wire id, remaining entries are
// kind-specific ids (album/artist/playlist/track).
func (c *DBClient) listSetupArgs(req *Request, loc int32) []Argument {
	ids := req.Params
	extra := func(i int) int32 {
		if len(ids) > i {
			return int32(ids[i])
		}
		return 0
	}
	sort := sortModeCode[req.SortMode]

	switch req.Kind {
	case KindRootMenu:
		return []Argument{Int32Arg(loc), Int32Arg(0), Int32Arg(0x00FFFFFF)}
	case KindMetadata:
		return []Argument{Int32Arg(loc), Int32Arg(extra(3))}
	case KindTitle, KindArtist:
		return []Argument{Int32Arg(loc), Int32Arg(sort)}
	case KindTitleByAlbum:
		return []Argument{Int32Arg(loc), Int32Arg(sort), Int32Arg(extra(3))}
	case KindAlbumByArtist:
		return []Argument{Int32Arg(loc), Int32Arg(sort), Int32Arg(extra(3))}
	case KindTitleByArtistAlbum:
		return []Argument{Int32Arg(loc), Int32Arg(sort), Int32Arg(extra(3)), Int32Arg(extra(4))}
	case KindPlaylist:
		// Params[3] is the folder id, Params[4] the playlist id. mode=1
		// selects the folder; mode=0 selects the playlist, falling back to
		// the folder id when the playlist id is 0 (§4.2).
		folderID, playlistID := extra(3), extra(4)
		id, mode := playlistID, int32(0)
		if playlistID == 0 {
			id, mode = folderID, int32(1)
		}
		return []Argument{Int32Arg(loc), Int32Arg(sort), Int32Arg(id), Int32Arg(mode)}
	default:
		return []Argument{Int32Arg(loc)}
	}
}

// validateParams enforces §4.2's enqueue-time admission control: every
// request needs a device number in 1..4 and, once a media slot is in play,
// a recognized slot wire id.
func validateParams(kind RequestKind, params []int) error {
	if len(params) < 1 {
		return fmt.Errorf("%w: %s needs at least a device number", ErrInvalidParams, kind)
	}
	if params[0] < 1 || params[0] > 4 {
		return fmt.Errorf("%w: %s device number %d out of range 1..4", ErrInvalidParams, kind, params[0])
	}
	if len(params) > 2 {
		if slotFromWireID(params[2]) == SlotEmpty && params[2] != int(slotWireID[SlotEmpty]) {
			return fmt.Errorf("%w: %s slot id %d not recognized", ErrInvalidParams, kind, params[2])
		}
	}
	return nil
}

// validateSortMode enforces §7's "sort mode not in the enumeration" rejection.
func validateSortMode(kind RequestKind, mode string) error {
	if _, ok := sortModeCode[mode]; !ok {
		return fmt.Errorf("%w: %s sort mode %q not recognized", ErrInvalidParams, kind, mode)
	}
	return nil
}

func (c *DBClient) enqueue(kind RequestKind, params []int, sortMode string, cb ResultCallback) error {
	if err := validateParams(kind, params); err != nil {
		return err
	}
	if err := validateSortMode(kind, sortMode); err != nil {
		return err
	}
	c.queue.push(&Request{
		Kind:          kind,
		Store:         c.caches[kind],
		Params:        params,
		SortMode:      sortMode,
		Callback:      cb,
		CorrelationID: newCorrelationID(),
	})
	return nil
}

// GetMetadata requests and merges the full metadata record for the track
// identified by trackID on the given device/source/slot.
func (c *DBClient) GetMetadata(device, source, slot, trackID int, cb ResultCallback) error {
	return c.enqueue(KindMetadata, []int{device, source, slot, trackID}, "", cb)
}

// GetRootMenu requests a device's top-level menu listing.
func (c *DBClient) GetRootMenu(device, source, slot int, cb ResultCallback) error {
	return c.enqueue(KindRootMenu, []int{device, source, slot}, "", cb)
}

// GetTitles requests the full track listing for a media slot.
func (c *DBClient) GetTitles(device, source, slot int, sortMode string, cb ResultCallback) error {
	return c.enqueue(KindTitle, []int{device, source, slot}, sortMode, cb)
}

// GetTitlesByAlbum requests the tracks belonging to one album.
func (c *DBClient) GetTitlesByAlbum(device, source, slot, albumID int, sortMode string, cb ResultCallback) error {
	return c.enqueue(KindTitleByAlbum, []int{device, source, slot, albumID}, sortMode, cb)
}

// GetArtists requests the full artist listing for a media slot.
func (c *DBClient) GetArtists(device, source, slot int, sortMode string, cb ResultCallback) error {
	return c.enqueue(KindArtist, []int{device, source, slot}, sortMode, cb)
}

// GetAlbumsByArtist requests the albums belonging to one artist.
func (c *DBClient) GetAlbumsByArtist(device, source, slot, artistID int, sortMode string, cb ResultCallback) error {
	return c.enqueue(KindAlbumByArtist, []int{device, source, slot, artistID}, sortMode, cb)
}

// GetTitlesByArtistAlbum requests the tracks belonging to one artist/album pair.
func (c *DBClient) GetTitlesByArtistAlbum(device, source, slot, artistID, albumID int, sortMode string, cb ResultCallback) error {
	return c.enqueue(KindTitleByArtistAlbum, []int{device, source, slot, artistID, albumID}, sortMode, cb)
}

// GetPlaylists requests a playlist folder's children. folderID 0 is the
// playlist root. The request is sent in folder mode (§4.2).
func (c *DBClient) GetPlaylists(device, source, slot, folderID int, cb ResultCallback) error {
	return c.enqueue(KindPlaylist, []int{device, source, slot, folderID, 0}, "", cb)
}

// GetPlaylist requests the tracks belonging to one playlist within folderID.
// The request is sent in playlist mode (§4.2); a zero playlistID falls back
// to folder mode, matching GetPlaylists.
func (c *DBClient) GetPlaylist(device, source, slot, folderID, playlistID int, sortMode string, cb ResultCallback) error {
	return c.enqueue(KindPlaylist, []int{device, source, slot, folderID, playlistID}, sortMode, cb)
}

// GetArtwork requests the artwork image blob for an artwork id.
func (c *DBClient) GetArtwork(device, source, slot, artworkID int, cb ResultCallback) error {
	return c.enqueue(KindArtwork, []int{device, source, slot, artworkID}, "", cb)
}

// GetWaveform requests the full-resolution waveform blob for a track.
func (c *DBClient) GetWaveform(device, source, slot, trackID int, cb ResultCallback) error {
	return c.enqueue(KindWaveform, []int{device, source, slot, trackID}, "", cb)
}

// GetPreviewWaveform requests the low-resolution overview waveform blob for
// a track.
func (c *DBClient) GetPreviewWaveform(device, source, slot, trackID int, cb ResultCallback) error {
	return c.enqueue(KindPreviewWaveform, []int{device, source, slot, trackID}, "", cb)
}

// GetBeatgrid requests and decodes the beatgrid for a track.
func (c *DBClient) GetBeatgrid(device, source, slot, trackID int, cb ResultCallback) error {
	return c.enqueue(KindBeatgrid, []int{device, source, slot, trackID}, "", cb)
}

// QueueDepth reports the number of requests currently waiting to be
// dispatched.
func (c *DBClient) QueueDepth() int {
	return c.queue.len()
}
