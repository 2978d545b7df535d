package prolink

import (
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultDeviceTTL is how long a device is kept after its most recent
// packet before a sweep removes it (§3, §4.1).
const DefaultDeviceTTL = 5 * time.Second

// ChangeFunc is invoked synchronously, on the ingesting goroutine, whenever
// a device is added, meaningfully mutated, or re-indexed under a new
// device number. Per §4.1 it must be reentrancy-safe: it may read the
// Registry but must not call any Registry method that structurally mutates
// it (ingest/sweep) from within the callback.
type ChangeFunc func(r *Registry, deviceNumber int)

// Registry is the live, in-memory table of devices observed on the bus. Its
// mutating operations (ingest, sweep) are serialized under a single mutex,
// per the SHOULD of §5; change-event subscribers run synchronously on
// whichever goroutine called the ingest method.
type Registry struct {
	mu      sync.RWMutex
	devices map[int]*Device

	subMu       sync.Mutex
	subscribers []ChangeFunc

	ttl     time.Duration
	metrics *Metrics
}

// NewRegistry creates an empty Registry with the default TTL window.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[int]*Device),
		ttl:     DefaultDeviceTTL,
	}
}

// WithTTL overrides the default 5s TTL window, returning the Registry for
// chaining.
func (r *Registry) WithTTL(ttl time.Duration) *Registry {
	r.ttl = ttl
	return r
}

// AttachMetrics wires a Metrics sink that the Registry updates on every
// keepalive (device count) and every sweep (device count, sweep count,
// last-sweep timestamp). Additive only; a nil Metrics disables
// instrumentation.
func (r *Registry) AttachMetrics(m *Metrics) {
	r.metrics = m
}

// Subscribe registers an additional change callback. Subscribers are
// invoked in registration order, synchronously, after every callback
// already registered. This generalizes the single-callback legacy API
// (§9 design note) without changing its synchronous-delivery contract.
func (r *Registry) Subscribe(fn ChangeFunc) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Registry) notify(deviceNumber int) {
	r.subMu.Lock()
	subs := make([]ChangeFunc, len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMu.Unlock()

	for _, fn := range subs {
		fn(r, deviceNumber)
	}
}

// IngestKeepalive handles a keepalive broadcast. A device unknown by IP is
// created fresh and announced via a change event; a known device whose
// announced number differs from what we have on file is re-indexed under
// the new number and re-announced. The TTL is always refreshed.
func (r *Registry) IngestKeepalive(pkt KeepalivePacket) {
	r.mu.Lock()
	var existing *Device
	for _, d := range r.devices {
		if d.IP == pkt.IP {
			existing = d
			break
		}
	}

	var changedNumber int
	changed := false

	if existing == nil {
		d := &Device{
			Model:    pkt.Model,
			IP:       pkt.IP,
			MAC:      pkt.MAC,
			Number:   pkt.DeviceNumber,
			Roles:    make(map[Role]bool),
			PlayState: PlayStateNoTrack,
			USBState: MediaSlotNotLoaded,
			SDState:  MediaSlotNotLoaded,
		}
		d.TTLDeadline = time.Now().Add(r.ttl)
		r.devices[d.Number] = d
		changedNumber = d.Number
		changed = true
		log.Printf("prolink: new device %d at %s (mac %s)", d.Number, d.IP, macFingerprint(d.MAC))
	} else {
		existing.TTLDeadline = time.Now().Add(r.ttl)
		if existing.Number != pkt.DeviceNumber {
			log.Printf("prolink: device %s changed device number %d -> %d", existing.IP, existing.Number, pkt.DeviceNumber)
			delete(r.devices, existing.Number)
			existing.Number = pkt.DeviceNumber
			r.devices[existing.Number] = existing
			changedNumber = existing.Number
			changed = true
		}
	}
	size := len(r.devices)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetRegistrySize(size)
	}
	if changed {
		r.notify(changedNumber)
	}
}

// IngestBeat handles a beat broadcast. Unknown devices are dropped. The TTL
// is always refreshed; pitch/BPM/beat are only updated (and a change event
// fired) while the device has not yet received an authoritative status
// frame (§4.1).
func (r *Registry) IngestBeat(pkt BeatPacket) {
	r.mu.Lock()
	d, ok := r.devices[pkt.DeviceNumber]
	if !ok {
		r.mu.Unlock()
		return
	}
	d.TTLDeadline = time.Now().Add(r.ttl)
	updated := false
	if !d.StatusPacketReceived {
		d.PitchDisplay = pkt.Pitch
		d.BPM = bpmOf(pkt.BPMRaw)
		d.Beat = pkt.Beat
		updated = true
	}
	r.mu.Unlock()

	if updated {
		r.notify(pkt.DeviceNumber)
	}
}

// IngestStatus handles a full status broadcast: the authoritative source
// for playback fields. Sentinel values are translated to Unknown. Unknown
// devices are dropped; the TTL is always refreshed on a hit.
func (r *Registry) IngestStatus(pkt StatusPacket) {
	r.mu.Lock()
	d, ok := r.devices[pkt.DeviceNumber]
	if !ok {
		r.mu.Unlock()
		return
	}

	d.StatusPacketReceived = true
	d.Firmware = pkt.Firmware
	d.BPM = bpmOf(pkt.BPMRaw)
	d.PitchDisplay = pkt.PitchDisplay
	d.PitchActual = pkt.PitchActual
	d.BeatInBar = pkt.BeatInBar
	d.Beat = statusBeatOf(pkt.BeatCount)
	d.CueDistance = statusCueDistanceOf(pkt.CueDistance)
	d.PlayState = pkt.PlayState
	d.USBState = pkt.USBState
	d.SDState = pkt.SDState
	d.LoadedSlot = pkt.LoadedSlot
	d.Roles = rolesFromBits(pkt.RoleBits)
	d.TrackNumber = pkt.TrackNumber
	d.LoadedFromDevice = pkt.LoadedFromDevice
	d.LoadedSlotForTrack = pkt.LoadedSlot
	d.TTLDeadline = time.Now().Add(r.ttl)
	r.mu.Unlock()

	r.notify(pkt.DeviceNumber)
}

// Sweep removes every device whose TTL has expired. Removal is silent: no
// change event is fired.
func (r *Registry) Sweep() {
	now := time.Now()
	r.mu.Lock()
	for number, d := range r.devices {
		if now.After(d.TTLDeadline) {
			delete(r.devices, number)
		}
	}
	size := len(r.devices)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetRegistrySize(size)
		r.metrics.ObserveSweep()
	}
}

// Get returns a snapshot of the device with the given number, or false if
// no such device is currently known.
func (r *Registry) Get(number int) (DeviceSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[number]
	if !ok {
		return DeviceSnapshot{}, false
	}
	return snapshotOf(d), true
}

// NoteLoadedTrackMetadata records the metadata record resolved for a
// device's currently loaded track. Called from the DBClient's memoization
// path (§4.2) on both a cache hit and a fresh query, so the registry always
// reflects the last metadata served for whatever track the device has
// loaded; unknown devices are silently ignored.
func (r *Registry) NoteLoadedTrackMetadata(deviceNumber int, record Record) {
	r.mu.Lock()
	if d, ok := r.devices[deviceNumber]; ok {
		d.LoadedTrackMetadata = record
	}
	r.mu.Unlock()
}

// ListIPs returns the IP address of every currently-known device.
func (r *Registry) ListIPs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ips := make([]string, 0, len(r.devices))
	for _, d := range r.devices {
		ips = append(ips, d.IP)
	}
	return ips
}

// List returns a snapshot of every currently-known device.
func (r *Registry) List() []DeviceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceSnapshot, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, snapshotOf(d))
	}
	return out
}

// SweepLoop runs Sweep on a fixed interval until stop is closed. This is a
// convenience for the common "start a ticker" deployment shape; callers
// needing a different cadence can call Sweep directly instead.
func (r *Registry) SweepLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// macFingerprint returns a short, stable, non-reversible hash of a device's
// MAC address, used in the new-device log line in place of the raw address.
func macFingerprint(mac string) string {
	h := xxhash.Sum64String(mac)
	return fmtHex8(h)
}

func fmtHex8(h uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hexDigits[h&0xF]
		h >>= 4
	}
	return string(buf)
}
