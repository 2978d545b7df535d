package prolink

import "time"

// PlayState is the playback state a device announces in its status frame.
type PlayState string

const (
	PlayStateNoTrack           PlayState = "no_track"
	PlayStateLoadingTrack      PlayState = "loading_track"
	PlayStateCannotPlayTrack   PlayState = "cannot_play_track"
	PlayStateEmergency         PlayState = "emergency"
	PlayStatePlaying           PlayState = "playing"
	PlayStatePaused            PlayState = "paused"
	PlayStateCued              PlayState = "cued"
	PlayStateSearching         PlayState = "searching"
	PlayStateEnding            PlayState = "ending"
)

// blobDeferStates is the back-pressure set of §4.2: blob-class queries sent
// while a device sits in one of these states are re-enqueued rather than
// dispatched.
var blobDeferStates = map[PlayState]bool{
	PlayStateNoTrack:         true,
	PlayStateLoadingTrack:    true,
	PlayStateCannotPlayTrack: true,
	PlayStateEmergency:       true,
}

// MediaSlotState is the loading state of a USB or SD media bay.
type MediaSlotState string

const (
	MediaSlotNotLoaded MediaSlotState = "not_loaded"
	MediaSlotLoading   MediaSlotState = "loading"
	MediaSlotLoaded    MediaSlotState = "loaded"
)

// Slot identifies which media bay a query targets.
type Slot string

const (
	SlotEmpty   Slot = "empty"
	SlotUSB     Slot = "usb"
	SlotSD      Slot = "sd"
	SlotAnalyze Slot = "analyze"
)

// slotWireID is the single byte the wire protocol expects in a query
// locator's slot field.
var slotWireID = map[Slot]byte{
	SlotEmpty:   0x00,
	SlotUSB:     0x02,
	SlotSD:      0x03,
	SlotAnalyze: 0x04,
}

// Role is a live attribute a device may hold simultaneously with others.
type Role string

const (
	RoleOnAir  Role = "on_air"
	RoleSync   Role = "sync"
	RoleMaster Role = "master"
	RolePlay   Role = "play"
)

// Unknown is the sentinel value for fields whose wire representation
// carries a dedicated "not available" encoding (§3, §4.1).
const Unknown = "unknown"

// Device is one physical unit observed on the bus. The Registry is its sole
// owner; callers only ever see a DeviceSnapshot copy.
type Device struct {
	// Identity
	Number   int
	Model    string
	IP       string
	MAC      string
	Firmware string

	// Playback state. BPM/Beat/CueDistance hold either a numeric value or
	// the Unknown sentinel string, matching the wire's "no data" encodings.
	BPM           interface{} // float64 or Unknown
	PitchDisplay  float64
	PitchActual   float64
	BeatInBar     int // 1..4, or 0 if unknown
	Beat          interface{} // uint32 or Unknown
	CueDistance   interface{} // int or Unknown
	PlayState     PlayState
	USBState      MediaSlotState
	SDState       MediaSlotState
	LoadedSlot    Slot

	Roles             map[Role]bool
	TrackNumber       int
	LoadedFromDevice  int
	LoadedSlotForTrack Slot

	// LoadedTrackMetadata is the last metadata record resolved for this
	// device's currently loaded track. It is a side-channel note written by
	// the DBClient's memoization path (§4.2), not an observation from the
	// bus, so it never triggers a change event.
	LoadedTrackMetadata Record

	// Housekeeping
	StatusPacketReceived bool
	TTLDeadline          time.Time
}

// HasRole reports whether the device currently holds the given role.
func (d *Device) HasRole(r Role) bool {
	return d.Roles != nil && d.Roles[r]
}

// roleList returns the device's active roles as a stable-ordered slice, used
// when building a DeviceSnapshot or a change-event log line.
func (d *Device) roleList() []Role {
	order := []Role{RoleOnAir, RoleSync, RoleMaster, RolePlay}
	out := make([]Role, 0, len(order))
	for _, r := range order {
		if d.HasRole(r) {
			out = append(out, r)
		}
	}
	return out
}

// isBlobDeferred reports whether the device's current play state requires
// blob-class queries (metadata, artwork, waveform, preview waveform,
// beatgrid) to be deferred rather than dispatched (§4.2 admission control).
func (d *Device) isBlobDeferred() bool {
	return blobDeferStates[d.PlayState]
}

// DeviceSnapshot is an immutable copy of a Device's exported fields, handed
// to callers of Registry.Get/List so they cannot reach back into
// Registry-owned state (§3 ownership rule).
type DeviceSnapshot struct {
	Number             int
	Model              string
	IP                 string
	MAC                string
	Firmware           string
	BPM                interface{}
	PitchDisplay       float64
	PitchActual        float64
	BeatInBar          int
	Beat               interface{}
	CueDistance        interface{}
	PlayState          PlayState
	USBState           MediaSlotState
	SDState            MediaSlotState
	LoadedSlot         Slot
	Roles              []Role
	TrackNumber        int
	LoadedFromDevice   int
	LoadedSlotForTrack Slot
	LoadedTrackMetadata Record
}

func snapshotOf(d *Device) DeviceSnapshot {
	return DeviceSnapshot{
		Number:             d.Number,
		Model:              d.Model,
		IP:                 d.IP,
		MAC:                d.MAC,
		Firmware:           d.Firmware,
		BPM:                d.BPM,
		PitchDisplay:       d.PitchDisplay,
		PitchActual:        d.PitchActual,
		BeatInBar:          d.BeatInBar,
		Beat:               d.Beat,
		CueDistance:        d.CueDistance,
		PlayState:          d.PlayState,
		USBState:           d.USBState,
		SDState:            d.SDState,
		LoadedSlot:         d.LoadedSlot,
		Roles:              d.roleList(),
		TrackNumber:        d.TrackNumber,
		LoadedFromDevice:   d.LoadedFromDevice,
		LoadedSlotForTrack: d.LoadedSlotForTrack,
		LoadedTrackMetadata: d.LoadedTrackMetadata,
	}
}
