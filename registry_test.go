package prolink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestKeepaliveCreatesDevice(t *testing.T) {
	r := NewRegistry()
	var notified []int
	r.Subscribe(func(_ *Registry, n int) { notified = append(notified, n) })

	r.IngestKeepalive(KeepalivePacket{Model: "CDJ-3000", IP: "10.0.0.1", MAC: "aa:bb", DeviceNumber: 2})

	snap, ok := r.Get(2)
	require.True(t, ok)
	assert.Equal(t, "CDJ-3000", snap.Model)
	assert.Equal(t, "10.0.0.1", snap.IP)
	assert.Equal(t, []int{2}, notified)
}

func TestIngestKeepaliveReassignsDeviceNumber(t *testing.T) {
	r := NewRegistry()
	r.IngestKeepalive(KeepalivePacket{Model: "CDJ-3000", IP: "10.0.0.1", MAC: "aa:bb", DeviceNumber: 2})
	r.IngestKeepalive(KeepalivePacket{Model: "CDJ-3000", IP: "10.0.0.1", MAC: "aa:bb", DeviceNumber: 3})

	_, ok := r.Get(2)
	assert.False(t, ok)
	snap, ok := r.Get(3)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", snap.IP)
}

func TestIngestBeatIgnoredForUnknownDevice(t *testing.T) {
	r := NewRegistry()
	r.IngestBeat(BeatPacket{DeviceNumber: 9, Pitch: 0, BPMRaw: 12000, Beat: 1})
	_, ok := r.Get(9)
	assert.False(t, ok)
}

func TestIngestBeatUpdatesBeforeStatus(t *testing.T) {
	r := NewRegistry()
	r.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})

	r.IngestBeat(BeatPacket{DeviceNumber: 1, Pitch: 1.02, BPMRaw: 12800, Beat: 4})

	snap, _ := r.Get(1)
	assert.Equal(t, 1.02, snap.PitchDisplay)
	assert.Equal(t, 128.0, snap.BPM)
	assert.Equal(t, uint32(4), snap.Beat)
}

func TestIngestBeatSuppressedAfterStatus(t *testing.T) {
	r := NewRegistry()
	r.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})
	r.IngestStatus(StatusPacket{DeviceNumber: 1, BPMRaw: 12000, PlayState: PlayStatePlaying})

	r.IngestBeat(BeatPacket{DeviceNumber: 1, Pitch: 9.99, BPMRaw: 9999, Beat: 1})

	snap, _ := r.Get(1)
	assert.Equal(t, 120.0, snap.BPM, "status-derived BPM must not be clobbered by a later beat packet")
}

func TestIngestStatusTranslatesSentinels(t *testing.T) {
	r := NewRegistry()
	r.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})

	r.IngestStatus(StatusPacket{
		DeviceNumber: 1,
		BPMRaw:       bpmSentinelRaw,
		BeatCount:    statusBeatSentinel,
		CueDistance:  statusCueDistanceSentinel,
		PlayState:    PlayStateNoTrack,
	})

	snap, _ := r.Get(1)
	assert.Equal(t, Unknown, snap.BPM)
	assert.Equal(t, Unknown, snap.Beat)
	assert.Equal(t, Unknown, snap.CueDistance)
}

func TestIngestStatusDecodesRoles(t *testing.T) {
	r := NewRegistry()
	r.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})
	r.IngestStatus(StatusPacket{DeviceNumber: 1, RoleBits: roleBitMaster | roleBitPlay})

	snap, _ := r.Get(1)
	assert.ElementsMatch(t, []Role{RoleMaster, RolePlay}, snap.Roles)
}

func TestSweepRemovesExpiredDevicesSilently(t *testing.T) {
	r := NewRegistry().WithTTL(time.Millisecond)
	var notifications int
	r.Subscribe(func(_ *Registry, _ int) { notifications++ })

	r.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})
	time.Sleep(5 * time.Millisecond)
	r.Sweep()

	_, ok := r.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, notifications, "sweep must not fire a change event")
}

func TestListReturnsAllDevices(t *testing.T) {
	r := NewRegistry()
	r.IngestKeepalive(KeepalivePacket{IP: "10.0.0.1", DeviceNumber: 1})
	r.IngestKeepalive(KeepalivePacket{IP: "10.0.0.2", DeviceNumber: 2})

	devices := r.List()
	assert.Len(t, devices, 2)
}
