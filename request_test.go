package prolink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestQueueFIFOOrder(t *testing.T) {
	q := newRequestQueue()
	q.push(&Request{Kind: KindTitle, Params: []int{1}})
	q.push(&Request{Kind: KindArtist, Params: []int{2}})

	first, ok := q.pop(time.Second)
	assert.True(t, ok)
	assert.Equal(t, KindTitle, first.Kind)

	second, ok := q.pop(time.Second)
	assert.True(t, ok)
	assert.Equal(t, KindArtist, second.Kind)
}

func TestRequestQueuePopTimesOut(t *testing.T) {
	q := newRequestQueue()
	_, ok := q.pop(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestRequestQueueLen(t *testing.T) {
	q := newRequestQueue()
	assert.Equal(t, 0, q.len())
	q.push(&Request{Kind: KindTitle, Params: []int{1}})
	assert.Equal(t, 1, q.len())
}

func TestValidateParamsRejectsMissingDevice(t *testing.T) {
	err := validateParams(KindTitle, nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestValidateParamsRejectsUnknownSlot(t *testing.T) {
	err := validateParams(KindTitle, []int{1, 1, 0x7f})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestValidateParamsAcceptsKnownSlot(t *testing.T) {
	err := validateParams(KindTitle, []int{1, 1, int(slotWireID[SlotUSB])})
	assert.NoError(t, err)
}

func TestValidateParamsRejectsDeviceOutOfRange(t *testing.T) {
	assert.ErrorIs(t, validateParams(KindTitle, []int{0}), ErrInvalidParams)
	assert.ErrorIs(t, validateParams(KindTitle, []int{5}), ErrInvalidParams)
}

func TestValidateSortModeRejectsUnknownMode(t *testing.T) {
	assert.ErrorIs(t, validateSortMode(KindTitle, "shuffle"), ErrInvalidParams)
}

func TestValidateSortModeAcceptsEnumeratedMode(t *testing.T) {
	assert.NoError(t, validateSortMode(KindTitle, "bpm"))
	assert.Equal(t, int32(4), sortModeCode["bpm"])
}
