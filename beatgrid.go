package prolink

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// BeatgridEntry is one beat's position in a track's beatgrid: how far into
// the track it falls, its tempo at that point, and which beat of the bar it
// is (1-4). Recovered from original_source/dbclient.py's
// Beatgrid.parse, which the distilled spec.md dropped.
type BeatgridEntry struct {
	OffsetMillis int
	BPM          float64
	BeatInBar    int
}

// ParseBeatgrid decodes a beatgrid blob reply into its per-beat entries.
// The wire shape is a flat sequence of 8-byte records: a 1-byte beat-in-bar
// counter, 1 unused byte, a 2-byte big-endian hundredths-of-BPM value, and a
// 4-byte big-endian millisecond offset.
// Because the exact byte layout is this module's own reconstruction (see
// wire.go), the record shape mirrors the integer/blob Argument pair the rest
// of the protocol uses rather than inventing a new binary sub-format:
// callers hand this the blob Argument bytes from a parsed beatgrid_request
// reply.
func ParseBeatgrid(data []byte) ([]BeatgridEntry, error) {
	const recordSize = 8
	if len(data)%recordSize != 0 {
		return nil, fmt.Errorf("prolink: beatgrid blob length %d not a multiple of %d", len(data), recordSize)
	}

	entries := make([]BeatgridEntry, 0, len(data)/recordSize)
	for i := 0; i+recordSize <= len(data); i += recordSize {
		beatInBar := int(data[i])
		bpmRaw := uint16(data[i+2])<<8 | uint16(data[i+3])
		offset := int(data[i+4])<<24 | int(data[i+5])<<16 | int(data[i+6])<<8 | int(data[i+7])
		entries = append(entries, BeatgridEntry{
			OffsetMillis: offset,
			BPM:          float64(bpmRaw) / 100.0,
			BeatInBar:    beatInBar,
		})
	}
	return entries, nil
}

// AverageTempo reports the mean BPM across a beatgrid's entries, using
// gonum's stat package rather than a hand-rolled accumulator. Returns 0 for
// an empty beatgrid.
func AverageTempo(entries []BeatgridEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	bpms := make([]float64, len(entries))
	for i, e := range entries {
		bpms[i] = e.BPM
	}
	return stat.Mean(bpms, nil)
}
