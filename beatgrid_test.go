package prolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beatRecord(beatInBar byte, bpmHundredths uint16, offsetMillis int) []byte {
	return []byte{
		beatInBar, 0,
		byte(bpmHundredths >> 8), byte(bpmHundredths),
		byte(offsetMillis >> 24), byte(offsetMillis >> 16), byte(offsetMillis >> 8), byte(offsetMillis),
	}
}

func TestParseBeatgrid(t *testing.T) {
	var data []byte
	data = append(data, beatRecord(1, 12800, 0)...)
	data = append(data, beatRecord(2, 12800, 468)...)

	entries, err := ParseBeatgrid(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].BeatInBar)
	assert.Equal(t, 128.0, entries[0].BPM)
	assert.Equal(t, 468, entries[1].OffsetMillis)
}

func TestParseBeatgridRejectsMisalignedLength(t *testing.T) {
	_, err := ParseBeatgrid([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAverageTempo(t *testing.T) {
	entries := []BeatgridEntry{{BPM: 120}, {BPM: 130}}
	assert.Equal(t, 125.0, AverageTempo(entries))
	assert.Equal(t, 0.0, AverageTempo(nil))
}
