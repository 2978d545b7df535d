package prolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	args := []Argument{Int32Arg(7), BlobArg([]byte("hello"))}
	frame, err := Build(42, "metadata_request", args)
	require.NoError(t, err)

	msg, n, err := Parse(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, uint32(42), msg.TransactionID)
	assert.Equal(t, "metadata_request", msg.TypeName)
	require.Len(t, msg.Args, 2)
	assert.Equal(t, int32(7), msg.Args[0].Int)
	assert.Equal(t, []byte("hello"), msg.Args[1].Bytes)
}

func TestParseShortBuffer(t *testing.T) {
	frame, err := Build(1, "setup", []Argument{Int32Arg(5)})
	require.NoError(t, err)

	_, _, err = Parse(frame[:len(frame)-2])
	assert.ErrorIs(t, err, errShortBuffer)
}

func TestParseManyStopsAtIncompleteTrailer(t *testing.T) {
	first, err := Build(1, "menu_header", nil)
	require.NoError(t, err)
	second, err := Build(2, "menu_item", []Argument{Int32Arg(1)})
	require.NoError(t, err)

	buf := append(append([]byte{}, first...), second...)
	buf = append(buf, second[:3]...) // a third, truncated message

	msgs, consumed := ParseMany(buf)
	require.Len(t, msgs, 2)
	assert.Equal(t, "menu_header", msgs[0].TypeName)
	assert.Equal(t, "menu_item", msgs[1].TypeName)
	assert.Equal(t, len(first)+len(second), consumed)
}

func TestBuildUnknownTypeName(t *testing.T) {
	_, err := Build(1, "not_a_real_type", nil)
	assert.Error(t, err)
}

func TestBuildTooManyArguments(t *testing.T) {
	args := make([]Argument, 256)
	for i := range args {
		args[i] = Int32Arg(int32(i))
	}
	_, err := Build(1, "setup", args)
	assert.Error(t, err)
}
