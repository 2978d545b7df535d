package prolink

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocatorPacking(t *testing.T) {
	loc := locator(1, 2, SlotUSB)
	assert.Equal(t, int32(uint32(1)<<24|uint32(2)<<16|uint32(slotWireID[SlotUSB])<<8|1), loc)
}

func TestSendAndReceiveSingleMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	entry := newConnectionEntry(client, 30)

	go func() {
		buf := make([]byte, 256)
		n, err := server.Read(buf)
		require.NoError(t, err)
		_ = n

		reply, err := Build(1, "success", []Argument{Int32Arg(7)})
		require.NoError(t, err)
		server.Write(reply)
	}()

	msgs, err := entry.sendAndReceive("title_request", []Argument{Int32Arg(1)}, 5, 256, singleMessageDone)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "success", msgs[0].TypeName)
	assert.Equal(t, int32(7), msgs[0].Args[0].Int)
}

func TestSendAndReceiveRetriesUntilFooter(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	entry := newConnectionEntry(client, 30)

	go func() {
		buf := make([]byte, 256)
		server.Read(buf)

		header, _ := Build(1, "menu_header", nil)
		server.Write(header)
		time.Sleep(5 * time.Millisecond)
		footer, _ := Build(1, "menu_footer", nil)
		server.Write(footer)
	}()

	msgs, err := entry.sendAndReceive("render", []Argument{Int32Arg(1)}, 10, 256, renderStreamDone)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
