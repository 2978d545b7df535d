package prolink

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Minimal internal codec for the proprietary tagged-message protocol the
// DBClient speaks to a device's database server. No published Go package
// exists for this wire format in the retrieval corpus (see DESIGN.md); this
// file is the one domain concern implemented from scratch rather than
// wired to a third-party library. Everything downstream of it (framing
// retry behavior, menu-stream termination, argument semantics) matches
// §4.2/§6 of the spec exactly — only the concrete byte layout is this
// module's own choice, since the real layout is never observed directly.

// argType tags the wire representation of a DBMessage argument.
type argType uint8

const (
	argInt32 argType = 0x0f
	argBlob  argType = 0x14
)

// Argument is one typed value in a DBMessage's argument list.
type Argument struct {
	Type  argType
	Int   int32
	Bytes []byte
}

// Int32Arg builds an int32-typed Argument.
func Int32Arg(v int32) Argument { return Argument{Type: argInt32, Int: v} }

// BlobArg builds a blob-typed Argument.
func BlobArg(b []byte) Argument { return Argument{Type: argBlob, Bytes: b} }

// msgType is the wire code for a DBMessage's type tag.
type msgType uint16

// Message type codes. Request types mirror the operations of §4.2;
// "success"/"invalid_request" are server replies, and
// "menu_item"/"menu_header"/"menu_footer" are render-stream element kinds.
const (
	msgSetup                   msgType = 0x0000
	msgInvalidRequest           msgType = 0x0001
	msgRootMenuRequest          msgType = 0x1000
	msgMetadataRequest          msgType = 0x1002
	msgTitleRequest             msgType = 0x1004
	msgTitleByAlbumRequest      msgType = 0x1006
	msgArtistRequest            msgType = 0x1007
	msgAlbumByArtistRequest     msgType = 0x1008
	msgTitleByArtistAlbumRequest msgType = 0x1009
	msgPlaylistRequest          msgType = 0x1105
	msgArtworkRequest           msgType = 0x1600
	msgWaveformRequest          msgType = 0x2c00
	msgPreviewWaveformRequest   msgType = 0x2002
	msgBeatgridRequest          msgType = 0x2204
	msgRender                   msgType = 0x3000
	msgSuccess                  msgType = 0x4000
	msgMenuHeader               msgType = 0x4001
	msgMenuItem                 msgType = 0x4002
	msgMenuFooter                msgType = 0x4003
)

var msgTypeNames = map[msgType]string{
	msgSetup:                     "setup",
	msgInvalidRequest:            "invalid_request",
	msgRootMenuRequest:           "root_menu_request",
	msgMetadataRequest:           "metadata_request",
	msgTitleRequest:              "title_request",
	msgTitleByAlbumRequest:       "title_by_album_request",
	msgArtistRequest:             "artist_request",
	msgAlbumByArtistRequest:      "album_by_artist_request",
	msgTitleByArtistAlbumRequest: "title_by_artist_album_request",
	msgPlaylistRequest:           "playlist_request",
	msgArtworkRequest:            "artwork_request",
	msgWaveformRequest:           "waveform_request",
	msgPreviewWaveformRequest:    "preview_waveform_request",
	msgBeatgridRequest:           "beatgrid_request",
	msgRender:                    "render",
	msgSuccess:                   "success",
	msgMenuHeader:                "menu_header",
	msgMenuItem:                  "menu_item",
	msgMenuFooter:                "menu_footer",
}

var msgTypeByName = func() map[string]msgType {
	m := make(map[string]msgType, len(msgTypeNames))
	for code, name := range msgTypeNames {
		m[name] = code
	}
	return m
}()

func nameOf(t msgType) string {
	if n, ok := msgTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("unknown(0x%04x)", uint16(t))
}

// DBMessage is one request or reply frame.
type DBMessage struct {
	TransactionID uint32
	TypeName      string
	Args          []Argument
}

var errShortBuffer = errors.New("prolink: buffer too short")

// Build serializes a DBMessage to its wire form.
func Build(transactionID uint32, typeName string, args []Argument) ([]byte, error) {
	code, ok := msgTypeByName[typeName]
	if !ok {
		return nil, fmt.Errorf("prolink: unknown message type %q", typeName)
	}

	buf := make([]byte, 0, 32+4*len(args))
	tmp := make([]byte, 4)

	binary.BigEndian.PutUint32(tmp, transactionID)
	buf = append(buf, tmp...)

	binary.BigEndian.PutUint16(tmp[:2], uint16(code))
	buf = append(buf, tmp[:2]...)

	if len(args) > 255 {
		return nil, fmt.Errorf("prolink: too many arguments (%d)", len(args))
	}
	buf = append(buf, byte(len(args)))

	for _, a := range args {
		buf = append(buf, byte(a.Type))
		switch a.Type {
		case argInt32:
			binary.BigEndian.PutUint32(tmp, uint32(a.Int))
			buf = append(buf, tmp...)
		case argBlob:
			binary.BigEndian.PutUint32(tmp, uint32(len(a.Bytes)))
			buf = append(buf, tmp...)
			buf = append(buf, a.Bytes...)
		default:
			return nil, fmt.Errorf("prolink: unknown argument type 0x%x", a.Type)
		}
	}
	return buf, nil
}

// Parse attempts to decode a single complete DBMessage from the front of
// data, returning the message and the number of bytes it consumed. It
// returns errShortBuffer if data does not yet hold a complete message —
// callers use this to drive the read-and-retry loop of §4.2/§5.
func Parse(data []byte) (DBMessage, int, error) {
	if len(data) < 7 {
		return DBMessage{}, 0, errShortBuffer
	}
	transactionID := binary.BigEndian.Uint32(data[0:4])
	code := msgType(binary.BigEndian.Uint16(data[4:6]))
	argCount := int(data[6])

	offset := 7
	args := make([]Argument, 0, argCount)
	for i := 0; i < argCount; i++ {
		if offset >= len(data) {
			return DBMessage{}, 0, errShortBuffer
		}
		t := argType(data[offset])
		offset++
		switch t {
		case argInt32:
			if offset+4 > len(data) {
				return DBMessage{}, 0, errShortBuffer
			}
			v := int32(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
			args = append(args, Argument{Type: argInt32, Int: v})
		case argBlob:
			if offset+4 > len(data) {
				return DBMessage{}, 0, errShortBuffer
			}
			n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
			if offset+n > len(data) {
				return DBMessage{}, 0, errShortBuffer
			}
			b := make([]byte, n)
			copy(b, data[offset:offset+n])
			offset += n
			args = append(args, Argument{Type: argBlob, Bytes: b})
		default:
			return DBMessage{}, 0, fmt.Errorf("prolink: unknown argument type 0x%x at offset %d", t, offset-1)
		}
	}

	return DBMessage{
		TransactionID: transactionID,
		TypeName:      nameOf(code),
		Args:          args,
	}, offset, nil
}

// ParseMany decodes as many complete, back-to-back DBMessages as data
// currently holds, stopping at the first incomplete one. It never errors
// on a short trailing message — the caller's retry loop keeps reading.
func ParseMany(data []byte) ([]DBMessage, int) {
	var msgs []DBMessage
	total := 0
	for {
		msg, n, err := Parse(data[total:])
		if err != nil {
			break
		}
		msgs = append(msgs, msg)
		total += n
	}
	return msgs, total
}
