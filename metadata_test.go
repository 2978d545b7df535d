package prolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMenuItem(t *testing.T, id1, id2, id3, typeCode int32, s1, s2 string) DBMessage {
	t.Helper()
	args := []Argument{
		Int32Arg(id1),
		Int32Arg(id2),
		Int32Arg(0),
		BlobArg([]byte(s1)),
		Int32Arg(0),
		BlobArg([]byte(s2)),
		Int32Arg(typeCode),
		Int32Arg(0),
		Int32Arg(id3),
	}
	frame, err := Build(1, "menu_item", args)
	require.NoError(t, err)
	msg, _, err := Parse(frame)
	require.NoError(t, err)
	return msg
}

func TestParseMenuItemPlainNumber(t *testing.T) {
	item, ok := menuItemFromMessage(buildMenuItem(t, 0, 240, 0, int32(metadataTypeCode["duration"]), "", ""))
	require.True(t, ok)

	label, rec, ok := ParseMenuItem(item)
	require.True(t, ok)
	assert.Equal(t, "duration", label)
	assert.Equal(t, 240, rec["duration"])
}

func TestParseMenuItemBPM(t *testing.T) {
	item, _ := menuItemFromMessage(buildMenuItem(t, 0, 12800, 0, int32(metadataTypeCode["bpm"]), "", ""))
	_, rec, ok := ParseMenuItem(item)
	require.True(t, ok)
	assert.Equal(t, 128.0, rec["bpm"])
}

func TestParseMenuItemTitle(t *testing.T) {
	item, _ := menuItemFromMessage(buildMenuItem(t, 5, 99, 7, int32(metadataTypeCode["title"]), "Strobe", ""))
	_, rec, ok := ParseMenuItem(item)
	require.True(t, ok)
	assert.Equal(t, "Strobe", rec["title"])
	assert.Equal(t, 99, rec["track_id"])
	assert.Equal(t, 5, rec["artist_id"])
	assert.Equal(t, 7, rec["artwork_id"])
}

func TestParseMenuItemColor(t *testing.T) {
	item, _ := menuItemFromMessage(buildMenuItem(t, 0, 0, 0, int32(metadataTypeCode["color_red"]), "Red", ""))
	_, rec, ok := ParseMenuItem(item)
	require.True(t, ok)
	assert.Equal(t, "red", rec["color"])
	assert.Equal(t, "Red", rec["color_text"])
}

func TestParseMenuItemTitleAndArtistComposite(t *testing.T) {
	item, _ := menuItemFromMessage(buildMenuItem(t, 5, 99, 7, int32(metadataTypeCode["title_and_artist"]), "Strobe", "deadmau5"))

	_, rec, ok := ParseMenuItem(item)
	require.True(t, ok)
	assert.Equal(t, "Strobe", rec["title"])
	assert.Equal(t, 99, rec["track_id"])
	assert.Equal(t, "deadmau5", rec["artist"])
	assert.Equal(t, 5, rec["artist_id"])
}

func TestParseListStopsAtFooter(t *testing.T) {
	item1 := buildMenuItem(t, 0, 1, 0, int32(metadataTypeCode["duration"]), "", "")
	item2 := buildMenuItem(t, 0, 2, 0, int32(metadataTypeCode["duration"]), "", "")
	stream := []DBMessage{{TypeName: "menu_header"}, item1, item2, {TypeName: "menu_footer"}}

	entries := ParseList(stream)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0]["duration"])
	assert.Equal(t, 2, entries[1]["duration"])
}

func TestParseMetadataMergesFields(t *testing.T) {
	durationItem := buildMenuItem(t, 0, 300, 0, int32(metadataTypeCode["duration"]), "", "")
	titleItem := buildMenuItem(t, 5, 99, 7, int32(metadataTypeCode["title"]), "Strobe", "")
	stream := []DBMessage{{TypeName: "menu_header"}, titleItem, durationItem, {TypeName: "menu_footer"}}

	rec := ParseMetadata(stream)
	assert.Equal(t, "Strobe", rec["title"])
	assert.Equal(t, 300, rec["duration"])
}
