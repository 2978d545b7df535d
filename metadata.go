package prolink

import "log"

// Record is a flattened, dynamically-keyed metadata entry — the
// "flattened record with optional fields" alternative spec.md's design
// note allows in place of a closed sum type, chosen here because a
// metadata query merges fields contributed by several differently-shaped
// menu items (title, artist, album, bpm, …) into one record, which a
// single Go struct would otherwise have to represent with dozens of
// rarely-populated pointer fields.
type Record map[string]interface{}

// metadataType is the wire type code -> semantic label table of §4.2,
// carried over unchanged from the field numbering the protocol uses.
var metadataType = map[int]string{
	0x0001: "folder",
	0x0002: "album",
	0x0003: "disc",
	0x0004: "title",
	0x0006: "genre",
	0x0007: "artist",
	0x0008: "playlist",
	0x000a: "rating",
	0x000b: "duration",
	0x000d: "bpm",
	0x000e: "label",
	0x000f: "key",
	0x0010: "bitrate",
	0x0011: "year",
	0x0013: "color_none",
	0x0014: "color_pink",
	0x0015: "color_red",
	0x0016: "color_orange",
	0x0017: "color_yellow",
	0x0018: "color_green",
	0x0019: "color_aqua",
	0x001a: "color_blue",
	0x001b: "color_purple",
	0x0023: "comment",
	0x0028: "original_artist",
	0x0029: "remixer",
	0x002e: "date_added",
	0x0080: "root_genre",
	0x0081: "root_artist",
	0x0082: "root_album",
	0x0083: "root_track",
	0x0084: "root_playlist",
	0x0085: "root_bpm",
	0x0086: "root_rating",
	0x0087: "root_time",
	0x0088: "root_remixer",
	0x0089: "root_label",
	0x008a: "root_original_artist",
	0x008b: "root_key",
	0x008e: "root_color",
	0x0090: "root_folder",
	0x0091: "root_search",
	0x0092: "root_time2",
	0x0093: "root_bitrate",
	0x0094: "root_filename",
	0x0095: "root_history",
	0x0098: "root_hot_cue_bank",
	0x0204: "title_and_album",
	0x0604: "title_and_genre",
	0x0704: "title_and_artist",
	0x0a04: "title_and_rating",
	0x0b04: "title_and_duration",
	0x0d04: "title_and_bpm",
	0x0e04: "title_and_label",
	0x0f04: "title_and_key",
	0x1004: "title_and_bitrate",
	0x1a04: "title_and_color",
	0x2304: "title_and_comment",
	0x2804: "title_and_original_artist",
	0x2904: "title_and_remixer",
	0x2a04: "title_and_dj_play_count",
	0x2e04: "title_and_date_added",
}

var metadataTypeCode = func() map[string]int {
	m := make(map[string]int, len(metadataType))
	for code, label := range metadataType {
		m[label] = code
	}
	return m
}()

func isPlainNumberLabel(label string) bool {
	switch label {
	case "duration", "rating", "disc", "dj_play_count", "bitrate":
		return true
	}
	return false
}

func isColorLabel(label string) bool {
	return len(label) >= 5 && label[:5] == "color"
}

func isTextLabel(label string) bool {
	switch label {
	case "artist", "album", "comment", "genre", "original_artist", "remixer", "key", "label":
		return true
	}
	return false
}

func isRootLabel(label string) bool {
	return len(label) >= 5 && label[:5] == "root_"
}

func isTitleAndLabel(label string) bool {
	return len(label) >= 10 && label[:10] == "title_and_"
}

// parseMenuItemFields builds the Record for one menu_item's nine
// positional sub-fields, given the three integer ids (positions 0, 1, 8),
// the two strings (positions 3, 5), and the type code (position 6).
// title_and_X composite types recurse through this same function with the
// second column's fields substituted in directly, per §9's design note
// (taking field positions directly rather than re-parsing a synthetic
// packet).
func parseMenuItemFields(id1, id2, id3 int, s1, s2 string, typeCode int) (string, Record, bool) {
	label, ok := metadataType[typeCode]
	if !ok {
		log.Printf("prolink: metadata type 0x%x unknown", typeCode)
		return "", nil, false
	}

	rec := Record{}

	switch {
	case isPlainNumberLabel(label):
		rec[label] = id2
	case label == "bpm":
		rec["bpm"] = float64(id2) / 100.0
	case label == "title":
		rec["title"] = s1
		rec["artwork_id"] = id3
		rec["track_id"] = id2
		rec["artist_id"] = id1
	case isColorLabel(label):
		rec["color"] = label[6:]
		rec["color_text"] = s1
	case isTextLabel(label):
		rec[label] = s1
		rec[label+"_id"] = id1
	case label == "date_added":
		rec["date_added"] = s1
	case label == "playlist":
		rec["name"] = s1
		rec["id"] = id2
		rec["parent_id"] = id1
	case isRootLabel(label):
		rec["name"] = s1
		rec["menu_id"] = id2
	case isTitleAndLabel(label):
		rec["title"] = s1
		rec["artwork_id"] = id3
		rec["track_id"] = id2
		rec["artist_id"] = id1

		secondLabel := label[10:]
		secondCode, known := metadataTypeCode[secondLabel]
		if !known {
			log.Printf("prolink: second column %s of %s not parseable", secondLabel, label)
			break
		}
		_, secondRec, ok2 := parseMenuItemFields(id1, id1, id3, s2, "", secondCode)
		if ok2 {
			for k, v := range secondRec {
				rec[k] = v
			}
		}
	default:
		log.Printf("prolink: unhandled metadata type %s", label)
		return label, nil, false
	}

	return label, rec, true
}

// MenuItem is the nine-positional-argument reply shape every menu_item
// carries (§4.2).
type MenuItem struct {
	ID1      int
	ID2      int
	String1  string
	String2  string
	TypeCode int
	ID3      int
}

// menuItemFromMessage extracts the positions parseMenuItemFields needs from
// a raw DBMessage of type menu_item. Positions 2, 4, 7 are reserved/unused
// on the wire and are not surfaced.
func menuItemFromMessage(msg DBMessage) (MenuItem, bool) {
	if len(msg.Args) < 9 {
		return MenuItem{}, false
	}
	get := func(i int) (int32, bool) {
		if msg.Args[i].Type != argInt32 {
			return 0, false
		}
		return msg.Args[i].Int, true
	}
	getStr := func(i int) string {
		if msg.Args[i].Type == argBlob {
			return string(msg.Args[i].Bytes)
		}
		return ""
	}

	id1, ok1 := get(0)
	id2, ok2 := get(1)
	typeCode, ok6 := get(6)
	id3, ok8 := get(8)
	if !ok1 || !ok2 || !ok6 || !ok8 {
		return MenuItem{}, false
	}
	return MenuItem{
		ID1:      int(id1),
		ID2:      int(id2),
		String1:  getStr(3),
		String2:  getStr(5),
		TypeCode: int(typeCode),
		ID3:      int(id3),
	}, true
}

// ParseMenuItem parses one menu_item's Record.
func ParseMenuItem(item MenuItem) (string, Record, bool) {
	return parseMenuItemFields(item.ID1, item.ID2, item.ID3, item.String1, item.String2, item.TypeCode)
}

// ParseList turns a render-stream message sequence into the ordered list of
// Records the sequence's menu_item entries decode to. menu_header is
// skipped; the loop stops at menu_footer. A missing trailing footer is
// logged as a likely truncation, matching §4.2.
func ParseList(stream []DBMessage) []Record {
	entries := make([]Record, 0, len(stream))
	sawFooter := false

	for _, msg := range stream {
		switch msg.TypeName {
		case "menu_header":
			continue
		case "menu_footer":
			sawFooter = true
		case "menu_item":
			item, ok := menuItemFromMessage(msg)
			if !ok {
				continue
			}
			_, rec, ok := ParseMenuItem(item)
			if !ok {
				continue
			}
			entries = append(entries, rec)
			continue
		default:
			log.Printf("prolink: parse_list item not menu_item: %s", msg.TypeName)
			continue
		}
		if msg.TypeName == "menu_footer" {
			break
		}
	}

	if !sawFooter {
		log.Printf("prolink: list entries not ending with menu_footer, buffer too small?")
	}
	return entries
}

// ParseMetadata merges every menu_item in a render-stream sequence into a
// single Record, per §4.2 ("each field written by at most one contributing
// item").
func ParseMetadata(stream []DBMessage) Record {
	merged := Record{}
	sawFooter := false

	for _, msg := range stream {
		switch msg.TypeName {
		case "menu_header":
			continue
		case "menu_footer":
			sawFooter = true
		case "menu_item":
			item, ok := menuItemFromMessage(msg)
			if !ok {
				continue
			}
			_, rec, ok := ParseMenuItem(item)
			if !ok {
				continue
			}
			for k, v := range rec {
				merged[k] = v
			}
			continue
		default:
			log.Printf("prolink: parse_metadata item not menu_item: %s", msg.TypeName)
			continue
		}
		if msg.TypeName == "menu_footer" {
			break
		}
	}

	if !sawFooter {
		log.Printf("prolink: metadata packet not ending with menu_footer, buffer too small?")
	}
	return merged
}
