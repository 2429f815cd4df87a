package opcode

import (
	"strings"

	"acpicore/amlerr"
)

const (
	rootChar         byte = 0x5c // '\'
	parentPrefixChar byte = 0x5e // '^'
	dualNamePrefix   byte = 0x2e
	multiNamePrefix  byte = 0x2f
	nullName         byte = 0x00
	segmentLen            = 4
)

// Exported aliases of the NameString lead bytes above, so a caller deciding
// whether the next TermArg is a NameString (as opposed to some other opcode)
// can recognize its first byte without duplicating the encoding.
const (
	RootChar        = rootChar
	ParentPrefixChar = parentPrefixChar
	DualNamePrefix   = dualNamePrefix
	MultiNamePrefix  = multiNamePrefix
)

// DecodeNameString decodes an AML NameString starting at data[off] and
// returns it rendered in the textual form namespace.Namespace.Resolve
// expects: an optional leading "\", zero or more leading "^" characters,
// followed by "."-joined 4-character NameSegs (or "" for a NullName). It
// also returns the number of raw bytes consumed.
func DecodeNameString(data []byte, off int) (name string, consumed int, err *amlerr.Error) {
	start := off
	var b strings.Builder

	if off < len(data) && data[off] == rootChar {
		b.WriteByte('\\')
		off++
	} else {
		for off < len(data) && data[off] == parentPrefixChar {
			b.WriteByte('^')
			off++
		}
	}

	if off >= len(data) {
		return "", 0, amlerr.New(amlerr.KindBadBytecode, "opcode", "DecodeNameString: truncated stream")
	}

	switch data[off] {
	case nullName:
		off++
		return b.String(), off - start, nil

	case dualNamePrefix:
		off++
		segs := make([]string, 2)
		for i := range segs {
			seg, n, serr := decodeSegment(data, off)
			if serr != nil {
				return "", 0, serr
			}
			segs[i] = seg
			off += n
		}
		b.WriteString(strings.Join(segs, "."))
		return b.String(), off - start, nil

	case multiNamePrefix:
		off++
		if off >= len(data) {
			return "", 0, amlerr.New(amlerr.KindBadBytecode, "opcode", "DecodeNameString: truncated MultiNamePath count")
		}
		count := int(data[off])
		off++
		segs := make([]string, count)
		for i := 0; i < count; i++ {
			seg, n, serr := decodeSegment(data, off)
			if serr != nil {
				return "", 0, serr
			}
			segs[i] = seg
			off += n
		}
		b.WriteString(strings.Join(segs, "."))
		return b.String(), off - start, nil

	default:
		seg, n, serr := decodeSegment(data, off)
		if serr != nil {
			return "", 0, serr
		}
		off += n
		b.WriteString(seg)
		return b.String(), off - start, nil
	}
}

func decodeSegment(data []byte, off int) (string, int, *amlerr.Error) {
	if off+segmentLen > len(data) {
		return "", 0, amlerr.New(amlerr.KindBadBytecode, "opcode", "decodeSegment: truncated NameSeg")
	}
	return string(data[off : off+segmentLen]), segmentLen, nil
}

// EncodeNameSeg pads or truncates seg to the fixed 4-character NameSeg
// width using '_', matching the AML convention for short ASL identifiers.
func EncodeNameSeg(seg string) string {
	if len(seg) >= segmentLen {
		return seg[:segmentLen]
	}
	return seg + strings.Repeat("_", segmentLen-len(seg))
}
