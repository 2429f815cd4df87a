package opcode

import "acpicore/amlerr"

// DecodePkgLength decodes the AML PkgLength variable-length encoding
// starting at data[off]: the top two bits of the lead byte give the number
// of additional length bytes (0-3), and for a multi-byte encoding the low
// nibble of the lead byte plus all of each subsequent byte, little-endian,
// form the length. It returns the decoded length (which includes the bytes
// of the PkgLength field itself, per the AML grammar) and the number of
// bytes the PkgLength field itself occupied.
func DecodePkgLength(data []byte, off int) (length int, consumed int, err *amlerr.Error) {
	if off >= len(data) {
		return 0, 0, amlerr.New(amlerr.KindBadBytecode, "opcode", "DecodePkgLength: truncated stream")
	}

	lead := data[off]
	extra := int(lead >> 6)
	if extra == 0 {
		return int(lead & 0x3f), 1, nil
	}

	if off+extra >= len(data) {
		return 0, 0, amlerr.New(amlerr.KindBadBytecode, "opcode", "DecodePkgLength: truncated length bytes")
	}

	length = int(lead & 0x0f)
	for i := 0; i < extra; i++ {
		length |= int(data[off+1+i]) << (4 + 8*i)
	}
	return length, extra + 1, nil
}
