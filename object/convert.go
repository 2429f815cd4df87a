package object

import (
	"encoding/binary"
	"strconv"
	"strings"

	"acpicore/amlerr"
)

// IntWidth is the integer width implied by the owning table's AML revision
// (spec §3: "Integer (64-bit, though semantics depend on declared AML
// revision — 32-bit masking for revision 1)").
type IntWidth uint8

// The two supported integer widths.
const (
	IntWidth32 IntWidth = 32
	IntWidth64 IntWidth = 64
)

// Mask masks v to the receiver's width.
func (w IntWidth) Mask(v uint64) uint64 {
	if w == IntWidth32 {
		return v & 0xffffffff
	}
	return v
}

// Bytes returns the width in bytes (4 or 8).
func (w IntWidth) Bytes() int {
	if w == IntWidth32 {
		return 4
	}
	return 8
}

// CoerceToInteger implements the Buffer/String/Integer → Integer conversions
// used whenever an operator or Store target requires an integer (spec
// §4.1): a String is parsed as a hexadecimal prefix, a Buffer is read as up
// to 8 little-endian bytes, and an Integer passes through unchanged.
func CoerceToInteger(o *Object, width IntWidth) (uint64, *amlerr.Error) {
	switch o.kind {
	case KindInteger:
		return width.Mask(o.integer), nil
	case KindString:
		return parseHexPrefix(o.Text()), nil
	case KindBuffer:
		n := len(o.bytes)
		if n > 8 {
			n = 8
		}
		var buf [8]byte
		copy(buf[:], o.bytes[:n])
		return width.Mask(binary.LittleEndian.Uint64(buf[:])), nil
	default:
		return 0, typeMismatch("object", "cannot coerce "+o.kind.String()+" to Integer")
	}
}

// parseHexPrefix parses the longest leading hexadecimal run of s (ignoring
// leading whitespace and an optional "0x"/"0X" prefix), returning 0 if no
// digit is present — matching the AML "String → Integer" conversion rule.
func parseHexPrefix(s string) uint64 {
	s = strings.TrimLeft(s, " \t")
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	end := 0
	for end < len(s) && isHexDigit(s[end]) {
		end++
	}
	if end == 0 {
		return 0
	}
	v, _ := strconv.ParseUint(s[:end], 16, 64)
	return v
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// CoerceToBytes renders o as a little-endian byte sequence suitable for
// writing into a String or Buffer destination: an Integer is encoded to
// width.Bytes() little-endian bytes, while a String/Buffer contributes its
// raw bytes unchanged.
func CoerceToBytes(o *Object, width IntWidth) ([]byte, *amlerr.Error) {
	switch o.kind {
	case KindInteger:
		buf := make([]byte, width.Bytes())
		v := o.integer
		for i := range buf {
			buf[i] = byte(v)
			v >>= 8
		}
		return buf, nil
	case KindString, KindBuffer:
		return o.bytes, nil
	default:
		return nil, typeMismatch("object", "cannot coerce "+o.kind.String()+" to bytes")
	}
}

// StoreIntoNamed implements the "Target is a named node holding an Integer,
// String, or Buffer" implicit-cast rule (spec §4.1): the source is coerced
// to the target kind, and for String/Buffer the destination's existing
// length is preserved exactly — the write is truncated or zero-padded
// rather than resizing the backing store. It returns a freshly constructed
// Object to swap into the destination Cell; the destination is never
// mutated in place.
func StoreIntoNamed(dstKind Kind, dstLen int, src *Object, width IntWidth) (*Object, *amlerr.Error) {
	switch dstKind {
	case KindInteger:
		v, err := CoerceToInteger(src, width)
		if err != nil {
			return nil, err
		}
		return NewInteger(v), nil
	case KindString, KindBuffer:
		raw, err := CoerceToBytes(src, width)
		if err != nil {
			return nil, err
		}
		fixed := make([]byte, dstLen)
		copy(fixed, raw)
		if dstKind == KindString {
			return &Object{kind: KindString, refcount: 1, bytes: fixed}, nil
		}
		return &Object{kind: KindBuffer, refcount: 1, bytes: fixed}, nil
	default:
		return nil, typeMismatch("object", "StoreIntoNamed: unsupported destination kind "+dstKind.String())
	}
}

// ToHexString implements the explicit ToHexString AML operator: an Integer
// renders as zero-padded uppercase hex, a Buffer renders as a comma
// separated list of two-digit hex byte values.
func ToHexString(o *Object, width IntWidth) (*Object, *amlerr.Error) {
	switch o.kind {
	case KindInteger:
		digits := width.Bytes() * 2
		return NewString(strings.ToUpper(padHex(o.integer, digits))), nil
	case KindBuffer:
		parts := make([]string, len(o.bytes))
		for i, b := range o.bytes {
			parts[i] = strings.ToUpper(padHex(uint64(b), 2))
		}
		return NewString(strings.Join(parts, ",")), nil
	case KindString:
		return o, nil
	default:
		return nil, typeMismatch("object", "ToHexString: unsupported source kind "+o.kind.String())
	}
}

func padHex(v uint64, digits int) string {
	s := strconv.FormatUint(v, 16)
	if len(s) < digits {
		s = strings.Repeat("0", digits-len(s)) + s
	}
	return s
}

// ToBuffer implements the explicit ToBuffer AML operator: a Buffer passes
// through unchanged, an Integer renders as width.Bytes() little-endian
// bytes, and a String renders as its raw bytes plus a trailing NUL.
func ToBuffer(o *Object, width IntWidth) (*Object, *amlerr.Error) {
	switch o.kind {
	case KindBuffer:
		return o, nil
	case KindInteger:
		raw, err := CoerceToBytes(o, width)
		if err != nil {
			return nil, err
		}
		return NewBuffer(raw), nil
	case KindString:
		return NewBuffer(o.NulTerminated()), nil
	default:
		return nil, typeMismatch("object", "ToBuffer: unsupported source kind "+o.kind.String())
	}
}

// ToInteger implements the explicit ToInteger AML operator: it is
// CoerceToInteger's Buffer/String/Integer rule wrapped as an Integer Object.
func ToInteger(o *Object, width IntWidth) (*Object, *amlerr.Error) {
	v, err := CoerceToInteger(o, width)
	if err != nil {
		return nil, err
	}
	return NewInteger(v), nil
}

// ToString implements the explicit ToString AML operator: a Buffer becomes a
// String truncated at its first NUL byte (or its full length if none is
// present); a String passes through unchanged.
func ToString(o *Object) (*Object, *amlerr.Error) {
	switch o.kind {
	case KindString:
		return o, nil
	case KindBuffer:
		n := len(o.bytes)
		for i, b := range o.bytes {
			if b == 0 {
				n = i
				break
			}
		}
		return NewString(string(o.bytes[:n])), nil
	default:
		return nil, typeMismatch("object", "ToString: unsupported source kind "+o.kind.String())
	}
}

// ToDecimalString implements the explicit ToDecimalString AML operator: an
// Integer renders as its decimal digits, a Buffer as a comma-separated list
// of decimal byte values, and a String passes through unchanged.
func ToDecimalString(o *Object) (*Object, *amlerr.Error) {
	switch o.kind {
	case KindInteger:
		return NewString(strconv.FormatUint(o.integer, 10)), nil
	case KindBuffer:
		parts := make([]string, len(o.bytes))
		for i, b := range o.bytes {
			parts[i] = strconv.FormatUint(uint64(b), 10)
		}
		return NewString(strings.Join(parts, ",")), nil
	case KindString:
		return o, nil
	default:
		return nil, typeMismatch("object", "ToDecimalString: unsupported source kind "+o.kind.String())
	}
}

// FromBCD implements the explicit FromBCD AML operator: o's Integer value is
// read as packed BCD (four bits per decimal digit) and converted to its
// ordinary binary value.
func FromBCD(o *Object, width IntWidth) (*Object, *amlerr.Error) {
	v, err := CoerceToInteger(o, width)
	if err != nil {
		return nil, err
	}
	var result, mult uint64 = 0, 1
	for v != 0 {
		digit := v & 0xf
		if digit > 9 {
			return nil, typeMismatch("object", "FromBCD: invalid BCD digit")
		}
		result += digit * mult
		mult *= 10
		v >>= 4
	}
	return NewInteger(width.Mask(result)), nil
}

// ToBCD implements the explicit ToBCD AML operator: o's ordinary binary
// Integer value is converted to packed BCD, four bits per decimal digit.
func ToBCD(o *Object, width IntWidth) (*Object, *amlerr.Error) {
	v, err := CoerceToInteger(o, width)
	if err != nil {
		return nil, err
	}
	var result uint64
	var shift uint
	for v != 0 {
		result |= (v % 10) << shift
		v /= 10
		shift += 4
	}
	return NewInteger(width.Mask(result)), nil
}

// Mid implements the explicit Mid AML operator: it extracts the
// [index, index+length) sub-range of a String or Buffer's bytes, clamped to
// the source's actual length, returning the same kind as the source.
func Mid(o *Object, index, length uint64) (*Object, *amlerr.Error) {
	if o.kind != KindString && o.kind != KindBuffer {
		return nil, typeMismatch("object", "Mid: source must be a String or Buffer")
	}
	if index > uint64(len(o.bytes)) {
		index = uint64(len(o.bytes))
	}
	end := index + length
	if end > uint64(len(o.bytes)) {
		end = uint64(len(o.bytes))
	}
	out := append([]byte(nil), o.bytes[index:end]...)
	if o.kind == KindString {
		return NewString(string(out)), nil
	}
	return NewBuffer(out), nil
}
