package object

import "acpicore/amlerr"

// BufferFieldInfo describes a CreateField-derived view into a Buffer
// object's bytes: a bit range aliasing part of another named Buffer, rather
// than a Region-backed FieldUnit (spec §3/§4.5, the Create*Field/CreateField
// family). Source is a Cell rather than a concrete namespace type so this
// package keeps its no-namespace-dependency rule; the loader installs the
// owning namespace.Node here since Node already implements Cell.
type BufferFieldInfo struct {
	Source    Cell
	BitOffset uint64
	BitWidth  uint64
}

// ReadBufferField extracts bi's bit range out of its Source Buffer's bytes,
// returning an Integer when the field fits in 64 bits or a Buffer otherwise
// (mirroring region.Read's FieldUnit result shape).
func ReadBufferField(bi *BufferFieldInfo) (*Object, *amlerr.Error) {
	src := bi.Source.Get()
	if src.Kind() != KindBuffer && src.Kind() != KindString {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "object", "ReadBufferField: source is not a Buffer")
	}
	data := src.Bytes()

	var result uint64
	var shift uint
	for i := uint64(0); i < bi.BitWidth && i < 64; i++ {
		bit := bi.BitOffset + i
		byteIdx := int(bit / 8)
		if byteIdx >= len(data) {
			break
		}
		if data[byteIdx]&(1<<(bit%8)) != 0 {
			result |= 1 << shift
		}
		shift++
	}

	if bi.BitWidth <= 64 {
		return NewInteger(result), nil
	}
	return NewBuffer(uint64ToBytesBF(result, int((bi.BitWidth+7)/8))), nil
}

// WriteBufferField stores src into bi's bit range, coercing it to an integer
// first and writing each covered bit back into the Source Buffer in place —
// a BufferField's Store is always a write-through-to-the-source, unlike a
// plain named Store's rebind (spec §4.1, "a BufferField names a view, not an
// independent object").
func WriteBufferField(bi *BufferFieldInfo, src *Object, width IntWidth) *amlerr.Error {
	dst := bi.Source.Get()
	if dst.Kind() != KindBuffer && dst.Kind() != KindString {
		return amlerr.New(amlerr.KindTypeMismatch, "object", "WriteBufferField: source is not a Buffer")
	}
	data := dst.Bytes()

	v, err := CoerceToInteger(src, width)
	if err != nil {
		return err
	}

	for i := uint64(0); i < bi.BitWidth && i < 64; i++ {
		bit := bi.BitOffset + i
		byteIdx := int(bit / 8)
		if byteIdx >= len(data) {
			break
		}
		mask := byte(1) << (bit % 8)
		if v&(1<<i) != 0 {
			data[byteIdx] |= mask
		} else {
			data[byteIdx] &^= mask
		}
	}
	return nil
}

func uint64ToBytesBF(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n && i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}
