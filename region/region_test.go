package region

import (
	"testing"

	"github.com/stretchr/testify/require"

	"acpicore/object"
)

type memHandler struct {
	bytes []byte
}

func (h *memHandler) Attach(r *Region) error { return nil }
func (h *memHandler) Detach(r *Region) error { return nil }

func (h *memHandler) Read(r *Region, bitOffset uint64, bitWidth uint8) (uint64, error) {
	byteOff := bitOffset / 8
	var v uint64
	for i := uint8(0); i < bitWidth/8; i++ {
		v |= uint64(h.bytes[int(byteOff)+int(i)]) << (8 * i)
	}
	return v, nil
}

func (h *memHandler) Write(r *Region, bitOffset uint64, bitWidth uint8, value uint64) error {
	byteOff := bitOffset / 8
	for i := uint8(0); i < bitWidth/8; i++ {
		h.bytes[int(byteOff)+int(i)] = byte(value >> (8 * i))
	}
	return nil
}

func TestReadWriteByteAlignedField(t *testing.T) {
	h := &memHandler{bytes: make([]byte, 4)}
	reg := &Region{Space: AddressSpaceSystemMemory, Length: 4, Handler: h}
	fu := &FieldUnit{Region: reg, BitOffset: 8, BitWidth: 16, AccessWidth: 8}

	werr := Write(fu, object.NewInteger(0xbeef), object.IntWidth32, nil)
	require.Nil(t, werr)
	got, rerr := Read(fu, nil)
	require.Nil(t, rerr)
	require.Equal(t, uint64(0xbeef), got.Integer())
}

func TestWritePreserveFoldsSurroundingBits(t *testing.T) {
	h := &memHandler{bytes: []byte{0xff}}
	reg := &Region{Space: AddressSpaceSystemMemory, Length: 1, Handler: h}
	fu := &FieldUnit{Region: reg, BitOffset: 0, BitWidth: 4, AccessWidth: 8, Update: UpdateRulePreserve}

	werr := Write(fu, object.NewInteger(0x0), object.IntWidth32, nil)
	require.Nil(t, werr)
	require.Equal(t, byte(0xf0), h.bytes[0])
}

func TestBufferAccRoundTrip(t *testing.T) {
	h := &memHandler{bytes: make([]byte, 8)}
	reg := &Region{Space: AddressSpaceGeneralPurposeIO, Length: 8, Handler: h}
	fu := &FieldUnit{Region: reg, BitWidth: 16, AccessWidth: 8, Access: AccessTypeBufferAcc}

	werr := Write(fu, object.NewBuffer([]byte{0xaa, 0xbb}), object.IntWidth32, nil)
	require.Nil(t, werr)
	got, rerr := Read(fu, nil)
	require.Nil(t, rerr)
	require.Equal(t, object.KindBuffer, got.Kind())
}
