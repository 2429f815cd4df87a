package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSingleByteOpcode(t *testing.T) {
	op, info, n, err := Decode([]byte{0x70}, 0)
	require.Nil(t, err)
	assert.Equal(t, OpStore, op)
	assert.Equal(t, "Store", info.Name)
	assert.Equal(t, 1, n)
}

func TestDecodeExtendedOpcode(t *testing.T) {
	op, info, n, err := Decode([]byte{ExtPrefix, 0x82}, 0)
	require.Nil(t, err)
	assert.Equal(t, OpDevice, op)
	assert.Equal(t, "Device", info.Name)
	assert.Equal(t, 2, n)
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, _, _, err := Decode([]byte{0x18}, 0)
	assert.NotNil(t, err)
}

func TestDecodePkgLengthSingleByte(t *testing.T) {
	length, consumed, err := DecodePkgLength([]byte{0x05}, 0)
	require.Nil(t, err)
	assert.Equal(t, 5, length)
	assert.Equal(t, 1, consumed)
}

func TestDecodePkgLengthMultiByte(t *testing.T) {
	// lead byte 0x41 => extra=1, low nibble 0x1; next byte 0x02
	// length = 0x1 | (0x02 << 4) = 0x21 = 33
	length, consumed, err := DecodePkgLength([]byte{0x41, 0x02}, 0)
	require.Nil(t, err)
	assert.Equal(t, 0x21, length)
	assert.Equal(t, 2, consumed)
}

func TestDecodeNameStringRootSingleSeg(t *testing.T) {
	data := append([]byte{rootChar}, []byte("_SB_")...)
	name, consumed, err := DecodeNameString(data, 0)
	require.Nil(t, err)
	assert.Equal(t, `\_SB_`, name)
	assert.Equal(t, len(data), consumed)
}

func TestDecodeNameStringDualName(t *testing.T) {
	data := append([]byte{dualNamePrefix}, []byte("_SB_PCI0")...)
	name, consumed, err := DecodeNameString(data, 0)
	require.Nil(t, err)
	assert.Equal(t, "_SB_.PCI0", name)
	assert.Equal(t, len(data), consumed)
}

func TestDecodeNameStringMultiName(t *testing.T) {
	data := append([]byte{multiNamePrefix, 0x03}, []byte("_SB_PCI0GFX0")...)
	name, consumed, err := DecodeNameString(data, 0)
	require.Nil(t, err)
	assert.Equal(t, "_SB_.PCI0.GFX0", name)
	assert.Equal(t, len(data), consumed)
}

func TestDecodeNameStringParentPrefix(t *testing.T) {
	data := append([]byte{parentPrefixChar, parentPrefixChar}, []byte("FOO_")...)
	name, consumed, err := DecodeNameString(data, 0)
	require.Nil(t, err)
	assert.Equal(t, "^^FOO_", name)
	assert.Equal(t, len(data), consumed)
}

func TestDecodeNameStringNullName(t *testing.T) {
	name, consumed, err := DecodeNameString([]byte{nullName}, 0)
	require.Nil(t, err)
	assert.Equal(t, "", name)
	assert.Equal(t, 1, consumed)
}

func TestEncodeNameSegPads(t *testing.T) {
	assert.Equal(t, "AB__", EncodeNameSeg("AB"))
	assert.Equal(t, "ABCD", EncodeNameSeg("ABCDE"))
}
