package object

import "testing"

import "github.com/stretchr/testify/assert"

func TestNewIntegerRoundTrip(t *testing.T) {
	o := NewInteger(0x1234)
	assert.Equal(t, KindInteger, o.Kind())
	assert.Equal(t, uint64(0x1234), o.Integer())
	assert.Equal(t, int32(1), o.RefCount())
}

func TestRetainRelease(t *testing.T) {
	o := NewString("hello")
	Retain(o)
	assert.Equal(t, int32(2), o.RefCount())
	assert.Equal(t, int32(1), Release(o))
	assert.Equal(t, int32(0), Release(o))
}

func TestReleaseCascadesPackage(t *testing.T) {
	a := NewInteger(1)
	b := NewInteger(2)
	pkg := NewPackage([]*Object{a, b})
	assert.Equal(t, int32(2), a.RefCount())

	assert.Equal(t, int32(0), Release(pkg))
	assert.Equal(t, int32(1), a.RefCount())
	assert.Equal(t, int32(1), b.RefCount())
}

func TestCloneDeepCopiesBuffer(t *testing.T) {
	src := NewBuffer([]byte{1, 2, 3})
	clone := Clone(src)
	clone.bytes[0] = 0xff
	assert.Equal(t, byte(1), src.Bytes()[0])
}

func TestCloneReferenceSharesCell(t *testing.T) {
	cell := &testCell{}
	ref := NewReference(RefKindLocal, cell, "Local0")
	clone := Clone(ref)
	assert.Same(t, ref.Reference().Cell, clone.Reference().Cell)
}

func TestCoerceToIntegerFromString(t *testing.T) {
	v, err := CoerceToInteger(NewString("0x2A"), IntWidth64)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0x2A), v)
}

func TestCoerceToIntegerFromBufferLittleEndian(t *testing.T) {
	v, err := CoerceToInteger(NewBuffer([]byte{0x01, 0x00}), IntWidth64)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestIntWidthMask32(t *testing.T) {
	assert.Equal(t, uint64(0xffffffff), IntWidth32.Mask(0xffffffffffffffff))
}

func TestStoreIntoNamedStringTruncates(t *testing.T) {
	dst, err := StoreIntoNamed(KindString, 3, NewString("hello"), IntWidth64)
	assert.Nil(t, err)
	assert.Equal(t, "hel", dst.Text())
}

func TestStoreIntoNamedStringZeroPads(t *testing.T) {
	dst, err := StoreIntoNamed(KindString, 5, NewString("ab"), IntWidth64)
	assert.Nil(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0, 0}, dst.Bytes())
}

func TestDerefOfFollowsChain(t *testing.T) {
	leaf := &testCell{val: NewInteger(7)}
	mid := NewReference(RefKindNamed, leaf, "LEAF")
	outer := &testCell{val: mid}
	chained := NewReference(RefKindNamed, outer, "OUTER")

	resolved, err := DerefOf(chained, 0)
	assert.NoError(t, err)
	assert.Equal(t, uint64(7), resolved.Integer())
}

func TestDerefOfRejectsTooLongChain(t *testing.T) {
	// build a self-referencing cell to force the depth cap to trip
	c := &testCell{}
	c.val = NewReference(RefKindNamed, c, "SELF")

	_, err := DerefOf(c.val, 4)
	assert.Error(t, err)
}

type testCell struct{ val *Object }

func (c *testCell) Get() *Object  { return c.val }
func (c *testCell) Set(o *Object) { c.val = o }
