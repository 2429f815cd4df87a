package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acpicore/interp"
	"acpicore/namespace"
	"acpicore/opcode"
)

func newTestParser(data []byte) (*parser, *namespace.Node) {
	ns := namespace.New()
	return &parser{data: data, ns: ns, tableName: "TEST"}, ns.Root()
}

// Add(0x05, 0x03, Local2) -- the case the table loader silently corrupted
// before parseNAryWithTarget existed: without consuming the trailing target,
// the cursor stops one byte short and the rest of the enclosing TermList
// desyncs.
func TestParseExprAddWithLocalTarget(t *testing.T) {
	data := []byte{
		byte(opcode.OpAdd),
		byte(opcode.OpBytePrefix), 0x05,
		byte(opcode.OpBytePrefix), 0x03,
		byte(opcode.OpLocal2),
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Equal(t, opcode.OpAdd, node.Op)
	require.Len(t, node.Args, 2)
	assert.Equal(t, uint64(5), node.Args[0].Const.Integer())
	assert.Equal(t, uint64(3), node.Args[1].Const.Integer())
	require.NotNil(t, node.Target)
	assert.Equal(t, opcode.OpLocal2, node.Target.Op)
	assert.Equal(t, len(data), p.pos)
}

// Subtract(Local0, 0x02, FOO_) -- a NameString target, the other shape the
// review called out explicitly.
func TestParseExprSubtractWithNameTarget(t *testing.T) {
	data := []byte{
		byte(opcode.OpSubtract),
		byte(opcode.OpLocal0),
		byte(opcode.OpBytePrefix), 0x02,
		'F', 'O', 'O', '_',
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Equal(t, opcode.OpSubtract, node.Op)
	require.Len(t, node.Args, 2)
	assert.Equal(t, opcode.OpLocal0, node.Args[0].Op)
	require.NotNil(t, node.Target)
	assert.Equal(t, interp.OpNameRef, node.Target.Op)
	assert.Equal(t, "FOO_", node.Target.Name)
	assert.Equal(t, len(data), p.pos)
}

// Add(0x01, 0x02) with NullName in the target slot -- the common case where
// iASL omits an optional target. A bare 0x00 in this position names no
// object (it collides byte-for-byte with OpZero, but the grammar position
// disambiguates it) and must not be treated as a SuperName.
func TestParseExprAddWithNullTarget(t *testing.T) {
	data := []byte{
		byte(opcode.OpAdd),
		byte(opcode.OpBytePrefix), 0x01,
		byte(opcode.OpBytePrefix), 0x02,
		0x00,
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Nil(t, node.Target)
	assert.Equal(t, len(data), p.pos)
}

// Divide(0x0a, 0x03, Local0, Local1) -- Remainder lands in Target, Quotient
// in Target2.
func TestParseExprDivideTargets(t *testing.T) {
	data := []byte{
		byte(opcode.OpDivide),
		byte(opcode.OpBytePrefix), 0x0a,
		byte(opcode.OpBytePrefix), 0x03,
		byte(opcode.OpLocal0),
		byte(opcode.OpLocal1),
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Equal(t, opcode.OpDivide, node.Op)
	require.Len(t, node.Args, 2)
	require.NotNil(t, node.Target)
	require.NotNil(t, node.Target2)
	assert.Equal(t, opcode.OpLocal0, node.Target.Op)
	assert.Equal(t, opcode.OpLocal1, node.Target2.Op)
	assert.Equal(t, len(data), p.pos)
}

// Divide with both targets as NullName -- Quotient is the expression's
// returned value regardless, but neither target should be written.
func TestParseExprDivideNullTargets(t *testing.T) {
	data := []byte{
		byte(opcode.OpDivide),
		byte(opcode.OpBytePrefix), 0x0a,
		byte(opcode.OpBytePrefix), 0x03,
		0x00,
		0x00,
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Nil(t, node.Target)
	assert.Nil(t, node.Target2)
	assert.Equal(t, len(data), p.pos)
}

// Index(pkg, 0x00, Local3) -- the nested SuperName Index path carries the
// same 3-operand encoding (2 value args + target) as the top-level Index
// TermArg; this exercises parseSuperName's Index branch rather than
// parseExpr's.
func TestParseSuperNameIndexWithTarget(t *testing.T) {
	data := []byte{
		byte(opcode.OpIndex),
		'P', 'K', 'G', '_',
		byte(opcode.OpBytePrefix), 0x00,
		byte(opcode.OpLocal3),
	}
	p, scope := newTestParser(data)

	node, err := p.parseSuperName(scope)
	require.Nil(t, err)

	assert.Equal(t, opcode.OpIndex, node.Op)
	require.Len(t, node.Args, 2)
	require.NotNil(t, node.Target)
	assert.Equal(t, opcode.OpLocal3, node.Target.Op)
	assert.Equal(t, len(data), p.pos)
}

// Release(MTX1) must resolve node.Name, not node.Args -- evalRelease reads
// the Mutex by Name the same way parseAcquire's NameString-based Mutex
// operand already worked.
func TestParseExprRelease(t *testing.T) {
	data := []byte{
		opcode.ExtPrefix, 0x27, // Release
		'M', 'T', 'X', '1',
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Equal(t, opcode.OpRelease, node.Op)
	assert.Equal(t, "MTX1", node.Name)
	assert.Empty(t, node.Args)
	assert.Equal(t, len(data), p.pos)
}

// Match(pkg, MTR, 0x00, MEQ, 0x01, 0x00) -- the two MatchOpcode bytes are
// raw ByteData, not TermArgs, and must be read without going through
// parseExpr.
func TestParseExprMatch(t *testing.T) {
	data := []byte{
		byte(opcode.OpMatch),
		'P', 'K', 'G', '_',
		0x00, // MTR
		byte(opcode.OpBytePrefix), 0x00,
		0x01, // MEQ
		byte(opcode.OpBytePrefix), 0x01,
		byte(opcode.OpBytePrefix), 0x00,
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Equal(t, opcode.OpMatch, node.Op)
	require.Len(t, node.Args, 4)
	assert.Equal(t, 0x00|0x01<<8, node.Slot)
	assert.Equal(t, len(data), p.pos)
}

// LEqual(Local0, Local1) carries no Target at all in the real grammar;
// confirm the logical-comparison opcodes weren't accidentally folded into
// the target-bearing ALU group.
func TestParseExprLEqualHasNoTarget(t *testing.T) {
	data := []byte{
		byte(opcode.OpLEqual),
		byte(opcode.OpLocal0),
		byte(opcode.OpLocal1),
	}
	p, scope := newTestParser(data)

	node, err := p.parseExpr(scope)
	require.Nil(t, err)

	assert.Equal(t, opcode.OpLEqual, node.Op)
	require.Len(t, node.Args, 2)
	assert.Nil(t, node.Target)
	assert.Equal(t, len(data), p.pos)
}
