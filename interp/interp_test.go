package interp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acpicore/kfmt"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/opcode"
)

// newTestInterp builds a fresh namespace + interpreter pair, installing the
// predefined root scopes the way a Runtime does before any table loads.
func newTestInterp(width object.IntWidth) (*namespace.Namespace, *Interp) {
	ns := namespace.New()
	ns.InstallDefaultScopes()
	it := New(ns, width, kfmt.NewLogger(kfmt.LevelSilent))
	return ns, it
}

// installMethod installs a Method node directly under ns's root, bypassing
// the table loader entirely so these tests exercise only the interpreter's
// own frame/expression machinery against hand-built ASTNode trees.
func installMethod(t *testing.T, ns *namespace.Namespace, name string, argCount int, serialized bool, body []*ASTNode) *namespace.Node {
	t.Helper()
	obj := object.New(object.KindMethod)
	obj.Extra = NewMethodBody("TEST", name, body, argCount, serialized, 0)
	node, err := ns.Install(ns.Root(), name, obj)
	require.Nil(t, err)
	return node
}

func nameRef(name string) *ASTNode { return &ASTNode{Op: OpNameRef, Name: name} }

func methodInvoke(name string, args ...*ASTNode) *ASTNode {
	return &ASTNode{Op: OpMethodInvoke, Name: name, Args: args}
}

func intLit(v uint64) *ASTNode { return &ASTNode{Op: opcode.OpBytePrefix, Const: object.NewInteger(v)} }

func localN(n int) *ASTNode { return &ASTNode{Op: opcode.OpLocal0 + opcode.Opcode(n)} }

func argN(n int) *ASTNode { return &ASTNode{Op: opcode.OpArg0 + opcode.Opcode(n)} }

func storeStmt(src, target *ASTNode) *ASTNode {
	return &ASTNode{Op: opcode.OpStore, Args: []*ASTNode{src}, Target: target}
}

func returnStmt(val *ASTNode) *ASTNode {
	return &ASTNode{Op: opcode.OpReturn, Args: []*ASTNode{val}}
}

// TestMethodReturnsPackageDerefOf covers a method that builds a Package of
// two Integers, takes an Index reference into element 1, and returns
// DerefOf that reference — the caller observes the element's value, not the
// reference itself (spec §3/§4.1).
func TestMethodReturnsPackageDerefOf(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	pkgNode := &ASTNode{Op: opcode.OpPackage, Args: []*ASTNode{intLit(10), intLit(20)}}
	idxNode := &ASTNode{Op: opcode.OpIndex, Args: []*ASTNode{pkgNode, intLit(1)}}
	deref := &ASTNode{Op: opcode.OpDerefOf, Args: []*ASTNode{idxNode}}

	installMethod(t, ns, "MPKG", 0, false, []*ASTNode{returnStmt(deref)})

	result, err := it.Evaluate("MPKG")
	require.Nil(t, err)
	assert.Equal(t, object.KindInteger, result.Kind())
	assert.Equal(t, uint64(20), result.Integer())
}

// TestNameStringCoercionTruncatesLength verifies Store into a named String
// object truncates/pads to the destination's existing length rather than
// growing it, per object.StoreIntoNamed (spec §4.1 coercion rules).
func TestNameStringCoercionTruncatesLength(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	nameObj := object.NewString("abcde")
	_, nerr := ns.Install(ns.Root(), "STR1", nameObj)
	require.Nil(t, nerr)

	longer := &ASTNode{Op: opcode.OpStringPrefix, Const: object.NewString("0123456789")}
	body := []*ASTNode{storeStmt(longer, nameRef("STR1"))}
	installMethod(t, ns, "MSTR", 0, false, body)

	_, err := it.Evaluate("MSTR")
	require.Nil(t, err)

	node, rerr := ns.Resolve(ns.Root(), "STR1")
	require.Nil(t, rerr)
	assert.Equal(t, "01234", node.Get().Text())
}

// TestLocalRebindDoesNotWriteThroughReference verifies that Store into a
// Local currently holding a Reference rebinds the slot to a brand new
// object rather than following the reference and overwriting its referent
// (spec §4.1's rebind-vs-write-through distinction, resolved for Store —
// only Increment/Decrement follow a reference).
func TestLocalRebindDoesNotWriteThroughReference(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	target := object.NewInteger(5)
	_, nerr := ns.Install(ns.Root(), "TGT1", target)
	require.Nil(t, nerr)

	body := []*ASTNode{
		storeStmt(&ASTNode{Op: opcode.OpRefOf, Target: nameRef("TGT1")}, localN(0)),
		storeStmt(intLit(99), localN(0)),
		returnStmt(nameRef("TGT1")),
	}
	installMethod(t, ns, "MREB", 0, false, body)

	result, err := it.Evaluate("MREB")
	require.Nil(t, err)
	assert.Equal(t, uint64(5), result.Integer(), "TGT1 must be unaffected by rebinding Local0")
}

// TestIncrementWritesThroughReference is the mirror case: Increment on a
// Local holding a Reference mutates the referent in place.
func TestIncrementWritesThroughReference(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	_, nerr := ns.Install(ns.Root(), "TGT2", object.NewInteger(5))
	require.Nil(t, nerr)

	body := []*ASTNode{
		storeStmt(&ASTNode{Op: opcode.OpRefOf, Target: nameRef("TGT2")}, localN(0)),
		&ASTNode{Op: opcode.OpIncrement, Target: localN(0)},
		returnStmt(nameRef("TGT2")),
	}
	installMethod(t, ns, "MINC", 0, false, body)

	result, err := it.Evaluate("MINC")
	require.Nil(t, err)
	assert.Equal(t, uint64(6), result.Integer(), "Increment must write through the reference to TGT2")
}

// TestReturnedReferenceToLocalSurvivesFramePop verifies a Reference built
// from RefOf(Local0) and returned from a method remains valid (its Cell
// still reachable and carrying the last-stored value) after the method's
// Frame has been popped off the driver's stack — the slotCell the
// Reference points at is heap-allocated as part of the Frame struct, which
// the Reference's pointer to that slotCell keeps alive independent of the
// frame stack slice.
func TestReturnedReferenceToLocalSurvivesFramePop(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	body := []*ASTNode{
		storeStmt(intLit(42), localN(0)),
		returnStmt(&ASTNode{Op: opcode.OpRefOf, Target: localN(0)}),
	}
	installMethod(t, ns, "MREF", 0, false, body)

	result, err := it.Evaluate("MREF")
	require.Nil(t, err)
	require.Equal(t, object.KindReference, result.Kind())
	assert.Equal(t, uint64(42), result.Reference().Cell.Get().Integer())
}

// TestCopyObjectClonesSourceIntoLocal verifies CopyObject clones its source
// into the destination Local rather than aliasing the caller's operand, so
// a subsequent Increment on the copy never affects the original.
func TestCopyObjectClonesSourceIntoLocal(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	_, nerr := ns.Install(ns.Root(), "SRC1", object.NewInteger(7))
	require.Nil(t, nerr)

	body := []*ASTNode{
		&ASTNode{Op: opcode.OpCopyObject, Args: []*ASTNode{nameRef("SRC1")}, Target: localN(0)},
		&ASTNode{Op: opcode.OpIncrement, Target: localN(0)},
		returnStmt(localN(0)),
	}
	installMethod(t, ns, "MCPY", 0, false, body)

	result, err := it.Evaluate("MCPY")
	require.Nil(t, err)
	assert.Equal(t, uint64(8), result.Integer())

	node, rerr := ns.Resolve(ns.Root(), "SRC1")
	require.Nil(t, rerr)
	assert.Equal(t, uint64(7), node.Get().Integer(), "CopyObject must not alias SRC1")
}

// TestWhileLoopTimesOut verifies a While(One) loop with no Break is
// terminated by the configured loop timeout rather than hanging the
// interpreter forever (spec §4.4).
func TestWhileLoopTimesOut(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)
	it.SetLoopTimeout(20 * time.Millisecond)

	whileNode := &ASTNode{
		Op:   opcode.OpWhile,
		Args: []*ASTNode{{Op: opcode.OpOne}},
		Body: []*ASTNode{},
	}
	installMethod(t, ns, "MLOP", 0, false, []*ASTNode{whileNode})

	start := time.Now()
	_, err := it.Evaluate("MLOP")
	elapsed := time.Since(start)

	require.NotNil(t, err)
	assert.Equal(t, "interp", err.Module)
	assert.Less(t, elapsed, 2*time.Second, "loop must terminate near the configured timeout, not hang")
}

// TestNestedMethodCallsDoNotGrowHostStack verifies that a chain of nested
// methods invoking one another does not recurse through Go call frames:
// the interpreter's own driver loop runs iteratively over an explicit
// stack, so a 200-deep call chain completes (spec §4.4).
func TestNestedMethodCallsDoNotGrowHostStack(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	const depth = 200

	// MC00 returns 1 directly; MCxy (i>0) returns method i-1's result + 1, chaining
	// through opMethodInvoke so each level pushes a sibling Frame rather
	// than a Go call.
	installMethod(t, ns, methodName(0), 0, false, []*ASTNode{returnStmt(intLit(1))})
	for i := 1; i <= depth; i++ {
		name := methodName(i)
		prev := methodName(i - 1)
		body := []*ASTNode{
			returnStmt(&ASTNode{
				Op:   opcode.OpAdd,
				Args: []*ASTNode{methodInvoke(prev), intLit(1)},
			}),
		}
		installMethod(t, ns, name, 0, false, body)
	}

	result, err := it.Evaluate(methodName(depth))
	require.Nil(t, err)
	assert.Equal(t, uint64(depth+1), result.Integer())
}

// methodName renders i (0-255) as a 4-character NameSeg "MCxy".
func methodName(i int) string {
	const hex = "0123456789ABCDEF"
	return string([]byte{'M', 'C', hex[(i>>4)&0xf], hex[i&0xf]})
}

// TestArgRebindDoesNotAffectCaller verifies an Arg slot's Store rebinds the
// callee's own copy — mutating Arg0 inside a method must not be visible to
// the caller's original operand object.
func TestArgRebindDoesNotAffectCaller(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	body := []*ASTNode{
		storeStmt(intLit(123), argN(0)),
		returnStmt(argN(0)),
	}
	installMethod(t, ns, "MARG", 1, false, body)

	caller := object.NewInteger(1)
	result, err := it.Evaluate("MARG", caller)
	require.Nil(t, err)
	assert.Equal(t, uint64(123), result.Integer())
	assert.Equal(t, uint64(1), caller.Integer(), "the caller's original argument object must be unaffected")
}

// TestSerializedMethodAllowsConcurrentDistinctCallers verifies two distinct
// top-level callers (distinct owners) can both complete a Serialized
// method's recursive mutex in turn rather than deadlocking each other, and
// each sees its own argument echoed back rather than the other's.
func TestSerializedMethodAllowsConcurrentDistinctCallers(t *testing.T) {
	ns, it := newTestInterp(object.IntWidth64)

	body := []*ASTNode{
		storeStmt(argN(0), localN(0)),
		returnStmt(localN(0)),
	}
	installMethod(t, ns, "MSER", 1, true, body)

	type outcome struct {
		val uint64
		err error
	}
	results := make(chan outcome, 2)
	run := func(v uint64) {
		r, err := it.Evaluate("MSER", object.NewInteger(v))
		if err != nil {
			results <- outcome{err: err}
			return
		}
		results <- outcome{val: r.Integer()}
	}
	go run(1)
	go run(2)

	got := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case o := <-results:
			require.Nil(t, o.err)
			got[o.val] = true
		case <-time.After(2 * time.Second):
			t.Fatal("serialized calls did not complete in time")
		}
	}
	assert.True(t, got[1])
	assert.True(t, got[2])
}
