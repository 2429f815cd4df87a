package interp

import (
	"time"

	"acpicore/namespace"
	"acpicore/object"
	"acpicore/syncutil"
)

// slotCell implements object.Cell over a method frame's Local or Arg array
// entry. Per spec §4.1, Store into a Local/Arg is always a rebind: the
// slot's prior object is released and the new one retained, never
// forwarded through a Reference the slot might currently hold.
type slotCell struct{ obj *object.Object }

func (c *slotCell) Get() *object.Object { return c.obj }
func (c *slotCell) Set(o *object.Object) {
	object.Retain(o)
	object.Release(c.obj)
	c.obj = o
}

// discardCell backs the Debug pseudo-target: stores succeed but the value
// is only logged, never retained past the call (spec §4.1 Debug object).
type discardCell struct{ log func(*object.Object) }

func (c discardCell) Get() *object.Object { return object.NewDebug() }
func (c discardCell) Set(o *object.Object) {
	if c.log != nil {
		c.log(o)
	}
}

// packageElementCell implements object.Cell over one slot of a Package,
// used as the target Cell for an Index SuperName into a Package (spec §3,
// "index reference into a Package element").
type packageElementCell struct {
	pkg *object.Object
	idx int
}

func (c packageElementCell) Get() *object.Object  { return c.pkg.Element(c.idx) }
func (c packageElementCell) Set(o *object.Object) { c.pkg.SetElement(c.idx, o) }

// bufferByteCell implements object.Cell over one byte of a Buffer/String,
// used as the target Cell for an Index SuperName into a Buffer.
type bufferByteCell struct {
	buf *object.Object
	idx int
}

func (c bufferByteCell) Get() *object.Object  { return object.NewInteger(c.buf.ByteAt(c.idx)) }
func (c bufferByteCell) Set(o *object.Object) { c.buf.SetByteAt(c.idx, byte(o.Integer())) }

// exprCtx is one level of the iterative TermArg evaluator: node is the AST
// node being evaluated, operands accumulates its already-evaluated Args in
// order. Method-invocation operands suspend the whole exprCtx (awaitingCallee)
// rather than recursing — the caller frame is parked until the trampoline
// delivers the callee's return value.
type exprCtx struct {
	node           *ASTNode
	operands       []*object.Object
	awaitingCallee bool
}

// blockCtx is one level of the iterative statement executor: a TermList
// body plus the state of whatever multi-step statement (If/While/Return) is
// currently in flight at body[idx-1].
type blockCtx struct {
	body []*ASTNode
	idx  int

	awaitingExpr  bool
	awaitingField string

	// While support: isWhile marks a blockCtx as a loop body (as opposed
	// to the enclosing context that first evaluates the While predicate);
	// whileNode/deadline are only meaningful when isWhile is true.
	isWhile   bool
	whileNode *ASTNode
	deadline  time.Time

	// pendingNode carries the statement node whose expression is in
	// flight, for awaitingField values that need it back on resume
	// ("ifCond" -> the If node, "nameVal" -> the Name node).
	pendingNode *ASTNode
}

// Frame is one method (or top-level table) evaluation context, allocated on
// the heap and linked into the interpreter's explicit frame stack rather
// than the Go call stack (spec §3, Method evaluation frame; §4.4 hard
// non-recursion requirement).
type Frame struct {
	tableName  string
	methodName string

	locals [8]slotCell
	args   [7]slotCell

	scope *namespace.Node

	owner syncutil.Owner

	blocks            []*blockCtx
	exprStack         []*exprCtx
	pendingExprResult *object.Object

	retVal *object.Object

	// loadedTable is set on the special frame pushed by Load: it
	// marks this frame as "running a table's top-level TermList", so its
	// completion does not produce a conventional method return value.
	loadedTable bool

	// serializedMutex is non-nil when this frame holds a Serialized
	// method's recursive mutex; run() releases it under owner when the
	// frame drains.
	serializedMutex *syncutil.RecursiveMutex
}

func newFrame(scope *namespace.Node, owner syncutil.Owner) *Frame {
	return &Frame{scope: scope, owner: owner}
}
