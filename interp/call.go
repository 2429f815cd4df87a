package interp

import (
	"context"

	"acpicore/amlerr"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/syncutil"
)

// NewMethodBody builds the Extra payload installed on a Method namespace
// node. The Serialized mutex is allocated up front (rather than lazily on
// first call) so concurrent first-invocations never race on its creation.
func NewMethodBody(tableName, name string, body []*ASTNode, argCount int, serialized bool, syncLevel int) *MethodBody {
	mb := &MethodBody{
		Body:       body,
		ArgCount:   argCount,
		Serialized: serialized,
		SyncLevel:  syncLevel,
		TableName:  tableName,
		Name:       name,
	}
	if serialized {
		mb.mutex = syncutil.NewRecursiveMutex()
	}
	return mb
}

// buildMethodFrame allocates a Frame ready to execute body with args bound
// into its Arg slots, acquiring the method's Serialized mutex (if any)
// under owner — a recursive call by the same owner (the same top-level
// Evaluate call chain) succeeds immediately, a concurrent call under a
// different owner blocks until the holder returns (spec §4.4
// Serialization).
func (it *Interp) buildMethodFrame(scope *namespace.Node, body *MethodBody, args []*object.Object, owner syncutil.Owner) (*Frame, *amlerr.Error) {
	fr := newFrame(scope, owner)
	fr.tableName = body.TableName
	fr.methodName = body.Name

	for i := range fr.locals {
		fr.locals[i].obj = object.NewUninitialized()
	}
	for i := range fr.args {
		fr.args[i].obj = object.NewUninitialized()
	}
	for i, a := range args {
		if i >= len(fr.args) {
			break
		}
		fr.args[i].Set(a)
	}

	if body.mutex != nil {
		if !body.mutex.TryAcquire(context.Background(), owner) {
			return nil, amlerr.New(amlerr.KindTimeout, "interp", "buildMethodFrame: could not acquire Serialized method mutex")
		}
		fr.serializedMutex = body.mutex
	}

	fr.blocks = []*blockCtx{{body: body.Body}}
	return fr, nil
}

// buildInvokeFrame resolves an opMethodInvoke AST node against caller's
// current scope and returns a frame to push for it: a method-body frame if
// the resolved name is a Method, or an already-drained frame carrying the
// resolved object directly otherwise (AML permits evaluating a bare name as
// a zero-argument "invocation").
func (it *Interp) buildInvokeFrame(caller *Frame, node *ASTNode, args []*object.Object) (*Frame, *amlerr.Error) {
	target, nerr := it.ns.Resolve(caller.scope, node.Name)
	if nerr != nil {
		return nil, nerr
	}

	obj := target.Get()
	if obj.Kind() != object.KindMethod {
		fr := newFrame(caller.scope, caller.owner)
		fr.retVal = obj
		return fr, nil
	}

	body, ok := obj.Extra.(*MethodBody)
	if !ok {
		return nil, amlerr.New(amlerr.KindFatal, "interp", "buildInvokeFrame: Method object missing body")
	}
	return it.buildMethodFrame(target, body, args, caller.owner)
}

// RegisterTable makes a pre-parsed table body available to Load under
// name. Locating, mapping and parsing the raw SDT bytes is the table
// loader's job (spec §4.5); the interpreter only needs the resulting AST so
// that Load can push it onto the shared frame stack in O(1) host-stack
// space regardless of dynamic Load nesting depth (spec §4.4, §8 property #10).
func (it *Interp) RegisterTable(name string, body []*ASTNode) {
	if it.loadedTables == nil {
		it.loadedTables = make(map[string][]*ASTNode)
	}
	it.loadedTables[name] = body
}

// buildLoadFrame pushes a frame that runs a previously-registered table's
// top-level TermList against the root scope, sharing this call's frame
// stack rather than recursing — the special frame push spec §4.4 requires.
func (it *Interp) buildLoadFrame(caller *Frame, tableName string) (*Frame, *amlerr.Error) {
	body, ok := it.loadedTables[tableName]
	if !ok {
		return nil, amlerr.New(amlerr.KindNotFound, "interp", "Load: table "+tableName+" is not registered")
	}
	fr := newFrame(it.ns.Root(), caller.owner)
	fr.tableName = tableName
	fr.loadedTable = true
	fr.blocks = []*blockCtx{{body: body}}
	return fr, nil
}
