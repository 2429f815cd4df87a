// Package interp implements the non-recursive AML interpreter core: opcode
// dispatch over an explicit, heap-backed frame stack, the iterative
// operand-stack continuation model for TermArg evaluation, control flow,
// and the implicit-cast/Store engine. It is grounded on the teacher's
// device/acpi/aml vm.go/vm_jumptable.go/vm_load_store.go/vm_op_alu.go, but
// where the teacher recurses into Go call frames for nested method
// invocation this package instead suspends the caller's exprCtx and pushes
// a sibling Frame onto one driver-owned slice, so Go-stack usage stays
// bounded regardless of AML call or Load nesting depth (spec §4.4).
package interp

import (
	"sync/atomic"
	"time"

	"acpicore/amlerr"
	"acpicore/kfmt"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/opcode"
	"acpicore/syncutil"
)

// DefaultLoopTimeout bounds a While loop's wall-clock budget (spec §4.4).
const DefaultLoopTimeout = 3 * time.Second

// MethodBody is the Extra payload object.KindMethod nodes carry: the
// method's parsed AST, its declared argument count, and its Serialized
// concurrency flag (spec §3, Object/Method; §4.4 Serialization).
type MethodBody struct {
	Body       []*ASTNode
	ArgCount   int
	Serialized bool
	SyncLevel  int
	TableName  string
	Name       string

	mutex *syncutil.RecursiveMutex
}

// Interp holds the process-wide interpreter configuration: the namespace it
// evaluates against, the AML integer width implied by the loaded DSDT's
// revision, the configured loop timeout, and the owner-token counter used
// to give each top-level Evaluate call (and, transitively, its nested
// Acquire/Serialized-method calls) a distinct identity for the recursive
// mutex primitives in syncutil (spec §9, "grouped into one process-wide
// context").
type Interp struct {
	ns          *namespace.Namespace
	width       object.IntWidth
	loopTimeout time.Duration
	log         *kfmt.Logger
	globalLock  *syncutil.GlobalLock
	notifier    Notifier

	nextOwner uint64

	loadedTables map[string][]*ASTNode
}

// Notifier receives the asynchronous Notify(object, value) deliveries
// produced by AML's Notify operator (spec §4.6); the event package's
// dispatcher implements this. It is a separate, optional interface so the
// interpreter core carries no hard dependency on event wiring.
type Notifier interface {
	Notify(path string, value uint32)
}

// SetNotifier wires the event subsystem's dispatcher into the interpreter so
// Notify statements reach it (client API, spec §6).
func (it *Interp) SetNotifier(n Notifier) { it.notifier = n }

// New returns an Interp bound to ns, using width for integer semantics.
func New(ns *namespace.Namespace, width object.IntWidth, log *kfmt.Logger) *Interp {
	return &Interp{
		ns:          ns,
		width:       width,
		loopTimeout: DefaultLoopTimeout,
		log:         log,
		globalLock:  syncutil.NewGlobalLock(nil),
	}
}

// SetLoopTimeout overrides the default While-loop budget (client API, spec §6).
func (it *Interp) SetLoopTimeout(d time.Duration) { it.loopTimeout = d }

func (it *Interp) newOwner() syncutil.Owner {
	return syncutil.Owner(atomic.AddUint64(&it.nextOwner, 1))
}

// Evaluate resolves path to a Method and runs it with the given arguments,
// or, if path names a non-Method node, simply returns its current object
// (matching AML's permissive "evaluate a name" client contract, spec §6).
func (it *Interp) Evaluate(path string, args ...*object.Object) (*object.Object, *amlerr.Error) {
	node, nerr := it.ns.Resolve(it.ns.Root(), path)
	if nerr != nil {
		return nil, nerr
	}

	target := node.Get()
	if target.Kind() != object.KindMethod {
		return target, nil
	}

	body, ok := target.Extra.(*MethodBody)
	if !ok {
		return nil, amlerr.New(amlerr.KindFatal, "interp", "Evaluate: Method object missing body")
	}

	fr, ferr := it.buildMethodFrame(node, body, args, it.newOwner())
	if ferr != nil {
		return nil, ferr
	}
	return it.run(fr)
}

// run drives fr (and any frames it transitively pushes for nested AML
// method calls or Load) to completion using one explicit,
// heap-allocated stack owned by this call — never Go call recursion — so
// the host stack depth used by run is independent of how deeply the AML
// program calls into itself (spec §4.4, §8 testable property #10).
func (it *Interp) run(initial *Frame) (*object.Object, *amlerr.Error) {
	stack := []*Frame{initial}

	for len(stack) > 0 {
		fr := stack[len(stack)-1]

		callee, err := it.step(fr)
		if err != nil {
			return nil, err.WithFrame(amlerr.Frame{
				Table:  fr.tableName,
				Method: fr.methodName,
			})
		}
		if callee != nil {
			stack = append(stack, callee)
			continue
		}

		// step returned with no callee and no error: fr is fully drained.
		stack = stack[:len(stack)-1]
		if fr.serializedMutex != nil {
			fr.serializedMutex.Release(fr.owner)
		}
		if len(stack) == 0 {
			return fr.retVal, nil
		}
		it.deliverCalleeResult(stack[len(stack)-1], fr)
	}

	return nil, amlerr.New(amlerr.KindFatal, "interp", "run: frame stack exhausted unexpectedly")
}

// step advances fr's internal state (its expression stack, then its block
// stack) until fr needs a callee frame pushed, hits an error, or has no
// more work of either kind (fully drained).
func (it *Interp) step(fr *Frame) (*Frame, *amlerr.Error) {
	for {
		if len(fr.exprStack) > 0 {
			callee, done, err := it.stepExpr(fr)
			if err != nil {
				return nil, err
			}
			if callee != nil {
				return callee, nil
			}
			if !done {
				continue
			}
			continue
		}

		if len(fr.blocks) == 0 {
			return nil, nil
		}

		callee, err := it.stepBlock(fr)
		if err != nil {
			return nil, err
		}
		if callee != nil {
			return callee, nil
		}
	}
}

// deliverCalleeResult resumes parent after one of its pushed callee frames
// (an AML method invocation or a Load table frame) has drained.
func (it *Interp) deliverCalleeResult(parent *Frame, callee *Frame) {
	if len(parent.exprStack) > 0 {
		top := parent.exprStack[len(parent.exprStack)-1]
		if top.awaitingCallee {
			top.awaitingCallee = false
			result := callee.retVal
			if result == nil {
				result = object.NewUninitialized()
			}
			parent.exprStack = parent.exprStack[:len(parent.exprStack)-1]
			if len(parent.exprStack) == 0 {
				parent.pendingExprResult = result
			} else {
				up := parent.exprStack[len(parent.exprStack)-1]
				up.operands = append(up.operands, result)
			}
			return
		}
	}
	// A statement-position Load call with nothing awaiting its
	// value: nothing further to deliver.
}

// stepExpr advances the innermost pending exprCtx by exactly one unit:
// pushing the next unevaluated Arg, pushing a callee frame for a method
// invocation, or finishing the node and feeding its result to its parent
// exprCtx (or fr.pendingExprResult if it was the root).
func (it *Interp) stepExpr(fr *Frame) (callee *Frame, done bool, err *amlerr.Error) {
	top := fr.exprStack[len(fr.exprStack)-1]

	if top.node.Op == opMethodInvoke && !top.awaitingCallee && len(top.operands) == len(top.node.Args) {
		calleeFr, cerr := it.buildInvokeFrame(fr, top.node, top.operands)
		if cerr != nil {
			return nil, false, cerr
		}
		top.awaitingCallee = true
		return calleeFr, false, nil
	}

	if top.node.Op == opcode.OpLoad && !top.awaitingCallee {
		calleeFr, cerr := it.buildLoadFrame(fr, top.node.Name)
		if cerr != nil {
			return nil, false, cerr
		}
		top.awaitingCallee = true
		return calleeFr, false, nil
	}

	if len(top.operands) < len(top.node.Args) {
		child := top.node.Args[len(top.operands)]
		fr.exprStack = append(fr.exprStack, &exprCtx{node: child})
		return nil, false, nil
	}

	result, eerr := it.evalNode(fr, top.node, top.operands)
	if eerr != nil {
		return nil, false, eerr
	}

	fr.exprStack = fr.exprStack[:len(fr.exprStack)-1]
	if len(fr.exprStack) == 0 {
		fr.pendingExprResult = result
		return nil, true, nil
	}
	parent := fr.exprStack[len(fr.exprStack)-1]
	parent.operands = append(parent.operands, result)
	return nil, false, nil
}

// beginExpr starts a fresh expression evaluation on fr for a statement
// (If/While predicate, Return value, or an expression-statement run for
// its side effect).
func (it *Interp) beginExpr(fr *Frame, node *ASTNode) {
	fr.exprStack = append(fr.exprStack, &exprCtx{node: node})
	fr.pendingExprResult = nil
}

// stepBlock advances the innermost blockCtx by one statement, or resumes a
// multi-step statement (If/While/Return) whose expression just finished.
func (it *Interp) stepBlock(fr *Frame) (*Frame, *amlerr.Error) {
	top := fr.blocks[len(fr.blocks)-1]

	if top.awaitingExpr {
		result := fr.pendingExprResult
		fr.pendingExprResult = nil
		top.awaitingExpr = false
		return it.resumeStatement(fr, top, result)
	}

	if top.isWhile && time.Now().After(top.deadline) {
		return nil, amlerr.New(amlerr.KindTimeout, "interp", "While loop exceeded configured timeout")
	}

	if top.idx >= len(top.body) {
		if top.isWhile {
			top.awaitingExpr = true
			top.awaitingField = "whileCond"
			it.beginExpr(fr, top.whileNode.Args[0])
			return nil, nil
		}
		fr.blocks = fr.blocks[:len(fr.blocks)-1]
		return nil, nil
	}

	node := top.body[top.idx]
	top.idx++
	return it.dispatchStmt(fr, top, node)
}

func (it *Interp) dispatchStmt(fr *Frame, top *blockCtx, node *ASTNode) (*Frame, *amlerr.Error) {
	switch node.Op {
	case opcode.OpIf:
		top.pendingNode = node
		top.awaitingField = "ifCond"
		top.awaitingExpr = true
		it.beginExpr(fr, node.Args[0])
		return nil, nil
	case opcode.OpWhile:
		top.whileNode = node
		top.awaitingField = "whileCond"
		top.awaitingExpr = true
		it.beginExpr(fr, node.Args[0])
		return nil, nil
	case opcode.OpReturn:
		top.awaitingField = "returnVal"
		top.awaitingExpr = true
		it.beginExpr(fr, node.Args[0])
		return nil, nil
	case opcode.OpBreak:
		it.unwindToLoop(fr, true)
		return nil, nil
	case opcode.OpContinue:
		it.unwindToLoop(fr, false)
		return nil, nil
	case opcode.OpName:
		top.awaitingField = "nameVal"
		top.awaitingExpr = true
		top.pendingNode = node
		it.beginExpr(fr, node.Args[0])
		return nil, nil
	case opcode.OpMutex:
		return nil, it.declareMutex(fr, node)
	default:
		top.awaitingField = "discard"
		top.awaitingExpr = true
		it.beginExpr(fr, node)
		return nil, nil
	}
}

func (it *Interp) resumeStatement(fr *Frame, top *blockCtx, result *object.Object) (*Frame, *amlerr.Error) {
	switch top.awaitingField {
	case "discard":
		return nil, nil

	case "ifCond":
		truthy, terr := truthValue(result)
		if terr != nil {
			return nil, terr
		}
		node := top.pendingNode
		top.pendingNode = nil
		if truthy {
			fr.blocks = append(fr.blocks, &blockCtx{body: node.Body})
		} else if node.Else != nil {
			fr.blocks = append(fr.blocks, &blockCtx{body: node.Else})
		}
		return nil, nil

	case "whileCond":
		truthy, terr := truthValue(result)
		if terr != nil {
			return nil, terr
		}
		node := top.whileNode
		if !top.isWhile {
			if truthy {
				fr.blocks = append(fr.blocks, &blockCtx{
					body:      node.Body,
					isWhile:   true,
					whileNode: node,
					deadline:  time.Now().Add(it.loopTimeout),
				})
			}
			return nil, nil
		}
		if !truthy {
			fr.blocks = fr.blocks[:len(fr.blocks)-1]
			return nil, nil
		}
		top.idx = 0
		return nil, nil

	case "returnVal":
		fr.retVal = result
		fr.blocks = nil
		return nil, nil

	case "nameVal":
		node := top.pendingNode
		top.pendingNode = nil
		if _, err := it.ns.Install(fr.scope, node.Name, object.Clone(result)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return nil, amlerr.New(amlerr.KindFatal, "interp", "resumeStatement: unknown awaiting field")
}

// unwindToLoop implements Break/Continue: it pops blocks until it finds the
// nearest enclosing While; Break discards that loop entirely, Continue
// forces an immediate condition re-check by exhausting the loop body index.
func (it *Interp) unwindToLoop(fr *Frame, isBreak bool) {
	for len(fr.blocks) > 0 {
		top := fr.blocks[len(fr.blocks)-1]
		if top.isWhile {
			if isBreak {
				fr.blocks = fr.blocks[:len(fr.blocks)-1]
			} else {
				top.idx = len(top.body)
			}
			return
		}
		fr.blocks = fr.blocks[:len(fr.blocks)-1]
	}
}

// truthValue implements AML's "any nonzero Integer is true" predicate rule,
// coercing String/Buffer operands the same way Store would.
func truthValue(o *object.Object) (bool, *amlerr.Error) {
	v, err := object.CoerceToInteger(o, object.IntWidth64)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
