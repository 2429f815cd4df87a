package interp

import (
	"context"
	"time"

	"acpicore/amlerr"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/opcode"
	"acpicore/region"
	"acpicore/syncutil"
)

// resolveCell resolves a SuperName/SimpleName AST node to the object.Cell it
// names, for opcodes whose operand is a place to write rather than a value
// to read (Store, CopyObject, Increment, Decrement, RefOf). Index
// targets are resolved via evalSimpleExpr's bounded sub-evaluator rather than
// the full iterative TermArg machinery — see its doc comment.
func (it *Interp) resolveCell(fr *Frame, node *ASTNode) (object.Cell, *amlerr.Error) {
	switch {
	case isLocalOp(node.Op):
		return &fr.locals[node.Op-opcode.OpLocal0], nil
	case isArgOp(node.Op):
		return &fr.args[node.Op-opcode.OpArg0], nil
	case node.Op == opcode.OpDebug:
		return discardCell{log: func(o *object.Object) {
			if it.log != nil {
				it.log.Debugf("Debug: %v", o)
			}
		}}, nil
	case node.Op == opNameRef:
		n, err := it.ns.Resolve(fr.scope, node.Name)
		if err != nil {
			return nil, err
		}
		return n, nil
	case node.Op == opcode.OpIndex:
		return it.resolveIndexCell(fr, node)
	default:
		return nil, amlerr.New(amlerr.KindBadOperand, "interp", "resolveCell: unsupported SuperName form "+opcodeName(node.Op))
	}
}

func (it *Interp) resolveIndexCell(fr *Frame, node *ASTNode) (object.Cell, *amlerr.Error) {
	if len(node.Args) < 2 {
		return nil, amlerr.New(amlerr.KindBadBytecode, "interp", "Index: missing operands")
	}
	src, serr := it.evalSimpleExpr(fr, node.Args[0])
	if serr != nil {
		return nil, serr
	}
	idxObj, ierr := it.evalSimpleExpr(fr, node.Args[1])
	if ierr != nil {
		return nil, ierr
	}
	idx, cerr := object.CoerceToInteger(idxObj, it.width)
	if cerr != nil {
		return nil, cerr
	}
	return cellForIndex(src, int(idx))
}

// evalSimpleExpr evaluates a small, non-call-bearing TermArg synchronously.
// It backs only the Source/IndexValue sub-expressions of an Index expression
// used as a Store/Increment/RefOf/CopyObject target — it does not support
// nested method invocation or further Index/DerefOf chaining. A target whose
// sub-expressions need that must first be evaluated into a Local through an
// ordinary statement.
func (it *Interp) evalSimpleExpr(fr *Frame, node *ASTNode) (*object.Object, *amlerr.Error) {
	switch {
	case node.Op == opcode.OpZero:
		return object.NewInteger(0), nil
	case node.Op == opcode.OpOne:
		return object.NewInteger(1), nil
	case node.Op == opcode.OpOnes:
		return object.NewInteger(it.width.Mask(^uint64(0))), nil
	case node.Const != nil:
		return node.Const, nil
	case isLocalOp(node.Op):
		return fr.locals[node.Op-opcode.OpLocal0].Get(), nil
	case isArgOp(node.Op):
		return fr.args[node.Op-opcode.OpArg0].Get(), nil
	case node.Op == opNameRef:
		n, err := it.ns.Resolve(fr.scope, node.Name)
		if err != nil {
			return nil, err
		}
		return n.Get(), nil
	default:
		return nil, amlerr.New(amlerr.KindBadOperand, "interp", "evalSimpleExpr: unsupported sub-expression in Index target")
	}
}

func (it *Interp) evalStore(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	cell, cerr := it.resolveCell(fr, node.Target)
	if cerr != nil {
		return nil, cerr
	}
	return it.storeInto(cell, operands[0])
}

// storeInto writes src into cell using AML's Store coercion rules (spec
// §4.1): a named Integer/String/Buffer node coerces src to the destination's
// fixed width/length, a FieldUnit/BufferField writes through to its backing
// Region/Buffer, and every other destination (Local/Arg/Debug/Index/a
// non-data named object) simply rebinds to a clone of src. It returns
// whatever value the destination now observably holds, which evalStore
// passes through as Store's own result but which writeOptionalTarget's
// callers ignore in favor of their own computed value.
func (it *Interp) storeInto(cell object.Cell, src *object.Object) (*object.Object, *amlerr.Error) {
	if nsNode, ok := cell.(*namespace.Node); ok {
		cur := nsNode.Get()
		switch cur.Kind() {
		case object.KindInteger, object.KindString, object.KindBuffer:
			newObj, err := object.StoreIntoNamed(cur.Kind(), len(cur.Bytes()), src, it.width)
			if err != nil {
				return nil, err
			}
			nsNode.Set(newObj)
			return newObj, nil
		case object.KindFieldUnit:
			fu, ok := cur.Extra.(*region.FieldUnit)
			if !ok {
				return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "Store: FieldUnit missing descriptor")
			}
			if err := region.Write(fu, src, it.width, it.globalLock); err != nil {
				return nil, err
			}
			return src, nil
		case object.KindBufferField:
			bi, ok := cur.Extra.(*object.BufferFieldInfo)
			if !ok {
				return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "Store: BufferField missing descriptor")
			}
			if err := object.WriteBufferField(bi, src, it.width); err != nil {
				return nil, err
			}
			return src, nil
		default:
			cloned := object.Clone(src)
			nsNode.Set(cloned)
			return cloned, nil
		}
	}

	if _, ok := cell.(bufferByteCell); ok {
		v, err := object.CoerceToInteger(src, it.width)
		if err != nil {
			return nil, err
		}
		cell.Set(object.NewInteger(v))
		return cell.Get(), nil
	}

	cloned := object.Clone(src)
	cell.Set(cloned)
	return cloned, nil
}

// writeOptionalTarget stores value into targetNode's cell when targetNode is
// non-nil (the parsed form of AML's optional "Target" operand — NullName
// means the caller never built a Target node at all). It backs every ALU/
// convert/Mid/Divide/Index opcode whose computed return value is independent
// of how storeInto ends up coercing it into Target.
func (it *Interp) writeOptionalTarget(fr *Frame, targetNode *ASTNode, value *object.Object) *amlerr.Error {
	if targetNode == nil {
		return nil
	}
	cell, err := it.resolveCell(fr, targetNode)
	if err != nil {
		return err
	}
	_, err = it.storeInto(cell, value)
	return err
}

func (it *Interp) evalCopyObject(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	cell, err := it.resolveCell(fr, node.Target)
	if err != nil {
		return nil, err
	}
	cloned := object.Clone(operands[0])
	cell.Set(cloned)
	return cloned, nil
}

// evalIncDec implements Increment/Decrement's write-through-reference
// exception (spec §4.1): unlike a plain Store to the same SuperName, when
// the target currently holds a Reference the arithmetic follows one level
// through it and mutates the referent in place rather than rebinding the
// slot to a new Integer.
func (it *Interp) evalIncDec(fr *Frame, node *ASTNode, delta int64) (*object.Object, *amlerr.Error) {
	cell, err := it.resolveCell(fr, node.Target)
	if err != nil {
		return nil, err
	}

	cur := cell.Get()
	writeCell := cell
	if cur.Kind() == object.KindReference {
		writeCell = cur.Reference().Cell
		cur = writeCell.Get()
	}

	v, cerr := object.CoerceToInteger(cur, it.width)
	if cerr != nil {
		return nil, cerr
	}
	result := it.width.Mask(uint64(int64(v) + delta))
	newObj := object.NewInteger(result)
	writeCell.Set(newObj)
	return newObj, nil
}

func refKindOf(op opcode.Opcode) object.RefKind {
	switch {
	case isLocalOp(op):
		return object.RefKindLocal
	case isArgOp(op):
		return object.RefKindArg
	case op == opcode.OpIndex:
		return object.RefKindIndex
	default:
		return object.RefKindNamed
	}
}

func (it *Interp) evalRefOf(fr *Frame, node *ASTNode) (*object.Object, *amlerr.Error) {
	cell, err := it.resolveCell(fr, node.Target)
	if err != nil {
		return nil, err
	}
	return object.NewReference(refKindOf(node.Target.Op), cell, node.Target.Name), nil
}

// evalCondRefOf implements CondRefOf(Source, Target): unlike RefOf, an
// unresolved Source is not an error — it reports failure via the returned
// Integer rather than propagating an amlerr.Error.
func (it *Interp) evalCondRefOf(fr *Frame, node *ASTNode) (*object.Object, *amlerr.Error) {
	src := node.Target
	dst := node.Target2

	var cell object.Cell
	ok := true
	switch {
	case isLocalOp(src.Op):
		cell = &fr.locals[src.Op-opcode.OpLocal0]
	case isArgOp(src.Op):
		cell = &fr.args[src.Op-opcode.OpArg0]
	case src.Op == opNameRef:
		n, nerr := it.ns.Resolve(fr.scope, src.Name)
		if nerr != nil {
			ok = false
		} else {
			cell = n
		}
	default:
		return nil, amlerr.New(amlerr.KindBadOperand, "interp", "CondRefOf: unsupported source form")
	}

	if !ok {
		return object.NewInteger(0), nil
	}

	ref := object.NewReference(refKindOf(src.Op), cell, src.Name)
	dstCell, derr := it.resolveCell(fr, dst)
	if derr != nil {
		return nil, derr
	}
	dstCell.Set(ref)
	return object.NewInteger(1), nil
}

func (it *Interp) evalSizeOf(fr *Frame, node *ASTNode) (*object.Object, *amlerr.Error) {
	cell, err := it.resolveCell(fr, node.Target)
	if err != nil {
		return nil, err
	}
	val := cell.Get()
	switch val.Kind() {
	case object.KindString, object.KindBuffer:
		return object.NewInteger(uint64(len(val.Bytes()))), nil
	case object.KindPackage:
		return object.NewInteger(uint64(len(val.Elements()))), nil
	default:
		return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "SizeOf: operand must be String, Buffer, or Package")
	}
}

func (it *Interp) evalObjectType(fr *Frame, node *ASTNode) (*object.Object, *amlerr.Error) {
	cell, err := it.resolveCell(fr, node.Target)
	if err != nil {
		return nil, err
	}
	return object.NewInteger(objectTypeCode(cell.Get().Kind())), nil
}

// evalNotify queues an asynchronous Notify(object, value) to the event
// subsystem's per-target FIFO (spec §4.6); the interpreter itself never
// blocks on delivery.
func (it *Interp) evalNotify(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	target, err := it.ns.Resolve(fr.scope, node.Name)
	if err != nil {
		return nil, err
	}
	value, cerr := object.CoerceToInteger(operands[0], it.width)
	if cerr != nil {
		return nil, cerr
	}
	if it.notifier != nil {
		it.notifier.Notify(target.AbsolutePath(), uint32(value))
	}
	return object.NewUninitialized(), nil
}

func (it *Interp) evalSleep(operands []*object.Object) (*object.Object, *amlerr.Error) {
	ms, err := object.CoerceToInteger(operands[0], it.width)
	if err != nil {
		return nil, err
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return object.NewUninitialized(), nil
}

func (it *Interp) evalStall(operands []*object.Object) (*object.Object, *amlerr.Error) {
	us, err := object.CoerceToInteger(operands[0], it.width)
	if err != nil {
		return nil, err
	}
	time.Sleep(time.Duration(us) * time.Microsecond)
	return object.NewUninitialized(), nil
}

// evalAcquire acquires a Mutex object's recursive mutex within the AML
// timeout operand (in milliseconds; 0xFFFF means "no timeout"), returning
// Zero on success and Ones on timeout per spec §4.4/ACPI Acquire semantics.
func (it *Interp) evalAcquire(fr *Frame, node *ASTNode) (*object.Object, *amlerr.Error) {
	target, err := it.ns.Resolve(fr.scope, node.Name)
	if err != nil {
		return nil, err
	}
	mutexObj := target.Get()
	mu, ok := mutexObj.Extra.(*syncutil.RecursiveMutex)
	if !ok {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "Acquire: operand is not a Mutex")
	}

	timeoutMs := uint64(node.Slot)
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeoutMs != 0xffff {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	if !mu.TryAcquire(ctx, fr.owner) {
		return object.NewInteger(it.width.Mask(^uint64(0))), nil
	}
	return object.NewInteger(0), nil
}

// declareMutex installs a Mutex object for a Mutex(Name, SyncLevel)
// declaration statement encountered while running a method body or table
// TermList — the dynamic counterpart to Method/Device/OpRegion/Field
// declarations, which this core expects the table loader to have already
// installed before the enclosing scope's statements run.
func (it *Interp) declareMutex(fr *Frame, node *ASTNode) *amlerr.Error {
	mutexObj := object.New(object.KindMutex)
	mutexObj.Extra = syncutil.NewRecursiveMutex()
	_, err := it.ns.Install(fr.scope, node.Name, mutexObj)
	return err
}

func (it *Interp) evalRelease(fr *Frame, node *ASTNode) (*object.Object, *amlerr.Error) {
	target, err := it.ns.Resolve(fr.scope, node.Name)
	if err != nil {
		return nil, err
	}
	mutexObj := target.Get()
	mu, ok := mutexObj.Extra.(*syncutil.RecursiveMutex)
	if !ok {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "Release: operand is not a Mutex")
	}
	mu.Release(fr.owner)
	return object.NewUninitialized(), nil
}

// eventSemaphoreOf resolves operand to the *object.EventSemaphore its Extra
// holds, the shared lookup Wait/Signal/Reset perform on their EventObject
// operand (an ordinary TermArg, unlike Acquire/Release's bare NameString).
func eventSemaphoreOf(operand *object.Object) (*object.EventSemaphore, *amlerr.Error) {
	if operand.Kind() != object.KindEvent {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "operand is not an Event")
	}
	sem, ok := operand.Extra.(*object.EventSemaphore)
	if !ok {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "Event missing semaphore descriptor")
	}
	return sem, nil
}

// evalSignal implements Signal(EventObject): increments the Event's
// semaphore, waking one blocked Wait.
func (it *Interp) evalSignal(operands []*object.Object) (*object.Object, *amlerr.Error) {
	sem, err := eventSemaphoreOf(operands[0])
	if err != nil {
		return nil, err
	}
	sem.Signal()
	return object.NewUninitialized(), nil
}

// evalReset implements Reset(EventObject): drains the Event's semaphore back
// to empty.
func (it *Interp) evalReset(operands []*object.Object) (*object.Object, *amlerr.Error) {
	sem, err := eventSemaphoreOf(operands[0])
	if err != nil {
		return nil, err
	}
	sem.Reset()
	return object.NewUninitialized(), nil
}

// evalWait implements Wait(EventObject, Timeout): blocks for up to Timeout
// milliseconds (0xFFFF means "no timeout") for the Event to be Signaled,
// returning Zero on success and Ones on timeout, mirroring evalAcquire's
// Mutex timeout convention.
func (it *Interp) evalWait(operands []*object.Object) (*object.Object, *amlerr.Error) {
	sem, err := eventSemaphoreOf(operands[0])
	if err != nil {
		return nil, err
	}
	timeoutMs, cerr := object.CoerceToInteger(operands[1], it.width)
	if cerr != nil {
		return nil, cerr
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if timeoutMs != 0xffff {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	if !sem.Wait(ctx) {
		return object.NewInteger(it.width.Mask(^uint64(0))), nil
	}
	return object.NewInteger(0), nil
}
