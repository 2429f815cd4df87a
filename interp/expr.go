package interp

import (
	"time"

	"acpicore/amlerr"
	"acpicore/object"
	"acpicore/opcode"
	"acpicore/region"
)

// evalNode computes the value of node given its already-evaluated operands
// (node.Args, in order). Opcodes whose operand is a SuperName rather than a
// TermArg (Store's/CopyObject's/Increment's/Decrement's/RefOf's/CondRefOf's
// destination) instead consult node.Target/node.Target2 directly through
// resolveCell, since those operands name a place to write rather than a
// value to read. A second group of opcodes (Add/Subtract/.../Not/FindSetBit/
// the To*/From* converters/Mid/Divide/Index) computes a value independent of
// any destination but additionally writes it through an *optional*
// node.Target/Target2 when AML encoded one (writeOptionalTarget); their
// return value is always the raw computed result.
func (it *Interp) evalNode(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	switch node.Op {
	case opcode.OpZero:
		return object.NewInteger(0), nil
	case opcode.OpOne:
		return object.NewInteger(1), nil
	case opcode.OpOnes:
		return object.NewInteger(it.width.Mask(^uint64(0))), nil
	case opcode.OpBytePrefix, opcode.OpWordPrefix, opcode.OpDwordPrefix, opcode.OpQwordPrefix, opcode.OpStringPrefix:
		return node.Const, nil
	case opcode.OpRevision:
		if it.width == object.IntWidth64 {
			return object.NewInteger(2), nil
		}
		return object.NewInteger(1), nil
	case opcode.OpDebug:
		return object.NewDebug(), nil
	case opcode.OpTimer:
		return object.NewInteger(uint64(time.Now().UnixNano() / 100)), nil

	case opNameRef:
		n, err := it.ns.Resolve(fr.scope, node.Name)
		if err != nil {
			return nil, err
		}
		return it.readNamed(n.Get())

	case opcode.OpPackage, opcode.OpVarPackage:
		return object.NewPackage(operands), nil

	case opcode.OpBuffer:
		size, err := object.CoerceToInteger(operands[0], it.width)
		if err != nil {
			return nil, err
		}
		data := node.Const.Bytes()
		buf := make([]byte, size)
		copy(buf, data)
		return object.NewBuffer(buf), nil

	case opcode.OpAdd, opcode.OpSubtract, opcode.OpMultiply, opcode.OpShiftLeft,
		opcode.OpShiftRight, opcode.OpAnd, opcode.OpNand, opcode.OpOr, opcode.OpNor,
		opcode.OpXor, opcode.OpMod:
		return it.evalBinaryALU(fr, node, operands)
	case opcode.OpDivide:
		return it.evalDivide(fr, node, operands)
	case opcode.OpNot:
		return it.evalUnaryALU(fr, node, operands[0], func(a uint64) uint64 { return ^a })
	case opcode.OpFindSetLeftBit:
		return it.evalFindSetBit(fr, node, operands[0], true)
	case opcode.OpFindSetRightBit:
		return it.evalFindSetBit(fr, node, operands[0], false)

	case opcode.OpLand, opcode.OpLor, opcode.OpLnot, opcode.OpLEqual,
		opcode.OpLGreater, opcode.OpLLess:
		return it.evalLogic(node.Op, operands)

	case opcode.OpConcat:
		return it.evalConcat(operands)
	case opcode.OpToHexString:
		return it.evalConvert(fr, node, func() (*object.Object, *amlerr.Error) {
			return object.ToHexString(operands[0], it.width)
		})
	case opcode.OpToBuffer:
		return it.evalConvert(fr, node, func() (*object.Object, *amlerr.Error) {
			return object.ToBuffer(operands[0], it.width)
		})
	case opcode.OpToInteger:
		return it.evalConvert(fr, node, func() (*object.Object, *amlerr.Error) {
			return object.ToInteger(operands[0], it.width)
		})
	case opcode.OpToString:
		return it.evalConvert(fr, node, func() (*object.Object, *amlerr.Error) {
			return object.ToString(operands[0])
		})
	case opcode.OpToDecimalString:
		return it.evalConvert(fr, node, func() (*object.Object, *amlerr.Error) {
			return object.ToDecimalString(operands[0])
		})
	case opcode.OpFromBCD:
		return it.evalConvert(fr, node, func() (*object.Object, *amlerr.Error) {
			return object.FromBCD(operands[0], it.width)
		})
	case opcode.OpToBCD:
		return it.evalConvert(fr, node, func() (*object.Object, *amlerr.Error) {
			return object.ToBCD(operands[0], it.width)
		})
	case opcode.OpMid:
		return it.evalMid(fr, node, operands)
	case opcode.OpMatch:
		return it.evalMatch(node, operands)

	case opcode.OpIndex:
		return it.evalIndexExprNode(fr, node, operands)
	case opcode.OpDerefOf:
		resolved, derr := object.DerefOf(operands[0], object.DefaultMaxDerefDepth)
		if derr != nil {
			return nil, asAMLError(derr)
		}
		return resolved, nil

	case opcode.OpStore:
		return it.evalStore(fr, node, operands)
	case opcode.OpCopyObject:
		return it.evalCopyObject(fr, node, operands)
	case opcode.OpIncrement:
		return it.evalIncDec(fr, node, +1)
	case opcode.OpDecrement:
		return it.evalIncDec(fr, node, -1)
	case opcode.OpRefOf:
		return it.evalRefOf(fr, node)
	case opcode.OpCondRefOf:
		return it.evalCondRefOf(fr, node)
	case opcode.OpSizeOf:
		return it.evalSizeOf(fr, node)
	case opcode.OpObjectType:
		return it.evalObjectType(fr, node)

	case opcode.OpNotify:
		return it.evalNotify(fr, node, operands)
	case opcode.OpSleep:
		return it.evalSleep(operands)
	case opcode.OpStall:
		return it.evalStall(operands)
	case opcode.OpAcquire:
		return it.evalAcquire(fr, node)
	case opcode.OpRelease:
		return it.evalRelease(fr, node)
	case opcode.OpSignal:
		return it.evalSignal(operands)
	case opcode.OpReset:
		return it.evalReset(operands)
	case opcode.OpWait:
		return it.evalWait(operands)

	default:
		return nil, amlerr.New(amlerr.KindBadOperand, "interp", "evalNode: unsupported opcode "+opcodeName(node.Op))
	}
}

// evalConvert runs a value-producing conversion op (ToBuffer/ToInteger/
// ToString/ToDecimalString/ToHexString/FromBCD/ToBCD) and, if the opcode
// carried an optional Target, writes the same result through it -- the
// result returned to the caller is always the raw computed value regardless
// of how storeInto ends up coercing it into Target.
func (it *Interp) evalConvert(fr *Frame, node *ASTNode, compute func() (*object.Object, *amlerr.Error)) (*object.Object, *amlerr.Error) {
	result, err := compute()
	if err != nil {
		return nil, err
	}
	if werr := it.writeOptionalTarget(fr, node.Target, result); werr != nil {
		return nil, werr
	}
	return result, nil
}

func opcodeName(op opcode.Opcode) string {
	if info, ok := opcode.Table[op]; ok {
		return info.Name
	}
	return "unknown"
}

func asAMLError(err error) *amlerr.Error {
	if ae, ok := err.(*amlerr.Error); ok {
		return ae
	}
	return amlerr.New(amlerr.KindBadOperand, "interp", err.Error())
}

// evalBinaryALU computes an arithmetic/bitwise binary result and, if node
// carried an optional Target (Add(X, Y, Local0)'s third operand), writes the
// result through it -- the returned value is always the raw computed result,
// independent of how storeInto coerces it into Target.
func (it *Interp) evalBinaryALU(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	a, err := object.CoerceToInteger(operands[0], it.width)
	if err != nil {
		return nil, err
	}
	b, err := object.CoerceToInteger(operands[1], it.width)
	if err != nil {
		return nil, err
	}

	var result uint64
	switch node.Op {
	case opcode.OpAdd:
		result = a + b
	case opcode.OpSubtract:
		result = a - b
	case opcode.OpMultiply:
		result = a * b
	case opcode.OpShiftLeft:
		result = a << b
	case opcode.OpShiftRight:
		result = a >> b
	case opcode.OpAnd:
		result = a & b
	case opcode.OpNand:
		result = ^(a & b)
	case opcode.OpOr:
		result = a | b
	case opcode.OpNor:
		result = ^(a | b)
	case opcode.OpXor:
		result = a ^ b
	case opcode.OpMod:
		if b == 0 {
			return nil, amlerr.New(amlerr.KindBadOperand, "interp", "Mod: division by zero")
		}
		result = a % b
	}
	out := object.NewInteger(it.width.Mask(result))
	if werr := it.writeOptionalTarget(fr, node.Target, out); werr != nil {
		return nil, werr
	}
	return out, nil
}

// evalDivide computes Dividend/Divisor, writing the remainder through node's
// Target (if any) and the quotient through Target2 (if any); the function's
// own returned value is the quotient, matching evalDivide's prior behavior.
func (it *Interp) evalDivide(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	a, err := object.CoerceToInteger(operands[0], it.width)
	if err != nil {
		return nil, err
	}
	b, err := object.CoerceToInteger(operands[1], it.width)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, amlerr.New(amlerr.KindBadOperand, "interp", "Divide: division by zero")
	}
	remainder := object.NewInteger(it.width.Mask(a % b))
	quotient := object.NewInteger(it.width.Mask(a / b))
	if werr := it.writeOptionalTarget(fr, node.Target, remainder); werr != nil {
		return nil, werr
	}
	if werr := it.writeOptionalTarget(fr, node.Target2, quotient); werr != nil {
		return nil, werr
	}
	return quotient, nil
}

func (it *Interp) evalUnaryALU(fr *Frame, node *ASTNode, a *object.Object, f func(uint64) uint64) (*object.Object, *amlerr.Error) {
	v, err := object.CoerceToInteger(a, it.width)
	if err != nil {
		return nil, err
	}
	out := object.NewInteger(it.width.Mask(f(v)))
	if werr := it.writeOptionalTarget(fr, node.Target, out); werr != nil {
		return nil, werr
	}
	return out, nil
}

func (it *Interp) evalFindSetBit(fr *Frame, node *ASTNode, a *object.Object, fromLeft bool) (*object.Object, *amlerr.Error) {
	v, err := object.CoerceToInteger(a, it.width)
	if err != nil {
		return nil, err
	}
	result := uint64(0)
	bits := int(it.width)
	if v != 0 {
		if fromLeft {
			for i := bits - 1; i >= 0; i-- {
				if v&(1<<uint(i)) != 0 {
					result = uint64(i + 1)
					break
				}
			}
		} else {
			for i := 0; i < bits; i++ {
				if v&(1<<uint(i)) != 0 {
					result = uint64(i + 1)
					break
				}
			}
		}
	}
	out := object.NewInteger(result)
	if werr := it.writeOptionalTarget(fr, node.Target, out); werr != nil {
		return nil, werr
	}
	return out, nil
}

// evalMid implements Mid(Source, Index, Length, Target): a substring/
// subbuffer extraction whose optional Target receives the same result as
// the function's return value.
func (it *Interp) evalMid(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	index, err := object.CoerceToInteger(operands[1], it.width)
	if err != nil {
		return nil, err
	}
	length, err := object.CoerceToInteger(operands[2], it.width)
	if err != nil {
		return nil, err
	}
	result, merr := object.Mid(operands[0], index, length)
	if merr != nil {
		return nil, merr
	}
	if werr := it.writeOptionalTarget(fr, node.Target, result); werr != nil {
		return nil, werr
	}
	return result, nil
}

// matchOpResult evaluates one of Match's two MatchOpcode comparisons (ACPI
// Table 19-9: MTR=always true, MEQ/MLE/MLT/MGE/MGT numeric comparisons).
func matchOpResult(code uint64, elem, operand uint64) bool {
	switch code {
	case 0: // MTR
		return true
	case 1: // MEQ
		return elem == operand
	case 2: // MLE
		return elem <= operand
	case 3: // MLT
		return elem < operand
	case 4: // MGE
		return elem >= operand
	case 5: // MGT
		return elem > operand
	default:
		return false
	}
}

// evalMatch implements Match(SearchPkg, MatchOpcode1, Operand1, MatchOpcode2,
// Operand2, StartIndex): scans SearchPkg from StartIndex for the first
// element satisfying both comparisons, returning its index or Ones if none
// match.
func (it *Interp) evalMatch(node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	pkg := operands[0]
	if pkg.Kind() != object.KindPackage {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "Match: SearchPkg must be a Package")
	}
	op1 := uint64(node.Slot & 0xff)
	op2 := uint64((node.Slot >> 8) & 0xff)

	operand1, err := object.CoerceToInteger(operands[1], it.width)
	if err != nil {
		return nil, err
	}
	operand2, err := object.CoerceToInteger(operands[2], it.width)
	if err != nil {
		return nil, err
	}
	start, err := object.CoerceToInteger(operands[3], it.width)
	if err != nil {
		return nil, err
	}

	for i := int(start); i < len(pkg.Elements()); i++ {
		elem, eerr := object.CoerceToInteger(pkg.Element(i), it.width)
		if eerr != nil {
			continue
		}
		if matchOpResult(op1, elem, operand1) && matchOpResult(op2, elem, operand2) {
			return object.NewInteger(uint64(i)), nil
		}
	}
	return object.NewInteger(it.width.Mask(^uint64(0))), nil
}

func (it *Interp) evalLogic(op opcode.Opcode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	truth := func(o *object.Object) (bool, *amlerr.Error) { return truthValue(o) }

	switch op {
	case opcode.OpLnot:
		a, err := truth(operands[0])
		if err != nil {
			return nil, err
		}
		return boolObj(!a), nil
	case opcode.OpLand:
		a, err := truth(operands[0])
		if err != nil {
			return nil, err
		}
		b, err := truth(operands[1])
		if err != nil {
			return nil, err
		}
		return boolObj(a && b), nil
	case opcode.OpLor:
		a, err := truth(operands[0])
		if err != nil {
			return nil, err
		}
		b, err := truth(operands[1])
		if err != nil {
			return nil, err
		}
		return boolObj(a || b), nil
	}

	// LEqual/LGreater/LLess compare like-typed operands: Integer vs
	// Integer numerically, String/Buffer lexicographically byte-by-byte.
	lhs, rhs := operands[0], operands[1]
	if lhs.Kind() == object.KindInteger || rhs.Kind() == object.KindInteger {
		a, err := object.CoerceToInteger(lhs, it.width)
		if err != nil {
			return nil, err
		}
		b, err := object.CoerceToInteger(rhs, it.width)
		if err != nil {
			return nil, err
		}
		switch op {
		case opcode.OpLEqual:
			return boolObj(a == b), nil
		case opcode.OpLGreater:
			return boolObj(a > b), nil
		default:
			return boolObj(a < b), nil
		}
	}

	a, err := object.CoerceToBytes(lhs, it.width)
	if err != nil {
		return nil, err
	}
	b, err := object.CoerceToBytes(rhs, it.width)
	if err != nil {
		return nil, err
	}
	cmp := compareBytes(a, b)
	switch op {
	case opcode.OpLEqual:
		return boolObj(cmp == 0), nil
	case opcode.OpLGreater:
		return boolObj(cmp > 0), nil
	default:
		return boolObj(cmp < 0), nil
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

func boolObj(v bool) *object.Object {
	if v {
		return object.NewInteger(1)
	}
	return object.NewInteger(0)
}

func (it *Interp) evalConcat(operands []*object.Object) (*object.Object, *amlerr.Error) {
	a, b := operands[0], operands[1]
	if a.Kind() == object.KindString || b.Kind() == object.KindString {
		return object.NewString(a.Text() + b.Text()), nil
	}
	if a.Kind() == object.KindBuffer || b.Kind() == object.KindBuffer {
		ab, err := object.CoerceToBytes(a, it.width)
		if err != nil {
			return nil, err
		}
		bb, err := object.CoerceToBytes(b, it.width)
		if err != nil {
			return nil, err
		}
		return object.NewBuffer(append(append([]byte(nil), ab...), bb...)), nil
	}
	ab, _ := object.CoerceToBytes(a, it.width)
	bb, _ := object.CoerceToBytes(b, it.width)
	return object.NewBuffer(append(ab, bb...)), nil
}

// evalIndexExprNode wraps evalIndexExpr to additionally write the resulting
// Reference through Index's optional third Target operand, the same
// optional-Target shape the rest of the expression opcodes carry.
func (it *Interp) evalIndexExprNode(fr *Frame, node *ASTNode, operands []*object.Object) (*object.Object, *amlerr.Error) {
	result, err := it.evalIndexExpr(operands)
	if err != nil {
		return nil, err
	}
	if werr := it.writeOptionalTarget(fr, node.Target, result); werr != nil {
		return nil, werr
	}
	return result, nil
}

func (it *Interp) evalIndexExpr(operands []*object.Object) (*object.Object, *amlerr.Error) {
	src := operands[0]
	idx, err := object.CoerceToInteger(operands[1], it.width)
	if err != nil {
		return nil, err
	}
	cell, cerr := cellForIndex(src, int(idx))
	if cerr != nil {
		return nil, cerr
	}
	return object.NewReference(object.RefKindIndex, cell, ""), nil
}

func cellForIndex(src *object.Object, idx int) (object.Cell, *amlerr.Error) {
	switch src.Kind() {
	case object.KindPackage:
		if idx < 0 || idx >= len(src.Elements()) {
			return nil, amlerr.New(amlerr.KindBadOperand, "interp", "Index: out of bounds")
		}
		return packageElementCell{pkg: src, idx: idx}, nil
	case object.KindBuffer, object.KindString:
		if idx < 0 || idx >= len(src.Bytes()) {
			return nil, amlerr.New(amlerr.KindBadOperand, "interp", "Index: out of bounds")
		}
		return bufferByteCell{buf: src, idx: idx}, nil
	default:
		return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "Index: source must be Package, Buffer, or String")
	}
}

// objectTypeCode maps an object.Kind to the numeric ObjectType code the
// ACPI specification assigns it (Table 19-10 of the ACPI spec).
func objectTypeCode(k object.Kind) uint64 {
	switch k {
	case object.KindInteger:
		return 1
	case object.KindString:
		return 2
	case object.KindBuffer:
		return 3
	case object.KindPackage:
		return 4
	case object.KindFieldUnit:
		return 5
	case object.KindDevice:
		return 6
	case object.KindEvent:
		return 7
	case object.KindMethod:
		return 8
	case object.KindMutex:
		return 9
	case object.KindOperationRegion:
		return 10
	case object.KindPowerResource:
		return 11
	case object.KindProcessor:
		return 12
	case object.KindThermalZone:
		return 13
	case object.KindBufferField:
		return 14
	case object.KindDebug:
		return 16
	default:
		return 0
	}
}

// readNamed materializes a named object's value the way a bare name
// reference observes it: a FieldUnit or BufferField dereferences through to
// its backing Region/Buffer (spec §4.5); every other kind is already its own
// value.
func (it *Interp) readNamed(obj *object.Object) (*object.Object, *amlerr.Error) {
	switch obj.Kind() {
	case object.KindFieldUnit:
		fu, ok := obj.Extra.(*region.FieldUnit)
		if !ok {
			return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "readNamed: FieldUnit missing descriptor")
		}
		return region.Read(fu, it.globalLock)
	case object.KindBufferField:
		bi, ok := obj.Extra.(*object.BufferFieldInfo)
		if !ok {
			return nil, amlerr.New(amlerr.KindTypeMismatch, "interp", "readNamed: BufferField missing descriptor")
		}
		return object.ReadBufferField(bi)
	default:
		return obj, nil
	}
}
