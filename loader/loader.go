// Package loader turns a raw AML byte stream into a populated namespace plus
// parsed Method bodies, using the opcode package's PkgLength/NameString/
// opcode decoders (spec §2 table loader component; §4.3). It performs one
// structural pass that installs every declarative construct (Scope, Device,
// Processor, PowerResource, ThermalZone, Name, Alias, Mutex, Event,
// OperationRegion, Field family, CreateXField) directly into the namespace,
// and hands only Method bodies to the interp package as interp.ASTNode trees
// — ACPI restricts branching/statement opcodes (If/While/Store/...) to
// Method bodies, so a structural (not interpreted) walk is sufficient to
// build the whole namespace. This walk uses ordinary Go recursion: it runs
// once at table-load time, not on the interpreter's per-call hot path, so it
// is exempt from the interpreter core's non-recursion requirement (spec
// §4.4) the way a one-shot compiler pass is exempt from a VM's runtime
// stack budget.
package loader

import (
	"acpicore/amlerr"
	"acpicore/interp"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/opcode"
)

// parser holds the mutable cursor over one table's AML body.
type parser struct {
	data      []byte
	pos       int
	ns        *namespace.Namespace
	tableName string
}

// LoadTable parses data (the AML body following a table header) against ns,
// installing every named object it declares under scope, and registers any
// top-level executable statements (rare in real tables, but legal) with it
// under tableName for Load to find (spec §4.4's buildLoadFrame).
func LoadTable(ns *namespace.Namespace, it *interp.Interp, tableName string, scope *namespace.Node, data []byte) *amlerr.Error {
	p := &parser{data: data, ns: ns, tableName: tableName}
	body, err := p.parseTermList(scope, len(data))
	if err != nil {
		return err
	}
	if it != nil {
		it.RegisterTable(tableName, body)
	}
	return nil
}

// parseTermList parses statements from p.pos up to (but not past) end,
// installing declarations into scope and returning any residual executable
// ASTNodes (If/While/Store/... at true top level — legal but unusual).
func (p *parser) parseTermList(scope *namespace.Node, end int) ([]*interp.ASTNode, *amlerr.Error) {
	var stmts []*interp.ASTNode
	for p.pos < end {
		node, declarative, err := p.parseTermObj(scope)
		if err != nil {
			return nil, err
		}
		if !declarative {
			stmts = append(stmts, node)
		}
	}
	return stmts, nil
}

// parseTermObj parses exactly one TermObj at the cursor. declarative is true
// when the opcode was handled by installing a namespace node directly (the
// returned node is nil in that case); otherwise node is the parsed
// executable ASTNode.
func (p *parser) parseTermObj(scope *namespace.Node) (node *interp.ASTNode, declarative bool, err *amlerr.Error) {
	op, _, n, derr := opcode.Decode(p.data, p.pos)
	if derr != nil {
		return nil, false, derr
	}
	start := p.pos
	p.pos += n

	switch op {
	case opcode.OpName:
		return nil, true, p.parseNameDecl(scope)
	case opcode.OpAlias:
		return nil, true, p.parseAliasDecl(scope)
	case opcode.OpScope:
		return nil, true, p.parseNestedScope(scope, op)
	case opcode.OpDevice:
		return nil, true, p.parseNestedScope(scope, op)
	case opcode.OpProcessor:
		return nil, true, p.parseProcessorDecl(scope)
	case opcode.OpPowerRes:
		return nil, true, p.parsePowerResDecl(scope)
	case opcode.OpThermalZone:
		return nil, true, p.parseNestedScope(scope, op)
	case opcode.OpMethod:
		return nil, true, p.parseMethodDecl(scope)
	case opcode.OpMutex:
		return nil, true, p.parseMutexDecl(scope)
	case opcode.OpEvent:
		return nil, true, p.parseEventDecl(scope)
	case opcode.OpOpRegion:
		return nil, true, p.parseOpRegionDecl(scope)
	case opcode.OpField:
		return nil, true, p.parseFieldDecl(scope, false, false)
	case opcode.OpIndexField:
		return nil, true, p.parseFieldDecl(scope, true, false)
	case opcode.OpBankField:
		return nil, true, p.parseFieldDecl(scope, false, true)
	case opcode.OpCreateByteField, opcode.OpCreateWordField, opcode.OpCreateDWordField,
		opcode.OpCreateQWordField, opcode.OpCreateBitField:
		return nil, true, p.parseCreateFieldDecl(scope, op)
	case opcode.OpCreateField:
		return nil, true, p.parseGenericCreateField(scope)
	case opcode.OpExternal:
		return nil, true, p.skipExternal()
	default:
		p.pos = start
		exprNode, eerr := p.parseExpr(scope)
		return exprNode, false, eerr
	}
}

// ---- simple leaf/operator TermArg parsing (feeds Method bodies) ----

// parseExpr parses one full TermArg/expression tree rooted at the cursor,
// recursively parsing its operands according to the opcode's declared arity.
func (p *parser) parseExpr(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	if p.pos >= len(p.data) {
		return nil, amlerr.New(amlerr.KindBadBytecode, "loader", "parseExpr: truncated stream")
	}

	b := p.data[p.pos]
	if b == opcode.RootChar || b == opcode.ParentPrefixChar || b == opcode.DualNamePrefix ||
		b == opcode.MultiNamePrefix || isLeadNameChar(b) {
		return p.parseNameOrInvoke(scope)
	}

	op, info, n, err := opcode.Decode(p.data, p.pos)
	if err != nil {
		return nil, err
	}
	p.pos += n

	switch op {
	case opcode.OpBytePrefix:
		v, verr := p.readByte()
		if verr != nil {
			return nil, verr
		}
		return &interp.ASTNode{Op: op, Const: object.NewInteger(uint64(v))}, nil
	case opcode.OpWordPrefix:
		v, verr := p.readUint(2)
		if verr != nil {
			return nil, verr
		}
		return &interp.ASTNode{Op: op, Const: object.NewInteger(v)}, nil
	case opcode.OpDwordPrefix:
		v, verr := p.readUint(4)
		if verr != nil {
			return nil, verr
		}
		return &interp.ASTNode{Op: op, Const: object.NewInteger(v)}, nil
	case opcode.OpQwordPrefix:
		v, verr := p.readUint(8)
		if verr != nil {
			return nil, verr
		}
		return &interp.ASTNode{Op: op, Const: object.NewInteger(v)}, nil
	case opcode.OpStringPrefix:
		s, serr := p.readCString()
		if serr != nil {
			return nil, serr
		}
		return &interp.ASTNode{Op: op, Const: object.NewString(s)}, nil
	case opcode.OpZero, opcode.OpOne, opcode.OpOnes, opcode.OpRevision, opcode.OpDebug, opcode.OpTimer:
		return &interp.ASTNode{Op: op}, nil

	case opcode.OpBuffer:
		return p.parseBuffer(scope, op)
	case opcode.OpPackage, opcode.OpVarPackage:
		return p.parsePackage(scope, op)

	case opcode.OpLocal0, opcode.OpLocal1, opcode.OpLocal2, opcode.OpLocal3,
		opcode.OpLocal4, opcode.OpLocal5, opcode.OpLocal6, opcode.OpLocal7:
		return &interp.ASTNode{Op: op, Slot: int(op - opcode.OpLocal0)}, nil
	case opcode.OpArg0, opcode.OpArg1, opcode.OpArg2, opcode.OpArg3,
		opcode.OpArg4, opcode.OpArg5, opcode.OpArg6:
		return &interp.ASTNode{Op: op, Slot: int(op - opcode.OpArg0)}, nil

	case opcode.OpIf:
		return p.parseIf(scope)
	case opcode.OpWhile:
		return p.parseWhile(scope)
	case opcode.OpReturn:
		return p.parseNAry(scope, op, 1)
	case opcode.OpBreak, opcode.OpContinue, opcode.OpNoop, opcode.OpBreakPoint:
		return &interp.ASTNode{Op: op}, nil

	case opcode.OpStore, opcode.OpCopyObject:
		return p.parseStoreLike(scope, op)
	case opcode.OpIncrement, opcode.OpDecrement:
		return p.parseUnaryTarget(scope, op)
	case opcode.OpRefOf:
		return p.parseUnaryTarget(scope, op)
	case opcode.OpCondRefOf:
		return p.parseCondRefOf(scope)
	case opcode.OpSizeOf, opcode.OpObjectType:
		return p.parseUnaryTarget(scope, op)
	case opcode.OpRelease:
		return p.parseReleaseLike(op)
	case opcode.OpReset, opcode.OpSignal, opcode.OpUnload, opcode.OpStall, opcode.OpSleep:
		return p.parseNAry(scope, op, 1)
	case opcode.OpNotify:
		return p.parseNotify(scope)
	case opcode.OpAcquire:
		return p.parseAcquire(scope)
	case opcode.OpWait:
		return p.parseNAry(scope, op, 2)
	case opcode.OpIndex:
		return p.parseNAryWithTarget(scope, op, 2)
	case opcode.OpDerefOf:
		return p.parseNAry(scope, op, 1)
	case opcode.OpToHexString, opcode.OpToBuffer, opcode.OpToDecimalString,
		opcode.OpToInteger, opcode.OpToString, opcode.OpFromBCD, opcode.OpToBCD:
		return p.parseNAryWithTarget(scope, op, 1)
	case opcode.OpNot, opcode.OpFindSetLeftBit, opcode.OpFindSetRightBit:
		return p.parseNAryWithTarget(scope, op, 1)
	case opcode.OpLnot:
		return p.parseNAry(scope, op, 1)
	case opcode.OpAdd, opcode.OpSubtract, opcode.OpMultiply, opcode.OpShiftLeft, opcode.OpShiftRight,
		opcode.OpAnd, opcode.OpNand, opcode.OpOr, opcode.OpNor, opcode.OpXor, opcode.OpMod, opcode.OpConcat,
		opcode.OpConcatRes:
		return p.parseNAryWithTarget(scope, op, 2)
	case opcode.OpLand, opcode.OpLor, opcode.OpLEqual, opcode.OpLGreater, opcode.OpLLess:
		return p.parseNAry(scope, op, 2)
	case opcode.OpDivide:
		return p.parseDivide(scope)
	case opcode.OpMid:
		return p.parseNAryWithTarget(scope, op, 3)
	case opcode.OpMatch:
		return p.parseMatch(scope)

	default:
		return nil, amlerr.New(amlerr.KindBadBytecode, "loader", "parseExpr: unsupported opcode "+info.Name)
	}
}

func isLeadNameChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') || b == '_'
}
