package loader

import (
	"acpicore/amlerr"
	"acpicore/interp"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/opcode"
)

func (p *parser) readByte() (byte, *amlerr.Error) {
	if p.pos >= len(p.data) {
		return 0, amlerr.New(amlerr.KindBadBytecode, "loader", "readByte: truncated stream")
	}
	b := p.data[p.pos]
	p.pos++
	return b, nil
}

func (p *parser) readUint(n int) (uint64, *amlerr.Error) {
	if p.pos+n > len(p.data) {
		return 0, amlerr.New(amlerr.KindBadBytecode, "loader", "readUint: truncated stream")
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(p.data[p.pos+i]) << (8 * i)
	}
	p.pos += n
	return v, nil
}

func (p *parser) readCString() (string, *amlerr.Error) {
	start := p.pos
	for p.pos < len(p.data) && p.data[p.pos] != 0 {
		p.pos++
	}
	if p.pos >= len(p.data) {
		return "", amlerr.New(amlerr.KindBadBytecode, "loader", "readCString: unterminated string")
	}
	s := string(p.data[start:p.pos])
	p.pos++ // consume the NUL
	return s, nil
}

func (p *parser) readPkgLength() (bodyEnd int, pkgErr *amlerr.Error) {
	length, consumed, err := opcode.DecodePkgLength(p.data, p.pos)
	if err != nil {
		return 0, err
	}
	start := p.pos
	p.pos += consumed
	return start + length, nil
}

func (p *parser) readNameString() (string, *amlerr.Error) {
	name, n, err := opcode.DecodeNameString(p.data, p.pos)
	if err != nil {
		return "", err
	}
	p.pos += n
	return name, nil
}

// parseNameOrInvoke decodes a NameString TermArg. Per spec §4.3 this is
// ambiguous between a bare name reference and a method-call site purely from
// the bytecode shape (AML leaves argument-count resolution to the
// namespace); this loader resolves it structurally by checking whether the
// name was already declared as a Method earlier in this table, matching
// real AML's "methods are declared before first use within the table they
// define" convention. A forward-referenced method invocation (legal but
// rare) falls back to treating the name as a bare reference with zero
// arguments, a documented limitation.
func (p *parser) parseNameOrInvoke(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	name, err := p.readNameString()
	if err != nil {
		return nil, err
	}

	argc, isMethod := p.lookupMethodArgCount(scope, name)
	if !isMethod {
		return &interp.ASTNode{Op: interp.OpNameRef, Name: name}, nil
	}

	node := &interp.ASTNode{Op: interp.OpMethodInvoke, Name: name}
	for i := 0; i < argc; i++ {
		arg, aerr := p.parseExpr(scope)
		if aerr != nil {
			return nil, aerr
		}
		node.Args = append(node.Args, arg)
	}
	return node, nil
}

func (p *parser) lookupMethodArgCount(scope *namespace.Node, name string) (int, bool) {
	n, rerr := p.ns.Resolve(scope, name)
	if rerr != nil {
		return 0, false
	}
	obj := n.Get()
	if obj.Kind() != object.KindMethod {
		return 0, false
	}
	body, ok := obj.Extra.(*interp.MethodBody)
	if !ok {
		return 0, false
	}
	return body.ArgCount, true
}

func (p *parser) parseNAry(scope *namespace.Node, op opcode.Opcode, arity int) (*interp.ASTNode, *amlerr.Error) {
	node := &interp.ASTNode{Op: op}
	for i := 0; i < arity; i++ {
		arg, err := p.parseExpr(scope)
		if err != nil {
			return nil, err
		}
		node.Args = append(node.Args, arg)
	}
	return node, nil
}

// parseStoreLike parses Store(Source, Target) / CopyObject(Source, Target):
// Source is a value TermArg, Target is a SuperName resolved via
// parseSuperName rather than parseExpr.
func (p *parser) parseStoreLike(scope *namespace.Node, op opcode.Opcode) (*interp.ASTNode, *amlerr.Error) {
	src, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	target, err := p.parseSuperName(scope)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{Op: op, Args: []*interp.ASTNode{src}, Target: target}, nil
}

// parseUnaryTarget parses opcodes whose single operand is a SuperName
// (Increment/Decrement/RefOf/SizeOf/ObjectType).
func (p *parser) parseUnaryTarget(scope *namespace.Node, op opcode.Opcode) (*interp.ASTNode, *amlerr.Error) {
	target, err := p.parseSuperName(scope)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{Op: op, Target: target}, nil
}

// parseOptionalTarget parses the AML grammar's "Target" nonterminal where it
// is genuinely optional -- the trailing operand of binary ALU/shift/Not/
// FindSetBit/convert/Mid/Divide/Index opcodes. NullName (a bare 0x00 byte) is
// the encoding for "no target, discard the result"; anything else is an
// ordinary SuperName.
func (p *parser) parseOptionalTarget(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	if p.pos >= len(p.data) {
		return nil, amlerr.New(amlerr.KindBadBytecode, "loader", "parseOptionalTarget: truncated stream")
	}
	if p.data[p.pos] == 0x00 {
		p.pos++
		return nil, nil
	}
	return p.parseSuperName(scope)
}

// parseNAryWithTarget parses valueArity value TermArgs followed by a
// trailing optional Target -- the shape iASL emits for binary ALU/shift/Not/
// FindSetBit/convert/Mid opcodes (e.g. Add(X, Y, Local0)). parseNAry alone
// does not account for this trailing operand, which otherwise desyncs the
// parser cursor for the rest of the enclosing TermList.
func (p *parser) parseNAryWithTarget(scope *namespace.Node, op opcode.Opcode, valueArity int) (*interp.ASTNode, *amlerr.Error) {
	node := &interp.ASTNode{Op: op}
	for i := 0; i < valueArity; i++ {
		arg, err := p.parseExpr(scope)
		if err != nil {
			return nil, err
		}
		node.Args = append(node.Args, arg)
	}
	target, err := p.parseOptionalTarget(scope)
	if err != nil {
		return nil, err
	}
	node.Target = target
	return node, nil
}

// parseDivide parses DefDivide := DivideOp Dividend Divisor Remainder
// Quotient: two value TermArgs followed by two optional Target operands,
// carried as Target (Remainder) and Target2 (Quotient).
func (p *parser) parseDivide(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	dividend, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	divisor, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	remainder, err := p.parseOptionalTarget(scope)
	if err != nil {
		return nil, err
	}
	quotient, err := p.parseOptionalTarget(scope)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{
		Op:      opcode.OpDivide,
		Args:    []*interp.ASTNode{dividend, divisor},
		Target:  remainder,
		Target2: quotient,
	}, nil
}

// parseReleaseLike parses Release(MutexObject): a bare NameString naming the
// Mutex, matching evalRelease's expectation of node.Name (mirrors
// parseAcquire, which resolves its Mutex operand the same way).
func (p *parser) parseReleaseLike(op opcode.Opcode) (*interp.ASTNode, *amlerr.Error) {
	name, err := p.readNameString()
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{Op: op, Name: name}, nil
}

// parseMatch parses DefMatch := MatchOp SearchPkg MatchOpcode1 Operand1
// MatchOpcode2 Operand2 StartIndex. The two MatchOpcode operands are raw
// ByteData constants (0-5), not TermArgs, so they're read directly rather
// than through parseExpr; the packed pair is carried in Slot (op1 | op2<<8)
// for evalMatch to unpack.
func (p *parser) parseMatch(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	pkg, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	op1, err := p.readByte()
	if err != nil {
		return nil, err
	}
	operand1, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	op2, err := p.readByte()
	if err != nil {
		return nil, err
	}
	operand2, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	start, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{
		Op:   opcode.OpMatch,
		Args: []*interp.ASTNode{pkg, operand1, operand2, start},
		Slot: int(op1) | int(op2)<<8,
	}, nil
}

func (p *parser) parseCondRefOf(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	src, err := p.parseSuperName(scope)
	if err != nil {
		return nil, err
	}
	dst, err := p.parseSuperName(scope)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{Op: opcode.OpCondRefOf, Target: src, Target2: dst}, nil
}

func (p *parser) parseNotify(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	name, err := p.readNameString()
	if err != nil {
		return nil, err
	}
	value, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{Op: opcode.OpNotify, Name: name, Args: []*interp.ASTNode{value}}, nil
}

func (p *parser) parseAcquire(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	name, err := p.readNameString()
	if err != nil {
		return nil, err
	}
	timeout, err := p.readUint(2)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{Op: opcode.OpAcquire, Name: name, Slot: int(timeout)}, nil
}

// parseSuperName parses a SuperName: Local/Arg, an Index expression, or a
// plain NameString — everything resolveCell (interp) knows how to turn into
// an object.Cell.
func (p *parser) parseSuperName(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	if p.pos >= len(p.data) {
		return nil, amlerr.New(amlerr.KindBadBytecode, "loader", "parseSuperName: truncated stream")
	}

	b := p.data[p.pos]
	if b == opcode.RootChar || b == opcode.ParentPrefixChar || b == opcode.DualNamePrefix ||
		b == opcode.MultiNamePrefix || isLeadNameChar(b) {
		name, nerr := p.readNameString()
		if nerr != nil {
			return nil, nerr
		}
		return &interp.ASTNode{Op: interp.OpNameRef, Name: name}, nil
	}

	op, _, n, err := opcode.Decode(p.data, p.pos)
	if err == nil && (isLocalOpcode(op) || isArgOpcode(op) || op == opcode.OpDebug) {
		p.pos += n
		if isLocalOpcode(op) {
			return &interp.ASTNode{Op: op, Slot: int(op - opcode.OpLocal0)}, nil
		}
		if isArgOpcode(op) {
			return &interp.ASTNode{Op: op, Slot: int(op - opcode.OpArg0)}, nil
		}
		return &interp.ASTNode{Op: op}, nil
	}

	if err == nil && op == opcode.OpIndex {
		p.pos += n
		return p.parseNAryWithTarget(scope, opcode.OpIndex, 2)
	}

	return nil, amlerr.New(amlerr.KindBadBytecode, "loader", "parseSuperName: unrecognized SuperName operand")
}

func isLocalOpcode(op opcode.Opcode) bool { return op >= opcode.OpLocal0 && op <= opcode.OpLocal7 }
func isArgOpcode(op opcode.Opcode) bool   { return op >= opcode.OpArg0 && op <= opcode.OpArg6 }

func (p *parser) parseIf(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	end, err := p.readPkgLength()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	body, err := p.parseTermList(scope, end)
	if err != nil {
		return nil, err
	}
	node := &interp.ASTNode{Op: opcode.OpIf, Args: []*interp.ASTNode{cond}, Body: body}

	if p.pos < len(p.data) {
		if op, _, n, derr := opcode.Decode(p.data, p.pos); derr == nil && op == opcode.OpElse {
			p.pos += n
			elseEnd, eerr := p.readPkgLength()
			if eerr != nil {
				return nil, eerr
			}
			elseBody, eerr2 := p.parseTermList(scope, elseEnd)
			if eerr2 != nil {
				return nil, eerr2
			}
			node.Else = elseBody
		}
	}
	return node, nil
}

func (p *parser) parseWhile(scope *namespace.Node) (*interp.ASTNode, *amlerr.Error) {
	end, err := p.readPkgLength()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(scope)
	if err != nil {
		return nil, err
	}
	body, err := p.parseTermList(scope, end)
	if err != nil {
		return nil, err
	}
	return &interp.ASTNode{Op: opcode.OpWhile, Args: []*interp.ASTNode{cond}, Body: body}, nil
}

func (p *parser) parseBuffer(scope *namespace.Node, op opcode.Opcode) (*interp.ASTNode, *amlerr.Error) {
	end, err := p.readPkgLength()
	if err != nil {
		return nil, err
	}
	size, serr := p.parseExpr(scope)
	if serr != nil {
		return nil, serr
	}
	raw := append([]byte(nil), p.data[p.pos:end]...)
	p.pos = end
	return &interp.ASTNode{Op: op, Args: []*interp.ASTNode{size}, Const: object.NewBuffer(raw)}, nil
}

func (p *parser) parsePackage(scope *namespace.Node, op opcode.Opcode) (*interp.ASTNode, *amlerr.Error) {
	end, err := p.readPkgLength()
	if err != nil {
		return nil, err
	}
	count, err := p.readByte()
	if err != nil {
		return nil, err
	}
	node := &interp.ASTNode{Op: op}
	for i := 0; i < int(count) && p.pos < end; i++ {
		elem, eerr := p.parseExpr(scope)
		if eerr != nil {
			return nil, eerr
		}
		node.Args = append(node.Args, elem)
	}
	p.pos = end
	return node, nil
}

func (p *parser) skipExternal() *amlerr.Error {
	if _, err := p.readNameString(); err != nil {
		return err
	}
	if _, err := p.readByte(); err != nil { // ObjectType
		return err
	}
	if _, err := p.readByte(); err != nil { // ArgumentCount
		return err
	}
	return nil
}
