package loader

import (
	"acpicore/amlerr"
	"acpicore/interp"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/opcode"
	"acpicore/syncutil"
)

// resolveScope walks name's leading "\"/"^" prefixes and all but its last
// NameSeg, creating intermediate scope nodes as needed (AML tables
// routinely declare names several segments below the current scope without
// first opening each intervening Scope/Device), and returns the immediate
// parent node plus the final segment to Install under it.
func (p *parser) resolveScope(scope *namespace.Node, name string) (*namespace.Node, string, *amlerr.Error) {
	cur := scope
	body := name

	if len(body) > 0 && body[0] == '\\' {
		cur = p.ns.Root()
		body = body[1:]
	} else {
		for len(body) > 0 && body[0] == '^' {
			if cur.Parent() == nil {
				return nil, "", amlerr.New(amlerr.KindNotFound, "loader", "resolveScope: ^ prefix above root")
			}
			cur = cur.Parent()
			body = body[1:]
		}
	}

	segs := splitSegs(body)
	if len(segs) == 0 {
		return nil, "", amlerr.New(amlerr.KindBadBytecode, "loader", "resolveScope: empty name")
	}

	for _, seg := range segs[:len(segs)-1] {
		child, err := p.ns.Install(cur, seg, object.NewUninitialized())
		if err != nil && err.Kind != amlerr.KindAlreadyExists {
			return nil, "", err
		}
		if child == nil {
			var rerr *amlerr.Error
			child, rerr = p.ns.Resolve(cur, seg)
			if rerr != nil {
				return nil, "", rerr
			}
		}
		cur = child
	}
	return cur, segs[len(segs)-1], nil
}

func splitSegs(body string) []string {
	if body == "" {
		return nil
	}
	clean := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != '.' {
			clean = append(clean, body[i])
		}
	}
	body = string(clean)
	segs := make([]string, 0, len(body)/4+1)
	start := 0
	for i := 0; i+4 <= len(body); i += 4 {
		segs = append(segs, body[start+i:i+4])
	}
	if len(segs) == 0 {
		segs = append(segs, body)
	}
	return segs
}

// parseNameDecl parses DefName := NameOp NameString DataRefObject, installing
// the evaluated literal directly (spec §3, Name()).
func (p *parser) parseNameDecl(scope *namespace.Node) *amlerr.Error {
	name, err := p.readNameString()
	if err != nil {
		return err
	}
	valNode, err := p.parseExpr(scope)
	if err != nil {
		return err
	}
	obj, oerr := constFold(valNode)
	if oerr != nil {
		return oerr
	}
	parent, seg, err := p.resolveScope(scope, name)
	if err != nil {
		return err
	}
	_, err = p.ns.Install(parent, seg, obj)
	return err
}

// constFold evaluates a TermArg that the loader's structural pass already
// knows must be a load-time constant (Name()'s initializer) without
// involving the interpreter — Name() initializers are restricted to
// DataObjects (literals, Buffers, Packages of literals), never expressions
// that read Locals/Args or invoke Methods.
func constFold(node *interp.ASTNode) (*object.Object, *amlerr.Error) {
	switch node.Op {
	case opcode.OpBytePrefix, opcode.OpWordPrefix, opcode.OpDwordPrefix, opcode.OpQwordPrefix, opcode.OpStringPrefix:
		return node.Const, nil
	case opcode.OpZero:
		return object.NewInteger(0), nil
	case opcode.OpOne:
		return object.NewInteger(1), nil
	case opcode.OpOnes:
		return object.NewInteger(^uint64(0)), nil
	case opcode.OpBuffer:
		return node.Const, nil
	case opcode.OpPackage, opcode.OpVarPackage:
		elems := make([]*object.Object, len(node.Args))
		for i, a := range node.Args {
			e, err := constFold(a)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return object.NewPackage(elems), nil
	default:
		return nil, amlerr.New(amlerr.KindBadBytecode, "loader", "constFold: unsupported Name() initializer")
	}
}

// parseAliasDecl parses DefAlias := AliasOp NameString NameString, installing
// the target's object under the alias's location (AML aliases share the
// underlying Object rather than wrapping it in a Reference).
func (p *parser) parseAliasDecl(scope *namespace.Node) *amlerr.Error {
	target, err := p.readNameString()
	if err != nil {
		return err
	}
	alias, err := p.readNameString()
	if err != nil {
		return err
	}
	targetNode, rerr := p.ns.Resolve(scope, target)
	if rerr != nil {
		return rerr
	}
	parent, seg, serr := p.resolveScope(scope, alias)
	if serr != nil {
		return serr
	}
	_, ierr := p.ns.Install(parent, seg, targetNode.Get())
	return ierr
}

// parseNestedScope handles DefScope/DefDevice/DefThermalZone, which share
// the same PkgLength-NameString-TermList shape and differ only in whether a
// new namespace node is created (Device/ThermalZone) or an existing scope is
// reopened (Scope).
func (p *parser) parseNestedScope(scope *namespace.Node, op opcode.Opcode) *amlerr.Error {
	end, err := p.readPkgLength()
	if err != nil {
		return err
	}
	name, err := p.readNameString()
	if err != nil {
		return err
	}

	var node *namespace.Node
	if op == opcode.OpScope {
		node, err = p.ns.Resolve(scope, name)
		if err != nil {
			parent, seg, serr := p.resolveScope(scope, name)
			if serr != nil {
				return serr
			}
			node, err = p.ns.Install(parent, seg, object.New(object.KindDevice))
			if err != nil {
				return err
			}
		}
	} else {
		parent, seg, serr := p.resolveScope(scope, name)
		if serr != nil {
			return serr
		}
		kind := object.KindDevice
		if op == opcode.OpThermalZone {
			kind = object.KindThermalZone
		}
		node, err = p.ns.Install(parent, seg, object.New(kind))
		if err != nil {
			return err
		}
	}

	_, terr := p.parseTermList(node, end)
	return terr
}

// ProcessorInfo is the Extra payload installed on KindProcessor objects.
type ProcessorInfo struct {
	ProcID    uint8
	PBlockAddr uint32
	PBlockLen  uint8
}

func (p *parser) parseProcessorDecl(scope *namespace.Node) *amlerr.Error {
	end, err := p.readPkgLength()
	if err != nil {
		return err
	}
	name, err := p.readNameString()
	if err != nil {
		return err
	}
	procID, err := p.readByte()
	if err != nil {
		return err
	}
	pblockAddr, err := p.readUint(4)
	if err != nil {
		return err
	}
	pblockLen, err := p.readByte()
	if err != nil {
		return err
	}

	obj := object.New(object.KindProcessor)
	obj.Extra = &ProcessorInfo{ProcID: procID, PBlockAddr: uint32(pblockAddr), PBlockLen: pblockLen}

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	node, ierr := p.ns.Install(parent, seg, obj)
	if ierr != nil {
		return ierr
	}

	_, terr := p.parseTermList(node, end)
	return terr
}

// PowerResourceInfo is the Extra payload installed on KindPowerResource
// objects.
type PowerResourceInfo struct {
	SystemLevel uint8
	ResourceOrder uint16
}

func (p *parser) parsePowerResDecl(scope *namespace.Node) *amlerr.Error {
	end, err := p.readPkgLength()
	if err != nil {
		return err
	}
	name, err := p.readNameString()
	if err != nil {
		return err
	}
	level, err := p.readByte()
	if err != nil {
		return err
	}
	order, err := p.readUint(2)
	if err != nil {
		return err
	}

	obj := object.New(object.KindPowerResource)
	obj.Extra = &PowerResourceInfo{SystemLevel: level, ResourceOrder: uint16(order)}

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	node, ierr := p.ns.Install(parent, seg, obj)
	if ierr != nil {
		return ierr
	}

	_, terr := p.parseTermList(node, end)
	return terr
}

// parseMethodDecl parses DefMethod := MethodOp PkgLength NameString
// MethodFlags TermList, installing a Method object whose Extra is an
// interp.MethodBody (spec §4.4's per-method parsed AST + Serialized mutex).
func (p *parser) parseMethodDecl(scope *namespace.Node) *amlerr.Error {
	end, err := p.readPkgLength()
	if err != nil {
		return err
	}
	name, err := p.readNameString()
	if err != nil {
		return err
	}
	flags, err := p.readByte()
	if err != nil {
		return err
	}
	argCount := int(flags & 0x7)
	serialized := flags&0x8 != 0
	syncLevel := int((flags >> 4) & 0xf)

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	methodNode, ierr := p.ns.Install(parent, seg, object.NewUninitialized())
	if ierr != nil {
		return ierr
	}

	body, terr := p.parseTermList(methodNode, end)
	if terr != nil {
		return terr
	}

	mb := interp.NewMethodBody(p.tableName, name, body, argCount, serialized, syncLevel)
	obj := object.New(object.KindMethod)
	obj.Extra = mb
	methodNode.Set(obj)
	return nil
}

func (p *parser) parseMutexDecl(scope *namespace.Node) *amlerr.Error {
	name, err := p.readNameString()
	if err != nil {
		return err
	}
	syncLevel, err := p.readByte()
	if err != nil {
		return err
	}

	obj := object.New(object.KindMutex)
	obj.Extra = syncutil.NewRecursiveMutex()
	_ = syncLevel // AML's declared SyncLevel orders acquisition, not yet enforced across distinct mutexes

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	_, ierr := p.ns.Install(parent, seg, obj)
	return ierr
}

func (p *parser) parseEventDecl(scope *namespace.Node) *amlerr.Error {
	name, err := p.readNameString()
	if err != nil {
		return err
	}
	obj := object.New(object.KindEvent)
	obj.Extra = object.NewEventSemaphore()

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	_, ierr := p.ns.Install(parent, seg, obj)
	return ierr
}
