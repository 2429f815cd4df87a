package loader

import (
	"acpicore/amlerr"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/opcode"
	"acpicore/region"
)

// parseOpRegionDecl parses DefOpRegion := OpRegionOp NameString RegionSpace
// RegionOffset RegionLen, installing a KindOperationRegion object whose Extra
// is a *region.Region (spec §4.5). RegionOffset/RegionLen are TermArgs in the
// grammar but are load-time constants in every table this loader has to
// support, so they are const-folded the same way Name() initializers are.
func (p *parser) parseOpRegionDecl(scope *namespace.Node) *amlerr.Error {
	name, err := p.readNameString()
	if err != nil {
		return err
	}
	space, err := p.readByte()
	if err != nil {
		return err
	}
	offNode, err := p.parseExpr(scope)
	if err != nil {
		return err
	}
	lenNode, err := p.parseExpr(scope)
	if err != nil {
		return err
	}
	offObj, oerr := constFold(offNode)
	if oerr != nil {
		return oerr
	}
	lenObj, lerr := constFold(lenNode)
	if lerr != nil {
		return lerr
	}

	rgn := &region.Region{
		Space:  region.AddressSpace(space),
		Offset: offObj.Integer(),
		Length: lenObj.Integer(),
	}

	obj := object.New(object.KindOperationRegion)
	obj.Extra = rgn

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	_, ierr := p.ns.Install(parent, seg, obj)
	return ierr
}

// parseFieldDecl parses DefField/DefIndexField/DefBankField: a reference to
// an already-declared Region (FieldOp) or Index/Data pair of named fields
// (IndexFieldOp), followed by FieldFlags and a list of NamedField/
// ReservedField entries describing contiguous bit ranges. Each NamedField
// becomes a KindFieldUnit object whose Extra is a *region.FieldUnit sharing
// the named Region.
func (p *parser) parseFieldDecl(scope *namespace.Node, indexed, banked bool) *amlerr.Error {
	end, err := p.readPkgLength()
	if err != nil {
		return err
	}

	var rgn *region.Region
	var bankName string
	var bankValue uint64

	if indexed {
		idxName, ierr := p.readNameString()
		if ierr != nil {
			return ierr
		}
		dataName, derr := p.readNameString()
		if derr != nil {
			return derr
		}
		rgn, err = p.sharedIndexDataRegion(scope, idxName, dataName)
		if err != nil {
			return err
		}
	} else {
		regionName, rerr := p.readNameString()
		if rerr != nil {
			return rerr
		}
		regionNode, nerr := p.ns.Resolve(scope, regionName)
		if nerr != nil {
			return nerr
		}
		var ok bool
		rgn, ok = regionNode.Get().Extra.(*region.Region)
		if !ok {
			return amlerr.New(amlerr.KindTypeMismatch, "loader", "Field: operand is not an OperationRegion")
		}
		if banked {
			bankName, rerr = p.readNameString()
			if rerr != nil {
				return rerr
			}
			bv, berr := p.readByte()
			if berr != nil {
				return berr
			}
			bankValue = uint64(bv)
		}
	}
	_ = bankName
	_ = bankValue

	flags, err := p.readByte()
	if err != nil {
		return err
	}
	access := region.AccessType(flags & 0xf)
	lock := region.LockRuleNoLock
	if flags&0x10 != 0 {
		lock = region.LockRuleLock
	}
	update := region.UpdateRule((flags >> 5) & 0x3)

	accessWidth := accessWidthBits(access)

	bitOffset := uint64(0)
	for p.pos < end {
		tag, terr := p.readByte()
		if terr != nil {
			return terr
		}
		if tag == 0x00 { // ReservedField: NullName marker, skip PkgLength-encoded bit count
			width, werr := p.readFieldPkgLength()
			if werr != nil {
				return werr
			}
			bitOffset += width
			continue
		}
		if tag == 0x01 { // AccessField: reselects AccessType/AccessAttrib, no bits consumed
			newAccess, aerr := p.readByte()
			if aerr != nil {
				return aerr
			}
			if _, aerr := p.readByte(); aerr != nil { // AccessAttrib
				return aerr
			}
			access = region.AccessType(newAccess & 0xf)
			accessWidth = accessWidthBits(access)
			continue
		}

		rest := make([]byte, 3)
		for i := range rest {
			b, berr := p.readByte()
			if berr != nil {
				return berr
			}
			rest[i] = b
		}
		seg := string(append([]byte{tag}, rest...))

		width, werr := p.readFieldPkgLength()
		if werr != nil {
			return werr
		}

		fu := &region.FieldUnit{
			Region:      rgn,
			BitOffset:   bitOffset,
			BitWidth:    width,
			AccessWidth: accessWidth,
			Lock:        lock,
			Update:      update,
			Access:      access,
		}
		obj := object.New(object.KindFieldUnit)
		obj.Extra = fu
		if _, ierr := p.ns.Install(scope, seg, obj); ierr != nil {
			return ierr
		}

		bitOffset += width
	}
	p.pos = end
	return nil
}

// readFieldPkgLength reads a Field entry's bit-width, encoded as a plain
// PkgLength-shaped varint (not a TermArg) per the FieldList grammar.
func (p *parser) readFieldPkgLength() (uint64, *amlerr.Error) {
	width, consumed, err := opcode.DecodePkgLength(p.data, p.pos)
	if err != nil {
		return 0, err
	}
	p.pos += consumed
	return uint64(width), nil
}

func accessWidthBits(a region.AccessType) uint8 {
	switch a {
	case region.AccessTypeByte:
		return 8
	case region.AccessTypeWord:
		return 16
	case region.AccessTypeDWord:
		return 32
	case region.AccessTypeQWord:
		return 64
	default:
		return 8
	}
}

// sharedIndexDataRegion builds a synthetic Region for an IndexField pair: a
// Handler that writes the index value to idxName's FieldUnit before every
// dataName access, matching the ACPI IndexField semantics (spec §4.5
// "Index/Data register pairs").
func (p *parser) sharedIndexDataRegion(scope *namespace.Node, idxName, dataName string) (*region.Region, *amlerr.Error) {
	idxNode, err := p.ns.Resolve(scope, idxName)
	if err != nil {
		return nil, err
	}
	dataNode, err := p.ns.Resolve(scope, dataName)
	if err != nil {
		return nil, err
	}
	idxFU, ok := idxNode.Get().Extra.(*region.FieldUnit)
	if !ok {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "loader", "IndexField: Index operand is not a Field")
	}
	dataFU, ok := dataNode.Get().Extra.(*region.FieldUnit)
	if !ok {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "loader", "IndexField: Data operand is not a Field")
	}
	return &region.Region{
		Space:   dataFU.Region.Space,
		Offset:  0,
		Length:  dataFU.Region.Length,
		Handler: &indexDataHandler{idx: idxFU, data: dataFU},
	}, nil
}

// indexDataHandler implements region.Handler by writing bitOffset/8 to the
// index register before delegating every access to the data register.
type indexDataHandler struct {
	idx  *region.FieldUnit
	data *region.FieldUnit
}

func (h *indexDataHandler) Attach(r *region.Region) error { return nil }
func (h *indexDataHandler) Detach(r *region.Region) error { return nil }

func (h *indexDataHandler) Read(r *region.Region, bitOffset uint64, bitWidth uint8) (uint64, error) {
	if err := h.selectIndex(bitOffset); err != nil {
		return 0, err
	}
	return h.data.Region.Handler.Read(h.data.Region, h.data.BitOffset, bitWidth)
}

func (h *indexDataHandler) Write(r *region.Region, bitOffset uint64, bitWidth uint8, value uint64) error {
	if err := h.selectIndex(bitOffset); err != nil {
		return err
	}
	return h.data.Region.Handler.Write(h.data.Region, h.data.BitOffset, bitWidth, value)
}

func (h *indexDataHandler) selectIndex(bitOffset uint64) error {
	byteIndex := bitOffset / 8
	return h.idx.Region.Handler.Write(h.idx.Region, h.idx.BitOffset, h.idx.AccessWidth, byteIndex)
}

// parseCreateFieldDecl parses the Create*Field family (CreateByteField,
// CreateWordField, CreateDWordField, CreateQWordField, CreateBitField): a
// fixed-width BufferField aliasing a byte/bit range of an existing Buffer
// object, installed as a KindBufferField object whose Extra (an
// object.BufferFieldInfo) identifies the source Buffer's namespace node and
// bit range.
func (p *parser) parseCreateFieldDecl(scope *namespace.Node, op opcode.Opcode) *amlerr.Error {
	srcName, err := p.readNameString()
	if err != nil {
		return err
	}
	srcNode, rerr := p.ns.Resolve(scope, srcName)
	if rerr != nil {
		return rerr
	}

	idxNode, err := p.parseExpr(scope)
	if err != nil {
		return err
	}
	idxObj, ferr := constFold(idxNode)
	if ferr != nil {
		return ferr
	}
	index := idxObj.Integer()

	var width uint64
	switch op {
	case opcode.OpCreateBitField:
		width = 1
	case opcode.OpCreateByteField:
		width, index = 8, index*8
	case opcode.OpCreateWordField:
		width, index = 16, index*8
	case opcode.OpCreateDWordField:
		width, index = 32, index*8
	case opcode.OpCreateQWordField:
		width, index = 64, index*8
	}
	name, err := p.readNameString()
	if err != nil {
		return err
	}

	obj := object.New(object.KindBufferField)
	obj.Extra = &object.BufferFieldInfo{Source: srcNode, BitOffset: index, BitWidth: width}

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	_, ierr := p.ns.Install(parent, seg, obj)
	return ierr
}

// parseGenericCreateField parses CreateField(SourceBuf, BitIndex, NumBits,
// NameString) -- the arbitrary-width counterpart to the fixed-width
// Create*Field family, where both the bit offset and the width are TermArgs
// rather than implied by the opcode.
func (p *parser) parseGenericCreateField(scope *namespace.Node) *amlerr.Error {
	srcName, err := p.readNameString()
	if err != nil {
		return err
	}
	srcNode, rerr := p.ns.Resolve(scope, srcName)
	if rerr != nil {
		return rerr
	}

	bitIdxNode, err := p.parseExpr(scope)
	if err != nil {
		return err
	}
	numBitsNode, err := p.parseExpr(scope)
	if err != nil {
		return err
	}
	bitIdxObj, ferr := constFold(bitIdxNode)
	if ferr != nil {
		return ferr
	}
	numBitsObj, ferr2 := constFold(numBitsNode)
	if ferr2 != nil {
		return ferr2
	}

	name, err := p.readNameString()
	if err != nil {
		return err
	}

	obj := object.New(object.KindBufferField)
	obj.Extra = &object.BufferFieldInfo{
		Source:    srcNode,
		BitOffset: bitIdxObj.Integer(),
		BitWidth:  numBitsObj.Integer(),
	}

	parent, seg, serr := p.resolveScope(scope, name)
	if serr != nil {
		return serr
	}
	_, ierr := p.ns.Install(parent, seg, obj)
	return ierr
}
