// Package region implements the Operation Region subsystem: address spaces,
// field-unit descriptors, and the bit-level read/modify/write decomposition
// that turns a FieldUnit access into access-width-sized reads/writes against
// a host-registered Handler (spec §4.5). It is grounded on the teacher's
// device/acpi/aml region/field entity pair, generalized from the teacher's
// fixed memory/IO-only space list into the full ACPI address-space set.
package region

import (
	"acpicore/amlerr"
	"acpicore/object"
	"acpicore/syncutil"
)

// AddressSpace identifies the register space an Operation Region windows
// into (spec §4.5).
type AddressSpace uint8

// The ACPI-standard address spaces.
const (
	AddressSpaceSystemMemory AddressSpace = iota
	AddressSpaceSystemIO
	AddressSpacePCIConfig
	AddressSpaceEmbeddedControl
	AddressSpaceSMBus
	AddressSpaceSystemCMOS
	AddressSpacePCIBarTarget
	AddressSpaceIPMI
	AddressSpaceGeneralPurposeIO
	AddressSpaceGenericSerialBus
	AddressSpacePCC
	AddressSpacePRM
	AddressSpaceFFixedHW AddressSpace = 0x7f
)

// UpdateRule selects how a field write folds in the bits outside its own
// range when the field does not cover a whole access-width unit.
type UpdateRule uint8

const (
	UpdateRulePreserve UpdateRule = iota
	UpdateRuleWriteAsOnes
	UpdateRuleWriteAsZeros
)

// LockRule selects whether an access must hold the ACPI global lock.
type LockRule uint8

const (
	LockRuleNoLock LockRule = iota
	LockRuleLock
)

// AccessType selects how a region's raw bytes are marshaled to/from an
// Object: as a plain Integer/Buffer (the default) or as the small structured
// buffer BufferAcc fields use.
type AccessType uint8

const (
	AccessTypeAny AccessType = iota
	AccessTypeByte
	AccessTypeWord
	AccessTypeDWord
	AccessTypeQWord
	AccessTypeBuffer
	AccessTypeBufferAcc
)

// Region is one AML-declared OperationRegion: a named window into Space
// starting at Offset for Length bytes, with the host handler that actually
// performs the hardware access.
type Region struct {
	Space   AddressSpace
	Offset  uint64
	Length  uint64
	Handler Handler
}

// Handler is implemented by the host/client collaborator that actually
// performs accesses against a Region's address space (spec §4.5,
// "External handlers ... registered per (node, address-space)").
type Handler interface {
	// Attach is called once when the handler is installed against a
	// Region that is already declared; Detach on uninstall.
	Attach(r *Region) error
	Detach(r *Region) error

	// Read/Write perform one access-width-sized transfer at the given
	// bit offset from the start of the region, returning/accepting the
	// raw (little-endian) value.
	Read(r *Region, bitOffset uint64, bitWidth uint8) (uint64, error)
	Write(r *Region, bitOffset uint64, bitWidth uint8, value uint64) error
}

// FieldUnit describes one named bit-range view into a Region (spec §3, "Field
// Unit"; §4.5). AccessWidth is the access granularity in bits (8/16/32/64)
// the decomposition reads/writes the underlying region at.
type FieldUnit struct {
	Region      *Region
	BitOffset   uint64
	BitWidth    uint64
	AccessWidth uint8
	Lock        LockRule
	Update      UpdateRule
	Access      AccessType
}

// Read performs the field's full decomposed read: one or more access-width
// reads against fu.Region.Handler, assembled into a single value masked down
// to BitWidth bits. When fu.Lock is LockRuleLock, gl is acquired around the
// whole access.
func Read(fu *FieldUnit, gl *syncutil.GlobalLock) (*object.Object, *amlerr.Error) {
	if fu.Lock == LockRuleLock && gl != nil {
		if err := gl.Acquire(); err != nil {
			return nil, amlerr.New(amlerr.KindHardwareTimeout, "region", "Read: global lock: "+err.Error())
		}
		defer gl.Release()
	}

	if fu.Access == AccessTypeBufferAcc {
		return readBufferAcc(fu)
	}

	var result uint64
	var shift uint
	remaining := fu.BitWidth
	bitPos := fu.BitOffset

	for remaining > 0 {
		width := uint8(fu.AccessWidth)
		if width == 0 {
			width = 8
		}
		raw, err := fu.Region.Handler.Read(fu.Region, bitPos, width)
		if err != nil {
			return nil, amlerr.New(amlerr.KindHardwareTimeout, "region", "Read: handler error: "+err.Error())
		}

		take := uint64(width)
		if take > remaining {
			take = remaining
		}
		mask := uint64(1)<<take - 1
		result |= (raw & mask) << shift

		shift += uint(take)
		bitPos += uint64(width)
		remaining -= take
	}

	if fu.BitWidth <= 64 {
		return object.NewInteger(result), nil
	}
	return object.NewBuffer(uint64ToBytes(result, int((fu.BitWidth+7)/8))), nil
}

// Write performs the field's full decomposed write. When width doesn't
// evenly divide BitWidth, the final partial access is completed per
// fu.Update: Preserve reads the destination first and folds in its
// out-of-range bits, WriteAsOnes/WriteAsZeros synthesize them instead of
// reading (spec §4.5).
func Write(fu *FieldUnit, value *object.Object, width object.IntWidth, gl *syncutil.GlobalLock) *amlerr.Error {
	if fu.Lock == LockRuleLock && gl != nil {
		if err := gl.Acquire(); err != nil {
			return amlerr.New(amlerr.KindHardwareTimeout, "region", "Write: global lock: "+err.Error())
		}
		defer gl.Release()
	}

	if fu.Access == AccessTypeBufferAcc {
		return writeBufferAcc(fu, value)
	}

	v, err := object.CoerceToInteger(value, width)
	if err != nil {
		return err
	}

	remaining := fu.BitWidth
	bitPos := fu.BitOffset
	var shift uint

	for remaining > 0 {
		accWidth := uint8(fu.AccessWidth)
		if accWidth == 0 {
			accWidth = 8
		}
		take := uint64(accWidth)
		if take > remaining {
			take = remaining
		}
		mask := uint64(1)<<take - 1
		chunk := (v >> shift) & mask

		var out uint64
		if take == uint64(accWidth) {
			out = chunk
		} else {
			switch fu.Update {
			case UpdateRuleWriteAsOnes:
				out = (^uint64(0)) & (uint64(1)<<accWidth - 1)
				out = (out &^ mask) | chunk
			case UpdateRuleWriteAsZeros:
				out = chunk
			default: // Preserve
				cur, rerr := fu.Region.Handler.Read(fu.Region, bitPos, accWidth)
				if rerr != nil {
					return amlerr.New(amlerr.KindHardwareTimeout, "region", "Write: preserve read: "+rerr.Error())
				}
				out = (cur &^ mask) | chunk
			}
		}

		if werr := fu.Region.Handler.Write(fu.Region, bitPos, accWidth, out); werr != nil {
			return amlerr.New(amlerr.KindHardwareTimeout, "region", "Write: handler error: "+werr.Error())
		}

		shift += uint(take)
		bitPos += uint64(accWidth)
		remaining -= take
	}

	return nil
}

func readBufferAcc(fu *FieldUnit) (*object.Object, *amlerr.Error) {
	raw, err := fu.Region.Handler.Read(fu.Region, fu.BitOffset, 8)
	if err != nil {
		return nil, amlerr.New(amlerr.KindHardwareTimeout, "region", "readBufferAcc: "+err.Error())
	}
	n := (fu.BitWidth + 7) / 8
	return object.NewBuffer(uint64ToBytes(raw, int(n))), nil
}

func writeBufferAcc(fu *FieldUnit, value *object.Object) *amlerr.Error {
	bytes := value.Bytes()
	var v uint64
	for i := len(bytes) - 1; i >= 0; i-- {
		v = v<<8 | uint64(bytes[i])
	}
	if err := fu.Region.Handler.Write(fu.Region, fu.BitOffset, 8, v); err != nil {
		return amlerr.New(amlerr.KindHardwareTimeout, "region", "writeBufferAcc: "+err.Error())
	}
	return nil
}

func uint64ToBytes(v uint64, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
