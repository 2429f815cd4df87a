// Package object implements the ACPI firmware object system: the
// discriminated Object value described in spec §3, its reference/lifetime
// rules, and the implicit-cast engine used by Store and friends (spec
// §4.1). It has no dependency on the namespace, interpreter or region
// packages — kind-specific data owned by those layers (FieldUnit
// descriptors, Method bytecode, Region handlers, ...) is attached through
// the opaque Extra field so this package stays foundational.
package object

import (
	"sync/atomic"

	"acpicore/amlerr"
)

// Kind discriminates the variant an Object currently holds (spec §3).
type Kind uint8

// The object kinds defined by the ACPI object model.
const (
	KindUninitialized Kind = iota
	KindInteger
	KindString
	KindBuffer
	KindPackage
	KindFieldUnit
	KindBufferField
	KindOperationRegion
	KindDevice
	KindProcessor
	KindPowerResource
	KindThermalZone
	KindMutex
	KindEvent
	KindMethod
	KindReference
	KindDebug
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "Integer"
	case KindString:
		return "String"
	case KindBuffer:
		return "Buffer"
	case KindPackage:
		return "Package"
	case KindFieldUnit:
		return "FieldUnit"
	case KindBufferField:
		return "BufferField"
	case KindOperationRegion:
		return "OperationRegion"
	case KindDevice:
		return "Device"
	case KindProcessor:
		return "Processor"
	case KindPowerResource:
		return "PowerResource"
	case KindThermalZone:
		return "ThermalZone"
	case KindMutex:
		return "Mutex"
	case KindEvent:
		return "Event"
	case KindMethod:
		return "Method"
	case KindReference:
		return "Reference"
	case KindDebug:
		return "Debug"
	default:
		return "Uninitialized"
	}
}

// Object is a reference-counted, tagged value. It is treated as immutable
// after construction — "mutation" (Store, CopyObject, Increment-through-
// reference) produces a new Object and swaps it into the holding Cell,
// rather than editing fields in place. The exceptions are writes through an
// Index reference (SetElement on a Package, SetByteAt on a Buffer) and
// BufferField writes, which edit the backing store in place. This keeps concurrent readers
// that captured an older *Object safe without per-object locking, matching
// the data model invariant that a node's object may be replaced safely even
// while other code holds references into it (spec §3).
type Object struct {
	kind     Kind
	refcount int32

	integer uint64
	bytes   []byte    // backing store for String/Buffer
	pkg     []*Object // owned elements of a Package
	ref     *Reference

	// Extra carries kind-specific data owned by a higher-level package
	// (region.FieldUnit, region.Region, interp.MethodBody, Device/
	// Processor/PowerResource/ThermalZone metadata, Mutex sync level,
	// Event semaphore state).
	Extra interface{}
}

// New allocates an Object of the given kind with refcount 1. Most callers
// should use the Kind-specific constructors below instead.
func New(kind Kind) *Object {
	return &Object{kind: kind, refcount: 1}
}

// Kind returns the object's current variant.
func (o *Object) Kind() Kind { return o.kind }

// NewUninitialized returns the Uninitialized singleton-shaped Object used for
// forward-declared names and unset locals/args.
func NewUninitialized() *Object { return New(KindUninitialized) }

// NewDebug returns the Debug pseudo-object; stores to it are no-ops that log
// the written value (spec §4.1 constant-store rule).
func NewDebug() *Object { return New(KindDebug) }

// NewInteger returns an Integer object holding v.
func NewInteger(v uint64) *Object {
	o := New(KindInteger)
	o.integer = v
	return o
}

// NewString returns a String object whose content is an exact copy of s's
// bytes (no implicit NUL terminator is stored; NulTerminated() appends one
// for external consumers per spec §3).
func NewString(s string) *Object {
	o := New(KindString)
	o.bytes = append([]byte(nil), s...)
	return o
}

// NewBuffer returns a Buffer object whose content is an exact copy of b.
func NewBuffer(b []byte) *Object {
	o := New(KindBuffer)
	o.bytes = append([]byte(nil), b...)
	return o
}

// NewPackage returns a Package object that takes ownership of elems (each
// element's refcount is retained once on behalf of the package).
func NewPackage(elems []*Object) *Object {
	o := New(KindPackage)
	o.pkg = append([]*Object(nil), elems...)
	for _, e := range o.pkg {
		Retain(e)
	}
	return o
}

// Integer returns the Integer payload; callers must check Kind() == KindInteger.
func (o *Object) Integer() uint64 { return o.integer }

// Bytes returns the String/Buffer backing bytes. The returned slice must not
// be mutated by the caller.
func (o *Object) Bytes() []byte { return o.bytes }

// Text returns the String payload as a Go string.
func (o *Object) Text() string { return string(o.bytes) }

// NulTerminated returns the String payload with a trailing NUL byte appended,
// for handing to NUL-terminated-string consumers outside the core.
func (o *Object) NulTerminated() []byte {
	return append(append([]byte(nil), o.bytes...), 0)
}

// Elements returns the Package payload. The returned slice and its elements
// must not be mutated by the caller.
func (o *Object) Elements() []*Object { return o.pkg }

// Element returns the i'th Package element.
func (o *Object) Element(i int) *Object { return o.pkg[i] }

// SetElement replaces the i'th Package element with v, retaining v and
// releasing the element it displaces — used by the Index SuperName Cell
// adapter so a Store through an Index reference mutates the Package in
// place the way AML expects.
func (o *Object) SetElement(i int, v *Object) {
	old := o.pkg[i]
	o.pkg[i] = v
	Retain(v)
	Release(old)
}

// ByteAt returns the i'th byte of a String/Buffer payload as an Integer
// value, for the Buffer form of Index.
func (o *Object) ByteAt(i int) uint64 { return uint64(o.bytes[i]) }

// SetByteAt overwrites the i'th byte of a String/Buffer payload in place.
// Like SetElement for Packages, it mutates the backing store directly
// rather than swapping the Object, matching AML's "Index into a Buffer yields a
// writable BufferField-like slot" semantics (spec §3, Reference/index
// reference).
func (o *Object) SetByteAt(i int, v byte) { o.bytes[i] = v }

// Reference returns the Reference payload; callers must check
// Kind() == KindReference.
func (o *Object) Reference() *Reference { return o.ref }

// Retain increments the refcount and returns o for chaining.
func Retain(o *Object) *Object {
	if o != nil {
		atomic.AddInt32(&o.refcount, 1)
	}
	return o
}

// Release decrements the refcount. It returns the refcount after the
// decrement; when the count of a Package reaches zero, Release also
// releases each of its elements. A Reference's target is not released.
func Release(o *Object) int32 {
	if o == nil {
		return 0
	}
	n := atomic.AddInt32(&o.refcount, -1)
	if n == 0 && o.kind == KindPackage {
		for _, e := range o.pkg {
			Release(e)
		}
	}
	return n
}

// RefCount returns the current refcount, for tests and diagnostics.
func (o *Object) RefCount() int32 { return atomic.LoadInt32(&o.refcount) }

// Clone performs the AML "copy" semantics used by CopyObject and by Store's
// implicit src-copy step: value-typed objects (Integer/String/Buffer/
// Package) are deep-copied, while a Reference is copied by target identity
// (the clone points at the same Cell, not a fresh one).
func Clone(o *Object) *Object {
	if o == nil {
		return nil
	}

	switch o.kind {
	case KindInteger:
		return NewInteger(o.integer)
	case KindString:
		c := New(KindString)
		c.bytes = append([]byte(nil), o.bytes...)
		return c
	case KindBuffer:
		c := New(KindBuffer)
		c.bytes = append([]byte(nil), o.bytes...)
		return c
	case KindPackage:
		elems := make([]*Object, len(o.pkg))
		for i, e := range o.pkg {
			elems[i] = Clone(e)
		}
		return NewPackage(elems)
	case KindReference:
		c := New(KindReference)
		c.ref = o.ref
		return c
	default:
		// Device/Method/Mutex/Event/Region/FieldUnit/... are not
		// value-copyable; AML never legally attempts to clone them and
		// CopyObject on such a source just rebinds the same identity.
		return o
	}
}

// TypeMismatch builds a Kind-aware error for coercion failures.
func typeMismatch(module, msg string) *amlerr.Error {
	return amlerr.New(amlerr.KindTypeMismatch, module, msg)
}
