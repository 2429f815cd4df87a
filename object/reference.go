package object

// Cell abstracts a place that can hold an *Object: a namespace node, a
// method-frame local/argument slot, or an element inside a Package/Buffer
// reached via Index. Every Reference resolves through a Cell so that
// DerefOf, CondRefOf, and write-through-reference (Increment/Decrement) all
// share one mechanism instead of special-casing each referent kind.
type Cell interface {
	Get() *Object
	Set(*Object)
}

// RefKind discriminates the four reference flavors described in spec §3.
type RefKind uint8

// The supported reference kinds.
const (
	RefKindNamed RefKind = iota
	RefKindLocal
	RefKindArg
	RefKindIndex
	RefKindRefOf
)

// Reference is the payload of a KindReference Object.
type Reference struct {
	Kind RefKind
	Cell Cell

	// Name records the original AML name for named references, used only
	// for diagnostics/stack traces.
	Name string
}

// NewReference returns a Reference-kind Object pointing at cell.
func NewReference(kind RefKind, cell Cell, name string) *Object {
	o := New(KindReference)
	o.ref = &Reference{Kind: kind, Cell: cell, Name: name}
	return o
}

// DefaultMaxDerefDepth bounds reference-chain traversal (spec §4.1,
// "Multilevel references") so that an adversarial cyclic chain cannot hang
// the interpreter.
const DefaultMaxDerefDepth = 64

// DerefOf follows a (possibly multilevel) reference chain starting at o and
// returns the ultimate non-reference Object, iteratively (never recursively)
// so that pathological chains cost stack space proportional to zero, not to
// chain depth. If o is not itself a reference, it is returned unchanged. A
// chain longer than maxDepth (<=0 selects DefaultMaxDerefDepth) is reported
// as a type-mismatch error rather than hung on forever.
func DerefOf(o *Object, maxDepth int) (*Object, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDerefDepth
	}

	cur := o
	for i := 0; i < maxDepth; i++ {
		if cur == nil || cur.kind != KindReference {
			return cur, nil
		}
		cur = cur.ref.Cell.Get()
	}

	return nil, typeMismatch("object", "DerefOf: reference chain exceeds maximum depth")
}
