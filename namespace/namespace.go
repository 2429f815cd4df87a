// Package namespace implements the hierarchical tree of named firmware
// objects described in spec §4.2, adapted from the teacher's
// device/acpi/aml scope/entity machinery (scope.go's scopeFind/
// scopeFindRelative/scopeResolvePath and entity.go's ScopeEntity). Every
// named AML object — Device, Method, Mutex, Integer/String/Buffer constant,
// predefined scope — becomes a Node whose Object lives behind the Cell
// interface so the object package's Reference machinery can target it
// directly.
package namespace

import (
	"strings"
	"sync"

	"acpicore/amlerr"
	"acpicore/object"
)

// segmentLen is the fixed width of one AML NameSeg.
const segmentLen = 4

// Node is one entry in the namespace tree. A Node is itself a Cell: storing
// through it swaps the held Object rather than mutating it in place, so
// References captured before a Store stay valid (spec §3's
// replace-don't-mutate invariant).
type Node struct {
	mu sync.RWMutex

	name   string
	parent *Node
	kids   map[string]*Node

	obj *object.Object
}

// Get implements object.Cell.
func (n *Node) Get() *object.Object {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.obj
}

// Set implements object.Cell.
func (n *Node) Set(o *object.Object) {
	n.mu.Lock()
	old := n.obj
	n.obj = o
	n.mu.Unlock()
	object.Retain(o)
	object.Release(old)
}

// Name returns the node's single 4-character segment name ("" for the root).
func (n *Node) Name() string { return n.name }

// Parent returns the node's parent, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a snapshot slice of the node's direct children.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, 0, len(n.kids))
	for _, k := range n.kids {
		out = append(out, k)
	}
	return out
}

// AbsolutePath renders the node's full dotted path from the root, e.g.
// "\_SB_.PCI0.GFX0".
func (n *Node) AbsolutePath() string {
	if n.parent == nil {
		return `\`
	}
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append([]string{cur.name}, segs...)
	}
	return `\` + strings.Join(segs, ".")
}

// Namespace is the root-anchored tree of Nodes.
type Namespace struct {
	root *Node
}

// New returns an empty Namespace containing only the root scope.
func New() *Namespace {
	root := &Node{kids: make(map[string]*Node)}
	return &Namespace{root: root}
}

// Root returns the root scope node ("\").
func (ns *Namespace) Root() *Node { return ns.root }

// Install creates (or returns the existing) child of scope named by the
// single NameSeg seg, installing obj as its initial value. Installing over
// an already-populated node returns AlreadyExists (spec §4.2's predefined
// default scopes are expected to pre-exist and must not be recreated).
func (ns *Namespace) Install(scope *Node, seg string, obj *object.Object) (*Node, *amlerr.Error) {
	if len(seg) != segmentLen {
		return nil, amlerr.New(amlerr.KindBadBytecode, "namespace", "Install: name segment must be 4 characters")
	}

	scope.mu.Lock()
	defer scope.mu.Unlock()

	if existing, ok := scope.kids[seg]; ok {
		if existing.obj != nil && existing.obj.Kind() != object.KindUninitialized {
			return nil, amlerr.New(amlerr.KindAlreadyExists, "namespace", "Install: "+seg+" already populated")
		}
		existing.Set(obj)
		return existing, nil
	}

	child := &Node{name: seg, parent: scope, kids: make(map[string]*Node)}
	child.obj = obj
	object.Retain(obj)
	scope.kids[seg] = child
	return child, nil
}

// RemoveSubtree detaches node from its parent's child map, releasing every
// object under it. acpi.Runtime.UnrefTable does not call it; a host that
// knows a subtree is safe to drop calls it directly.
func (ns *Namespace) RemoveSubtree(node *Node) {
	if node.parent != nil {
		node.parent.mu.Lock()
		delete(node.parent.kids, node.name)
		node.parent.mu.Unlock()
	}
	releaseSubtree(node)
}

func releaseSubtree(n *Node) {
	n.mu.Lock()
	kids := make([]*Node, 0, len(n.kids))
	for _, k := range n.kids {
		kids = append(kids, k)
	}
	obj := n.obj
	n.obj = nil
	n.mu.Unlock()

	for _, k := range kids {
		releaseSubtree(k)
	}
	object.Release(obj)
}

// splitPath splits a dotted multi-segment NameString body into its NameSeg
// components, tolerating both "." and no separator between 4-char chunks.
func splitPath(body string) []string {
	if body == "" {
		return nil
	}
	if strings.Contains(body, ".") {
		return strings.Split(body, ".")
	}
	segs := make([]string, 0, len(body)/segmentLen)
	for i := 0; i+segmentLen <= len(body); i += segmentLen {
		segs = append(segs, body[i:i+segmentLen])
	}
	return segs
}

// Resolve looks up name (an absolute "\A.B.C", parent-prefixed "^^A.B", or
// relative "A.B.C"/"A" NameString, as decoded by the opcode layer) starting
// the search from scope, following the AML scoping rules of spec §4.2:
//
//   - a leading "\" anchors the search at the namespace root;
//   - each leading "^" moves the starting scope up one parent before the
//     rest of the path is walked;
//   - a multi-segment relative path is resolved exactly as written,
//     starting at scope;
//   - a single-segment relative name is searched for starting at scope and
//     walking up through ancestors until found (or the root is exhausted).
func (ns *Namespace) Resolve(scope *Node, name string) (*Node, *amlerr.Error) {
	if name == "" {
		return nil, amlerr.New(amlerr.KindBadBytecode, "namespace", "Resolve: empty name")
	}

	cur := scope
	body := name

	if strings.HasPrefix(body, `\`) {
		cur = ns.root
		body = body[1:]
		return ns.findExact(cur, splitPath(body))
	}

	for strings.HasPrefix(body, "^") {
		if cur.parent == nil {
			return nil, amlerr.New(amlerr.KindNotFound, "namespace", "Resolve: ^ prefix above root")
		}
		cur = cur.parent
		body = body[1:]
	}

	segs := splitPath(body)
	if len(segs) > 1 {
		return ns.findExact(cur, segs)
	}

	return ns.findUpward(cur, segs[0])
}

func (ns *Namespace) findExact(start *Node, segs []string) (*Node, *amlerr.Error) {
	cur := start
	for _, seg := range segs {
		cur.mu.RLock()
		next, ok := cur.kids[seg]
		cur.mu.RUnlock()
		if !ok {
			return nil, amlerr.New(amlerr.KindNotFound, "namespace", "Resolve: "+seg+" not found")
		}
		cur = next
	}
	return cur, nil
}

func (ns *Namespace) findUpward(start *Node, seg string) (*Node, *amlerr.Error) {
	for cur := start; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		next, ok := cur.kids[seg]
		cur.mu.RUnlock()
		if ok {
			return next, nil
		}
	}
	return nil, amlerr.New(amlerr.KindNotFound, "namespace", "Resolve: "+seg+" not found in any enclosing scope")
}

// defaultScopeNames are the predefined root scopes every namespace carries
// before any table is loaded (teacher's defaultACPIScopes in vm.go).
var defaultScopeNames = []string{"_GPE", "_PR_", "_SB_", "_SI_", "_TZ_"}

// InstallDefaultScopes populates the five predefined ACPI root scopes as
// empty Device-kind nodes, matching the teacher's NewVM bootstrap.
func (ns *Namespace) InstallDefaultScopes() {
	for _, name := range defaultScopeNames {
		_, _ = ns.Install(ns.root, name, object.New(object.KindDevice))
	}
}
