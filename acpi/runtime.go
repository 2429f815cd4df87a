// Package acpi is the client API facade a host kernel (or a test harness)
// drives an embedded AML interpreter through (spec §6): lifecycle control,
// handler installation for Notify/GPE/fixed-event/address-space/table
// events, method evaluation, namespace introspection, and the table
// management API. It wires together namespace, interp, loader, region,
// event and hostsvc — none of those packages know about each other or
// about acpi, keeping the dependency graph a strict fan-in onto this
// package, the way the teacher's device/acpi package is the one place that
// wires its aml/table/driver pieces together.
package acpi

import (
	"sync"
	"time"

	"acpicore/amlerr"
	"acpicore/event"
	"acpicore/hostsvc"
	"acpicore/interp"
	"acpicore/kfmt"
	"acpicore/loader"
	"acpicore/namespace"
	"acpicore/object"
	"acpicore/region"
	"acpicore/table"
)

// Runtime is one process-wide ACPI core instance: a namespace, an
// interpreter bound to it, and the event/region wiring a host installs
// handlers against.
type Runtime struct {
	mu sync.Mutex

	ns  *namespace.Namespace
	it  *interp.Interp
	log *kfmt.Logger

	services hostsvc.Services

	notify *event.NotifyDispatcher
	fixed  *event.FixedDispatcher
	gpes   map[string]*event.Block

	addressHandlers map[region.AddressSpace]region.Handler

	interfaces map[string]bool

	tables       map[string][]byte // signature -> raw table bytes (header + AML)
	tableRefs    map[string]int
	tableHandler func(signature string)
}

// Initialize allocates the namespace, seeds the predefined default scopes,
// and constructs the interpreter and event dispatchers bound to services
// (client API, spec §6's "Initialize"). revision selects 32 vs 64-bit AML
// integers (spec §3) and ordinarily comes from the DSDT's SDTHeader.Revision.
func Initialize(services hostsvc.Services, revision uint8, log *kfmt.Logger) *Runtime {
	width := object.IntWidth32
	if revision >= 2 {
		width = object.IntWidth64
	}

	ns := namespace.New()
	ns.InstallDefaultScopes()

	it := interp.New(ns, width, log)

	rt := &Runtime{
		ns:              ns,
		it:              it,
		log:             log,
		services:        services,
		notify:          event.NewNotifyDispatcher(),
		fixed:           event.NewFixedDispatcher(),
		gpes:            make(map[string]*event.Block),
		addressHandlers: make(map[region.AddressSpace]region.Handler),
		interfaces:      make(map[string]bool),
		tables:          make(map[string][]byte),
		tableRefs:       make(map[string]int),
	}
	it.SetNotifier(rt.notify)
	return rt
}

// Shutdown stops the background Notify delivery worker. Tables already
// loaded remain resolvable in the namespace; a fresh Runtime should be
// constructed for a new session rather than reusing a shut-down one.
func (rt *Runtime) Shutdown() {
	rt.notify.Close()
}

// SetLogLevel adjusts the runtime's logging verbosity (client API, spec §6).
func (rt *Runtime) SetLogLevel(level kfmt.Level) {
	if rt.log != nil {
		rt.log.SetLevel(level)
	}
}

// SetLoopTimeout overrides the interpreter's While-loop wall-clock budget
// (client API, spec §6).
func (rt *Runtime) SetLoopTimeout(d time.Duration) {
	rt.it.SetLoopTimeout(d)
}

// InstallNotifyHandler registers h against path, or root-wide when
// path == "" (client API, spec §6).
func (rt *Runtime) InstallNotifyHandler(path string, h event.NotifyHandler) {
	rt.notify.InstallHandler(path, h)
}

// InstallAddressSpaceHandler registers the handler a declared
// OperationRegion in space should use. Any FieldUnit whose Region.Space
// matches space, across every table loaded so far or loaded later, is
// attached to h (client API, spec §6).
func (rt *Runtime) InstallAddressSpaceHandler(space region.AddressSpace, h region.Handler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.addressHandlers[space] = h
	rt.attachRegionsLocked(rt.ns.Root(), space, h)
}

func (rt *Runtime) attachRegionsLocked(n *namespace.Node, space region.AddressSpace, h region.Handler) {
	if obj := n.Get(); obj != nil && obj.Kind() == object.KindOperationRegion {
		if rgn, ok := obj.Extra.(*region.Region); ok && rgn.Space == space {
			rgn.Handler = h
			_ = h.Attach(rgn)
		}
	}
	for _, c := range n.Children() {
		rt.attachRegionsLocked(c, space, h)
	}
}

// InstallGPEHandler registers a native handler for gpeNumber within
// blockName, overriding the AML `_Lxx`/`_Exx` method for that GPE (client
// API, spec §6).
func (rt *Runtime) InstallGPEHandler(blockName string, gpeNumber int, h event.Handler) *amlerr.Error {
	rt.mu.Lock()
	b, ok := rt.gpes[blockName]
	rt.mu.Unlock()
	if !ok {
		return amlerr.New(amlerr.KindNotFound, "acpi", "InstallGPEHandler: unknown GPE block "+blockName)
	}
	return b.SetHandler(gpeNumber, h)
}

// RegisterGPEBlock declares a new GPE block and registers gpeCount GPEs
// within it, each with the given trigger mode and initially Disabled — the host calls
// this once per FADT/GPE-block it discovers (spec §4.6).
func (rt *Runtime) RegisterGPEBlock(name string, gpeCount int, trigger event.TriggerMode) *event.Block {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b := event.NewBlock(name)
	for i := 0; i < gpeCount; i++ {
		b.Register(i, trigger)
	}
	rt.gpes[name] = b
	return b
}

// TriggerGPE dispatches gpeNumber within blockName, invoking the
// appropriate `_Lxx`/`_Exx` AML method when no native handler was installed
// (spec §4.6).
func (rt *Runtime) TriggerGPE(blockName string, gpeNumber int) *amlerr.Error {
	rt.mu.Lock()
	b, ok := rt.gpes[blockName]
	rt.mu.Unlock()
	if !ok {
		return amlerr.New(amlerr.KindNotFound, "acpi", "TriggerGPE: unknown GPE block "+blockName)
	}
	return b.Trigger(gpeNumber, rt)
}

// InvokeGPEMethod implements event.MethodInvoker by resolving and running
// the AML `_Lxx`/`_Exx` method for gpeNumber under \_GPE.
func (rt *Runtime) InvokeGPEMethod(blockName string, gpeNumber int) (event.Disposition, error) {
	name := methodNameForGPE(gpeNumber)
	rt.mu.Lock()
	b, ok := rt.gpes[blockName]
	rt.mu.Unlock()
	if ok {
		for _, g := range b.Snapshot() {
			if g.Number == gpeNumber && g.Trigger == event.TriggerEdge {
				name = "_E" + name[2:]
			}
		}
	}
	if _, err := rt.it.Evaluate(`\_GPE.` + name); err != nil {
		return event.DispositionLeaveDisabled, err
	}
	return event.DispositionReenable, nil
}

func methodNameForGPE(gpeNumber int) string {
	const hex = "0123456789ABCDEF"
	hi := hex[(gpeNumber>>4)&0xf]
	lo := hex[gpeNumber&0xf]
	return "_L" + string(hi) + string(lo)
}

// InstallFixedEventHandler registers a native handler for evt (client API,
// spec §6).
func (rt *Runtime) InstallFixedEventHandler(evt event.FixedEvent, h event.Handler) {
	rt.fixed.SetHandler(evt, h)
}

// TriggerFixedEvent dispatches evt to its installed handler.
func (rt *Runtime) TriggerFixedEvent(evt event.FixedEvent) *amlerr.Error {
	return rt.fixed.Trigger(evt)
}

// InstallInterface adds name to the set `_OSI("name")` queries report as
// supported (client API, spec §6).
func (rt *Runtime) InstallInterface(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.interfaces[name] = true
}

// SupportsInterface reports whether name was registered via
// InstallInterface — the backing query for an AML `_OSI` evaluation.
func (rt *Runtime) SupportsInterface(name string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.interfaces[name]
}

// InstallTableHandler registers fn to be called with a table's signature
// every time LoadTable successfully installs it (client API, spec §6).
func (rt *Runtime) InstallTableHandler(fn func(signature string)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.tableHandler = fn
}

// Evaluate resolves path and evaluates it, as the client API's primary
// method-invocation entry point (spec §6).
func (rt *Runtime) Evaluate(path string, args ...*object.Object) (*object.Object, *amlerr.Error) {
	return rt.it.Evaluate(path, args...)
}

// EvaluateTyped evaluates path and requires the result to have the given
// Kind, returning a TypeMismatch error otherwise — the typed convenience
// wrapper spec §6's EvaluateTyped names, without Go generics so the result
// stays a plain *object.Object the caller destructures with Integer()/
// Text()/Elements().
func (rt *Runtime) EvaluateTyped(path string, want object.Kind, args ...*object.Object) (*object.Object, *amlerr.Error) {
	result, err := rt.it.Evaluate(path, args...)
	if err != nil {
		return nil, err
	}
	if result.Kind() != want {
		return nil, amlerr.New(amlerr.KindTypeMismatch, "acpi", "EvaluateTyped: "+path+" returned "+result.Kind().String()+", want "+want.String())
	}
	return result, nil
}

// ForEachChild calls fn for every immediate child of the node named by
// path, stopping early if fn returns false (client API, spec §6).
func (rt *Runtime) ForEachChild(path string, fn func(name string, kind object.Kind) bool) *amlerr.Error {
	node, err := rt.resolvePath(path)
	if err != nil {
		return err
	}
	for _, c := range node.Children() {
		if !fn(c.Name(), c.Get().Kind()) {
			break
		}
	}
	return nil
}

// NodeInfo reports the Kind of the object currently installed at path
// (client API, spec §6).
func (rt *Runtime) NodeInfo(path string) (object.Kind, *amlerr.Error) {
	node, err := rt.resolvePath(path)
	if err != nil {
		return object.KindUninitialized, err
	}
	return node.Get().Kind(), nil
}

// AbsolutePath returns path resolved and then rendered as its fully
// qualified namespace location (client API, spec §6).
func (rt *Runtime) AbsolutePath(path string) (string, *amlerr.Error) {
	node, err := rt.resolvePath(path)
	if err != nil {
		return "", err
	}
	return node.AbsolutePath(), nil
}

func (rt *Runtime) resolvePath(path string) (*namespace.Node, *amlerr.Error) {
	return rt.ns.Resolve(rt.ns.Root(), path)
}

// FindTable returns the raw bytes of a previously-installed table by its
// 4-character signature (client API, spec §6).
func (rt *Runtime) FindTable(signature string) ([]byte, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	data, ok := rt.tables[signature]
	return data, ok
}

// InstallTable registers a table's raw bytes (header + AML body) under its
// signature, making it available to FindTable/LoadTable. A host typically
// calls this once per table its table.Resolver discovers (client API,
// spec §6).
func (rt *Runtime) InstallTable(signature string, data []byte) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.tables[signature] = data
	rt.tableRefs[signature] = 0
}

// LoadTable parses a previously-installed table's AML body and installs its
// declarations into the namespace at scope (client API, spec §6). It also
// registers the table's top-level statements with interp.Interp.RegisterTable
// under signature, so an interpreter Load naming that signature runs them.
func (rt *Runtime) LoadTable(signature string, scopePath string) *amlerr.Error {
	rt.mu.Lock()
	data, ok := rt.tables[signature]
	rt.mu.Unlock()
	if !ok {
		return amlerr.New(amlerr.KindNotFound, "acpi", "LoadTable: unknown table "+signature)
	}

	hdr := &table.SDTHeader{Length: uint32(len(data))}
	if len(data) >= 36 {
		copy(hdr.Signature[:], data[0:4])
		hdr.Revision = data[8]
	}
	aml := hdr.AML(data)
	if aml == nil {
		aml = data
	}

	scope := rt.ns.Root()
	if scopePath != "" && scopePath != `\` {
		node, err := rt.resolvePath(scopePath)
		if err != nil {
			return err
		}
		scope = node
	}

	if err := loader.LoadTable(rt.ns, rt.it, signature, scope, aml); err != nil {
		return err
	}

	for space, h := range rt.addressHandlers {
		rt.mu.Lock()
		rt.attachRegionsLocked(scope, space, h)
		rt.mu.Unlock()
	}

	rt.mu.Lock()
	rt.tableRefs[signature]++
	handler := rt.tableHandler
	rt.mu.Unlock()
	if handler != nil {
		handler(signature)
	}
	return nil
}

// RefTable increments signature's reference count (client API, spec §6).
func (rt *Runtime) RefTable(signature string) *amlerr.Error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.tables[signature]; !ok {
		return amlerr.New(amlerr.KindNotFound, "acpi", "RefTable: unknown table "+signature)
	}
	rt.tableRefs[signature]++
	return nil
}

// GPEBlockNames lists every block name previously passed to RegisterGPEBlock
// (introspection surface, spec §6 — a debugger's GPE panel walks this).
func (rt *Runtime) GPEBlockNames() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.gpes))
	for name := range rt.gpes {
		names = append(names, name)
	}
	return names
}

// GPEBlockSnapshot returns blockName's current per-GPE state, or false if no
// such block was registered.
func (rt *Runtime) GPEBlockSnapshot(blockName string) ([]event.GPESnapshot, bool) {
	rt.mu.Lock()
	b, ok := rt.gpes[blockName]
	rt.mu.Unlock()
	if !ok {
		return nil, false
	}
	return b.Snapshot(), true
}

// NotifyQueueDepth reports how many Notify deliveries are currently
// buffered and undelivered.
func (rt *Runtime) NotifyQueueDepth() int {
	return rt.notify.QueueDepth()
}

// UnrefTable decrements signature's reference count. Reaching zero does not
// tear down the namespace nodes the table installed — ACPI tables are not
// generally safe to partially unload once Methods elsewhere may hold
// References into their objects (spec §4.5's Reference lifetime rules), so
// this tracks the count for host bookkeeping only; a host wanting actual
// unload should use namespace.Namespace.RemoveSubtree directly against the
// specific subtree it knows is safe to drop.
func (rt *Runtime) UnrefTable(signature string) *amlerr.Error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n, ok := rt.tableRefs[signature]
	if !ok {
		return amlerr.New(amlerr.KindNotFound, "acpi", "UnrefTable: unknown table "+signature)
	}
	if n > 0 {
		rt.tableRefs[signature] = n - 1
	}
	return nil
}
