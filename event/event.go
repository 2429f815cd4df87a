// Package event implements the GPE, fixed-event, and Notify subsystems
// described in spec §4.6: GPE block state machines, fixed-event dispatch,
// and a per-target FIFO Notify queue with implicit-Notify fallback. It is
// grounded on the teacher's device/acpi interrupt dispatch shape (the
// acpi.Driver's fixed-event/GPE handling in device/acpi/driver.go), adapted
// from the teacher's single hardcoded PM1 block into a generalized,
// multi-block GPE model plus the Notify machinery the teacher never had.
package event

import (
	"sort"
	"sync"

	"acpicore/amlerr"
)

// GPEState is the runtime disposition of one GPE, mirroring spec §4.6's
// "Disabled → Enabled-at-runtime, Enabled-for-wake, or Masked" state machine.
type GPEState uint8

const (
	GPEDisabled GPEState = iota
	GPEEnabledRuntime
	GPEEnabledWake
	GPEMasked
)

// TriggerMode selects whether a GPE re-arms automatically on handler
// completion (edge) or only on explicit request (level), per spec §4.6.
type TriggerMode uint8

const (
	TriggerEdge TriggerMode = iota
	TriggerLevel
)

// Disposition is returned by a GPE/fixed-event Handler to tell the
// dispatcher whether to re-enable the source once its handler has run.
type Disposition uint8

const (
	DispositionReenable Disposition = iota
	DispositionLeaveDisabled
)

// Handler is a native (non-AML) callback for a GPE or fixed event.
type Handler func() Disposition

// MethodInvoker runs the AML `_Lxx`/`_Exx`/`_Wxx` method associated with a
// GPE, decoupling this package from the interp package (spec §4.6's "queues
// ... an AML method invocation").
type MethodInvoker interface {
	InvokeGPEMethod(blockName string, gpeNumber int) (Disposition, error)
}

// GPE is one General Purpose Event within a Block.
type GPE struct {
	Number  int
	State   GPEState
	Trigger TriggerMode

	handler Handler
	masked  bool // set when the dispatcher auto-masks a misbehaving GPE
}

// Block is one GPE register block (an ACPI hardware block or a GPIO-backed
// one, spec §4.6); Name identifies it for method-name derivation
// ("_L00"/"_E00" live under the block's scope).
type Block struct {
	mu   sync.Mutex
	Name string
	gpes map[int]*GPE
}

// NewBlock returns an empty Block ready to have GPEs registered into it.
func NewBlock(name string) *Block {
	return &Block{Name: name, gpes: make(map[int]*GPE)}
}

// GPESnapshot is a point-in-time copy of one GPE's disposition, safe to hold
// and render without the Block's lock (a debugger's read-only view, spec
// §6's introspection surface).
type GPESnapshot struct {
	Number     int
	State      GPEState
	Trigger    TriggerMode
	Masked     bool
	HasHandler bool
}

// Snapshot returns every registered GPE's current state, ordered by number.
func (b *Block) Snapshot() []GPESnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]GPESnapshot, 0, len(b.gpes))
	for _, g := range b.gpes {
		out = append(out, GPESnapshot{
			Number:     g.Number,
			State:      g.State,
			Trigger:    g.Trigger,
			Masked:     g.masked,
			HasHandler: g.handler != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// String renders the GPE state the way a debugger's GPE table would.
func (s GPEState) String() string {
	switch s {
	case GPEDisabled:
		return "disabled"
	case GPEEnabledRuntime:
		return "enabled(runtime)"
	case GPEEnabledWake:
		return "enabled(wake)"
	case GPEMasked:
		return "masked"
	default:
		return "unknown"
	}
}

// String renders the trigger mode the way a debugger's GPE table would.
func (t TriggerMode) String() string {
	if t == TriggerLevel {
		return "level"
	}
	return "edge"
}

// Register declares gpeNumber within the block, initially Disabled.
func (b *Block) Register(gpeNumber int, trigger TriggerMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gpes[gpeNumber] = &GPE{Number: gpeNumber, Trigger: trigger, State: GPEDisabled}
}

// SetHandler installs (or clears, with handler == nil) a native handler for
// gpeNumber; a nil handler means trigger falls through to the AML method.
func (b *Block) SetHandler(gpeNumber int, handler Handler) *amlerr.Error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gpes[gpeNumber]
	if !ok {
		return amlerr.New(amlerr.KindNotFound, "event", "SetHandler: unknown GPE")
	}
	g.handler = handler
	return nil
}

// Enable transitions gpeNumber to Enabled-at-runtime (or Enabled-for-wake).
func (b *Block) Enable(gpeNumber int, forWake bool) *amlerr.Error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gpes[gpeNumber]
	if !ok {
		return amlerr.New(amlerr.KindNotFound, "event", "Enable: unknown GPE")
	}
	if forWake {
		g.State = GPEEnabledWake
	} else {
		g.State = GPEEnabledRuntime
	}
	g.masked = false
	return nil
}

// Mask forces gpeNumber to Masked, preventing further dispatch until
// explicitly re-enabled (Trigger calls it when a GPE's AML method returns
// an error).
func (b *Block) Mask(gpeNumber int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.gpes[gpeNumber]; ok {
		g.State = GPEMasked
		g.masked = true
	}
}

// Trigger dispatches gpeNumber: clears the (conceptual) status bit, disables
// the GPE to prevent re-entry, runs its native handler if one is installed
// (otherwise inv's AML method), and re-enables per the returned Disposition
// and the GPE's TriggerMode (spec §4.6).
func (b *Block) Trigger(gpeNumber int, inv MethodInvoker) *amlerr.Error {
	b.mu.Lock()
	g, ok := b.gpes[gpeNumber]
	if !ok {
		b.mu.Unlock()
		return amlerr.New(amlerr.KindNotFound, "event", "Trigger: unknown GPE")
	}
	if g.State != GPEEnabledRuntime && g.State != GPEEnabledWake {
		b.mu.Unlock()
		return nil
	}
	prevState := g.State
	g.State = GPEDisabled
	handler := g.handler
	b.mu.Unlock()

	var disp Disposition
	if handler != nil {
		disp = handler()
	} else if inv != nil {
		d, err := inv.InvokeGPEMethod(b.Name, gpeNumber)
		if err != nil {
			b.Mask(gpeNumber)
			return amlerr.New(amlerr.KindHardwareTimeout, "event", "Trigger: method invocation failed: "+err.Error())
		}
		disp = d
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if g.masked {
		return nil
	}
	switch g.Trigger {
	case TriggerEdge:
		g.State = prevState
	case TriggerLevel:
		if disp == DispositionReenable {
			g.State = prevState
		}
	}
	return nil
}
