package event

import (
	"sync"

	"acpicore/amlerr"
)

// FixedEvent identifies one of the four ACPI fixed events (spec §4.6).
type FixedEvent uint8

const (
	FixedEventPowerButton FixedEvent = iota
	FixedEventSleepButton
	FixedEventRTC
	FixedEventGlobalLockRelease
)

// FixedDispatcher holds the native handlers for the fixed events; unlike
// GPEs, fixed events have no associated AML method and no enable/disable
// state machine of their own (that lives in the PM1 control register, a
// host-kernel concern).
type FixedDispatcher struct {
	mu       sync.Mutex
	handlers map[FixedEvent]Handler
}

// NewFixedDispatcher returns an empty FixedDispatcher.
func NewFixedDispatcher() *FixedDispatcher {
	return &FixedDispatcher{handlers: make(map[FixedEvent]Handler)}
}

// SetHandler installs (or clears, with handler == nil) the native handler
// for evt.
func (d *FixedDispatcher) SetHandler(evt FixedEvent, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handler == nil {
		delete(d.handlers, evt)
		return
	}
	d.handlers[evt] = handler
}

// Trigger dispatches evt to its registered handler, if any.
func (d *FixedDispatcher) Trigger(evt FixedEvent) *amlerr.Error {
	d.mu.Lock()
	h := d.handlers[evt]
	d.mu.Unlock()
	if h == nil {
		return amlerr.New(amlerr.KindNotFound, "event", "Trigger: no handler registered for fixed event")
	}
	h()
	return nil
}
