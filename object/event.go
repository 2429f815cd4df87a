package object

import "context"

// EventSemaphore is the Extra payload installed on KindEvent objects: a
// counting semaphore that AML's Wait/Signal/Reset operate against. It lives
// in this foundational package rather than loader (which declares KindEvent
// objects) or interp (which evaluates Wait/Signal/Reset) so both can share
// the same concrete type without an import cycle between them.
type EventSemaphore struct {
	ch chan struct{}
}

// NewEventSemaphore returns a ready-to-use, initially-unsignaled semaphore.
func NewEventSemaphore() *EventSemaphore {
	return &EventSemaphore{ch: make(chan struct{}, 1<<16)}
}

// Signal increments the semaphore's count, waking one blocked Wait if any is
// outstanding.
func (s *EventSemaphore) Signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the semaphore is signaled or ctx is done, reporting
// false on timeout/cancellation per AML Wait's Boolean return.
func (s *EventSemaphore) Wait(ctx context.Context) bool {
	select {
	case <-s.ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Reset drains every pending signal, returning the semaphore to empty.
func (s *EventSemaphore) Reset() {
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}
