package event

import "sync"

// NotifyHandler receives one delivered Notify(target, value) event.
type NotifyHandler func(path string, value uint32)

type notifyEvent struct {
	path  string
	value uint32
}

// NotifyDispatcher implements interp.Notifier: AML's Notify statement
// enqueues into a single FIFO, and one worker goroutine drains it to
// registered handlers — trivially preserving the "FIFO per target" ordering
// spec §4.6/§5 requires, since a single consumer can never reorder its own
// queue. Root-wide handlers (registered with path == "") receive every
// delivery in addition to any per-node handler.
type NotifyDispatcher struct {
	mu       sync.Mutex
	handlers map[string][]NotifyHandler

	queue chan notifyEvent
	done  chan struct{}
}

// NewNotifyDispatcher returns a dispatcher with its delivery worker running;
// callers should call Close when shutting the runtime down.
func NewNotifyDispatcher() *NotifyDispatcher {
	d := &NotifyDispatcher{
		handlers: make(map[string][]NotifyHandler),
		queue:    make(chan notifyEvent, 64),
		done:     make(chan struct{}),
	}
	go d.drain()
	return d
}

// InstallHandler registers h against path (per-node), or against the
// root-wide catch-all when path == "" (spec §6, "Notify handler (per-node or
// root-wide)").
func (d *NotifyDispatcher) InstallHandler(path string, h NotifyHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[path] = append(d.handlers[path], h)
}

// Notify implements interp.Notifier: it enqueues the event without
// blocking the calling AML method on delivery.
func (d *NotifyDispatcher) Notify(path string, value uint32) {
	d.queue <- notifyEvent{path: path, value: value}
}

// QueueDepth reports how many Notify events are currently buffered and not
// yet delivered — a debugger's "is Notify backed up" indicator.
func (d *NotifyDispatcher) QueueDepth() int {
	return len(d.queue)
}

// Close stops the delivery worker. Pending events already enqueued are
// delivered before the worker exits.
func (d *NotifyDispatcher) Close() {
	close(d.queue)
	<-d.done
}

func (d *NotifyDispatcher) drain() {
	defer close(d.done)
	for evt := range d.queue {
		d.mu.Lock()
		targeted := append([]NotifyHandler(nil), d.handlers[evt.path]...)
		rootWide := append([]NotifyHandler(nil), d.handlers[""]...)
		d.mu.Unlock()

		for _, h := range targeted {
			h(evt.path, evt.value)
		}
		for _, h := range rootWide {
			h(evt.path, evt.value)
		}
	}
}

// ImplicitNotify is a MethodInvoker that, instead of running an AML `_Lxx`
// method, synthesizes a Notify(device, value) against deviceForGPE(gpeNumber)
// when no AML handler exists for a GPE (spec §4.6, "Implicit Notify converts
// a GPE into a Notify against a device when the AML method is absent").
type ImplicitNotify struct {
	Dispatcher   *NotifyDispatcher
	DeviceForGPE func(blockName string, gpeNumber int) (path string, value uint32, ok bool)
}

// InvokeGPEMethod implements MethodInvoker.
func (n *ImplicitNotify) InvokeGPEMethod(blockName string, gpeNumber int) (Disposition, error) {
	if n.DeviceForGPE == nil {
		return DispositionReenable, nil
	}
	path, value, ok := n.DeviceForGPE(blockName, gpeNumber)
	if ok && n.Dispatcher != nil {
		n.Dispatcher.Notify(path, value)
	}
	return DispositionReenable, nil
}
