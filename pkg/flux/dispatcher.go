package flux

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler receives every envelope sent through the dispatcher.
type Handler func(Envelope)

// HandlerID identifies a registered handler, for Unregister and WaitFor.
type HandlerID uint32

// ErrorHandler handles panics raised by a handler during dispatch.
// Returns true to keep the handler registered, false to unregister it.
type ErrorHandler func(id HandlerID, err interface{}) bool

// debugLog is set by the embedding application
var debugLog func(args ...interface{})

// SetDebugLog sets the debug logging function
func SetDebugLog(fn func(args ...interface{})) {
	debugLog = fn
}

// Dispatcher delivers action envelopes to registered handlers.
//
// Delivery is synchronous: every handler has seen the envelope before
// Dispatch returns. Dispatch must not be called from within a handler;
// doing so panics. A Dispatcher is not safe for concurrent Dispatch
// calls from multiple goroutines.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[HandlerID]Handler
	order    []HandlerID
	nextID   HandlerID

	dispatching atomic.Bool

	// Per-dispatch bookkeeping for WaitFor. Only touched while
	// dispatching is set.
	pending map[HandlerID]bool
	handled map[HandlerID]bool
	current Envelope

	onError ErrorHandler
}

// NewDispatcher creates a new dispatcher instance
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[HandlerID]Handler),
		order:    make([]HandlerID, 0, 8),
		nextID:   1,
		pending:  make(map[HandlerID]bool),
		handled:  make(map[HandlerID]bool),
	}
}

// SetErrorHandler sets the handler invoked when a registered handler panics.
func (d *Dispatcher) SetErrorHandler(handler ErrorHandler) {
	d.onError = handler
}

// Register adds a handler and returns its ID. Handlers are invoked in
// registration order.
func (d *Dispatcher) Register(h Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++

	d.handlers[id] = h
	d.order = append(d.order, id)

	if debugLog != nil {
		debugLog("[Dispatcher] Registered handler", id)
	}
	return id
}

// Unregister removes a handler. Unknown IDs are ignored.
func (d *Dispatcher) Unregister(id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(id)
}

func (d *Dispatcher) removeLocked(id HandlerID) {
	if _, ok := d.handlers[id]; !ok {
		return
	}
	delete(d.handlers, id)
	for i, hid := range d.order {
		if hid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// HandlerCount returns the number of registered handlers.
func (d *Dispatcher) HandlerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

// IsDispatching returns whether a dispatch is currently in progress.
func (d *Dispatcher) IsDispatching() bool {
	return d.dispatching.Load()
}

// Dispatch delivers the envelope to every registered handler before
// returning. Panics if called while another dispatch is in progress.
func (d *Dispatcher) Dispatch(env Envelope) {
	if !d.dispatching.CompareAndSwap(false, true) {
		panic("flux: cannot dispatch in the middle of a dispatch")
	}
	defer d.dispatching.Store(false)

	// Snapshot the handler order so handlers can unregister safely.
	d.mu.Lock()
	order := make([]HandlerID, len(d.order))
	copy(order, d.order)
	d.mu.Unlock()

	if debugLog != nil {
		debugLog("[Dispatcher] Dispatching", env.Action.Type(), "to", len(order), "handlers")
	}

	d.current = env
	for id := range d.handled {
		delete(d.handled, id)
	}
	for id := range d.pending {
		delete(d.pending, id)
	}

	for _, id := range order {
		if d.handled[id] {
			continue
		}
		d.invoke(id)
	}
}

// WaitFor blocks the current handler until the given handlers have
// processed the current envelope. Must only be called from within a
// handler during a dispatch; circular dependencies panic.
func (d *Dispatcher) WaitFor(ids ...HandlerID) {
	if !d.dispatching.Load() {
		panic("flux: WaitFor must be invoked while dispatching")
	}

	for _, id := range ids {
		if d.pending[id] {
			panic(fmt.Sprintf("flux: circular dependency detected while waiting for handler %d", id))
		}
		if d.handled[id] {
			continue
		}
		d.mu.Lock()
		_, ok := d.handlers[id]
		d.mu.Unlock()
		if !ok {
			panic(fmt.Sprintf("flux: WaitFor on unregistered handler %d", id))
		}
		d.invoke(id)
	}
}

// invoke runs a single handler with panic recovery.
func (d *Dispatcher) invoke(id HandlerID) {
	d.mu.Lock()
	h, ok := d.handlers[id]
	d.mu.Unlock()
	if !ok {
		return
	}

	d.pending[id] = true

	func() {
		defer func() {
			if r := recover(); r != nil {
				d.handleHandlerError(id, r)
			}
		}()
		h(d.current)
	}()

	d.pending[id] = false
	d.handled[id] = true
}

// handleHandlerError handles a panic raised by a handler
func (d *Dispatcher) handleHandlerError(id HandlerID, err interface{}) {
	errorMsg := fmt.Sprintf("Handler %d panic: %v\n%s", id, err, debug.Stack())

	keep := false
	if d.onError != nil {
		keep = d.onError(id, errorMsg)
	}

	if !keep {
		d.mu.Lock()
		d.removeLocked(id)
		d.mu.Unlock()
	}
}
