// Package event provides typed notifications with optional batching.
//
// Listeners run synchronously on the goroutine that fires the event and must
// not block. While a Hub is held, fired notifications are queued and
// delivered when the outermost hold is released; repeated notifications of
// the same event collapse into one carrying the last value.
package event

import (
	"sync"
)

// Hub batches notifications of the events created from it.
type Hub struct {
	mu      sync.Mutex
	depth   int
	order   []any
	pending map[any]func()
}

// NewHub creates a hub that delivers notifications immediately until held.
func NewHub() *Hub {
	return &Hub{pending: make(map[any]func())}
}

// Hold starts batching. Calls nest; every Hold needs a matching Flush.
func (h *Hub) Hold() {
	h.mu.Lock()
	h.depth++
	h.mu.Unlock()
}

// Flush ends one Hold. When the outermost hold ends, queued notifications
// are delivered in the order their events were first fired.
func (h *Hub) Flush() {
	h.mu.Lock()
	if h.depth > 0 {
		h.depth--
	}
	if h.depth > 0 {
		h.mu.Unlock()
		return
	}
	order := h.order
	pending := h.pending
	h.order = nil
	h.pending = make(map[any]func())
	h.mu.Unlock()

	for _, key := range order {
		pending[key]()
	}
}

// Transaction runs fn with the hub held.
func (h *Hub) Transaction(fn func()) {
	h.Hold()
	defer h.Flush()
	fn()
}

// enqueue stores deliver under key if the hub is held and reports whether it
// did so.
func (h *Hub) enqueue(key any, deliver func()) bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.depth == 0 {
		return false
	}
	if _, ok := h.pending[key]; !ok {
		h.order = append(h.order, key)
	}
	h.pending[key] = deliver
	return true
}

type listener[T any] struct {
	fn func(T)
}

// Event is a typed notification source. The zero value is not usable; use
// New.
type Event[T any] struct {
	hub       *Hub
	mu        sync.Mutex
	listeners []*listener[T]
}

// New creates an event. hub may be nil, in which case notifications are
// never batched.
func New[T any](hub *Hub) *Event[T] {
	return &Event[T]{hub: hub}
}

// Subscribe registers fn and returns a function that removes it again.
func (e *Event[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	l := &listener[T]{fn: fn}
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, other := range e.listeners {
				if other == l {
					e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Fire notifies all listeners with v, or queues the notification while the
// hub is held.
func (e *Event[T]) Fire(v T) {
	if e.hub.enqueue(e, func() { e.deliver(v) }) {
		return
	}
	e.deliver(v)
}

// Listeners returns the number of registered listeners.
func (e *Event[T]) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *Event[T]) deliver(v T) {
	e.mu.Lock()
	listeners := make([]*listener[T], len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		l.fn(v)
	}
}
