package notify

import (
	"sync"
	"sync/atomic"
)

// Subscription identifies a subscriber registered with a [Hub].
// The zero value never matches a subscriber.
type Subscription uint64

// Dispatcher delivers callbacks on behalf of a publisher.
// Implementations decide where the callback runs, e.g. on an owner loop.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to a [Dispatcher].
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) {
	f(fn)
}

var nextSubscription atomic.Uint64

type entry[E any] struct {
	fn func(E)
	id Subscription
}

// Hub is a broadcast registry of subscribers for events of type E.
//
// Subscribers are stored copy-on-write, so [Hub.Publish] iterates a snapshot
// and subscribers may (un)subscribe while an event is being delivered.
type Hub[E any] struct {
	dispatcher Dispatcher
	subs       []entry[E]
	mu         sync.RWMutex
}

// NewHub creates a new [Hub]. A nil dispatcher delivers synchronously.
func NewHub[E any](d Dispatcher) *Hub[E] {
	return &Hub[E]{dispatcher: d}
}

// Subscribe registers fn and returns its [Subscription].
func (h *Hub[E]) Subscribe(fn func(E)) Subscription {
	if fn == nil {
		return 0
	}

	id := Subscription(nextSubscription.Add(1))

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := make([]entry[E], len(h.subs), len(h.subs)+1)
	copy(subs, h.subs)
	h.subs = append(subs, entry[E]{id: id, fn: fn})

	return id
}

// Unsubscribe removes the subscriber. Unknown subscriptions are ignored.
func (h *Hub[E]) Unsubscribe(id Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, e := range h.subs {
		if e.id != id {
			continue
		}

		subs := make([]entry[E], 0, len(h.subs)-1)
		subs = append(subs, h.subs[:i]...)
		h.subs = append(subs, h.subs[i+1:]...)

		return
	}
}

// Len returns the number of current subscribers.
func (h *Hub[E]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Publish delivers evt to every current subscriber in subscription order.
func (h *Hub[E]) Publish(evt E) {
	h.mu.RLock()
	subs := h.subs
	d := h.dispatcher
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	deliver := func() {
		for _, e := range subs {
			e.fn(evt)
		}
	}

	if d == nil {
		deliver()

		return
	}

	d.Dispatch(deliver)
}

// SetDispatcher replaces the dispatcher used by [Hub.Publish].
func (h *Hub[E]) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dispatcher = d
}
