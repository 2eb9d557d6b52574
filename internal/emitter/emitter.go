// Package emitter provides a minimal publish/subscribe primitive: one
// emitter, many subscribers, every subscriber sees every event. Delivery is
// synchronous and follows registration order, which callers may rely on.
package emitter

import "sync"

// Handler receives every event published after it subscribed.
type Handler[T any] func(T)

// Subscription identifies a registered handler so it can be removed.
type Subscription int

type entry[T any] struct {
	id      Subscription
	handler Handler[T]
}

// Emitter fans events out to an ordered list of subscribers.
type Emitter[T any] struct {
	mu     sync.Mutex
	nextID Subscription
	subs   []entry[T]
}

// New returns an emitter with no subscribers.
func New[T any]() *Emitter[T] {
	return &Emitter[T]{}
}

// Subscribe appends the handler to the delivery order.
func (e *Emitter[T]) Subscribe(h Handler[T]) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.subs = append(e.subs, entry[T]{id: e.nextID, handler: h})
	return e.nextID
}

// Unsubscribe removes a handler. Unknown subscriptions are ignored.
func (e *Emitter[T]) Unsubscribe(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subs {
		if s.id == sub {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler with ev, in registration order, on the calling
// goroutine. Handlers registered during delivery see only later events.
func (e *Emitter[T]) Emit(ev T) {
	e.mu.Lock()
	snapshot := make([]entry[T], len(e.subs))
	copy(snapshot, e.subs)
	e.mu.Unlock()

	for _, s := range snapshot {
		s.handler(ev)
	}
}

// Len returns the number of active subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
