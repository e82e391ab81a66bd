package engine

import (
	"slices"
	"sync"
)

// EventWithArg is a multi-cast event with one argument. It may fire on a
// different goroutine than the one adding listeners; a listener added
// while the event fires is called from the next Invoke on.
type EventWithArg[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

// AddListener registers fn and returns a function that removes it again.
// A nil fn is ignored.
func (e *EventWithArg[T]) AddListener(fn func(T)) (remove func()) {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener[T]{id: id, fn: fn})
	return func() { e.removeListener(id) }
}

func (e *EventWithArg[T]) removeListener(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = slices.DeleteFunc(slices.Clone(e.listeners), func(l listener[T]) bool { return l.id == id })
}

func (e *EventWithArg[T]) RemoveAllListeners() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}

// Invoke calls the listeners in registration order.
func (e *EventWithArg[T]) Invoke(arg T) {
	e.mu.Lock()
	ls := e.listeners
	e.mu.Unlock()
	for _, l := range ls {
		l.fn(arg)
	}
}

func (e *EventWithArg[T]) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Event is an EventWithArg without an argument.
type Event struct {
	e EventWithArg[struct{}]
}

func (e *Event) AddListener(fn func()) (remove func()) {
	if fn == nil {
		return func() {}
	}
	return e.e.AddListener(func(struct{}) { fn() })
}

func (e *Event) RemoveAllListeners() {
	e.e.RemoveAllListeners()
}

func (e *Event) Invoke() {
	e.e.Invoke(struct{}{})
}

func (e *Event) ListenerCount() int {
	return e.e.ListenerCount()
}
