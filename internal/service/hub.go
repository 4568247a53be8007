package service

import (
	"fmt"
	"log/slog"
	"sync"
)

type listener[T any] struct {
	id uint64
	fn func(T)

	// mu serializes deliveries to this listener; after is the last version
	// it has already seen through its initial snapshot
	mu    sync.Mutex
	after uint64
}

// hub is an ordered listener set. Publishing iterates over a copy of the set
// so listeners may unsubscribe (or subscribe) from inside a callback, and a
// panicking listener does not stop delivery to the others.
//
// Every published value carries a version taken from stamp while the owner
// holds its state lock. A listener registered through join receives its
// initial snapshot before any publish, and never a value older than it.
type hub[T any] struct {
	name string
	log  *slog.Logger

	mu        sync.Mutex
	nextID    uint64
	version   uint64
	listeners []*listener[T]
}

func newHub[T any](name string, log *slog.Logger) *hub[T] {
	return &hub[T]{name: name, log: log}
}

// stamp marks a state change and returns its version. Call it under the
// owner's state lock.
func (h *hub[T]) stamp() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	return h.version
}

// join registers fn under the owner's state lock. Deliveries to fn are held
// back until welcome hands it the snapshot taken under the same lock.
func (h *hub[T]) join(fn func(T)) (*listener[T], int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	l := &listener[T]{id: h.nextID, fn: fn, after: h.version}
	l.mu.Lock()
	h.listeners = append(h.listeners, l)
	return l, len(h.listeners)
}

// welcome delivers the initial snapshot and releases l for publishes
func (h *hub[T]) welcome(l *listener[T], snapshot T) {
	defer l.mu.Unlock()
	h.deliver(l.fn, snapshot)
}

// remove reports whether id was registered and the remaining count
func (h *hub[T]) remove(id uint64) (bool, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, l := range h.listeners {
		if l.id == id {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			return true, len(h.listeners)
		}
	}
	return false, len(h.listeners)
}

func (h *hub[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *hub[T]) snapshot() []*listener[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*listener[T], len(h.listeners))
	copy(out, h.listeners)
	return out
}

// publish delivers v, stamped with version, to every listener that has not
// already seen it. When clone is non-nil each listener receives its own copy.
// A listener must not trigger a publish to itself from inside its callback.
func (h *hub[T]) publish(v T, version uint64, clone func(T) T) {
	for _, l := range h.snapshot() {
		l.mu.Lock()
		if version > l.after {
			payload := v
			if clone != nil {
				payload = clone(v)
			}
			h.deliver(l.fn, payload)
		}
		l.mu.Unlock()
	}
}

func (h *hub[T]) deliver(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("listener panicked", slog.String("topic", h.name), slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(v)
}
