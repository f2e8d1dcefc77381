package txcoord

import (
	"context"
	"fmt"
	"sync"
)

// EventKind identifies a transaction lifecycle event.
type EventKind string

const (
	EventTransactionCreated      EventKind = "transaction_created"
	EventChildTransactionCreated EventKind = "child_transaction_created"
	EventTransactionCommitted    EventKind = "transaction_committed"
	EventTransactionRolledBack   EventKind = "transaction_rolled_back"
	EventTransactionFailed       EventKind = "transaction_failed"
	EventTransactionDisposed     EventKind = "transaction_disposed"
)

// Event carries the transaction and its creation parameters to subscribers.
type Event struct {
	Kind        EventKind
	Transaction *Transaction
	Mode        PropagationMode
	Isolation   IsolationLevel
	Ambient     bool
}

// Subscriber receives lifecycle events. A subscriber error aborts the
// publish and propagates to the caller of the manager operation that
// triggered the event.
type Subscriber func(ctx context.Context, ev Event) error

// Subscription identifies a registered subscriber for later removal.
// Go function values are not comparable, so Subscribe hands out a handle.
type Subscription struct {
	kind EventKind
	id   uint64
}

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Hub dispatches lifecycle events to subscribers in subscription order.
// Registration is synchronized; publishing iterates a snapshot so that
// concurrent contexts never contend on dispatch.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]subscriberEntry
}

// NewHub creates an empty notification hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[EventKind][]subscriberEntry),
	}
}

// Subscribe registers fn for the given event kind. Subscribers are invoked
// in subscription order; the same function may be registered more than once.
func (h *Hub) Subscribe(kind EventKind, fn Subscriber) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.subs[kind] = append(h.subs[kind], subscriberEntry{id: h.nextID, fn: fn})
	return Subscription{kind: kind, id: h.nextID}
}

// Unsubscribe removes the subscriber identified by sub. It reports whether
// a subscriber was removed.
func (h *Hub) Unsubscribe(sub Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.subs[sub.kind]
	for i, e := range entries {
		if e.id == sub.id {
			h.subs[sub.kind] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// Publish invokes all subscribers for ev.Kind synchronously, in
// subscription order. The first subscriber error aborts the dispatch and is
// returned to the caller.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	h.mu.RLock()
	entries := h.subs[ev.Kind]
	snapshot := make([]subscriberEntry, len(entries))
	copy(snapshot, entries)
	h.mu.RUnlock()

	for _, e := range snapshot {
		if err := e.fn(ctx, ev); err != nil {
			return fmt.Errorf("subscriber for %s: %w", ev.Kind, err)
		}
	}
	return nil
}
