package testutil

import (
	"context"
	"sync"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

// --- Resource mock ---

// MockResource is a mock implementation of txcoord.Resource.
type MockResource struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	closes    int

	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func NewMockResource() *MockResource {
	return &MockResource{}
}

func (m *MockResource) Commit(ctx context.Context) error {
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockResource) Rollback(ctx context.Context) error {
	m.mu.Lock()
	m.rollbacks++
	m.mu.Unlock()
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

func (m *MockResource) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

func (m *MockResource) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *MockResource) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

func (m *MockResource) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// --- Event recorder ---

// EventRecorder collects published lifecycle events for assertions.
type EventRecorder struct {
	mu     sync.Mutex
	events []txcoord.Event

	// Err, when set, is returned for every received event.
	Err error
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Subscriber returns the hub subscriber feeding this recorder.
func (r *EventRecorder) Subscriber() txcoord.Subscriber {
	return func(ctx context.Context, ev txcoord.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		return r.Err
	}
}

// SubscribeAll registers the recorder for every lifecycle event kind.
func (r *EventRecorder) SubscribeAll(m *txcoord.Manager) {
	kinds := []txcoord.EventKind{
		txcoord.EventTransactionCreated,
		txcoord.EventChildTransactionCreated,
		txcoord.EventTransactionCommitted,
		txcoord.EventTransactionRolledBack,
		txcoord.EventTransactionFailed,
		txcoord.EventTransactionDisposed,
	}
	for _, k := range kinds {
		m.Subscribe(k, r.Subscriber())
	}
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []txcoord.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]txcoord.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given kind were recorded.
func (r *EventRecorder) Count(kind txcoord.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// --- Ambient bridge fake ---

// FakeBridge is a scripted txcoord.AmbientBridge.
type FakeBridge struct {
	mu       sync.Mutex
	enlisted []*txcoord.Transaction

	Resource   txcoord.Resource
	EnlistFunc func(ctx context.Context, tx *txcoord.Transaction) (txcoord.Resource, error)
}

func NewFakeBridge(res txcoord.Resource) *FakeBridge {
	return &FakeBridge{Resource: res}
}

func (b *FakeBridge) Enlist(ctx context.Context, tx *txcoord.Transaction) (txcoord.Resource, error) {
	b.mu.Lock()
	b.enlisted = append(b.enlisted, tx)
	b.mu.Unlock()
	if b.EnlistFunc != nil {
		return b.EnlistFunc(ctx, tx)
	}
	return b.Resource, nil
}

// Enlisted returns the transactions passed to Enlist.
func (b *FakeBridge) Enlisted() []*txcoord.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*txcoord.Transaction, len(b.enlisted))
	copy(out, b.enlisted)
	return out
}
