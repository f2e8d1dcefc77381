package txcoord

import (
	"context"
	"sync"
)

// Activity is the per-logical-context stack of active transactions. Each
// logical execution context (a request, a call chain, a worker iteration)
// owns exactly one activity; the top of its stack is the current
// transaction.
type Activity struct {
	mu    sync.Mutex
	stack []*Transaction
}

// NewActivity creates an empty activity.
func NewActivity() *Activity {
	return &Activity{}
}

// Push places tx on top of the stack, making it the current transaction.
func (a *Activity) Push(tx *Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stack = append(a.stack, tx)
}

// Pop removes and returns the current transaction. Popping an empty stack
// is a programming error.
func (a *Activity) Pop() (*Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.stack) == 0 {
		return nil, ErrEmptyStack
	}
	top := a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
	return top, nil
}

// Current returns the transaction on top of the stack, or nil.
func (a *Activity) Current() *Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.stack) == 0 {
		return nil
	}
	return a.stack[len(a.stack)-1]
}

// Depth returns the number of stacked transactions.
func (a *Activity) Depth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.stack)
}

// ActivityManager resolves the activity for a logical execution context.
// It is the pluggability point for how context is carried: the default
// implementation threads an explicit handle through context.Context, but a
// custom model (per-connection, per-session) can be swapped in via
// Manager.SetActivityManager.
type ActivityManager interface {
	Activity(ctx context.Context) (*Activity, error)
}

type ctxKey int

const activityKey ctxKey = iota

// WithActivity returns a context carrying a fresh activity. All manager
// operations on the returned context (and contexts derived from it) share
// one transaction stack.
func WithActivity(ctx context.Context) context.Context {
	return context.WithValue(ctx, activityKey, NewActivity())
}

// ContextActivityManager resolves activities attached to the context by
// WithActivity. Operations on a context without one fail with
// ErrNoActivity rather than falling back to shared state.
type ContextActivityManager struct{}

func (ContextActivityManager) Activity(ctx context.Context) (*Activity, error) {
	if a, ok := ctx.Value(activityKey).(*Activity); ok {
		return a, nil
	}
	return nil, ErrNoActivity
}
