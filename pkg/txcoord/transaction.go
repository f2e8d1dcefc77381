package txcoord

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status represents a transaction's position in its lifecycle state machine.
type Status string

const (
	StatusActive     Status = "active"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	StatusFailed     Status = "failed"
	StatusDisposed   Status = "disposed"
)

// statusTransitions is the monotonic lifecycle: once a transaction leaves
// Active it never returns, and Disposed is terminal.
var statusTransitions = map[Status][]Status{
	StatusActive:     {StatusCommitted, StatusRolledBack, StatusFailed},
	StatusCommitted:  {StatusDisposed},
	StatusRolledBack: {StatusDisposed},
	StatusFailed:     {StatusDisposed},
	StatusDisposed:   {},
}

// IsTerminal reports whether no further outcome transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCommitted || s == StatusRolledBack || s == StatusFailed || s == StatusDisposed
}

// Transaction is a unit of work coordinated by a Manager. It is created by
// Manager.CreateTransaction, mutated only through Commit, Rollback and
// Enlist, and destroyed by Manager.Dispose.
type Transaction struct {
	id        string
	mode      PropagationMode
	isolation IsolationLevel
	ambient   bool
	parent    *Transaction

	hub *Hub
	log zerolog.Logger

	// onFailed is the manager's cascade hook; nil unless cascade-failure
	// policy is enabled.
	onFailed func(ctx context.Context, tx *Transaction)

	mu        sync.Mutex
	status    Status
	resources []Resource
}

func newTransaction(id string, mode PropagationMode, iso IsolationLevel, ambient bool, parent *Transaction, hub *Hub, log zerolog.Logger) *Transaction {
	return &Transaction{
		id:        id,
		mode:      mode,
		isolation: iso,
		ambient:   ambient,
		parent:    parent,
		hub:       hub,
		log:       log,
		status:    StatusActive,
	}
}

// ID returns the opaque identifier used for logging and correlation.
func (t *Transaction) ID() string { return t.id }

// Mode returns the propagation mode the transaction was created with.
func (t *Transaction) Mode() PropagationMode { return t.mode }

// Isolation returns the requested isolation level.
func (t *Transaction) Isolation() IsolationLevel { return t.isolation }

// IsAmbient reports whether the transaction is bridged to a platform-wide
// ambient transaction context.
func (t *Transaction) IsAmbient() bool { return t.ambient }

// IsChild reports whether the transaction is nested under a parent.
func (t *Transaction) IsChild() bool { return t.parent != nil }

// Parent returns the enclosing transaction, or nil for a top-level one.
// The child does not own the parent's lifetime.
func (t *Transaction) Parent() *Transaction { return t.parent }

// Status returns the current lifecycle status.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// EnlistedCount returns the number of enlisted resources.
func (t *Transaction) EnlistedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.resources)
}

// Enlist registers a resource to participate in the transaction's outcome.
// Resources may only be enlisted while the transaction is Active.
func (t *Transaction) Enlist(r Resource) error {
	if r == nil {
		return fmt.Errorf("enlist: %w", ErrNilResource)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusActive {
		return NewTransactionError("enlist", t.id, fmt.Errorf("%w: status is %s", ErrNotActive, t.status))
	}
	t.resources = append(t.resources, r)
	return nil
}

// CreateChild returns a new transaction nested under this one, sharing its
// mode and isolation level. The child is not pushed onto any activity and
// its resources are not enlisted into the parent.
func (t *Transaction) CreateChild() *Transaction {
	return t.createChild(t.mode)
}

func (t *Transaction) createChild(mode PropagationMode) *Transaction {
	return newTransaction(uuid.NewString(), mode, t.isolation, false, t, t.hub, t.log)
}

// Commit applies the transaction: every enlisted resource is committed in
// enlistment order. The first resource failure transitions the transaction
// to Failed, publishes TransactionFailed, and surfaces the failure as a
// TransactionError. Resources committed before the failing one are not
// compensated; this coordinator makes no two-phase-commit guarantee.
func (t *Transaction) Commit(ctx context.Context) error {
	resources, err := t.beginOutcome("commit")
	if err != nil {
		return err
	}

	for _, r := range resources {
		if cerr := r.Commit(ctx); cerr != nil {
			return t.failCommit(ctx, cerr)
		}
	}

	if err := t.transitionTo(StatusCommitted); err != nil {
		return NewTransactionError("commit", t.id, err)
	}
	t.log.Debug().Str("transaction_id", t.id).Msg("transaction committed")
	return t.publish(ctx, EventTransactionCommitted)
}

// Rollback discards the transaction. Rollback is best-effort: a failing
// resource is logged and the remaining resources are still rolled back, so
// the transaction always reaches RolledBack and no error is raised for
// individual resource failures.
func (t *Transaction) Rollback(ctx context.Context) error {
	resources, err := t.beginOutcome("rollback")
	if err != nil {
		return err
	}

	for _, r := range resources {
		if rerr := r.Rollback(ctx); rerr != nil {
			t.log.Warn().Err(rerr).Str("transaction_id", t.id).Msg("resource rollback failed")
		}
	}

	if err := t.transitionTo(StatusRolledBack); err != nil {
		return NewTransactionError("rollback", t.id, err)
	}
	t.log.Debug().Str("transaction_id", t.id).Msg("transaction rolled back")
	return t.publish(ctx, EventTransactionRolledBack)
}

// beginOutcome validates that an outcome operation may start and snapshots
// the enlisted resources.
func (t *Transaction) beginOutcome(op string) ([]Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return nil, NewTransactionError(op, t.id, fmt.Errorf("%w: status is %s", ErrNotActive, t.status))
	}
	resources := make([]Resource, len(t.resources))
	copy(resources, t.resources)
	return resources, nil
}

// failCommit marks the transaction Failed, publishes TransactionFailed so
// subscribers observe the failure before it is raised, and runs the
// manager's cascade hook if one is installed.
func (t *Transaction) failCommit(ctx context.Context, cause error) error {
	if err := t.transitionTo(StatusFailed); err != nil {
		return NewTransactionError("commit", t.id, err)
	}
	t.log.Error().Err(cause).Str("transaction_id", t.id).Msg("resource commit failed")

	txErr := NewTransactionError("commit", t.id, cause)
	if perr := t.publish(ctx, EventTransactionFailed); perr != nil {
		txErr = NewTransactionError("commit", t.id, fmt.Errorf("%w (failure notification also failed: %v)", cause, perr))
	}
	if t.onFailed != nil {
		t.onFailed(ctx, t)
	}
	return txErr
}

func (t *Transaction) transitionTo(next Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, allowed := range statusTransitions[t.status] {
		if allowed == next {
			t.status = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status, next)
}

// dispose transitions the transaction to Disposed and releases enlisted
// resources that are closable. Called by the manager only.
func (t *Transaction) dispose() error {
	if err := t.transitionTo(StatusDisposed); err != nil {
		return NewTransactionError("dispose", t.id, err)
	}

	t.mu.Lock()
	resources := t.resources
	t.resources = nil
	t.mu.Unlock()

	for _, r := range resources {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				t.log.Warn().Err(err).Str("transaction_id", t.id).Msg("resource close failed")
			}
		}
	}
	return nil
}

func (t *Transaction) publish(ctx context.Context, kind EventKind) error {
	if t.hub == nil {
		return nil
	}
	return t.hub.Publish(ctx, Event{
		Kind:        kind,
		Transaction: t,
		Mode:        t.mode,
		Isolation:   t.isolation,
		Ambient:     t.ambient,
	})
}
