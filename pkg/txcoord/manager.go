package txcoord

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager coordinates local transactions: it decides the propagation
// outcome for each request, creates and nests transactions, maintains the
// per-context activity stack, publishes lifecycle notifications and
// disposes finished transactions.
//
// A Manager is shared across logical contexts and safe for concurrent use;
// contexts never contend with each other because each one owns its own
// activity stack.
type Manager struct {
	mu         sync.RWMutex
	activities ActivityManager

	hub         *Hub
	bridge      AmbientBridge
	log         zerolog.Logger
	defaultMode PropagationMode
	cascade     bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the diagnostic logging sink. The default is a no-op
// logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithAmbientBridge installs the bridge used to join ambient transactions
// to a platform-wide transaction context.
func WithAmbientBridge(b AmbientBridge) Option {
	return func(m *Manager) { m.bridge = b }
}

// WithDefaultMode sets the mode that PropagationUnspecified resolves to.
// The default is PropagationRequires.
func WithDefaultMode(mode PropagationMode) Option {
	return func(m *Manager) { m.defaultMode = mode }
}

// WithFailureCascade makes a failing child transaction mark its Active
// ancestors Failed. The default is off: committing or failing a child never
// touches the parent.
func WithFailureCascade() Option {
	return func(m *Manager) { m.cascade = true }
}

// WithActivityManager sets the activity resolution strategy. The default
// resolves activities attached to the context by WithActivity.
func WithActivityManager(am ActivityManager) Option {
	return func(m *Manager) {
		if am != nil {
			m.activities = am
		}
	}
}

// NewManager creates a Manager with the given options applied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		activities:  ContextActivityManager{},
		hub:         NewHub(),
		bridge:      UnsupportedBridge{},
		log:         zerolog.Nop(),
		defaultMode: PropagationRequires,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for lifecycle events of the given kind.
func (m *Manager) Subscribe(kind EventKind, fn Subscriber) Subscription {
	return m.hub.Subscribe(kind, fn)
}

// Unsubscribe removes a previously registered subscriber.
func (m *Manager) Unsubscribe(sub Subscription) bool {
	return m.hub.Unsubscribe(sub)
}

// Hub returns the manager's notification hub.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// SetActivityManager swaps the activity resolution strategy. A nil manager
// is rejected.
func (m *Manager) SetActivityManager(am ActivityManager) error {
	if am == nil {
		return fmt.Errorf("set activity manager: %w", ErrNilActivityManager)
	}
	m.mu.Lock()
	m.activities = am
	m.mu.Unlock()
	return nil
}

// ActivityManager returns the current activity resolution strategy.
func (m *Manager) ActivityManager() ActivityManager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activities
}

func (m *Manager) activityFor(ctx context.Context) (*Activity, error) {
	return m.ActivityManager().Activity(ctx)
}

// CurrentTransaction returns the transaction on top of the context's
// activity stack, or nil when the context has no activity or no
// transaction.
func (m *Manager) CurrentTransaction(ctx context.Context) *Transaction {
	act, err := m.activityFor(ctx)
	if err != nil {
		return nil
	}
	return act.Current()
}

// CreateTransaction decides the propagation outcome for the requested mode
// against the context's current transaction:
//
//	mode          | no current txn      | current txn exists
//	--------------+---------------------+--------------------
//	requires      | create new          | create child
//	requires_new  | create new          | create new
//	supported     | nil (no txn)        | create child
//	not_supported | nil (no txn)        | error if current is Active
//	unspecified   | resolve default mode and retry
//
// A non-nil transaction is pushed onto the context's activity stack before
// it is returned, and the corresponding created event is published. The
// (nil, nil) outcome means the caller proceeds non-transactionally.
func (m *Manager) CreateTransaction(ctx context.Context, mode PropagationMode, iso IsolationLevel, ambient bool) (*Transaction, error) {
	if mode == PropagationUnspecified || mode == "" {
		mode = m.defaultMode
	}
	if !mode.Valid() {
		return nil, NewTransactionError("create", "", fmt.Errorf("%w: %q", ErrUnknownMode, mode))
	}

	act, err := m.activityFor(ctx)
	if err != nil {
		return nil, NewTransactionError("create", "", err)
	}
	current := act.Current()

	if mode == PropagationNotSupported {
		if current != nil && current.Status() == StatusActive {
			return nil, NewTransactionError("create", current.id,
				fmt.Errorf("%w: %s requested while %s is active", ErrPropagationConflict, mode, current.id))
		}
		return nil, nil
	}

	if current == nil && mode == PropagationSupported {
		return nil, nil
	}

	if current != nil && (mode == PropagationRequires || mode == PropagationSupported) {
		return m.createChild(ctx, act, current, mode, iso)
	}

	return m.createTopLevel(ctx, act, mode, iso, ambient)
}

func (m *Manager) createChild(ctx context.Context, act *Activity, parent *Transaction, mode PropagationMode, iso IsolationLevel) (*Transaction, error) {
	child := parent.createChild(mode)
	if m.cascade {
		child.onFailed = m.cascadeFailure
	}

	act.Push(child)
	ev := Event{
		Kind:        EventChildTransactionCreated,
		Transaction: child,
		Mode:        mode,
		Isolation:   iso,
	}
	if err := m.hub.Publish(ctx, ev); err != nil {
		// Keep the stack balanced when a subscriber vetoes the creation.
		_, _ = act.Pop()
		return nil, err
	}

	m.log.Debug().
		Str("transaction_id", child.id).
		Str("parent_id", parent.id).
		Str("mode", string(mode)).
		Msg("child transaction created")
	return child, nil
}

func (m *Manager) createTopLevel(ctx context.Context, act *Activity, mode PropagationMode, iso IsolationLevel, ambient bool) (*Transaction, error) {
	tx := newTransaction(uuid.NewString(), mode, iso, ambient, nil, m.hub, m.log)

	if ambient {
		res, err := m.bridge.Enlist(ctx, tx)
		if err != nil {
			return nil, NewTransactionError("create", tx.id, err)
		}
		if err := tx.Enlist(res); err != nil {
			return nil, err
		}
	}

	act.Push(tx)
	ev := Event{
		Kind:        EventTransactionCreated,
		Transaction: tx,
		Mode:        mode,
		Isolation:   iso,
		Ambient:     ambient,
	}
	if err := m.hub.Publish(ctx, ev); err != nil {
		_, _ = act.Pop()
		return nil, err
	}

	m.log.Debug().
		Str("transaction_id", tx.id).
		Str("mode", string(mode)).
		Str("isolation", string(iso)).
		Bool("ambient", ambient).
		Msg("transaction created")
	return tx, nil
}

// Dispose pops tx from the context's activity stack, releases its
// resources and publishes TransactionDisposed. Only the current top of
// stack may be disposed; anything else is a programming error and leaves
// the stack untouched. A transaction still Active at disposal is rolled
// back first.
func (m *Manager) Dispose(ctx context.Context, tx *Transaction) error {
	if tx == nil {
		return fmt.Errorf("dispose: %w", ErrNilTransaction)
	}

	act, err := m.activityFor(ctx)
	if err != nil {
		return NewTransactionError("dispose", tx.id, err)
	}
	if act.Current() != tx {
		return fmt.Errorf("dispose transaction %s: %w", tx.id, ErrNotCurrent)
	}

	if tx.Status() == StatusActive {
		if err := tx.Rollback(ctx); err != nil {
			return err
		}
	}

	if _, err := act.Pop(); err != nil {
		return NewTransactionError("dispose", tx.id, err)
	}
	if err := tx.dispose(); err != nil {
		return err
	}

	m.log.Debug().Str("transaction_id", tx.id).Msg("transaction disposed")
	return m.hub.Publish(ctx, Event{
		Kind:        EventTransactionDisposed,
		Transaction: tx,
		Mode:        tx.mode,
		Isolation:   tx.isolation,
		Ambient:     tx.ambient,
	})
}

// cascadeFailure marks Active ancestors of a failed child as Failed,
// publishing TransactionFailed for each. Notification failures here are
// logged, not raised: the original commit error must stay visible.
func (m *Manager) cascadeFailure(ctx context.Context, child *Transaction) {
	for p := child.Parent(); p != nil; p = p.Parent() {
		if p.Status() != StatusActive {
			continue
		}
		if err := p.transitionTo(StatusFailed); err != nil {
			continue
		}
		m.log.Warn().
			Str("transaction_id", p.id).
			Str("failed_child_id", child.id).
			Msg("transaction failed by child cascade")
		if err := p.publish(ctx, EventTransactionFailed); err != nil {
			m.log.Warn().Err(err).Str("transaction_id", p.id).Msg("cascade failure notification failed")
		}
	}
}
