package txcoord_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/txcoord/internal/testutil"
	"github.com/cassiomorais/txcoord/pkg/txcoord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() context.Context {
	return txcoord.WithActivity(context.Background())
}

func TestCreateTransaction_PropagationTable(t *testing.T) {
	tests := []struct {
		name        string
		mode        txcoord.PropagationMode
		withCurrent bool
		wantNil     bool
		wantErr     bool
		wantChild   bool
	}{
		{"requires, no current", txcoord.PropagationRequires, false, false, false, false},
		{"requires, current", txcoord.PropagationRequires, true, false, false, true},
		{"requires_new, no current", txcoord.PropagationRequiresNew, false, false, false, false},
		{"requires_new, current", txcoord.PropagationRequiresNew, true, false, false, false},
		{"supported, no current", txcoord.PropagationSupported, false, true, false, false},
		{"supported, current", txcoord.PropagationSupported, true, false, false, true},
		{"not_supported, no current", txcoord.PropagationNotSupported, false, true, false, false},
		{"not_supported, current", txcoord.PropagationNotSupported, true, false, true, false},
		{"unspecified, no current", txcoord.PropagationUnspecified, false, false, false, false},
		{"unspecified, current", txcoord.PropagationUnspecified, true, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := txcoord.NewManager()
			ctx := newTestContext()

			var current *txcoord.Transaction
			if tt.withCurrent {
				var err error
				current, err = m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
				require.NoError(t, err)
				require.NotNil(t, current)
			}

			tx, err := m.CreateTransaction(ctx, tt.mode, txcoord.IsolationUnspecified, false)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, txcoord.ErrPropagationConflict)
				assert.Nil(t, tx)
				return
			}
			require.NoError(t, err)

			if tt.wantNil {
				assert.Nil(t, tx)
				return
			}

			require.NotNil(t, tx)
			assert.Equal(t, txcoord.StatusActive, tx.Status())
			assert.Equal(t, tt.wantChild, tx.IsChild())
			if tt.wantChild {
				assert.Same(t, current, tx.Parent())
			} else {
				assert.Nil(t, tx.Parent())
			}
			assert.Same(t, tx, m.CurrentTransaction(ctx))
		})
	}
}

func TestCreateTransaction_RequiresNoCurrent_FullScenario(t *testing.T) {
	m := txcoord.NewManager()
	rec := testutil.NewEventRecorder()
	rec.SubscribeAll(m)
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationReadCommitted, false)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, txcoord.StatusActive, tx.Status())
	assert.False(t, tx.IsChild())
	assert.False(t, tx.IsAmbient())
	assert.Equal(t, txcoord.IsolationReadCommitted, tx.Isolation())
	assert.Equal(t, 1, rec.Count(txcoord.EventTransactionCreated))
	assert.Equal(t, 0, rec.Count(txcoord.EventChildTransactionCreated))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Same(t, tx, events[0].Transaction)
	assert.Equal(t, txcoord.PropagationRequires, events[0].Mode)
	assert.Equal(t, txcoord.IsolationReadCommitted, events[0].Isolation)
}

func TestCreateTransaction_RequiresWithCurrent_CreatesChild(t *testing.T) {
	m := txcoord.NewManager()
	rec := testutil.NewEventRecorder()
	rec.SubscribeAll(m)
	ctx := newTestContext()

	parent, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	child, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	require.NotNil(t, child)

	assert.True(t, child.IsChild())
	assert.Same(t, parent, child.Parent())
	assert.Equal(t, 1, rec.Count(txcoord.EventTransactionCreated))
	assert.Equal(t, 1, rec.Count(txcoord.EventChildTransactionCreated))
}

func TestCreateTransaction_SupportedNoCurrent_NoEventNoPush(t *testing.T) {
	m := txcoord.NewManager()
	rec := testutil.NewEventRecorder()
	rec.SubscribeAll(m)
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationSupported, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Nil(t, m.CurrentTransaction(ctx))
	assert.Empty(t, rec.Events())
}

func TestCreateTransaction_NotSupportedConflict_AnyIsolation(t *testing.T) {
	isolations := []txcoord.IsolationLevel{
		txcoord.IsolationUnspecified,
		txcoord.IsolationReadCommitted,
		txcoord.IsolationSerializable,
	}

	for _, iso := range isolations {
		m := txcoord.NewManager()
		ctx := newTestContext()

		_, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
		require.NoError(t, err)

		tx, err := m.CreateTransaction(ctx, txcoord.PropagationNotSupported, iso, false)
		assert.ErrorIs(t, err, txcoord.ErrPropagationConflict)
		assert.Nil(t, tx)
	}
}

func TestCreateTransaction_NotSupportedWithFinishedCurrent_ReturnsNil(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	current, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	require.NoError(t, current.Commit(ctx))

	// The current transaction is no longer Active, so there is no conflict,
	// but NotSupported still never creates a transaction.
	tx, err := m.CreateTransaction(ctx, txcoord.PropagationNotSupported, txcoord.IsolationUnspecified, false)
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestCreateTransaction_UnknownMode(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationMode("bogus"), txcoord.IsolationUnspecified, false)
	assert.ErrorIs(t, err, txcoord.ErrUnknownMode)
	assert.Nil(t, tx)
}

func TestCreateTransaction_DefaultModeConfigurable(t *testing.T) {
	m := txcoord.NewManager(txcoord.WithDefaultMode(txcoord.PropagationSupported))
	ctx := newTestContext()

	// Unspecified resolves to Supported, which with no current transaction
	// means no transaction at all.
	tx, err := m.CreateTransaction(ctx, txcoord.PropagationUnspecified, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestCreateTransaction_NoActivityInContext(t *testing.T) {
	m := txcoord.NewManager()

	tx, err := m.CreateTransaction(context.Background(), txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	assert.ErrorIs(t, err, txcoord.ErrNoActivity)
	assert.Nil(t, tx)
	assert.Nil(t, m.CurrentTransaction(context.Background()))
}

func TestCreateTransaction_Ambient_DefaultBridgeUnsupported(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, true)
	assert.ErrorIs(t, err, txcoord.ErrAmbientUnsupported)
	assert.Nil(t, tx)
	assert.Nil(t, m.CurrentTransaction(ctx))
}

func TestCreateTransaction_Ambient_BridgeEnlists(t *testing.T) {
	res := testutil.NewMockResource()
	bridge := testutil.NewFakeBridge(res)
	m := txcoord.NewManager(txcoord.WithAmbientBridge(bridge))
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, true)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.True(t, tx.IsAmbient())
	assert.Equal(t, 1, tx.EnlistedCount())
	require.Len(t, bridge.Enlisted(), 1)
	assert.Same(t, tx, bridge.Enlisted()[0])

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, res.Commits())
}

func TestCreateTransaction_SubscriberErrorPropagatesAndKeepsStackBalanced(t *testing.T) {
	m := txcoord.NewManager()
	boom := errors.New("subscriber veto")
	m.Subscribe(txcoord.EventTransactionCreated, func(ctx context.Context, ev txcoord.Event) error {
		return boom
	})
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, tx)
	assert.Nil(t, m.CurrentTransaction(ctx))
}

func TestDispose_NilTransaction(t *testing.T) {
	m := txcoord.NewManager()
	err := m.Dispose(newTestContext(), nil)
	assert.ErrorIs(t, err, txcoord.ErrNilTransaction)
}

func TestDispose_NotCurrent_NeverMutatesStack(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	parent, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	child, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	err = m.Dispose(ctx, parent)
	assert.ErrorIs(t, err, txcoord.ErrNotCurrent)
	assert.Same(t, child, m.CurrentTransaction(ctx))
}

func TestDispose_RestoresPreviousCurrent(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	before := m.CurrentTransaction(ctx)
	require.Nil(t, before)

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, m.Dispose(ctx, tx))

	assert.Nil(t, m.CurrentTransaction(ctx))
	assert.Equal(t, txcoord.StatusDisposed, tx.Status())
}

func TestDispose_FiresDisposedAndClosesResources(t *testing.T) {
	m := txcoord.NewManager()
	rec := testutil.NewEventRecorder()
	rec.SubscribeAll(m)
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	res := testutil.NewMockResource()
	require.NoError(t, tx.Enlist(res))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, m.Dispose(ctx, tx))

	assert.Equal(t, 1, rec.Count(txcoord.EventTransactionDisposed))
	assert.Equal(t, 1, res.Closes())
}

func TestDispose_ActiveTransaction_RollsBackFirst(t *testing.T) {
	m := txcoord.NewManager()
	rec := testutil.NewEventRecorder()
	rec.SubscribeAll(m)
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	res := testutil.NewMockResource()
	require.NoError(t, tx.Enlist(res))
	require.NoError(t, m.Dispose(ctx, tx))

	assert.Equal(t, txcoord.StatusDisposed, tx.Status())
	assert.Equal(t, 1, res.Rollbacks())
	assert.Equal(t, 1, rec.Count(txcoord.EventTransactionRolledBack))
	assert.Equal(t, 1, rec.Count(txcoord.EventTransactionDisposed))
}

func TestDispose_Twice(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, m.Dispose(ctx, tx))

	err = m.Dispose(ctx, tx)
	assert.ErrorIs(t, err, txcoord.ErrNotCurrent)
}

func TestChild_CommitDoesNotTouchParent(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	parent, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	child, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	require.NoError(t, child.Commit(ctx))
	assert.Equal(t, txcoord.StatusCommitted, child.Status())
	assert.Equal(t, txcoord.StatusActive, parent.Status())
}

func TestChild_PushesExactlyOneFrame(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	parent, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	child, err := m.CreateTransaction(ctx, txcoord.PropagationSupported, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	require.NoError(t, child.Commit(ctx))
	require.NoError(t, m.Dispose(ctx, child))
	assert.Same(t, parent, m.CurrentTransaction(ctx))
}

func TestChild_FailureDoesNotCascadeByDefault(t *testing.T) {
	m := txcoord.NewManager()
	ctx := newTestContext()

	parent, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	child, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	res := testutil.NewMockResource()
	res.CommitFunc = func(ctx context.Context) error { return errors.New("disk full") }
	require.NoError(t, child.Enlist(res))

	err = child.Commit(ctx)
	require.Error(t, err)
	assert.Equal(t, txcoord.StatusFailed, child.Status())
	assert.Equal(t, txcoord.StatusActive, parent.Status())
}

func TestChild_FailureCascadesWhenEnabled(t *testing.T) {
	m := txcoord.NewManager(txcoord.WithFailureCascade())
	rec := testutil.NewEventRecorder()
	rec.SubscribeAll(m)
	ctx := newTestContext()

	parent, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	child, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	res := testutil.NewMockResource()
	res.CommitFunc = func(ctx context.Context) error { return errors.New("disk full") }
	require.NoError(t, child.Enlist(res))

	err = child.Commit(ctx)
	require.Error(t, err)
	assert.Equal(t, txcoord.StatusFailed, child.Status())
	assert.Equal(t, txcoord.StatusFailed, parent.Status())
	// One failed event for the child, one for the cascaded parent.
	assert.Equal(t, 2, rec.Count(txcoord.EventTransactionFailed))
}

func TestSetActivityManager_RejectsNil(t *testing.T) {
	m := txcoord.NewManager()
	err := m.SetActivityManager(nil)
	assert.ErrorIs(t, err, txcoord.ErrNilActivityManager)
	assert.NotNil(t, m.ActivityManager())
}

type fixedActivityManager struct {
	activity *txcoord.Activity
}

func (f *fixedActivityManager) Activity(ctx context.Context) (*txcoord.Activity, error) {
	return f.activity, nil
}

func TestSetActivityManager_PluggableStore(t *testing.T) {
	m := txcoord.NewManager()
	fixed := &fixedActivityManager{activity: txcoord.NewActivity()}
	require.NoError(t, m.SetActivityManager(fixed))

	// A plain context works now: the fixed manager ignores it.
	ctx := context.Background()
	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Same(t, tx, fixed.activity.Current())
}

func TestManager_IndependentContextsDoNotShareStacks(t *testing.T) {
	m := txcoord.NewManager()
	ctx1 := newTestContext()
	ctx2 := newTestContext()

	tx1, err := m.CreateTransaction(ctx1, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	assert.Nil(t, m.CurrentTransaction(ctx2))
	assert.Same(t, tx1, m.CurrentTransaction(ctx1))

	tx2, err := m.CreateTransaction(ctx2, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	assert.False(t, tx2.IsChild())
}
