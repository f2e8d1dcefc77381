package txcoord_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishInSubscriptionOrder(t *testing.T) {
	h := txcoord.NewHub()
	var order []string

	h.Subscribe(txcoord.EventTransactionCreated, func(ctx context.Context, ev txcoord.Event) error {
		order = append(order, "a")
		return nil
	})
	h.Subscribe(txcoord.EventTransactionCreated, func(ctx context.Context, ev txcoord.Event) error {
		order = append(order, "b")
		return nil
	})
	h.Subscribe(txcoord.EventTransactionCreated, func(ctx context.Context, ev txcoord.Event) error {
		order = append(order, "c")
		return nil
	})

	err := h.Publish(context.Background(), txcoord.Event{Kind: txcoord.EventTransactionCreated})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestHub_SameSubscriberTwice(t *testing.T) {
	h := txcoord.NewHub()
	calls := 0
	fn := func(ctx context.Context, ev txcoord.Event) error {
		calls++
		return nil
	}

	h.Subscribe(txcoord.EventTransactionCommitted, fn)
	h.Subscribe(txcoord.EventTransactionCommitted, fn)

	require.NoError(t, h.Publish(context.Background(), txcoord.Event{Kind: txcoord.EventTransactionCommitted}))
	assert.Equal(t, 2, calls)
}

func TestHub_ErrorStopsDispatch(t *testing.T) {
	h := txcoord.NewHub()
	boom := errors.New("boom")
	reached := false

	h.Subscribe(txcoord.EventTransactionFailed, func(ctx context.Context, ev txcoord.Event) error {
		return boom
	})
	h.Subscribe(txcoord.EventTransactionFailed, func(ctx context.Context, ev txcoord.Event) error {
		reached = true
		return nil
	})

	err := h.Publish(context.Background(), txcoord.Event{Kind: txcoord.EventTransactionFailed})
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := txcoord.NewHub()
	calls := 0

	sub := h.Subscribe(txcoord.EventTransactionDisposed, func(ctx context.Context, ev txcoord.Event) error {
		calls++
		return nil
	})

	require.NoError(t, h.Publish(context.Background(), txcoord.Event{Kind: txcoord.EventTransactionDisposed}))
	assert.True(t, h.Unsubscribe(sub))
	require.NoError(t, h.Publish(context.Background(), txcoord.Event{Kind: txcoord.EventTransactionDisposed}))

	assert.Equal(t, 1, calls)
	assert.False(t, h.Unsubscribe(sub))
}

func TestHub_PublishUnknownKindIsNoop(t *testing.T) {
	h := txcoord.NewHub()
	err := h.Publish(context.Background(), txcoord.Event{Kind: txcoord.EventKind("nobody_listens")})
	assert.NoError(t, err)
}

func TestHub_KindsAreIndependent(t *testing.T) {
	h := txcoord.NewHub()
	committed := 0
	rolledBack := 0

	h.Subscribe(txcoord.EventTransactionCommitted, func(ctx context.Context, ev txcoord.Event) error {
		committed++
		return nil
	})
	h.Subscribe(txcoord.EventTransactionRolledBack, func(ctx context.Context, ev txcoord.Event) error {
		rolledBack++
		return nil
	})

	require.NoError(t, h.Publish(context.Background(), txcoord.Event{Kind: txcoord.EventTransactionCommitted}))
	assert.Equal(t, 1, committed)
	assert.Equal(t, 0, rolledBack)
}
