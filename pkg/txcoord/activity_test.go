package txcoord_test

import (
	"context"
	"testing"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivity_PushPopCurrent(t *testing.T) {
	m := txcoord.NewManager()
	ctx := txcoord.WithActivity(context.Background())

	a := txcoord.NewActivity()
	first, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)
	second := first.CreateChild()

	a.Push(first)
	a.Push(second)
	assert.Equal(t, 2, a.Depth())
	assert.Same(t, second, a.Current())

	top, err := a.Pop()
	require.NoError(t, err)
	assert.Same(t, second, top)
	assert.Same(t, first, a.Current())

	top, err = a.Pop()
	require.NoError(t, err)
	assert.Same(t, first, top)
	assert.Nil(t, a.Current())
	assert.Equal(t, 0, a.Depth())
}

func TestActivity_PopEmpty(t *testing.T) {
	a := txcoord.NewActivity()
	tx, err := a.Pop()
	assert.ErrorIs(t, err, txcoord.ErrEmptyStack)
	assert.Nil(t, tx)
}

func TestWithActivity_DerivedContextsShareStack(t *testing.T) {
	m := txcoord.NewManager()
	ctx := txcoord.WithActivity(context.Background())

	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	require.NoError(t, err)

	derived, cancel := context.WithCancel(ctx)
	defer cancel()
	assert.Same(t, tx, m.CurrentTransaction(derived))
}

func TestContextActivityManager_MissingActivity(t *testing.T) {
	var am txcoord.ContextActivityManager
	a, err := am.Activity(context.Background())
	assert.ErrorIs(t, err, txcoord.ErrNoActivity)
	assert.Nil(t, a)
}
