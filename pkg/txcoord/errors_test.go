package txcoord_test

import (
	"errors"
	"testing"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
	"github.com/stretchr/testify/assert"
)

func TestTransactionError_WrapsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := txcoord.NewTransactionError("commit", "tx-42", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "tx-42")
	assert.Contains(t, err.Error(), "commit")
	assert.Contains(t, err.Error(), "socket closed")
}

func TestTransactionError_WithoutTxID(t *testing.T) {
	err := txcoord.NewTransactionError("create", "", txcoord.ErrAmbientUnsupported)
	assert.ErrorIs(t, err, txcoord.ErrAmbientUnsupported)
	assert.Equal(t, "create: ambient transactions unsupported", err.Error())
}

func TestParsePropagationMode(t *testing.T) {
	mode, err := txcoord.ParsePropagationMode("requires_new")
	assert.NoError(t, err)
	assert.Equal(t, txcoord.PropagationRequiresNew, mode)

	_, err = txcoord.ParsePropagationMode("mandatory")
	assert.ErrorIs(t, err, txcoord.ErrUnknownMode)
}
