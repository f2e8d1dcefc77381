package txcoord

import (
	"errors"
	"fmt"
)

var (
	// Propagation errors
	ErrPropagationConflict = errors.New("propagation mode conflicts with active transaction")
	ErrUnknownMode         = errors.New("unknown propagation mode")
	ErrAmbientUnsupported  = errors.New("ambient transactions unsupported")

	// Argument errors
	ErrNilTransaction     = errors.New("transaction is nil")
	ErrNilResource        = errors.New("resource is nil")
	ErrNilActivityManager = errors.New("activity manager is nil")
	ErrNotCurrent         = errors.New("transaction is not the current transaction")

	// State errors
	ErrNoActivity        = errors.New("no activity bound to context")
	ErrEmptyStack        = errors.New("activity stack is empty")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotActive         = errors.New("transaction is not active")
)

// TransactionError wraps a failure raised while coordinating a transaction.
// It carries the operation that failed and the transaction it belongs to.
type TransactionError struct {
	Op   string
	TxID string
	Err  error
}

func (e *TransactionError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("transaction %s: %s: %v", e.TxID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// NewTransactionError creates a new transaction error.
func NewTransactionError(op, txID string, err error) *TransactionError {
	return &TransactionError{
		Op:   op,
		TxID: txID,
		Err:  err,
	}
}
