// Package pgxtx enlists PostgreSQL transactions in a coordinated
// transaction via pgx.
package pgxtx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

// Resource adapts a pgx transaction to the coordinator's resource
// interface.
type Resource struct {
	tx pgx.Tx
}

// New wraps an already-open pgx transaction.
func New(tx pgx.Tx) *Resource {
	return &Resource{tx: tx}
}

// Tx returns the underlying pgx transaction for running queries.
func (r *Resource) Tx() pgx.Tx {
	return r.tx
}

func (r *Resource) Commit(ctx context.Context) error {
	if err := r.tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgx commit: %w", err)
	}
	return nil
}

func (r *Resource) Rollback(ctx context.Context) error {
	if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("pgx rollback: %w", err)
	}
	return nil
}

// Begin opens a database transaction matching the coordinated
// transaction's isolation level and enlists it. The returned pgx.Tx is
// committed or rolled back by the coordinator; callers only run queries on
// it.
func Begin(ctx context.Context, pool *pgxpool.Pool, tx *txcoord.Transaction) (pgx.Tx, error) {
	dbtx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel(tx.Isolation())})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	if err := tx.Enlist(New(dbtx)); err != nil {
		_ = dbtx.Rollback(ctx)
		return nil, err
	}
	return dbtx, nil
}

// isoLevel maps the coordinator's isolation level onto pgx. Unspecified
// falls back to the server default.
func isoLevel(level txcoord.IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case txcoord.IsolationReadCommitted:
		return pgx.ReadCommitted
	case txcoord.IsolationRepeatableRead:
		return pgx.RepeatableRead
	case txcoord.IsolationSerializable:
		return pgx.Serializable
	default:
		return ""
	}
}
