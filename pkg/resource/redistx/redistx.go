// Package redistx enlists a Redis command pipeline in a coordinated
// transaction. Commands are staged on a MULTI/EXEC pipeline and only sent
// when the coordinator commits; rollback discards the staged commands.
package redistx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

// Resource adapts a Redis transaction pipeline to the coordinator's
// resource interface.
type Resource struct {
	pipe redis.Pipeliner
}

// New creates a resource backed by a fresh transaction pipeline on client.
func New(client *redis.Client) *Resource {
	return &Resource{pipe: client.TxPipeline()}
}

// Pipeline returns the staged pipeline. Callers queue commands on it; the
// coordinator decides whether they execute.
func (r *Resource) Pipeline() redis.Pipeliner {
	return r.pipe
}

func (r *Resource) Commit(ctx context.Context) error {
	if _, err := r.pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

func (r *Resource) Rollback(ctx context.Context) error {
	r.pipe.Discard()
	return nil
}

// Enlist creates a pipeline resource on client and enlists it in tx,
// returning the pipeline for staging commands.
func Enlist(client *redis.Client, tx *txcoord.Transaction) (redis.Pipeliner, error) {
	res := New(client)
	if err := tx.Enlist(res); err != nil {
		res.pipe.Discard()
		return nil, err
	}
	return res.pipe, nil
}
