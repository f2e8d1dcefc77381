// Package ambient implements the platform-wide transaction bridge. A
// coordinated transaction created with the ambient flag is registered in
// Redis under a shared key, so cooperating processes observe one ambient
// transaction context and its final outcome.
package ambient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/cassiomorais/txcoord/pkg/retry"
	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

const keyPrefix = "ambient:tx:"

// RedisBridge registers ambient transactions in Redis. Registration is the
// remote call that can fail or hang, so it runs behind a circuit breaker
// with retries; once the breaker opens, ambient transaction creation fails
// fast until Redis recovers.
type RedisBridge struct {
	client  *redis.Client
	ttl     time.Duration
	retry   retry.Config
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     zerolog.Logger
}

// NewRedisBridge creates a bridge registering transactions with the given
// TTL. The TTL bounds how long a crashed process can leave a stale
// registration behind.
func NewRedisBridge(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisBridge {
	b := &RedisBridge{
		client: client,
		ttl:    ttl,
		log:    log,
	}
	b.retry = retry.DefaultConfig()
	b.retry.OnRetry = func(attempt uint, err error) {
		log.Warn().Err(err).Uint("attempt", attempt).Msg("ambient registration retry")
	}
	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "ambient-redis",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
	return b
}

// Enlist registers tx in the shared ambient context and returns the
// resource that publishes the transaction's outcome to it.
func (b *RedisBridge) Enlist(ctx context.Context, tx *txcoord.Transaction) (txcoord.Resource, error) {
	key := keyPrefix + tx.ID()

	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, retry.Do(ctx, b.retry, func() error {
			return b.client.SetNX(ctx, key, string(txcoord.StatusActive), b.ttl).Err()
		})
	})
	if err != nil {
		return nil, fmt.Errorf("register ambient transaction: %w", err)
	}

	b.log.Debug().Str("transaction_id", tx.ID()).Str("key", key).Msg("ambient transaction registered")
	return &ambientResource{
		client: b.client,
		key:    key,
		ttl:    b.ttl,
	}, nil
}

// ambientResource publishes the transaction outcome to the shared
// registration.
type ambientResource struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func (r *ambientResource) Commit(ctx context.Context) error {
	if err := r.client.Set(ctx, r.key, string(txcoord.StatusCommitted), r.ttl).Err(); err != nil {
		return fmt.Errorf("mark ambient transaction committed: %w", err)
	}
	return nil
}

func (r *ambientResource) Rollback(ctx context.Context) error {
	if err := r.client.Set(ctx, r.key, string(txcoord.StatusRolledBack), r.ttl).Err(); err != nil {
		return fmt.Errorf("mark ambient transaction rolled back: %w", err)
	}
	return nil
}
