package observability

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

var allEventKinds = []txcoord.EventKind{
	txcoord.EventTransactionCreated,
	txcoord.EventChildTransactionCreated,
	txcoord.EventTransactionCommitted,
	txcoord.EventTransactionRolledBack,
	txcoord.EventTransactionFailed,
	txcoord.EventTransactionDisposed,
}

// RegisterLogging subscribes a structured-log subscriber for every
// lifecycle event kind.
func RegisterLogging(m *txcoord.Manager, log zerolog.Logger) {
	sub := func(ctx context.Context, ev txcoord.Event) error {
		log.Info().
			Str("event", string(ev.Kind)).
			Str("transaction_id", ev.Transaction.ID()).
			Str("mode", string(ev.Mode)).
			Str("status", string(ev.Transaction.Status())).
			Bool("ambient", ev.Ambient).
			Msg("transaction lifecycle event")
		return nil
	}
	for _, kind := range allEventKinds {
		m.Subscribe(kind, sub)
	}
}

// metricsTracker feeds transaction metrics from lifecycle events. It keeps
// creation timestamps and outcomes per transaction so disposal can observe
// a duration labeled with the final outcome.
type metricsTracker struct {
	metrics *Metrics

	mu      sync.Mutex
	started map[string]time.Time
	outcome map[string]string
}

// RegisterMetrics subscribes a metrics-feeding subscriber for every
// lifecycle event kind.
func RegisterMetrics(m *txcoord.Manager, metrics *Metrics) {
	t := &metricsTracker{
		metrics: metrics,
		started: make(map[string]time.Time),
		outcome: make(map[string]string),
	}
	for _, kind := range allEventKinds {
		m.Subscribe(kind, t.handle)
	}
}

func (t *metricsTracker) handle(ctx context.Context, ev txcoord.Event) error {
	t.metrics.TransactionsTotal.WithLabelValues(string(ev.Mode), string(ev.Kind)).Inc()

	id := ev.Transaction.ID()
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case txcoord.EventTransactionCreated, txcoord.EventChildTransactionCreated:
		t.started[id] = time.Now()
		t.metrics.ActiveTransactions.Inc()
	case txcoord.EventTransactionCommitted:
		t.outcome[id] = "committed"
	case txcoord.EventTransactionRolledBack:
		t.outcome[id] = "rolled_back"
	case txcoord.EventTransactionFailed:
		t.outcome[id] = "failed"
	case txcoord.EventTransactionDisposed:
		if startedAt, ok := t.started[id]; ok {
			outcome := t.outcome[id]
			if outcome == "" {
				outcome = "disposed"
			}
			t.metrics.TransactionDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
			t.metrics.ActiveTransactions.Dec()
			delete(t.started, id)
			delete(t.outcome, id)
		}
	}
	return nil
}
