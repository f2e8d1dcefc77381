package txcoord

import "context"

// Resource takes part in a transaction's outcome. Implementations wrap a
// concrete unit of work (a database transaction, a command pipeline, a
// remote registration) and apply or discard it when the coordinated
// transaction finishes.
//
// Commit and Rollback are synchronous and may block; callers needing
// timeouts or cancellation pass them through ctx.
type Resource interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AmbientBridge produces a resource that joins a transaction to a
// platform-wide ambient transaction context shared with cooperating
// processes. The bridge is a capability: a manager without a functioning
// bridge rejects ambient transactions at creation time.
type AmbientBridge interface {
	Enlist(ctx context.Context, tx *Transaction) (Resource, error)
}

// UnsupportedBridge is the default bridge. It fails every enlistment with
// ErrAmbientUnsupported.
type UnsupportedBridge struct{}

func (UnsupportedBridge) Enlist(ctx context.Context, tx *Transaction) (Resource, error) {
	return nil, ErrAmbientUnsupported
}
