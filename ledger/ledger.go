package ledger

import "context"

// Querier is an interface for querying a remote ledger for the authoritative
// state of an identity's transaction sequence.
//
// The allocator issues a single pending-sequence query per identity per
// process; the answer serves as the zero-point that the shared delta counter
// is added to.
type Querier interface {
	// PendingSequence returns the sequence number that the next transaction
	// submitted by the identity id must carry, accounting for transactions
	// that are already in the ledger's pending pool.
	PendingSequence(ctx context.Context, id string) (uint64, error)
}

// QuerierFunc is an adaptor to allow the use of an ordinary function as a
// Querier.
type QuerierFunc func(ctx context.Context, id string) (uint64, error)

// PendingSequence returns fn(ctx, id).
func (fn QuerierFunc) PendingSequence(ctx context.Context, id string) (uint64, error) {
	return fn(ctx, id)
}
