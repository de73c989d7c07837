package fixtures

import (
	"context"

	"github.com/dogmatiq/seriate/ledger"
)

// QuerierStub is a test implementation of the ledger.Querier interface.
type QuerierStub struct {
	ledger.Querier

	PendingSequenceFunc func(context.Context, string) (uint64, error)
}

// PendingSequence returns the sequence number of the next transaction that
// the ledger expects from the identity id.
func (q *QuerierStub) PendingSequence(ctx context.Context, id string) (uint64, error) {
	if q.PendingSequenceFunc != nil {
		return q.PendingSequenceFunc(ctx, id)
	}

	if q.Querier != nil {
		return q.Querier.PendingSequence(ctx, id)
	}

	return 0, nil
}
