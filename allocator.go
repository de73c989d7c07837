// Package seriate allocates strictly increasing, non-colliding transaction
// sequence numbers to independent processes that share a signing identity.
package seriate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dogmatiq/cosyne"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/seriate/kv"
	"github.com/dogmatiq/seriate/ledger"
	"github.com/dogmatiq/seriate/mutex"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// Allocator hands out transaction sequence numbers for identities whose
// signing authority is shared by multiple independent processes.
//
// The next sequence number for an identity is the sum of two values: a
// "base", which is the ledger's pending sequence number as seen by this
// process when it first touched the identity, and a "delta", a shared counter
// in the store that records how many numbers have been reserved by any
// process since any base was established.
//
// One Allocator exists per process. Allocators in different processes
// coordinate exclusively through the shared store; a distributed mutex
// serializes their access to the delta counter.
type Allocator struct {
	store   kv.Store
	querier ledger.Querier
	mutex   *mutex.Mutex
	logger  logging.Logger

	m       cosyne.Mutex
	bases   map[string]uint64
	flights singleflight.Group
}

// New returns an allocator that coordinates sequence numbers via store, and
// obtains each identity's base sequence number from q.
func New(
	store kv.Store,
	q ledger.Querier,
	options ...AllocatorOption,
) *Allocator {
	opts := resolveAllocatorOptions(options...)

	return &Allocator{
		store:   store,
		querier: q,
		mutex: &mutex.Mutex{
			Store:           store,
			TTL:             opts.LockTTL,
			BackoffStrategy: opts.AcquireBackoff,
			Logger:          opts.Logger,
		},
		logger: opts.Logger,
	}
}

// Reserve returns the next sequence number to use for the identity id.
//
// Reserving does not consume the number. The same number is returned again by
// the next call to Reserve() unless Advance() is called in the interim, so a
// transaction that fails before it is submitted does not leave a gap in the
// sequence. Call Advance() once the transaction bearing the number has been
// accepted for submission.
func (a *Allocator) Reserve(ctx context.Context, id string) (_ uint64, err error) {
	base, err := a.base(ctx, id)
	if err != nil {
		return 0, err
	}

	token, err := a.mutex.Acquire(ctx, id)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Append(err, a.mutex.Release(ctx, id, token))
	}()

	delta, err := a.delta(ctx, id)
	if err != nil {
		return 0, err
	}

	seq := base + delta

	logging.Debug(
		a.logger,
		"reserved sequence %d for '%s' (base %d + delta %d)",
		seq,
		id,
		base,
		delta,
	)

	return seq, nil
}

// SetSequence forces the next sequence number for the identity id to seq.
//
// It discards the base established when the identity was first used and
// resets the shared delta counter to zero, resynchronizing every process
// against the new starting point. It is intended for callers that need to
// occupy a specific sequence slot, such as when resubmitting a stuck
// transaction.
func (a *Allocator) SetSequence(ctx context.Context, id string, seq uint64) (err error) {
	token, err := a.mutex.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, a.mutex.Release(ctx, id, token))
	}()

	if err := a.store.Set(ctx, deltaKey(id), []byte("0")); err != nil {
		return err
	}

	if err := a.setBase(ctx, id, seq); err != nil {
		return err
	}

	logging.Log(
		a.logger,
		"sequence for '%s' forced to %d",
		id,
		seq,
	)

	return nil
}

// Advance records that n sequence numbers reserved for the identity id have
// been consumed by submitted transactions.
//
// It must be called after each successful submission, otherwise the numbers
// are reissued by later calls to Reserve(). It uses the store's atomic
// increment and therefore does not need to hold the identity's mutex.
func (a *Allocator) Advance(ctx context.Context, id string, n uint64) error {
	_, err := a.store.IncrBy(ctx, deltaKey(id), int64(n))
	return err
}

// base returns the base sequence number for the identity id, querying the
// ledger if this is the first use of the identity in this process.
func (a *Allocator) base(ctx context.Context, id string) (uint64, error) {
	if err := a.m.Lock(ctx); err != nil {
		return 0, err
	}
	base, ok := a.bases[id]
	a.m.Unlock()

	if ok {
		return base, nil
	}

	v, err, _ := a.flights.Do(id, func() (interface{}, error) {
		base, err := a.querier.PendingSequence(ctx, id)
		if err != nil {
			return nil, fmt.Errorf(
				"unable to query the pending sequence for '%s': %w",
				id,
				err,
			)
		}

		if err := a.setBase(ctx, id, base); err != nil {
			return nil, err
		}

		logging.Debug(
			a.logger,
			"base sequence for '%s' established at %d",
			id,
			base,
		)

		return base, nil
	})
	if err != nil {
		return 0, err
	}

	return v.(uint64), nil
}

// setBase memoizes base as the base sequence number for the identity id for
// the remainder of the process lifetime.
func (a *Allocator) setBase(ctx context.Context, id string, base uint64) error {
	if err := a.m.Lock(ctx); err != nil {
		return err
	}
	defer a.m.Unlock()

	if a.bases == nil {
		a.bases = map[string]uint64{}
	}

	a.bases[id] = base

	return nil
}

// delta reads the shared delta counter for the identity id, treating an
// absent key as zero.
//
// It must only be called while the identity's mutex is held.
func (a *Allocator) delta(ctx context.Context, id string) (uint64, error) {
	v, ok, err := a.store.Get(ctx, deltaKey(id))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	delta, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf(
			"delta for '%s' is corrupt: %w",
			id,
			err,
		)
	}

	return delta, nil
}

// deltaKey returns the store key of the shared delta counter for the
// identity id.
func deltaKey(id string) string {
	return "delta:" + id
}
