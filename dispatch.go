package seriate

import (
	"context"

	"github.com/dogmatiq/dodeca/logging"
	"go.uber.org/multierr"
)

// SubmitFunc is a function that constructs, signs and submits the transaction
// bearing the sequence number seq.
//
// It must return a non-nil error if the transaction was not accepted for
// submission. Acceptance means entry into the ledger's pending pool, not
// confirmation.
type SubmitFunc func(ctx context.Context, seq uint64) error

// Dispatch reserves the next sequence number for the identity id, passes it
// to submit, and consumes the number only if submission succeeds.
//
// Unlike a bare Reserve() followed by Advance(), the identity's mutex is held
// for the full duration, so concurrent Dispatch() calls across processes are
// issued strictly consecutive sequence numbers. The lock's TTL still applies:
// a submission that outlives it reopens the window in which another process
// can be issued the same number.
//
// If submit returns an error the number is not consumed: the next Dispatch()
// or Reserve() call for the identity returns the same number, so a failed
// attempt can be retried without leaving a gap in the sequence.
//
// It returns the sequence number that was submitted.
func (a *Allocator) Dispatch(ctx context.Context, id string, submit SubmitFunc) (_ uint64, err error) {
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

	if err := a.submit(ctx, id, seq, submit); err != nil {
		return 0, err
	}

	return seq, nil
}

// DispatchAt submits a transaction at an explicit sequence number, bypassing
// reservation.
//
// It behaves as SetSequence() followed by Dispatch(), under a single lock
// hold: the identity's sequence is forced to seq before submission, so the
// shared delta counter never diverges from what was actually submitted.
// Subsequent sequence numbers for the identity continue from seq.
func (a *Allocator) DispatchAt(
	ctx context.Context,
	id string,
	seq uint64,
	submit SubmitFunc,
) (err error) {
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

	return a.submit(ctx, id, seq, submit)
}

// submit invokes submit with seq, and advances the identity's delta counter
// if submission succeeds.
func (a *Allocator) submit(ctx context.Context, id string, seq uint64, submit SubmitFunc) error {
	if err := submit(ctx, seq); err != nil {
		logging.Debug(
			a.logger,
			"sequence %d for '%s' was not consumed: %s",
			seq,
			id,
			err,
		)

		return err
	}

	return a.Advance(ctx, id, 1)
}
