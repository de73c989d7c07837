package mutex

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/seriate/kv"
	"github.com/google/uuid"
)

// DefaultTTL is the default expiry applied to lock records.
//
// A lock that is not released within this duration may be taken over by
// another process. This is the sole mechanism that prevents a crashed holder
// from blocking other processes forever.
const DefaultTTL = 3 * time.Second

// DefaultBackoffStrategy is the default strategy for waiting between
// acquisition attempts when the lock is contended.
//
// The n'th wait is a random duration up to n * 50ms, never exceeding 2
// seconds, which bounds convoy effects under contention while capping the
// maximum single wait.
var DefaultBackoffStrategy backoff.Strategy = backoff.WithTransforms(
	func(_ error, n uint) time.Duration {
		return time.Duration(n+1) * 50 * time.Millisecond
	},
	linger.Limiter(0, 2*time.Second),
	linger.FullJitter,
)

// ErrAlreadyHeld is returned by Mutex.Acquire() if the lock is already held,
// or in the process of being acquired, by this instance.
//
// It indicates a programming error in the caller. Acquire() fails fast in
// this case rather than deadlocking until the existing lock's TTL elapses.
var ErrAlreadyHeld = errors.New("mutex is already held by this instance")

// Mutex provides mutual exclusion for a named resource across independent
// processes that share only a kv.Store.
//
// A lock is an ephemeral key containing a token that is unique to the
// acquiring attempt. The token is returned by Acquire() and must be passed
// back to Release(), which deletes the lock only if the token still matches.
// A Mutex has no shared mutable lock state of its own beyond the set of names
// it currently holds, which exists solely to detect re-entrant acquisition.
type Mutex struct {
	// Store is the shared store used to coordinate between processes.
	Store kv.Store

	// TTL is the expiry applied to lock records.
	// If it is zero, DefaultTTL is used.
	TTL time.Duration

	// BackoffStrategy is the strategy used to wait between acquisition
	// attempts. If it is nil, DefaultBackoffStrategy is used.
	BackoffStrategy backoff.Strategy

	// Logger is the target for messages about contention and expired locks.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger

	m    sync.Mutex
	held map[string]struct{}
}

// Acquire acquires the lock for the resource named n.
//
// It blocks, retrying with backoff, until the lock is acquired or ctx is
// canceled. Contention is never an error; only a failure to communicate with
// the store causes Acquire() to fail.
//
// It returns an opaque token that must be passed to Release() to release the
// lock.
func (m *Mutex) Acquire(ctx context.Context, n string) (string, error) {
	if err := m.markHeld(n); err != nil {
		return "", err
	}

	token := uuid.NewString()
	counter := backoff.Counter{
		Strategy: m.strategy(),
	}

	for {
		ok, err := m.Store.SetIfAbsent(
			ctx,
			lockKey(n),
			[]byte(token),
			m.ttl(),
		)
		if err != nil {
			m.unmarkHeld(n)
			return "", err
		}

		if ok {
			return token, nil
		}

		logging.Debug(
			m.Logger,
			"lock on '%s' is contended, waiting to retry",
			n,
		)

		if err := counter.Sleep(ctx, nil); err != nil {
			m.unmarkHeld(n)
			return "", err
		}
	}
}

// Release releases the lock for the resource named n.
//
// token must be the value returned by the Acquire() call being released. If
// the lock has already expired, or has been taken over by another process
// since it expired, Release() is a no-op, not an error.
func (m *Mutex) Release(ctx context.Context, n, token string) error {
	defer m.unmarkHeld(n)

	ok, err := m.Store.DeleteIfEqual(
		ctx,
		lockKey(n),
		[]byte(token),
	)
	if err != nil {
		return err
	}

	if !ok {
		logging.Debug(
			m.Logger,
			"lock on '%s' expired before it was released",
			n,
		)
	}

	return nil
}

// markHeld records that this instance holds, or is acquiring, the lock for
// the resource named n.
func (m *Mutex) markHeld(n string) error {
	m.m.Lock()
	defer m.m.Unlock()

	if _, ok := m.held[n]; ok {
		return ErrAlreadyHeld
	}

	if m.held == nil {
		m.held = map[string]struct{}{}
	}

	m.held[n] = struct{}{}

	return nil
}

// unmarkHeld removes the record that this instance holds the lock for the
// resource named n.
func (m *Mutex) unmarkHeld(n string) {
	m.m.Lock()
	defer m.m.Unlock()

	delete(m.held, n)
}

// ttl returns the expiry to apply to lock records.
func (m *Mutex) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}

	return DefaultTTL
}

// strategy returns the backoff strategy used to wait between acquisition
// attempts.
func (m *Mutex) strategy() backoff.Strategy {
	if m.BackoffStrategy != nil {
		return m.BackoffStrategy
	}

	return DefaultBackoffStrategy
}

// lockKey returns the store key of the lock record for the resource named n.
func lockKey(n string) string {
	return "lock:" + n
}
