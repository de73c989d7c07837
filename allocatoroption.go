package seriate

import (
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/seriate/mutex"
)

var (
	// DefaultLockTTL is the default expiry applied to an identity's lock
	// record in the store.
	//
	// It is overridden by the WithLockTTL() option.
	DefaultLockTTL = mutex.DefaultTTL

	// DefaultAcquireBackoff is the default strategy for waiting between lock
	// acquisition attempts when an identity's lock is contended.
	//
	// It is overridden by the WithAcquireBackoff() option.
	DefaultAcquireBackoff = mutex.DefaultBackoffStrategy

	// DefaultLogger is the default target for log messages produced by the
	// allocator.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// AllocatorOption configures the behavior of an allocator.
type AllocatorOption func(*allocatorOptions)

// WithLockTTL returns an allocator option that sets the expiry applied to an
// identity's lock record in the store.
//
// The TTL bounds how long a crashed process can block sequence allocation for
// an identity; it also bounds the window in which a stalled process's
// sequence numbers can collide with another process's. If this option is
// omitted or d is zero, DefaultLockTTL is used.
func WithLockTTL(d time.Duration) AllocatorOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *allocatorOptions) {
		opts.LockTTL = d
	}
}

// WithAcquireBackoff returns an allocator option that sets the strategy used
// to wait between lock acquisition attempts when an identity's lock is
// contended.
//
// If this option is omitted or s is nil, DefaultAcquireBackoff is used.
func WithAcquireBackoff(s backoff.Strategy) AllocatorOption {
	return func(opts *allocatorOptions) {
		opts.AcquireBackoff = s
	}
}

// WithLogger returns an allocator option that sets the target for log
// messages produced by the allocator.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) AllocatorOption {
	return func(opts *allocatorOptions) {
		opts.Logger = l
	}
}

// allocatorOptions is a container for a fully-resolved set of allocator
// options.
type allocatorOptions struct {
	LockTTL        time.Duration
	AcquireBackoff backoff.Strategy
	Logger         logging.Logger
}

// resolveAllocatorOptions returns a fully-populated allocatorOptions built
// from the given option functions.
func resolveAllocatorOptions(options ...AllocatorOption) *allocatorOptions {
	opts := &allocatorOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.LockTTL == 0 {
		opts.LockTTL = DefaultLockTTL
	}

	if opts.AcquireBackoff == nil {
		opts.AcquireBackoff = DefaultAcquireBackoff
	}

	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}

	return opts
}
