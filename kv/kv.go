package kv

import (
	"context"
	"time"
)

// Store is an interface for the shared key-value store used to coordinate
// sequence-number allocation across processes.
//
// It is the only mutable state shared by the processes that allocate sequence
// numbers for a given identity. The allocator requires exactly five
// primitives, all of which must be atomic at the store level.
type Store interface {
	// SetIfAbsent sets the value of the key k to v only if k does not already
	// have a value.
	//
	// If ttl is positive, the key expires and is removed from the store after
	// that duration has elapsed.
	//
	// It returns true if the value was set, or false if the key already had a
	// value.
	SetIfAbsent(ctx context.Context, k string, v []byte, ttl time.Duration) (bool, error)

	// Get returns the value of the key k.
	//
	// It returns false if k does not have a value.
	Get(ctx context.Context, k string) ([]byte, bool, error)

	// Set sets the value of the key k to v, regardless of its current value.
	Set(ctx context.Context, k string, v []byte) error

	// IncrBy adds n to the integer value of the key k and returns the result.
	//
	// A key without a value is treated as zero. The value is stored as a
	// decimal string. It is an error to call IncrBy() on a key that holds a
	// non-integer value.
	IncrBy(ctx context.Context, k string, n int64) (int64, error)

	// DeleteIfEqual deletes the key k only if its current value is equal to v.
	//
	// It returns true if the key was deleted. A false result is not an error;
	// it indicates that k had no value, or a value other than v.
	DeleteIfEqual(ctx context.Context, k string, v []byte) (bool, error)
}
