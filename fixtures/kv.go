package fixtures

import (
	"context"
	"time"

	"github.com/dogmatiq/seriate/kv"
)

// StoreStub is a test implementation of the kv.Store interface.
type StoreStub struct {
	kv.Store

	SetIfAbsentFunc   func(context.Context, string, []byte, time.Duration) (bool, error)
	GetFunc           func(context.Context, string) ([]byte, bool, error)
	SetFunc           func(context.Context, string, []byte) error
	IncrByFunc        func(context.Context, string, int64) (int64, error)
	DeleteIfEqualFunc func(context.Context, string, []byte) (bool, error)
}

// SetIfAbsent sets the value of the key k to v only if k does not already
// have a value.
func (s *StoreStub) SetIfAbsent(
	ctx context.Context,
	k string,
	v []byte,
	ttl time.Duration,
) (bool, error) {
	if s.SetIfAbsentFunc != nil {
		return s.SetIfAbsentFunc(ctx, k, v, ttl)
	}

	if s.Store != nil {
		return s.Store.SetIfAbsent(ctx, k, v, ttl)
	}

	return false, nil
}

// Get returns the value of the key k.
func (s *StoreStub) Get(ctx context.Context, k string) ([]byte, bool, error) {
	if s.GetFunc != nil {
		return s.GetFunc(ctx, k)
	}

	if s.Store != nil {
		return s.Store.Get(ctx, k)
	}

	return nil, false, nil
}

// Set sets the value of the key k to v, regardless of its current value.
func (s *StoreStub) Set(ctx context.Context, k string, v []byte) error {
	if s.SetFunc != nil {
		return s.SetFunc(ctx, k, v)
	}

	if s.Store != nil {
		return s.Store.Set(ctx, k, v)
	}

	return nil
}

// IncrBy adds n to the integer value of the key k and returns the result.
func (s *StoreStub) IncrBy(ctx context.Context, k string, n int64) (int64, error) {
	if s.IncrByFunc != nil {
		return s.IncrByFunc(ctx, k, n)
	}

	if s.Store != nil {
		return s.Store.IncrBy(ctx, k, n)
	}

	return 0, nil
}

// DeleteIfEqual deletes the key k only if its current value is equal to v.
func (s *StoreStub) DeleteIfEqual(ctx context.Context, k string, v []byte) (bool, error) {
	if s.DeleteIfEqualFunc != nil {
		return s.DeleteIfEqualFunc(ctx, k, v)
	}

	if s.Store != nil {
		return s.Store.DeleteIfEqual(ctx, k, v)
	}

	return false, nil
}
