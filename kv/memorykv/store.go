package memorykv

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Store is an implementation of kv.Store that keeps values in memory.
//
// It is intended for use in tests and in single-process deployments. All
// operations are atomic with respect to one another.
type Store struct {
	m       sync.Mutex
	entries map[string]entry
}

// entry is a single key's value and optional expiry time.
type entry struct {
	value   []byte
	expires time.Time // zero = never expires
}

// SetIfAbsent sets the value of the key k to v only if k does not already
// have a value.
func (s *Store) SetIfAbsent(
	_ context.Context,
	k string,
	v []byte,
	ttl time.Duration,
) (bool, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, ok := s.get(k); ok {
		return false, nil
	}

	e := entry{value: cloneBytes(v)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}

	s.put(k, e)

	return true, nil
}

// Get returns the value of the key k.
func (s *Store) Get(_ context.Context, k string) ([]byte, bool, error) {
	s.m.Lock()
	defer s.m.Unlock()

	e, ok := s.get(k)
	if !ok {
		return nil, false, nil
	}

	return cloneBytes(e.value), true, nil
}

// Set sets the value of the key k to v, regardless of its current value.
func (s *Store) Set(_ context.Context, k string, v []byte) error {
	s.m.Lock()
	defer s.m.Unlock()

	s.put(k, entry{value: cloneBytes(v)})

	return nil
}

// IncrBy adds n to the integer value of the key k and returns the result.
func (s *Store) IncrBy(_ context.Context, k string, n int64) (int64, error) {
	s.m.Lock()
	defer s.m.Unlock()

	var cur int64
	if e, ok := s.get(k); ok {
		var err error
		cur, err = strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf(
				"value of '%s' is not an integer",
				k,
			)
		}
	}

	cur += n
	s.put(
		k,
		entry{
			value: strconv.AppendInt(nil, cur, 10),
		},
	)

	return cur, nil
}

// DeleteIfEqual deletes the key k only if its current value is equal to v.
func (s *Store) DeleteIfEqual(_ context.Context, k string, v []byte) (bool, error) {
	s.m.Lock()
	defer s.m.Unlock()

	e, ok := s.get(k)
	if !ok || !bytes.Equal(e.value, v) {
		return false, nil
	}

	delete(s.entries, k)

	return true, nil
}

// get returns the live entry for k, discarding it if it has expired.
//
// It assumes s.m is locked.
func (s *Store) get(k string) (entry, bool) {
	e, ok := s.entries[k]
	if !ok {
		return entry{}, false
	}

	if !e.expires.IsZero() && !e.expires.After(time.Now()) {
		delete(s.entries, k)
		return entry{}, false
	}

	return e, true
}

// put stores an entry for k.
//
// It assumes s.m is locked.
func (s *Store) put(k string, e entry) {
	if s.entries == nil {
		s.entries = map[string]entry{}
	}

	s.entries[k] = e
}

// cloneBytes returns a copy of v, so that the caller can not mutate the
// store's view of a value after the fact.
func cloneBytes(v []byte) []byte {
	if v == nil {
		return nil
	}

	return append([]byte(nil), v...)
}
