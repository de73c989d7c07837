package rediskv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// deleteIfEqual deletes a key only if it holds an expected value. Comparison
// and deletion occur atomically on the server.
var deleteIfEqual = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Store is an implementation of kv.Store that uses a Redis server.
//
// This is the backend intended for production use. All five primitives map
// directly onto Redis commands, each of which is atomic on the server: SET
// with NX and PX, GET, SET, INCRBY, and an EVAL'd compare-and-delete script.
type Store struct {
	// Client is the Redis client used to communicate with the server. It may
	// be a single-node, sentinel or cluster client.
	Client redis.UniversalClient
}

// SetIfAbsent sets the value of the key k to v only if k does not already
// have a value.
func (s *Store) SetIfAbsent(
	ctx context.Context,
	k string,
	v []byte,
	ttl time.Duration,
) (bool, error) {
	return s.Client.SetNX(ctx, k, v, ttl).Result()
}

// Get returns the value of the key k.
func (s *Store) Get(ctx context.Context, k string) ([]byte, bool, error) {
	v, err := s.Client.Get(ctx, k).Bytes()

	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return v, true, nil
}

// Set sets the value of the key k to v, regardless of its current value.
func (s *Store) Set(ctx context.Context, k string, v []byte) error {
	return s.Client.Set(ctx, k, v, 0).Err()
}

// IncrBy adds n to the integer value of the key k and returns the result.
func (s *Store) IncrBy(ctx context.Context, k string, n int64) (int64, error) {
	return s.Client.IncrBy(ctx, k, n).Result()
}

// DeleteIfEqual deletes the key k only if its current value is equal to v.
func (s *Store) DeleteIfEqual(ctx context.Context, k string, v []byte) (bool, error) {
	n, err := deleteIfEqual.Run(ctx, s.Client, []string{k}, v).Int()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}
