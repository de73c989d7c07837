package boltkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/dogmatiq/seriate/internal/x/bboltx"
	"go.etcd.io/bbolt"
)

// bucketKey is the key of the top-level bucket that contains all values.
var bucketKey = []byte("kv")

// Store is an implementation of kv.Store that persists values in a BoltDB
// database.
//
// BoltDB permits only a single process to have the database file open at a
// time, so this backend can not mediate between processes that run
// concurrently for long periods. It is intended for deployments where the
// processes sharing an identity are short-lived and serialized by the
// database's own file lock, such as repeated CLI invocations on one host.
type Store struct {
	// DB is the BoltDB database in which values are persisted.
	DB *bbolt.DB
}

// record is the stored form of a value: an expiry timestamp and the value
// itself.
type record struct {
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
) (ok bool, err error) {
	err = bboltx.Update(
		s.DB,
		func(tx *bbolt.Tx) {
			b := bboltx.CreateBucketIfNotExists(tx, bucketKey)

			if _, exists := load(b, k); exists {
				return
			}

			r := record{value: v}
			if ttl > 0 {
				r.expires = time.Now().Add(ttl)
			}

			save(b, k, r)
			ok = true
		},
	)

	return ok, err
}

// Get returns the value of the key k.
func (s *Store) Get(_ context.Context, k string) (v []byte, ok bool, err error) {
	err = bboltx.View(
		s.DB,
		func(tx *bbolt.Tx) {
			b := bboltx.Bucket(tx, bucketKey)
			if b == nil {
				return
			}

			var r record
			if r, ok = load(b, k); ok {
				v = append([]byte(nil), r.value...)
			}
		},
	)

	return v, ok, err
}

// Set sets the value of the key k to v, regardless of its current value.
func (s *Store) Set(_ context.Context, k string, v []byte) error {
	return bboltx.Update(
		s.DB,
		func(tx *bbolt.Tx) {
			b := bboltx.CreateBucketIfNotExists(tx, bucketKey)
			save(b, k, record{value: v})
		},
	)
}

// IncrBy adds n to the integer value of the key k and returns the result.
func (s *Store) IncrBy(_ context.Context, k string, n int64) (v int64, err error) {
	err = bboltx.Update(
		s.DB,
		func(tx *bbolt.Tx) {
			b := bboltx.CreateBucketIfNotExists(tx, bucketKey)

			if r, ok := load(b, k); ok {
				var perr error
				v, perr = strconv.ParseInt(string(r.value), 10, 64)
				if perr != nil {
					bboltx.Must(fmt.Errorf(
						"value of '%s' is not an integer",
						k,
					))
				}
			}

			v += n
			save(
				b,
				k,
				record{
					value: strconv.AppendInt(nil, v, 10),
				},
			)
		},
	)

	return v, err
}

// DeleteIfEqual deletes the key k only if its current value is equal to v.
func (s *Store) DeleteIfEqual(_ context.Context, k string, v []byte) (ok bool, err error) {
	err = bboltx.Update(
		s.DB,
		func(tx *bbolt.Tx) {
			b := bboltx.Bucket(tx, bucketKey)
			if b == nil {
				return
			}

			r, exists := load(b, k)
			if !exists || !bytes.Equal(r.value, v) {
				return
			}

			bboltx.Delete(b, []byte(k))
			ok = true
		},
	)

	return ok, err
}

// load reads the record for k, treating an expired record as absent.
func load(b *bbolt.Bucket, k string) (record, bool) {
	data := b.Get([]byte(k))
	if data == nil {
		return record{}, false
	}

	r := unmarshalRecord(data)

	if !r.expires.IsZero() && !r.expires.After(time.Now()) {
		return record{}, false
	}

	return r, true
}

// save writes the record for k.
func save(b *bbolt.Bucket, k string, r record) {
	bboltx.Put(b, []byte(k), marshalRecord(r))
}

// marshalRecord marshals a record to its binary representation, which is the
// expiry time in unix nanoseconds (zero = never expires) as an 8-byte
// big-endian prefix, followed by the value.
func marshalRecord(r record) []byte {
	data := make([]byte, 8+len(r.value))

	if !r.expires.IsZero() {
		binary.BigEndian.PutUint64(data, uint64(r.expires.UnixNano()))
	}

	copy(data[8:], r.value)

	return data
}

// unmarshalRecord unmarshals a record from its binary representation.
func unmarshalRecord(data []byte) record {
	var r record

	if n := binary.BigEndian.Uint64(data); n != 0 {
		r.expires = time.Unix(0, int64(n))
	}

	r.value = data[8:]

	return r
}
