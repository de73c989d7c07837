package boltkv

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/dogmatiq/seriate/internal/x/bboltx"
	"go.etcd.io/bbolt"
)

// FileStore is an implementation of kv.Store that opens a BoltDB database
// file on first use.
//
// Because BoltDB takes an exclusive lock on the file, a FileStore blocks
// while another process has the same file open. Use the context deadline on
// the first store operation to bound how long the open may wait.
type FileStore struct {
	// Path is the path to the BoltDB database to open or create.
	Path string

	// Mode is the file mode for the created file.
	// If it is zero, 0600 (owner read/write only) is used.
	Mode os.FileMode

	// Options is the BoltDB options for the database.
	// If it is nil, bbolt.DefaultOptions is used.
	Options *bbolt.Options

	m     sync.Mutex
	inner *Store
}

// SetIfAbsent sets the value of the key k to v only if k does not already
// have a value.
func (s *FileStore) SetIfAbsent(
	ctx context.Context,
	k string,
	v []byte,
	ttl time.Duration,
) (bool, error) {
	inner, err := s.open(ctx)
	if err != nil {
		return false, err
	}

	return inner.SetIfAbsent(ctx, k, v, ttl)
}

// Get returns the value of the key k.
func (s *FileStore) Get(ctx context.Context, k string) ([]byte, bool, error) {
	inner, err := s.open(ctx)
	if err != nil {
		return nil, false, err
	}

	return inner.Get(ctx, k)
}

// Set sets the value of the key k to v, regardless of its current value.
func (s *FileStore) Set(ctx context.Context, k string, v []byte) error {
	inner, err := s.open(ctx)
	if err != nil {
		return err
	}

	return inner.Set(ctx, k, v)
}

// IncrBy adds n to the integer value of the key k and returns the result.
func (s *FileStore) IncrBy(ctx context.Context, k string, n int64) (int64, error) {
	inner, err := s.open(ctx)
	if err != nil {
		return 0, err
	}

	return inner.IncrBy(ctx, k, n)
}

// DeleteIfEqual deletes the key k only if its current value is equal to v.
func (s *FileStore) DeleteIfEqual(ctx context.Context, k string, v []byte) (bool, error) {
	inner, err := s.open(ctx)
	if err != nil {
		return false, err
	}

	return inner.DeleteIfEqual(ctx, k, v)
}

// Close closes the database, if it was opened.
func (s *FileStore) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.inner == nil {
		return nil
	}

	db := s.inner.DB
	s.inner = nil

	return db.Close()
}

// open opens the database if it is not already open.
func (s *FileStore) open(ctx context.Context) (*Store, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.inner == nil {
		db, err := bboltx.Open(ctx, s.Path, s.Mode, s.Options)
		if err != nil {
			return nil, err
		}

		s.inner = &Store{DB: db}
	}

	return s.inner, nil
}
