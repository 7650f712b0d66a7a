// Package bbolt provides a BBolt-backed session storage, used by the CLI to
// keep a session across invocations.
package bbolt

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-client/storage"
	"go.etcd.io/bbolt"
)

const defaultBucket = "auth"

// Store implements storage.Storage backed by a single BBolt bucket.
type Store struct {
	db     *bbolt.DB
	bucket []byte
}

var _ storage.Storage = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBucket overrides the bucket name, "auth" by default.
func WithBucket(name string) StoreOption {
	return func(s *Store) {
		s.bucket = []byte(name)
	}
}

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, bucket: []byte(defaultBucket)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a BBolt database at the given path and returns a new Store.
func Open(path string, options *bbolt.Options, opts ...StoreOption) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db, opts...), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		// data is only valid inside the transaction.
		value, found = string(data), true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("bbolt get %s: %w", key, err)
	}
	return value, found, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
