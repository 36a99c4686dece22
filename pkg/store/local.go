// Package store provides the daemon's storage layer: the local store (a
// persistent on-disk object cache shared by every backing store) and the
// backing-store cache that deduplicates upstream repository handles across
// mounts.
package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/driftfs/internal/logger"
)

// ErrObjectNotFound is returned when a requested object is in neither the
// local store nor the backing store consulted.
var ErrObjectNotFound = errors.New("object not found")

// ErrStoreClosed is returned for operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// LocalStore is the daemon-local persistent object cache. All backing
// stores write fetched objects through it so that repeated requests,
// including from different mounts, are served from local disk.
type LocalStore struct {
	db *badger.DB
}

// OpenLocalStore opens (creating if necessary) the local store rooted at
// path.
func OpenLocalStore(path string) (*LocalStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is too chatty for daemon logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store at %s: %w", path, err)
	}

	logger.Info("local store opened", "path", path)
	return &LocalStore{db: db}, nil
}

// Get returns the object stored under key, or ErrObjectNotFound.
func (s *LocalStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrObjectNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores the object under key, overwriting any previous value.
func (s *LocalStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Has reports whether an object exists under key.
func (s *LocalStore) Has(ctx context.Context, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close flushes and closes the underlying database. The local store must
// be closed only after every backing store that writes through it has been
// released.
func (s *LocalStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close local store: %w", err)
	}
	logger.Info("local store closed")
	return nil
}
