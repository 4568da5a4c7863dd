package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps blobs in an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadger opens (or creates) a badger database in dir. An empty dir opens
// an in-memory database.
func NewBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger (dir=%s): %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get reads the value for key.
func (b *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s from badger: %w", key, err)
	}
	return body, nil
}

// Put replaces the value for key.
func (b *BadgerStore) Put(ctx context.Context, key string, body []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), body)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s to badger: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
