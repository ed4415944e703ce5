package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

const badgerPrefix = "checkpoint:"

// BadgerStore keeps snapshots in an embedded Badger database.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

// NewBadgerStore opens a Badger database in dir. An empty dir opens an
// in-memory database.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStoreFromDB wraps an already open database. Close does not close it.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Save implements Store.
func (s *BadgerStore) Save(_ context.Context, executionID string, snap *Snapshot) error {
	prepared, err := prepare(executionID, snap)
	if err != nil {
		return err
	}
	data, err := encodeSnapshot(prepared)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(executionID), data)
	})
}

// Load implements Store.
func (s *BadgerStore) Load(_ context.Context, executionID string) (*Snapshot, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(executionID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", executionID, err)
	}
	return snap, nil
}

// List implements Store.
func (s *BadgerStore) List(_ context.Context, filter ListFilter) ([]Info, error) {
	var infos []Info
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			snap, err := decodeSnapshot(data)
			if err != nil {
				continue
			}
			if info := snap.info(); filter.match(info) {
				infos = append(infos, info)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return finish(infos, filter), nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, executionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(executionID))
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func badgerKey(executionID string) []byte {
	return []byte(badgerPrefix + executionID)
}
