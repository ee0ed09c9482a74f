// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/assetguard/internal/metrics"
)

const badgerBackend = "badger"

// BadgerStore is a Store backed by BadgerDB. Entries survive restarts when the
// database is on disk, and expiry uses Badger's native per-entry TTL.
//
// Badger TTLs have one-second resolution; a ttl below one second is rounded up.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerStore opens (or creates) a Badger database at path. An empty path
// opens an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// NewBadgerStore wraps an existing database. Close will not close db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.RecordCacheOp(badgerBackend, "get", "miss")
		return nil, false, nil
	}
	if err != nil {
		metrics.RecordCacheOp(badgerBackend, "get", "error")
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	metrics.RecordCacheOp(badgerBackend, "get", "hit")
	return value, true, nil
}

// SetIfAbsent implements Store. The existence check and the write share one
// transaction; a concurrent writer of the same key makes the commit fail with
// ErrConflict, which is reported as "not stored".
func (s *BadgerStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	stored := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.SetEntry(newBadgerEntry(key, value, ttl)); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		metrics.RecordCacheOp(badgerBackend, "set_if_absent", "exists")
		return false, nil
	}
	if err != nil {
		metrics.RecordCacheOp(badgerBackend, "set_if_absent", "error")
		return false, fmt.Errorf("badger set if absent: %w", err)
	}
	if stored {
		metrics.RecordCacheOp(badgerBackend, "set_if_absent", "stored")
	} else {
		metrics.RecordCacheOp(badgerBackend, "set_if_absent", "exists")
	}
	return stored, nil
}

// Set implements Store.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newBadgerEntry(key, value, ttl))
	})
	if err != nil {
		metrics.RecordCacheOp(badgerBackend, "set", "error")
		return fmt.Errorf("badger set: %w", err)
	}
	metrics.RecordCacheOp(badgerBackend, "set", "stored")
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		metrics.RecordCacheOp(badgerBackend, "delete", "error")
		return fmt.Errorf("badger delete: %w", err)
	}
	metrics.RecordCacheOp(badgerBackend, "delete", "ok")
	return nil
}

// EvictExpired implements Store. Badger hides expired keys immediately and drops
// them during compaction; on disk the value log is also garbage collected here.
func (s *BadgerStore) EvictExpired(_ context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if s.db.Opts().InMemory {
		return 0, nil
	}
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return 0, fmt.Errorf("badger value log gc: %w", err)
	}
	return 0, nil
}

// Range implements Store.
func (s *BadgerStore) Range(_ context.Context, prefix string, fn func(string, []byte, time.Time) bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var expiresAt time.Time
			if exp := item.ExpiresAt(); exp > 0 {
				expiresAt = time.Unix(int64(exp), 0) //nolint:gosec // unix seconds fit in int64
			}
			if !fn(string(item.KeyCopy(nil)), value, expiresAt) {
				return nil
			}
		}
		return nil
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func newBadgerEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		e = e.WithTTL(ttl)
	}
	return e
}

var _ Store = (*BadgerStore)(nil)
