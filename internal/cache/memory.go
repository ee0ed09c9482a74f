// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/assetguard/internal/metrics"
)

const memoryBackend = "memory"

// memoryEntry is a node of the recency list.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero: never expires
	prev      *memoryEntry
	next      *memoryEntry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store with TTL and a capacity bound.
//
// Entries live in a hash map for O(1) lookup and in a doubly-linked list ordered
// by recency. A live entry is never dropped to make room: when the store is
// full, expired entries are swept and, if none were, the insert fails with
// ErrFull.
type MemoryStore struct {
	mu sync.Mutex

	capacity int
	now      func() time.Time

	items map[string]*memoryEntry

	// head.next is the most recently used entry, tail.prev the least.
	head *memoryEntry
	tail *memoryEntry

	closed bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a MemoryStore holding at most capacity entries.
func NewMemoryStore(capacity int, opts ...MemoryOption) *MemoryStore {
	if capacity <= 0 {
		capacity = 100000
	}
	s := &MemoryStore{
		capacity: capacity,
		now:      time.Now,
		items:    make(map[string]*memoryEntry),
		head:     &memoryEntry{},
		tail:     &memoryEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	entry, ok := s.items[key]
	if !ok {
		metrics.RecordCacheOp(memoryBackend, "get", "miss")
		return nil, false, nil
	}
	if entry.expired(s.now()) {
		s.removeEntry(entry)
		metrics.CacheEvictions.WithLabelValues(memoryBackend, "expired").Inc()
		metrics.RecordCacheOp(memoryBackend, "get", "miss")
		return nil, false, nil
	}
	s.moveToFront(entry)
	metrics.RecordCacheOp(memoryBackend, "get", "hit")
	return cloneBytes(entry.value), true, nil
}

// SetIfAbsent implements Store.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	now := s.now()
	if entry, ok := s.items[key]; ok {
		if !entry.expired(now) {
			s.moveToFront(entry)
			metrics.RecordCacheOp(memoryBackend, "set_if_absent", "exists")
			return false, nil
		}
		s.removeEntry(entry)
	}
	if err := s.insert(key, value, expiry(now, ttl), now); err != nil {
		metrics.RecordCacheOp(memoryBackend, "set_if_absent", "full")
		return false, err
	}
	metrics.RecordCacheOp(memoryBackend, "set_if_absent", "stored")
	return true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	now := s.now()
	if entry, ok := s.items[key]; ok {
		entry.value = cloneBytes(value)
		entry.expiresAt = expiry(now, ttl)
		s.moveToFront(entry)
	} else if err := s.insert(key, value, expiry(now, ttl), now); err != nil {
		metrics.RecordCacheOp(memoryBackend, "set", "full")
		return err
	}
	metrics.RecordCacheOp(memoryBackend, "set", "stored")
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if entry, ok := s.items[key]; ok {
		s.removeEntry(entry)
	}
	metrics.RecordCacheOp(memoryBackend, "delete", "ok")
	return nil
}

// EvictExpired implements Store.
func (s *MemoryStore) EvictExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	removed := s.evictExpiredLocked(s.now())
	metrics.CacheEntries.WithLabelValues(memoryBackend).Set(float64(len(s.items)))
	return removed, nil
}

// Range implements Store. Entries are visited from most to least recently used.
func (s *MemoryStore) Range(_ context.Context, prefix string, fn func(string, []byte, time.Time) bool) error {
	type snapshot struct {
		key       string
		value     []byte
		expiresAt time.Time
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	now := s.now()
	var live []snapshot
	for e := s.head.next; e != s.tail; e = e.next {
		if strings.HasPrefix(e.key, prefix) && !e.expired(now) {
			live = append(live, snapshot{e.key, cloneBytes(e.value), e.expiresAt})
		}
	}
	s.mu.Unlock()

	// fn runs without the lock so it may call back into the store.
	for _, e := range live {
		if !fn(e.key, e.value, e.expiresAt) {
			return nil
		}
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	s.head.next = s.tail
	s.tail.prev = s.head
	return nil
}

// The methods below must be called with mu held.

func (s *MemoryStore) insert(key string, value []byte, expiresAt, now time.Time) error {
	if len(s.items) >= s.capacity {
		s.evictExpiredLocked(now)
	}
	if len(s.items) >= s.capacity {
		metrics.CacheEvictions.WithLabelValues(memoryBackend, "rejected").Inc()
		return ErrFull
	}
	entry := &memoryEntry{key: key, value: cloneBytes(value), expiresAt: expiresAt}
	s.addToFront(entry)
	s.items[key] = entry
	return nil
}

func (s *MemoryStore) evictExpiredLocked(now time.Time) int {
	removed := 0
	for entry := s.tail.prev; entry != s.head; {
		prev := entry.prev
		if entry.expired(now) {
			s.removeEntry(entry)
			removed++
		}
		entry = prev
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(memoryBackend, "expired").Add(float64(removed))
	}
	return removed
}

func (s *MemoryStore) addToFront(entry *memoryEntry) {
	entry.prev = s.head
	entry.next = s.head.next
	s.head.next.prev = entry
	s.head.next = entry
}

func (s *MemoryStore) moveToFront(entry *memoryEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	s.addToFront(entry)
}

func (s *MemoryStore) removeEntry(entry *memoryEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(s.items, entry.key)
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*MemoryStore)(nil)
