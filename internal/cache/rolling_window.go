// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package cache

import (
	"sync"
	"time"
)

// RollingWindowCounter keeps the timestamps of recent events for one key and
// counts how many fall inside a fixed lookback window.
//
// Timestamps are held in a ring buffer of fixed capacity. When the buffer is full
// the oldest timestamp is overwritten, so memory stays bounded regardless of
// traffic. Every Add and Count prunes timestamps older than the window from the
// front of the ring; each timestamp is pruned at most once, which keeps Add O(1)
// amortized.
//
// Timestamps are expected in non-decreasing order. An out-of-order timestamp is
// clamped to the newest one already held.
type RollingWindowCounter struct {
	mu     sync.Mutex
	window time.Duration
	ring   []time.Time
	head   int // index of the oldest timestamp
	size   int
}

// NewRollingWindowCounter creates a counter with the given lookback window that
// holds at most maxLen timestamps.
func NewRollingWindowCounter(window time.Duration, maxLen int) *RollingWindowCounter {
	if maxLen <= 0 {
		maxLen = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RollingWindowCounter{
		window: window,
		ring:   make([]time.Time, maxLen),
	}
}

// Add records an event at t and returns the number of events in (t-window, t].
func (c *RollingWindowCounter) Add(t time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size > 0 {
		if newest := c.ring[c.index(c.size-1)]; t.Before(newest) {
			t = newest
		}
	}

	if c.size == len(c.ring) {
		c.ring[c.head] = t
		c.head = (c.head + 1) % len(c.ring)
	} else {
		c.ring[c.index(c.size)] = t
		c.size++
	}

	c.prune(t)
	return c.size
}

// Count returns the number of events in (now-window, now] after pruning.
func (c *RollingWindowCounter) Count(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	return c.size
}

// Timestamps returns the timestamps still inside the window, oldest first.
func (c *RollingWindowCounter) Timestamps(now time.Time) []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	out := make([]time.Time, c.size)
	for i := range out {
		out[i] = c.ring[c.index(i)]
	}
	return out
}

// Newest returns the most recent timestamp, if any.
func (c *RollingWindowCounter) Newest() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size == 0 {
		return time.Time{}, false
	}
	return c.ring[c.index(c.size-1)], true
}

// Reset drops every timestamp.
func (c *RollingWindowCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head, c.size = 0, 0
}

// Window returns the lookback window.
func (c *RollingWindowCounter) Window() time.Duration { return c.window }

func (c *RollingWindowCounter) index(i int) int {
	return (c.head + i) % len(c.ring)
}

// prune must be called with mu held.
func (c *RollingWindowCounter) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	for c.size > 0 && !c.ring[c.head].After(cutoff) {
		c.ring[c.head] = time.Time{}
		c.head = (c.head + 1) % len(c.ring)
		c.size--
	}
}

// RollingWindowStore holds one RollingWindowCounter per key, for example per
// source IP. The number of keys is bounded; when full, the key touched longest
// ago is dropped.
//
//	failures := cache.NewRollingWindowStore(5*time.Minute, 50, 100000)
//	n := failures.Add("10.0.0.5", time.Now())
type RollingWindowStore struct {
	mu       sync.Mutex
	counters map[string]*storeEntry
	window   time.Duration
	maxLen   int
	maxKeys  int // 0 means unlimited
}

type storeEntry struct {
	counter *RollingWindowCounter
	touched time.Time
}

// NewRollingWindowStore creates a store whose counters share window and maxLen.
func NewRollingWindowStore(window time.Duration, maxLen, maxKeys int) *RollingWindowStore {
	return &RollingWindowStore{
		counters: make(map[string]*storeEntry),
		window:   window,
		maxLen:   maxLen,
		maxKeys:  maxKeys,
	}
}

// Add records an event for key at t and returns the count in the window.
// The store lock is held across the append so Cleanup cannot drop the counter
// between lookup and record.
func (s *RollingWindowStore) Add(key string, t time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterLocked(key, t).Add(t)
}

// Count returns the count for key at now without recording anything.
func (s *RollingWindowStore) Count(key string, now time.Time) int {
	s.mu.Lock()
	entry, ok := s.counters[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return entry.counter.Count(now)
}

// Timestamps returns the in-window timestamps for key, oldest first.
func (s *RollingWindowStore) Timestamps(key string, now time.Time) []time.Time {
	s.mu.Lock()
	entry, ok := s.counters[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.counter.Timestamps(now)
}

// Remove drops the counter for key.
func (s *RollingWindowStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
}

// Len returns the number of tracked keys.
func (s *RollingWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

// Cleanup drops counters that hold no timestamps inside the window at now and
// returns how many were dropped.
func (s *RollingWindowStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.counters {
		if entry.counter.Count(now) == 0 {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}

// counterLocked must be called with mu held.
func (s *RollingWindowStore) counterLocked(key string, t time.Time) *RollingWindowCounter {
	entry, ok := s.counters[key]
	if !ok {
		if s.maxKeys > 0 && len(s.counters) >= s.maxKeys {
			s.evictOldest()
		}
		entry = &storeEntry{counter: NewRollingWindowCounter(s.window, s.maxLen)}
		s.counters[key] = entry
	}
	if t.After(entry.touched) {
		entry.touched = t
	}
	return entry.counter
}

// evictOldest must be called with mu held. It is O(keys) but only runs when the
// store is full.
func (s *RollingWindowStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, entry := range s.counters {
		if first || entry.touched.Before(oldest) {
			oldestKey, oldest, first = key, entry.touched, false
		}
	}
	if !first {
		delete(s.counters, oldestKey)
	}
}
