// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Cache errors.
var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("cache: store is closed")

	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("cache: empty key")

	// ErrFull is returned when a bounded store has no room for a new key
	// without dropping an unexpired entry.
	ErrFull = errors.New("cache: store is full")
)

// Store is the expiring key-value contract shared by the nonce cache, the secure
// session table, message dedup and the IP blocklist.
//
// A ttl of zero or less means the entry never expires. Expired entries are never
// returned, even if EvictExpired has not run yet.
type Store interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// SetIfAbsent stores value only if no live entry exists under key. It reports
	// whether the value was stored. Concurrent callers with the same key see
	// exactly one success.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Set stores value unconditionally, replacing any existing entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// EvictExpired removes expired entries and returns how many were removed.
	// Backends with native expiry may return 0.
	EvictExpired(ctx context.Context) (int, error)

	// Range calls fn for each live entry whose key starts with prefix until fn
	// returns false. A zero expiresAt means the entry does not expire.
	Range(ctx context.Context, prefix string, fn func(key string, value []byte, expiresAt time.Time) bool) error

	// Close releases resources held by the store.
	Close() error
}

// Namespace scopes a Store under a key prefix so that several components can
// share one backend. Closing a namespace does not close the underlying store.
type Namespace struct {
	store  Store
	prefix string
}

// NewNamespace returns a view of store where every key is prefixed with prefix.
//
//	nonces := cache.NewNamespace(shared, "nonce:")
func NewNamespace(store Store, prefix string) *Namespace {
	return &Namespace{store: store, prefix: prefix}
}

// Prefix returns the namespace prefix.
func (n *Namespace) Prefix() string { return n.prefix }

// Get implements Store.
func (n *Namespace) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

// SetIfAbsent implements Store.
func (n *Namespace) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return n.store.SetIfAbsent(ctx, n.prefix+key, value, ttl)
}

// Set implements Store.
func (n *Namespace) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.store.Set(ctx, n.prefix+key, value, ttl)
}

// Delete implements Store.
func (n *Namespace) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

// EvictExpired evicts expired entries across the whole underlying store.
func (n *Namespace) EvictExpired(ctx context.Context) (int, error) {
	return n.store.EvictExpired(ctx)
}

// Range implements Store. Keys passed to fn have the namespace prefix removed.
func (n *Namespace) Range(ctx context.Context, prefix string, fn func(string, []byte, time.Time) bool) error {
	return n.store.Range(ctx, n.prefix+prefix, func(key string, value []byte, expiresAt time.Time) bool {
		return fn(strings.TrimPrefix(key, n.prefix), value, expiresAt)
	})
}

// Close is a no-op; the owner of the underlying store closes it.
func (n *Namespace) Close() error { return nil }

var _ Store = (*Namespace)(nil)
