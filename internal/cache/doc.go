// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package cache provides the expiring key-value stores and rolling window counters
used by the security gateway.

# Store

Store is a small contract (Get, SetIfAbsent, Set, Delete, EvictExpired, Range)
with three backends:

  - MemoryStore: in-process, TTL plus a capacity bound that refuses new keys
    rather than dropping live ones
  - BadgerStore: embedded BadgerDB with native TTL, survives restarts
  - RedisStore: shared between instances, SET NX for SetIfAbsent

SetIfAbsent is the replay-protection primitive. Two concurrent callers with the
same key never both succeed, on any backend.

Components share one backend through Namespace:

	shared, _ := cache.Open(ctx, cache.Config{Backend: cache.BackendBadger, BadgerPath: "/data/cache"})
	nonces := cache.NewNamespace(shared, "nonce:")
	sessions := cache.NewNamespace(shared, "session:")

# Rolling windows

RollingWindowCounter holds the timestamps of recent events for one key in a
bounded ring buffer. RollingWindowStore maps keys (source IPs, principals) to
counters and bounds the number of keys. The anomaly detector uses them for
brute-force and rapid-call detection.
*/
package cache
