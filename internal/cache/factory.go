// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package cache

import (
	"context"
	"fmt"
)

// Backend names the Store implementation to open.
type Backend string

const (
	// BackendMemory keeps everything in process memory. Lost on restart and not
	// shared between instances.
	BackendMemory Backend = "memory"

	// BackendBadger persists entries in an embedded BadgerDB.
	BackendBadger Backend = "badger"

	// BackendRedis shares entries between instances through Redis.
	BackendRedis Backend = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend

	// MemoryCapacity bounds BackendMemory.
	MemoryCapacity int

	// BadgerPath is the BadgerDB directory; empty means in-memory.
	BadgerPath string

	Redis RedisConfig
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.MemoryCapacity), nil
	case BackendBadger:
		return OpenBadgerStore(cfg.BadgerPath)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
