// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/assetguard/internal/metrics"
)

const redisBackend = "redis"

// RedisStore is a Store backed by Redis, for deployments where several gateway
// instances must agree on nonces, sessions and blocked IPs.
//
// SetIfAbsent maps to SET NX, which Redis executes atomically. Expiry is native.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownsConn  bool
}

// RedisConfig configures NewRedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // prepended to every key, e.g. "assetguard:"
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, keyPrefix: cfg.KeyPrefix, ownsConn: true}, nil
}

// NewRedisStoreWithClient wraps an existing client. Close will not close it.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) k(key string) string { return s.keyPrefix + key }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheOp(redisBackend, "get", "miss")
		return nil, false, nil
	}
	if err != nil {
		metrics.RecordCacheOp(redisBackend, "get", "error")
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	metrics.RecordCacheOp(redisBackend, "get", "hit")
	return value, true, nil
}

// SetIfAbsent implements Store.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	stored, err := s.client.SetNX(ctx, s.k(key), value, redisTTL(ttl)).Result()
	if err != nil {
		metrics.RecordCacheOp(redisBackend, "set_if_absent", "error")
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if stored {
		metrics.RecordCacheOp(redisBackend, "set_if_absent", "stored")
	} else {
		metrics.RecordCacheOp(redisBackend, "set_if_absent", "exists")
	}
	return stored, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.client.Set(ctx, s.k(key), value, redisTTL(ttl)).Err(); err != nil {
		metrics.RecordCacheOp(redisBackend, "set", "error")
		return fmt.Errorf("redis set: %w", err)
	}
	metrics.RecordCacheOp(redisBackend, "set", "stored")
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.k(key)).Err(); err != nil {
		metrics.RecordCacheOp(redisBackend, "delete", "error")
		return fmt.Errorf("redis del: %w", err)
	}
	metrics.RecordCacheOp(redisBackend, "delete", "ok")
	return nil
}

// EvictExpired is a no-op; Redis expires keys itself.
func (s *RedisStore) EvictExpired(context.Context) (int, error) {
	return 0, nil
}

// Range implements Store using SCAN, so it does not block the server. Entries
// written or deleted during the scan may or may not be visited.
func (s *RedisStore) Range(ctx context.Context, prefix string, fn func(string, []byte, time.Time) bool) error {
	iter := s.client.Scan(ctx, 0, s.k(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		value, err := s.client.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis get during scan: %w", err)
		}
		var expiresAt time.Time
		if ttl, err := s.client.PTTL(ctx, full).Result(); err == nil && ttl > 0 {
			expiresAt = time.Now().Add(ttl)
		}
		if !fn(strings.TrimPrefix(full, s.keyPrefix), value, expiresAt) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.ownsConn {
		return s.client.Close()
	}
	return nil
}

func redisTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

var _ Store = (*RedisStore)(nil)
