// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package config

import (
	"time"

	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/auth"
	"github.com/tomtom215/assetguard/internal/authz"
	"github.com/tomtom215/assetguard/internal/cache"
	"github.com/tomtom215/assetguard/internal/channel"
	"github.com/tomtom215/assetguard/internal/database"
	"github.com/tomtom215/assetguard/internal/detection"
	"github.com/tomtom215/assetguard/internal/gateway"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/signing"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Database  database.Config  `koanf:"database"`
	Security  SecurityConfig   `koanf:"security"`
	Signing   signing.Config   `koanf:"signing"`
	Channel   channel.Config   `koanf:"channel"`
	Detection detection.Config `koanf:"detection"`
	Audit     AuditConfig      `koanf:"audit"`
	Cache     CacheConfig      `koanf:"cache"`
	Notifier  NotifierConfig   `koanf:"notifier"`
	Gateway   gateway.Config   `koanf:"gateway"`
	Logging   LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging or production

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// SecurityConfig holds dashboard authentication and authorization settings
type SecurityConfig struct {
	Auth   auth.Config          `koanf:"auth"`
	Casbin authz.EnforcerConfig `koanf:"casbin"`

	CORSOrigins       []string `koanf:"cors_origins"`
	RateLimitDisabled bool     `koanf:"rate_limit_disabled"`
}

// AuditStorage selects the audit Store.
type AuditStorage string

const (
	AuditStorageDuckDB AuditStorage = "duckdb"
	AuditStorageMemory AuditStorage = "memory"
)

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// Storage is duckdb (persistent, default) or memory.
	Storage AuditStorage `koanf:"storage"`

	// MemoryMaxEvents bounds the memory store.
	MemoryMaxEvents int `koanf:"memory_max_events"`

	IntegrityKey      string        `koanf:"integrity_key"`
	HighRiskThreshold int           `koanf:"high_risk_threshold"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
}

// LoggerConfig returns the audit.Logger settings.
func (c AuditConfig) LoggerConfig() audit.Config {
	return audit.Config{
		IntegrityKey:      c.IntegrityKey,
		HighRiskThreshold: c.HighRiskThreshold,
		WriteTimeout:      c.WriteTimeout,
		DefaultPageSize:   c.DefaultPageSize,
		MaxPageSize:       c.MaxPageSize,
	}
}

// CacheConfig selects the backend for nonces, sessions, message IDs and the
// blocklist. Multi-instance deployments need redis.
type CacheConfig struct {
	Backend        string `koanf:"backend"`
	MemoryCapacity int    `koanf:"memory_capacity"`
	BadgerPath     string `koanf:"badger_path"`

	// EvictInterval is how often expired entries are swept.
	EvictInterval time.Duration `koanf:"evict_interval"`

	Redis RedisConfig `koanf:"redis"`
}

// RedisConfig holds the Redis connection used by the redis cache backend.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// StoreConfig returns the cache.Open settings.
func (c CacheConfig) StoreConfig() cache.Config {
	return cache.Config{
		Backend:        cache.Backend(c.Backend),
		MemoryCapacity: c.MemoryCapacity,
		BadgerPath:     c.BadgerPath,
		Redis: cache.RedisConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			KeyPrefix: c.Redis.KeyPrefix,
		},
	}
}

// NotifierConfig holds anomaly notification channels.
type NotifierConfig struct {
	Webhook detection.WebhookConfig `koanf:"webhook"`

	// Bus carries escalated anomalies to the notifiers.
	Bus detection.AlertBusConfig `koanf:"bus"`
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// LoggerConfig returns the logging.Init settings.
func (c LoggingConfig) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Level
	cfg.Format = c.Format
	cfg.Caller = c.Caller
	return cfg
}

// defaultConfig returns a Config with every default applied. Defaults load
// first, then the config file and environment override them.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8443,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
			MetricsEnabled:  true,
		},
		Database: database.DefaultConfig(),
		Security: SecurityConfig{
			Auth:        auth.DefaultConfig(),
			Casbin:      authz.EnforcerConfig{},
			CORSOrigins: []string{},
		},
		Signing:   signing.DefaultConfig(),
		Channel:   channel.DefaultConfig(),
		Detection: detection.DefaultConfig(),
		Audit: AuditConfig{
			Storage:           AuditStorageDuckDB,
			MemoryMaxEvents:   10000,
			HighRiskThreshold: audit.DefaultConfig().HighRiskThreshold,
			WriteTimeout:      audit.DefaultConfig().WriteTimeout,
			DefaultPageSize:   audit.DefaultConfig().DefaultPageSize,
			MaxPageSize:       audit.DefaultConfig().MaxPageSize,
		},
		Cache: CacheConfig{
			Backend:        string(cache.BackendMemory),
			MemoryCapacity: 100000,
			EvictInterval:  time.Minute,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "assetguard:",
			},
		},
		Notifier: NotifierConfig{
			Webhook: detection.WebhookConfig{
				MinInterval:      500 * time.Millisecond,
				Timeout:          10 * time.Second,
				FailureThreshold: 5,
				CooldownPeriod:   time.Minute,
			},
			Bus: detection.DefaultAlertBusConfig(),
		},
		Gateway: gateway.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
