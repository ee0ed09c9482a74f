// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/assetguard/internal/auth"
	"github.com/tomtom215/assetguard/internal/cache"
	"github.com/tomtom215/assetguard/internal/detection"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.Database.Validate,
		c.validateSecurity,
		c.Signing.Validate,
		c.Channel.Validate,
		c.Detection.Validate,
		c.validateAudit,
		c.validateCache,
		c.validateNotifier,
		c.Gateway.Validate,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// DashboardEnabled reports whether a JWT secret is configured. Without one
// the dashboard routes are not mounted.
func (c *Config) DashboardEnabled() bool {
	return c.Security.Auth.Secret != ""
}

func (c *Config) validateSecurity() error {
	if secret := c.Security.Auth.Secret; secret != "" && len(secret) < auth.MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", auth.MinSecretLength)
	}
	if c.IsProduction() && !c.DashboardEnabled() {
		return fmt.Errorf("JWT_SECRET is required when ENVIRONMENT=production")
	}
	// Wildcard CORS would let any site drive the dashboard with a stolen token.
	if c.IsProduction() && c.hasWildcardCORS() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production; list the allowed origins")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS reports a wildcard CORS origin outside production.
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.hasWildcardCORS()
}

func (c *Config) validateAudit() error {
	switch c.Audit.Storage {
	case AuditStorageDuckDB:
	case AuditStorageMemory:
		if c.Audit.MemoryMaxEvents <= 0 {
			return fmt.Errorf("AUDIT_MEMORY_MAX_EVENTS must be positive")
		}
	default:
		return fmt.Errorf("AUDIT_STORAGE must be one of: duckdb, memory")
	}
	if c.Audit.HighRiskThreshold < 0 || c.Audit.HighRiskThreshold > 100 {
		return fmt.Errorf("AUDIT_HIGH_RISK_THRESHOLD must be between 0 and 100")
	}
	if c.Audit.DefaultPageSize <= 0 || c.Audit.MaxPageSize < c.Audit.DefaultPageSize {
		return fmt.Errorf("audit page sizes must be positive with max_page_size >= default_page_size")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch cache.Backend(c.Cache.Backend) {
	case cache.BackendMemory:
		if c.Cache.MemoryCapacity <= 0 {
			return fmt.Errorf("CACHE_MEMORY_CAPACITY must be positive")
		}
	case cache.BackendBadger:
	case cache.BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of: memory, badger, redis")
	}
	if c.Cache.EvictInterval <= 0 {
		return fmt.Errorf("CACHE_EVICT_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateNotifier() error {
	switch bus := c.Notifier.Bus; bus.Transport {
	case "", detection.TransportMemory:
	case detection.TransportNATS:
		if bus.NATSURL == "" {
			return fmt.Errorf("ALERT_NATS_URL is required when ALERT_TRANSPORT=nats")
		}
	default:
		return fmt.Errorf("ALERT_TRANSPORT must be memory or nats, got %q", bus.Transport)
	}

	w := c.Notifier.Webhook
	if !w.Enabled {
		return nil
	}
	if w.URL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_ENABLED=true")
	}
	return validateHTTPURL(w.URL, "WEBHOOK_URL")
}

// validateHTTPURL checks that rawURL is an absolute http(s) URL with a host.
func validateHTTPURL(rawURL, fieldName string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}
