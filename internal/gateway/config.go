// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"fmt"
	"time"

	"github.com/tomtom215/assetguard/internal/middleware"
)

// Config configures the gateway.
type Config struct {
	// AuditErrorResponses records 401, 403 and 5xx responses in the audit log.
	AuditErrorResponses bool `koanf:"audit_error_responses"`

	// ContentSecurityPolicy is sent on every response.
	ContentSecurityPolicy string `koanf:"content_security_policy"`

	// HSTSMaxAge is the Strict-Transport-Security max-age.
	HSTSMaxAge time.Duration `koanf:"hsts_max_age"`

	// LatencyWindow is the number of recent requests kept for latency stats.
	LatencyWindow int `koanf:"latency_window"`

	// StatsWindow is the default range of the audit statistics endpoint.
	StatsWindow time.Duration `koanf:"stats_window"`
}

// DefaultConfig returns the default gateway settings.
func DefaultConfig() Config {
	return Config{
		AuditErrorResponses:   true,
		ContentSecurityPolicy: "default-src 'self'",
		HSTSMaxAge:            365 * 24 * time.Hour,
		LatencyWindow:         middleware.DefaultLatencySamples,
		StatsWindow:           24 * time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HSTSMaxAge < 0 {
		return fmt.Errorf("gateway.hsts_max_age must not be negative")
	}
	if c.LatencyWindow <= 0 {
		return fmt.Errorf("gateway.latency_window must be positive")
	}
	if c.StatsWindow <= 0 {
		return fmt.Errorf("gateway.stats_window must be positive")
	}
	return nil
}

// BlocklistConfig configures IP blocking.
type BlocklistConfig struct {
	// AutoBlock blocks the source IP of brute-force anomalies.
	AutoBlock bool

	// Duration is the default block length.
	Duration time.Duration
}
