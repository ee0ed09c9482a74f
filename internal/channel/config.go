// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"fmt"
	"time"
)

// Config configures the secure channel.
type Config struct {
	// Enabled requires secure-channel headers on routes that opt in.
	Enabled bool `koanf:"enabled"`

	// SessionTTL is the lifetime of an issued session key.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// DedupTTL is how long a message ID is remembered per client.
	DedupTTL time.Duration `koanf:"dedup_ttl"`

	// IntegrityTolerance is the clock skew accepted for integrity tags.
	IntegrityTolerance time.Duration `koanf:"integrity_tolerance"`

	// Keys locates the server RSA key pair.
	Keys KeyConfig `koanf:"keys"`
}

// KeyConfig locates the server key pair. PEM values take precedence over paths.
type KeyConfig struct {
	PrivateKeyPath string `koanf:"private_key_path"`
	PublicKeyPath  string `koanf:"public_key_path"`
	PrivateKeyPEM  string `koanf:"private_key_pem"`
	PublicKeyPEM   string `koanf:"public_key_pem"`
}

// DefaultConfig returns the default channel settings.
func DefaultConfig() Config {
	return Config{
		SessionTTL:         time.Hour,
		DedupTTL:           time.Hour,
		IntegrityTolerance: 5 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("channel.session_ttl must be positive")
	}
	if c.DedupTTL <= 0 {
		return fmt.Errorf("channel.dedup_ttl must be positive")
	}
	if c.IntegrityTolerance < 0 || c.IntegrityTolerance > time.Hour {
		return fmt.Errorf("channel.integrity_tolerance must be between 0 and 1h, got %s", c.IntegrityTolerance)
	}
	return nil
}
