// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"fmt"
	"time"
)

// BruteForceConfig configures the brute-force rule.
type BruteForceConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Threshold int           `koanf:"threshold"`
	Window    time.Duration `koanf:"window"`
	// MaxAttempts bounds the timestamps kept per IP.
	MaxAttempts int `koanf:"max_attempts"`
}

// RapidCallsConfig configures the rapid API call rule.
type RapidCallsConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Threshold int           `koanf:"threshold"`
	Window    time.Duration `koanf:"window"`
	MaxCalls  int           `koanf:"max_calls"`
}

// LoginTimeConfig configures the unusual login time rule.
type LoginTimeConfig struct {
	Enabled bool `koanf:"enabled"`
	// MinConfidence is the confidence at or above which an unusual hour is
	// reported.
	MinConfidence float64 `koanf:"min_confidence"`
	// MinToleranceHours is the smallest deviation ever treated as unusual.
	MinToleranceHours float64 `koanf:"min_tolerance_hours"`
	// StdDevFloorHours replaces a near-zero standard deviation.
	StdDevFloorHours float64 `koanf:"stddev_floor_hours"`
}

// NewIPConfig configures the suspicious IP rule.
type NewIPConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Lookback time.Duration `koanf:"lookback"`
}

// ExfiltrationConfig configures the data exfiltration rule.
type ExfiltrationConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Threshold int           `koanf:"threshold"`
	Window    time.Duration `koanf:"window"`
}

// ProfileConfig configures behavior profile building and caching.
type ProfileConfig struct {
	// FreshFor is how long a built profile is served from cache.
	FreshFor time.Duration `koanf:"fresh_for"`
	// Lookback is the history window replayed into a profile.
	Lookback time.Duration `koanf:"lookback"`
	// MaxEvents caps the events replayed per rebuild, newest first.
	MaxEvents int `koanf:"max_events"`
	// CacheSize bounds the number of cached profiles.
	CacheSize int `koanf:"cache_size"`
}

// Config holds every detection threshold and window.
type Config struct {
	BruteForce   BruteForceConfig   `koanf:"brute_force"`
	RapidCalls   RapidCallsConfig   `koanf:"rapid_calls"`
	LoginTime    LoginTimeConfig    `koanf:"login_time"`
	NewIP        NewIPConfig        `koanf:"new_ip"`
	Exfiltration ExfiltrationConfig `koanf:"exfiltration"`
	Profile      ProfileConfig      `koanf:"profile"`

	// MaxTrackedKeys bounds the number of IPs tracked by each rolling window
	// store.
	MaxTrackedKeys int `koanf:"max_tracked_keys"`

	// AutoBlock blocks the source IP of brute-force attacks.
	AutoBlock     bool          `koanf:"auto_block"`
	BlockDuration time.Duration `koanf:"block_duration"`

	// NotifyTimeout bounds a single notifier delivery.
	NotifyTimeout time.Duration `koanf:"notify_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BruteForce: BruteForceConfig{
			Enabled:     true,
			Threshold:   5,
			Window:      5 * time.Minute,
			MaxAttempts: 50,
		},
		RapidCalls: RapidCallsConfig{
			Enabled:   true,
			Threshold: 100,
			Window:    time.Minute,
			MaxCalls:  200,
		},
		LoginTime: LoginTimeConfig{
			Enabled:           true,
			MinConfidence:     0.7,
			MinToleranceHours: 3,
			StdDevFloorHours:  2,
		},
		NewIP: NewIPConfig{
			Enabled:  true,
			Lookback: 7 * 24 * time.Hour,
		},
		Exfiltration: ExfiltrationConfig{
			Enabled:   true,
			Threshold: 10,
			Window:    time.Hour,
		},
		Profile: ProfileConfig{
			FreshFor:  time.Hour,
			Lookback:  30 * 24 * time.Hour,
			MaxEvents: 1000,
			CacheSize: 10000,
		},
		MaxTrackedKeys: 100000,
		AutoBlock:      false,
		BlockDuration:  time.Hour,
		NotifyTimeout:  15 * time.Second,
	}
}

// Validate checks that thresholds and windows are usable.
func (c *Config) Validate() error {
	if c.BruteForce.Threshold <= 0 {
		return fmt.Errorf("brute_force.threshold must be positive")
	}
	if c.BruteForce.Window <= 0 {
		return fmt.Errorf("brute_force.window must be positive")
	}
	if c.BruteForce.MaxAttempts < c.BruteForce.Threshold {
		return fmt.Errorf("brute_force.max_attempts must be at least the threshold")
	}
	if c.RapidCalls.Threshold <= 0 {
		return fmt.Errorf("rapid_calls.threshold must be positive")
	}
	if c.RapidCalls.Window <= 0 {
		return fmt.Errorf("rapid_calls.window must be positive")
	}
	if c.RapidCalls.MaxCalls < c.RapidCalls.Threshold {
		return fmt.Errorf("rapid_calls.max_calls must be at least the threshold")
	}
	if c.LoginTime.MinConfidence < 0 || c.LoginTime.MinConfidence > 1 {
		return fmt.Errorf("login_time.min_confidence must be between 0 and 1")
	}
	if c.LoginTime.MinToleranceHours <= 0 || c.LoginTime.StdDevFloorHours <= 0 {
		return fmt.Errorf("login_time tolerances must be positive")
	}
	if c.NewIP.Lookback <= 0 {
		return fmt.Errorf("new_ip.lookback must be positive")
	}
	if c.Exfiltration.Threshold <= 0 {
		return fmt.Errorf("exfiltration.threshold must be positive")
	}
	if c.Exfiltration.Window <= 0 {
		return fmt.Errorf("exfiltration.window must be positive")
	}
	if c.Profile.FreshFor <= 0 || c.Profile.Lookback <= 0 {
		return fmt.Errorf("profile windows must be positive")
	}
	if c.Profile.MaxEvents <= 0 || c.Profile.CacheSize <= 0 {
		return fmt.Errorf("profile limits must be positive")
	}
	if c.AutoBlock && c.BlockDuration <= 0 {
		return fmt.Errorf("block_duration must be positive when auto_block is set")
	}
	return nil
}
