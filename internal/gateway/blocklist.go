// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/cache"
	"github.com/tomtom215/assetguard/internal/detection"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

const blocklistPrefix = "blocked:"

// defaultBlockDuration applies when neither the caller nor the config sets one.
const defaultBlockDuration = time.Hour

// ErrInvalidIP is returned for an address that does not parse.
var ErrInvalidIP = errors.New("blocklist: invalid IP address")

// BlockEntry is one blocked IP.
type BlockEntry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BlocklistOption customizes a Blocklist.
type BlocklistOption func(*Blocklist)

// WithBlocklistClock replaces the clock used for entry timestamps.
func WithBlocklistClock(now func() time.Time) BlocklistOption {
	return func(b *Blocklist) { b.now = now }
}

// Blocklist stores blocked IPs with a TTL in a cache namespace.
type Blocklist struct {
	store  cache.Store
	config BlocklistConfig
	now    func() time.Time
}

// NewBlocklist creates a blocklist in the "blocked:" namespace of store.
func NewBlocklist(store cache.Store, cfg BlocklistConfig, opts ...BlocklistOption) *Blocklist {
	if cfg.Duration <= 0 {
		cfg.Duration = defaultBlockDuration
	}
	b := &Blocklist{
		store:  cache.NewNamespace(store, blocklistPrefix),
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// canonicalIP normalizes ip so that equivalent spellings share one entry.
func canonicalIP(ip string) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return addr.Unmap().String(), nil
}

// Block blocks ip for d, or the configured duration when d is not positive.
// Blocking an already blocked IP replaces its entry.
func (b *Blocklist) Block(ctx context.Context, ip, reason string, d time.Duration) (*BlockEntry, error) {
	key, err := canonicalIP(ip)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		d = b.config.Duration
	}

	now := b.now().UTC()
	entry := &BlockEntry{
		IP:        key,
		Reason:    reason,
		BlockedAt: now,
		ExpiresAt: now.Add(d),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode block entry: %w", err)
	}
	if err := b.store.Set(ctx, key, data, d); err != nil {
		return nil, fmt.Errorf("block %s: %w", logging.MaskIP(key), err)
	}

	metrics.IPBlocksTotal.WithLabelValues("block").Inc()
	logging.Ctx(ctx).Warn().
		Str("source_ip", logging.MaskIP(key)).
		Str("reason", reason).
		Dur("duration", d).
		Msg("IP blocked")
	b.refreshGauge(ctx)
	return entry, nil
}

// Unblock removes ip and reports whether it was blocked.
func (b *Blocklist) Unblock(ctx context.Context, ip string) (bool, error) {
	key, err := canonicalIP(ip)
	if err != nil {
		return false, err
	}
	_, ok, err := b.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("unblock %s: %w", logging.MaskIP(key), err)
	}
	if !ok {
		return false, nil
	}
	if err := b.store.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("unblock %s: %w", logging.MaskIP(key), err)
	}

	metrics.IPBlocksTotal.WithLabelValues("unblock").Inc()
	logging.Ctx(ctx).Info().Str("source_ip", logging.MaskIP(key)).Msg("IP unblocked")
	b.refreshGauge(ctx)
	return true, nil
}

// IsBlocked reports whether ip is currently blocked. Unparseable addresses are
// never blocked.
func (b *Blocklist) IsBlocked(ctx context.Context, ip string) (bool, error) {
	key, err := canonicalIP(ip)
	if err != nil {
		return false, nil
	}
	_, ok, err := b.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("blocklist lookup: %w", err)
	}
	return ok, nil
}

// List returns the active entries, most recently blocked first.
func (b *Blocklist) List(ctx context.Context) ([]BlockEntry, error) {
	var entries []BlockEntry
	err := b.store.Range(ctx, "", func(key string, value []byte, _ time.Time) bool {
		var e BlockEntry
		if err := json.Unmarshal(value, &e); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Skipping unreadable block entry")
			return true
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list blocked IPs: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].BlockedAt.Equal(entries[j].BlockedAt) {
			return entries[i].BlockedAt.After(entries[j].BlockedAt)
		}
		return entries[i].IP < entries[j].IP
	})
	metrics.BlockedIPs.Set(float64(len(entries)))
	return entries, nil
}

func (b *Blocklist) refreshGauge(ctx context.Context) {
	if _, err := b.List(ctx); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to refresh blocked IP gauge")
	}
}

// Respond implements detection.Responder. With auto-blocking enabled it blocks
// the source IP of brute-force anomalies.
func (b *Blocklist) Respond(ctx context.Context, anomaly *detection.AnomalyEvent) error {
	if !b.config.AutoBlock || anomaly.Type != detection.AnomalyBruteForce || anomaly.SourceIP == "" {
		return nil
	}
	_, err := b.Block(ctx, anomaly.SourceIP, "automatic: "+anomaly.Description, b.config.Duration)
	return err
}

var _ detection.Responder = (*Blocklist)(nil)
