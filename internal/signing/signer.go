// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tomtom215/assetguard/internal/cache"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// Reason explains why a verification failed.
type Reason string

// Verification failure reasons.
const (
	ReasonExpired        Reason = "expired"
	ReasonReplay         Reason = "replay"
	ReasonBadSignature   Reason = "bad signature"
	ReasonMissingHeaders Reason = "missing headers"
	ReasonMalformed      Reason = "malformed"
	ReasonUnavailable    Reason = "unavailable"
)

// Label returns the reason as a metric label value.
func (r Reason) Label() string {
	return strings.ReplaceAll(string(r), " ", "_")
}

// Config configures request verification.
type Config struct {
	// Enabled requires signatures on routes that opt in.
	Enabled bool `koanf:"enabled"`

	// Secret is the shared HMAC key.
	Secret string `koanf:"secret"`

	// Tolerance is the accepted clock skew in either direction.
	Tolerance time.Duration `koanf:"tolerance"`

	// PruneInterval bounds how often expired nonces are evicted.
	PruneInterval time.Duration `koanf:"prune_interval"`

	// MinNonceLength is the shortest nonce ParseHeaders accepts.
	MinNonceLength int `koanf:"min_nonce_length"`
}

// DefaultConfig returns the default verification settings.
func DefaultConfig() Config {
	return Config{
		Tolerance:     300 * time.Second,
		PruneInterval: 10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Tolerance < time.Second {
		return fmt.Errorf("signing.tolerance must be at least 1s, got %s", c.Tolerance)
	}
	if c.PruneInterval <= 0 {
		return fmt.Errorf("signing.prune_interval must be positive")
	}
	if c.MinNonceLength < 0 || c.MinNonceLength > MaxNonceLength {
		return fmt.Errorf("signing.min_nonce_length must be between 0 and %d", MaxNonceLength)
	}
	if c.Enabled && c.Secret == "" {
		return fmt.Errorf("signing.secret is required when signing is enabled")
	}
	return nil
}

// Request is the signed material of one inbound request.
type Request struct {
	Method    string
	Target    string
	Timestamp string
	Nonce     string
	Signature string
	Body      []byte
}

// Result is the outcome of Verify. Err is set only for ReasonUnavailable.
type Result struct {
	OK     bool
	Reason Reason
	Err    error
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical string.
func Sign(method, target, timestamp, nonce string, body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(method))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(target))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(nonce))
	mac.Write([]byte{'\n'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// Signer verifies signed requests against a nonce cache.
type Signer struct {
	tolerance      time.Duration
	pruneInterval  time.Duration
	minNonceLength int

	nonces    cache.Store
	now       func() time.Time
	lastPrune atomic.Int64
}

// New creates a Signer. nonces is usually a cache namespace dedicated to nonces.
func New(cfg Config, nonces cache.Store, opts ...Option) *Signer {
	defaults := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaults.Tolerance
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = defaults.PruneInterval
	}
	s := &Signer{
		tolerance:      cfg.Tolerance,
		pruneInterval:  cfg.PruneInterval,
		minNonceLength: cfg.MinNonceLength,
		nonces:         nonces,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastPrune.Store(s.now().UnixNano())
	return s
}

// Tolerance returns the accepted clock skew.
func (s *Signer) Tolerance() time.Duration { return s.tolerance }

// ParseHeaders applies the header contract with this signer's nonce minimum.
func (s *Signer) ParseHeaders(h http.Header) (Headers, error) {
	return ParseHeaders(h, s.minNonceLength)
}

// Verify checks one request. Expected failures are reported in the Result and
// never as a Go error.
func (s *Signer) Verify(ctx context.Context, req Request, secret []byte) Result {
	res := s.verify(ctx, req, secret)
	if res.OK {
		metrics.RecordSignatureVerification("ok")
	} else {
		metrics.RecordSignatureVerification(res.Reason.Label())
	}
	return res
}

func (s *Signer) verify(ctx context.Context, req Request, secret []byte) Result {
	if req.Timestamp == "" || req.Nonce == "" || req.Signature == "" {
		return Result{Reason: ReasonMissingHeaders}
	}
	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return Result{Reason: ReasonMalformed}
	}

	now := s.now()
	issued := time.Unix(ts, 0)
	skew := now.Sub(issued)
	if skew < 0 {
		skew = -skew
	}
	if skew > s.tolerance {
		return Result{Reason: ReasonExpired}
	}

	_, seen, err := s.nonces.Get(ctx, req.Nonce)
	if err != nil {
		return s.unavailable(ctx, err)
	}
	if seen {
		s.logReplay(ctx, req)
		return Result{Reason: ReasonReplay}
	}

	expected := Sign(req.Method, req.Target, req.Timestamp, req.Nonce, req.Body, secret)
	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return Result{Reason: ReasonBadSignature}
	}

	// The nonce must outlive the last instant the timestamp is still accepted,
	// which is issued+tolerance inclusive.
	ttl := issued.Add(s.tolerance + time.Second).Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	stored, err := s.nonces.SetIfAbsent(ctx, req.Nonce, []byte(req.Timestamp), ttl)
	if err != nil {
		return s.unavailable(ctx, err)
	}
	if !stored {
		s.logReplay(ctx, req)
		return Result{Reason: ReasonReplay}
	}

	s.maybePrune(ctx, now)
	return Result{OK: true}
}

func (s *Signer) unavailable(ctx context.Context, err error) Result {
	logging.Ctx(ctx).Error().Err(err).Msg("Nonce cache unavailable, rejecting signed request")
	return Result{Reason: ReasonUnavailable, Err: fmt.Errorf("nonce cache: %w", err)}
}

func (s *Signer) logReplay(ctx context.Context, req Request) {
	logging.Ctx(ctx).Warn().
		Str("nonce", logging.TruncateString(req.Nonce, 16)).
		Str("timestamp", req.Timestamp).
		Str("target", req.Target).
		Msg("Signed request replay detected")
}

// maybePrune evicts expired nonces at most once per prune interval. Only the
// caller that wins the compare-and-swap does the work.
func (s *Signer) maybePrune(ctx context.Context, now time.Time) {
	last := s.lastPrune.Load()
	if now.UnixNano()-last < int64(s.pruneInterval) {
		return
	}
	if !s.lastPrune.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	if _, err := s.Prune(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Nonce pruning failed")
	}
}

// Prune evicts expired entries from the nonce store's backend and returns how
// many were removed. Backends with native expiry report 0.
func (s *Signer) Prune(ctx context.Context) (int, error) {
	n, err := s.nonces.EvictExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.NoncesPruned.Add(float64(n))
		logging.Ctx(ctx).Debug().Int("count", n).Msg("Pruned expired nonces")
	}
	return n, nil
}
