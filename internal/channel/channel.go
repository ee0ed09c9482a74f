// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/cache"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// Algorithm names reported to clients.
const (
	SymmetricAlgorithm  = "AES-256-GCM"
	AsymmetricAlgorithm = "RSA-2048"
)

// ErrSessionNotFound is returned for unknown and expired sessions.
var ErrSessionNotFound = errors.New("channel: session not found or expired")

// ErrEmptyClientID is returned when a session is requested without a client ID.
var ErrEmptyClientID = errors.New("channel: client id is required")

// Session is one issued session key.
type Session struct {
	ID              string    `json:"session_id"`
	ClientID        string    `json:"client_id"`
	Key             []byte    `json:"key"`
	ClientPublicKey string    `json:"client_public_key,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Active reports whether the session is usable at now.
func (s *Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// Channel issues session keys and protects messages exchanged under them.
type Channel struct {
	sessions cache.Store
	dedup    cache.Store
	keys     *ServerKeys
	required bool

	sessionTTL time.Duration
	dedupTTL   time.Duration
	tolerance  time.Duration

	now func() time.Time
}

// New creates a Channel. sessions and dedup are usually namespaces of one
// shared cache.Store.
func New(cfg Config, keys *ServerKeys, sessions, dedup cache.Store, opts ...Option) *Channel {
	defaults := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaults.SessionTTL
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaults.DedupTTL
	}
	c := &Channel{
		sessions:   sessions,
		dedup:      dedup,
		keys:       keys,
		required:   cfg.Enabled,
		sessionTTL: cfg.SessionTTL,
		dedupTTL:   cfg.DedupTTL,
		tolerance:  cfg.IntegrityTolerance,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Required reports whether routes that opt in must carry secure-channel
// headers.
func (c *Channel) Required() bool { return c.required }

// Keys returns the server key pair.
func (c *Channel) Keys() *ServerKeys { return c.keys }

// SessionTTL returns the lifetime of new sessions.
func (c *Channel) SessionTTL() time.Duration { return c.sessionTTL }

// EstablishSession issues a new session key for clientID.
func (c *Channel) EstablishSession(ctx context.Context, clientID string) (*Session, error) {
	return c.establish(ctx, clientID, "")
}

func (c *Channel) establish(ctx context.Context, clientID, clientPublicKey string) (*Session, error) {
	if clientID == "" {
		return nil, ErrEmptyClientID
	}
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	now := c.now()
	s := &Session{
		ID:              id,
		ClientID:        clientID,
		Key:             key,
		ClientPublicKey: clientPublicKey,
		IssuedAt:        now,
		ExpiresAt:       now.Add(c.sessionTTL),
	}
	if err := c.store(ctx, s); err != nil {
		return nil, err
	}

	metrics.SecureSessionsEstablished.Inc()
	logging.Ctx(ctx).Info().
		Str("session_id", logging.TruncateString(id, 8)).
		Str("client_id", clientID).
		Time("expires_at", s.ExpiresAt).
		Msg("Secure session established")
	return s, nil
}

// RotateSession replaces the key of an active session. The session keeps its ID
// and client, and its lifetime restarts.
func (c *Channel) RotateSession(ctx context.Context, sessionID string) (*Session, error) {
	current, err := c.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	now := c.now()
	rotated := *current
	rotated.Key = key
	rotated.IssuedAt = now
	rotated.ExpiresAt = now.Add(c.sessionTTL)
	if err := c.store(ctx, &rotated); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("session_id", logging.TruncateString(sessionID, 8)).Msg("Secure session key rotated")
	return &rotated, nil
}

// Session returns the active session. Expired sessions are deleted and
// reported as ErrSessionNotFound.
func (c *Channel) Session(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	raw, found, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !s.Active(c.now()) {
		if err := c.sessions.Delete(ctx, sessionID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to delete expired session")
		}
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

// ActiveKey returns the key of an active session.
func (c *Channel) ActiveKey(ctx context.Context, sessionID string) ([]byte, error) {
	s, err := c.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Key, nil
}

// EndSession deletes a session.
func (c *Channel) EndSession(ctx context.Context, sessionID string) error {
	return c.sessions.Delete(ctx, sessionID)
}

func (c *Channel) store(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := c.sessions.Set(ctx, s.ID, raw, s.ExpiresAt.Sub(s.IssuedAt)); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// IsDuplicate records messageID for clientID and reports whether it was
// already seen within the dedup window.
func (c *Channel) IsDuplicate(ctx context.Context, messageID, clientID string) (bool, error) {
	stored, err := c.dedup.SetIfAbsent(ctx, clientID+":"+messageID, []byte{1}, c.dedupTTL)
	if err != nil {
		return false, fmt.Errorf("message dedup: %w", err)
	}
	return !stored, nil
}

// IntegrityTag tags message with the current time bucket.
func (c *Channel) IntegrityTag(message, secret []byte) string {
	return IntegrityTagAt(message, secret, c.now())
}

// VerifyIntegrity checks tag against the buckets within tolerance of now.
func (c *Channel) VerifyIntegrity(message []byte, tag string, secret []byte, tolerance time.Duration) bool {
	return VerifyIntegrityAt(message, tag, secret, tolerance, c.now())
}

// Sign signs message with the server private key.
func (c *Channel) Sign(message []byte) (string, error) {
	return c.keys.Sign(message)
}

// VerifySignature checks a signature made by the holder of public.
func (c *Channel) VerifySignature(message []byte, signature string, public *rsa.PublicKey) bool {
	return VerifySignature(message, signature, public)
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
