// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/signing"
)

// Envelope errors.
var (
	ErrInvalidSignature = errors.New("channel: invalid signature")
	ErrIntegrityFailed  = errors.New("channel: integrity check failed")
)

// Envelope is a secure response body.
type Envelope struct {
	EncryptedData string `json:"encrypted_data"`
	Signature     string `json:"signature"`
	IntegrityHash string `json:"integrity_hash"`
	Timestamp     int64  `json:"timestamp"`
	SessionID     string `json:"session_id"`
}

// Wrap encrypts a JSON payload for the session. The payload is canonicalized
// first; the signature and integrity tag cover the canonical plaintext.
func (c *Channel) Wrap(ctx context.Context, sessionID string, payload []byte) (*Envelope, error) {
	s, err := c.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	message, err := signing.CanonicalBody(payload)
	if err != nil {
		return nil, fmt.Errorf("wrap payload: %w", err)
	}

	encrypted, err := Encrypt(message, s.Key)
	if err != nil {
		return nil, err
	}
	signature, err := c.keys.Sign(message)
	if err != nil {
		return nil, err
	}
	integrityKey, err := DeriveKey(s.Key, PurposeIntegrity)
	if err != nil {
		return nil, err
	}

	now := c.now()
	return &Envelope{
		EncryptedData: encrypted,
		Signature:     signature,
		IntegrityHash: IntegrityTagAt(message, integrityKey, now),
		Timestamp:     now.Unix(),
		SessionID:     s.ID,
	}, nil
}

// WrapValue marshals v and wraps it.
func (c *Channel) WrapValue(ctx context.Context, sessionID string, v any) (*Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wrap payload: %w", err)
	}
	return c.Wrap(ctx, sessionID, payload)
}

// OpenEnvelope is the client side of Wrap: it decrypts the payload and checks
// the server signature and the integrity tag against now.
func OpenEnvelope(env *Envelope, sessionKey []byte, server *rsa.PublicKey, tolerance time.Duration, now time.Time) ([]byte, error) {
	message, err := Decrypt(env.EncryptedData, sessionKey)
	if err != nil {
		return nil, err
	}
	if !VerifySignature(message, env.Signature, server) {
		return nil, ErrInvalidSignature
	}
	integrityKey, err := DeriveKey(sessionKey, PurposeIntegrity)
	if err != nil {
		return nil, err
	}
	if !VerifyIntegrityAt(message, env.IntegrityHash, integrityKey, tolerance, now) {
		return nil, ErrIntegrityFailed
	}
	return message, nil
}
