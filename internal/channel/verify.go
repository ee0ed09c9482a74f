// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// Secure-channel request headers.
const (
	HeaderSessionID        = "X-Session-ID"
	HeaderMessageID        = "X-Message-ID"
	HeaderIntegrityHash    = "X-Integrity-Hash"
	HeaderClientSignature  = "X-Client-Signature"
	HeaderPayloadEncrypted = "X-Payload-Encrypted"
)

// Request verification errors. ErrSessionNotFound, ErrDecryptionFailed,
// ErrIntegrityFailed and ErrInvalidSignature are also returned.
var (
	ErrMissingHeaders   = errors.New("channel: missing secure channel headers")
	ErrDuplicateMessage = errors.New("channel: duplicate message")
)

// Headers holds the secure-channel headers of one request.
type Headers struct {
	SessionID       string
	MessageID       string
	IntegrityHash   string
	ClientSignature string
	Encrypted       bool
}

// ParseHeaders extracts the secure-channel headers.
func ParseHeaders(h http.Header) Headers {
	return Headers{
		SessionID:       h.Get(HeaderSessionID),
		MessageID:       h.Get(HeaderMessageID),
		IntegrityHash:   h.Get(HeaderIntegrityHash),
		ClientSignature: h.Get(HeaderClientSignature),
		Encrypted:       strings.EqualFold(h.Get(HeaderPayloadEncrypted), "true"),
	}
}

// Verified is a request that passed the secure channel.
type Verified struct {
	Session *Session

	// Body is the request body, decrypted when it arrived encrypted.
	Body []byte
}

// VerifyRequest checks an inbound secure request. body is the signing body of
// the request (see signing.SigningBody); when the payload is marked encrypted it
// is the base64 ciphertext instead. Checks run in order: headers, session,
// decryption, integrity, client signature, and finally message dedup, so a
// forged message never consumes a message ID. An empty clientID dedups under
// the client the session was issued to.
func (c *Channel) VerifyRequest(ctx context.Context, h Headers, clientID string, body []byte) (*Verified, error) {
	v, err := c.verifyRequest(ctx, h, clientID, body)
	if err != nil {
		metrics.RecordSecureChannelFailure(FailureLabel(err))
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("session_id", logging.TruncateString(h.SessionID, 8)).
			Str("client_id", clientID).
			Msg("Secure channel verification failed")
	}
	return v, err
}

func (c *Channel) verifyRequest(ctx context.Context, h Headers, clientID string, body []byte) (*Verified, error) {
	if h.SessionID == "" || h.MessageID == "" || h.IntegrityHash == "" {
		return nil, ErrMissingHeaders
	}

	s, err := c.Session(ctx, h.SessionID)
	if err != nil {
		return nil, err
	}

	message := body
	if h.Encrypted {
		if message, err = Decrypt(string(body), s.Key); err != nil {
			return nil, err
		}
	}

	integrityKey, err := DeriveKey(s.Key, PurposeIntegrity)
	if err != nil {
		return nil, err
	}
	if !c.VerifyIntegrity(message, h.IntegrityHash, integrityKey, c.tolerance) {
		return nil, ErrIntegrityFailed
	}

	if h.ClientSignature != "" {
		if s.ClientPublicKey == "" {
			return nil, ErrInvalidSignature
		}
		public, err := ParsePublicKeyPEM([]byte(s.ClientPublicKey))
		if err != nil || !VerifySignature(message, h.ClientSignature, public) {
			return nil, ErrInvalidSignature
		}
	}

	if clientID == "" {
		clientID = s.ClientID
	}
	dup, err := c.IsDuplicate(ctx, h.MessageID, clientID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicateMessage
	}
	return &Verified{Session: s, Body: message}, nil
}

// Tampering reports whether err indicates an altered message rather than a
// stale or misconfigured client.
func Tampering(err error) bool {
	return errors.Is(err, ErrDecryptionFailed) || errors.Is(err, ErrIntegrityFailed)
}

// FailureLabel maps a verification error to a metric label.
func FailureLabel(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, ErrSessionNotFound):
		return "invalid_session"
	case errors.Is(err, ErrDecryptionFailed):
		return "decrypt_failed"
	case errors.Is(err, ErrIntegrityFailed):
		return "integrity_failed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrDuplicateMessage):
		return "duplicate"
	default:
		return "internal"
	}
}
