// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"context"
	"crypto/rsa"
	"time"
)

// BootstrapRequest is the session-key request body.
type BootstrapRequest struct {
	ClientID        string `json:"client_id" validate:"required,max=128"`
	ClientPublicKey string `json:"client_public_key,omitempty" validate:"omitempty,max=4096"`
}

// BootstrapResponse is the session-key response body. WrappedKey is set only
// when the client sent a public key.
type BootstrapResponse struct {
	SessionID  string `json:"session_id"`
	ExpiresIn  int64  `json:"expires_in"`
	Algorithm  string `json:"algorithm"`
	WrappedKey string `json:"wrapped_key,omitempty"`
}

// PublicKeyResponse is the public key distribution body.
type PublicKeyResponse struct {
	PublicKey string `json:"public_key"`
	Algorithm string `json:"algorithm"`
	Timestamp int64  `json:"timestamp"`
}

// Bootstrap establishes a session. When req carries a client public key it is
// validated first, remembered on the session for X-Client-Signature checks, and
// used to return the session key wrapped with RSA-OAEP.
func (c *Channel) Bootstrap(ctx context.Context, req BootstrapRequest) (*BootstrapResponse, error) {
	var public *rsa.PublicKey
	if req.ClientPublicKey != "" {
		var err error
		if public, err = ParsePublicKeyPEM([]byte(req.ClientPublicKey)); err != nil {
			return nil, err
		}
	}

	s, err := c.establish(ctx, req.ClientID, req.ClientPublicKey)
	if err != nil {
		return nil, err
	}

	resp := &BootstrapResponse{
		SessionID: s.ID,
		ExpiresIn: int64(c.sessionTTL / time.Second),
		Algorithm: SymmetricAlgorithm,
	}
	if public != nil {
		if resp.WrappedKey, err = WrapKey(s.Key, public); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// PublicKeyInfo returns the public key distribution body.
func (c *Channel) PublicKeyInfo() PublicKeyResponse {
	return PublicKeyResponse{
		PublicKey: c.keys.PublicKeyPEM(),
		Algorithm: AsymmetricAlgorithm,
		Timestamp: c.now().Unix(),
	}
}
