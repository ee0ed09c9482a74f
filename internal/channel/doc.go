// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package channel implements the secure channel: per-session symmetric keys,
authenticated encryption of payloads, RSA signatures, time-bucketed message
integrity tags and message deduplication.

Session lifecycle:

	POST /api/v1/security/session-key {"client_id": "...", "client_public_key": "<PEM>"}
	  -> {"session_id", "expires_in", "algorithm", "wrapped_key"}

Session keys live in a cache.Store namespace with a TTL. Lookups fail closed:
an expired session is deleted and reported as ErrSessionNotFound. Rotating a
session replaces its key under the same ID.

Sub-keys for encryption and integrity are derived from the session key with
HKDF-SHA256, so one secret never serves two purposes:

	enc := DeriveKey(session, "encrypt")    // AES-256-GCM
	tag := DeriveKey(session, "integrity")  // HMAC-SHA256 integrity tags

Inbound secure requests carry X-Session-ID, X-Message-ID and X-Integrity-Hash,
plus an optional X-Client-Signature. Outbound payloads are wrapped in an
Envelope holding the ciphertext, an RSA-PSS signature over the plaintext, an
integrity tag and the session ID.
*/
package channel
