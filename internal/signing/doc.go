// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package signing implements HMAC-SHA256 request signing with replay protection.

A signed request carries three headers:

	X-Timestamp: 1767225600                 (unix seconds)
	X-Nonce:     4f1c2a9e0b7d4c3e8a6f5d2b1c0e9a8f
	X-Signature: <64 lowercase hex chars>

The signature is the hex HMAC-SHA256, keyed with the shared secret, of

	METHOD \n TARGET \n TIMESTAMP \n NONCE \n BODY

where TARGET is the request path plus raw query and BODY is the canonical body
(see CanonicalBody) for POST, PUT and PATCH requests and empty otherwise.

Verification checks, in order: clock skew, nonce reuse, a constant-time
signature compare, and finally an atomic set-if-absent of the nonce in a
cache.Store. Two concurrent requests with the same nonce never both pass.
Nonce entries expire when their request timestamp leaves the tolerance window,
and expired entries are pruned at most once per prune interval.

Outbound callers use Client, which signs an *http.Request in place.
*/
package signing
