// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package gateway is the request boundary of AssetGuard. It composes the audit
log, the anomaly detector, request signing and the secure channel, and binds
them to HTTP.

# Request Lifecycle

Every request routed through Middleware passes two hooks:

  - OnRequestStart rejects blocked IPs, feeds the rapid-call rule, and
    verifies signatures and secure-channel headers on routes that require
    them. A rejection is a *Error whose Kind selects the HTTP status.
  - OnRequestEnd stamps X-Response-Time, records request metrics and latency,
    and audits 401, 403 and 5xx responses.

Business handlers report domain events through Record, which appends the
event before running detection on it, so history-based rules always see the
event they are judging.

# Error Kinds

	Validation      400  malformed headers or body, never audited as a violation
	Authentication  401  signature or secure-channel failure, audited
	Authorization   403  blocked IP or policy denial, audited
	Detection       -    a failing rule, logged and never surfaced
	Persistence     500  audit read failures on dashboard paths

Authentication failures answer with a fixed message so that a client cannot
learn which check failed.

# Blocklist

Blocklist keeps blocked IPs in a cache namespace with a TTL. It is also a
detection.Responder: with auto-blocking enabled, a brute-force anomaly blocks
its source IP before the next request arrives.

# Routes

Routes returns the /api/v1/security sub-router: public key distribution,
session bootstrap, signed event ingestion, and the JWT and Casbin protected
dashboard.
*/
package gateway
