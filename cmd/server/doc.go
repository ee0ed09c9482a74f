// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

// Package main is the entry point for the AssetGuard server.
//
// AssetGuard sits in front of an IT asset management API and records every
// security-relevant request in a tamper-evident audit log, verifies signed and
// encrypted client traffic, and flags anomalies such as brute-force logins and
// rapid API calls.
//
// # Startup Order
//
//  1. Configuration: defaults, config.yaml, then environment (Koanf v2)
//  2. Audit storage: DuckDB (default) or an in-memory ring
//  3. Cache: memory, BadgerDB or Redis for nonces, sessions and blocks
//  4. Detection: rules, webhook notifier, auto-blocking
//  5. Request signing and the secure channel, when configured
//  6. Dashboard authentication (JWT) and authorization (Casbin)
//  7. HTTP server and background maintenance under the supervisor tree
//
// # Example Usage
//
// Development, with an ephemeral channel key pair and no dashboard:
//
//	export SIGNING_SECRET=dev-signing-secret
//	export SIGNING_ENABLED=true
//	./assetguard
//
// Production:
//
//	export ENVIRONMENT=production
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export SIGNING_ENABLED=true
//	export SIGNING_SECRET=$(openssl rand -hex 32)
//	export SERVER_PRIVATE_KEY_PATH=/etc/assetguard/server.pem
//	export AUDIT_INTEGRITY_KEY=$(openssl rand -hex 32)
//	./assetguard
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
// in-flight requests for HTTP_SHUTDOWN_TIMEOUT, then the cache and the database are
// closed, with DuckDB checkpointed first.
package main
