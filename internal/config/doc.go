// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package config loads AssetGuard's configuration.

Configuration is layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, else the first of DefaultConfigPaths
 3. Environment variables listed in the env map (unlisted variables are ignored)

The resulting Config is validated before it is returned. Component sections
reuse the component's own Config type where it has one (signing.Config,
channel.Config, detection.Config, gateway.Config, database.Config), so a
setting has one definition.

# Sections

  - server: listen address, timeouts, environment
  - database: DuckDB file backing the audit trail
  - security: JWT, Casbin, CORS and rate limiting for the dashboard
  - signing: HMAC request signatures for event ingestion
  - channel: secure-channel session keys and server key pair
  - detection: anomaly rules and auto-blocking
  - audit: audit storage and paging
  - cache: nonce, session, dedup and blocklist backend (memory, badger, redis)
  - notifier: webhook delivery of escalated anomalies
  - gateway: security headers and dashboard windows
  - logging: zerolog level and format

# Environment Variables

A selection; see envMappings for the full list.

	HTTP_PORT, HTTP_HOST, ENVIRONMENT
	DUCKDB_PATH, DUCKDB_MAX_MEMORY
	JWT_SECRET, CASBIN_POLICY_PATH, CORS_ORIGINS, DISABLE_RATE_LIMIT
	SIGNING_ENABLED, SIGNING_SECRET, SIGNATURE_TOLERANCE
	SECURE_CHANNEL_ENABLED, SERVER_PRIVATE_KEY_PATH, SERVER_PUBLIC_KEY_PATH
	DETECTION_AUTO_BLOCK, BRUTE_FORCE_THRESHOLD
	AUDIT_STORAGE, AUDIT_INTEGRITY_KEY
	CACHE_BACKEND, CACHE_BADGER_PATH, REDIS_ADDR
	WEBHOOK_ENABLED, WEBHOOK_URL, WEBHOOK_HEADERS
	ALERT_TRANSPORT, ALERT_NATS_URL, ALERT_QUEUE_GROUP
	LOG_LEVEL, LOG_FORMAT
*/
package config
