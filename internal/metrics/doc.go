// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package metrics holds the Prometheus collectors for AssetGuard.

All collectors are registered on the default registry through promauto and are
exposed by the HTTP server at /metrics:

	curl http://localhost:8080/metrics

# Families

  - assetguard_api_*: request counts, latency and in-flight requests
  - assetguard_db_*: audit store query latency and errors
  - assetguard_cache_*: nonce, session, dedup and blocklist cache operations
  - assetguard_audit_*: appended events, persistence failures, risk distribution
  - assetguard_anomalies_detected_total and assetguard_detection_rule_*: detector output
  - assetguard_signature_verifications_total: request signing outcomes
  - assetguard_secure_channel_failures_total: secure channel rejections
  - assetguard_notifications_total and assetguard_circuit_breaker_*: alert delivery

Helpers such as RecordAPIRequest and RecordAnomaly keep label order in one place.
*/
package metrics
