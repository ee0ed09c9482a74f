// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

// Package audit provides the tamper-evident security audit log.
//
// Every security-relevant occurrence (logins, data operations, permission
// changes, detector findings, rejected requests) becomes one immutable Event.
// The Logger completes a caller's draft and persists it through a Store:
//
//	draft -> timestamp -> category -> redact params -> risk score -> integrity hash -> Store.Insert
//
// The integrity hash is computed last, over every field except the ID and the
// hash itself, so VerifyIntegrity detects any later change to a stored row.
//
// # Failure Semantics
//
// Append never fails the caller's operation. Persistence errors are logged and
// counted in assetguard_audit_append_failures_total, and the returned event has
// ID 0. Query, Statistics and Get return their errors, because a caller that
// cannot read audit data needs to know.
//
// # Risk Scoring
//
// DefaultScorer combines static severity and event-type weights with two history
// checks (repeated failed logins, unfamiliar source IP). A custom Scorer can be
// supplied with WithScorer.
//
// # Storage
//
//   - MemoryStore: bounded slice for development and tests
//   - DuckDBStore: audit_events table with sequence-assigned IDs
//
// Example:
//
//	store := audit.NewDuckDBStore(db)
//	if err := store.CreateTable(ctx); err != nil {
//	    return err
//	}
//	logger := audit.NewLogger(store, cfg.Audit)
//	logger.Append(ctx, audit.Event{
//	    EventType:   audit.EventLoginFailed,
//	    Severity:    audit.SeverityMedium,
//	    PrincipalID: "u-42",
//	    SourceIP:    "10.0.0.5",
//	    Description: "invalid password",
//	    Result:      audit.ResultFailed,
//	})
package audit
