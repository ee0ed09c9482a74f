// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

// Package detection classifies requests and recorded audit events as anomalous
// and routes the resulting anomalies to the audit log, notifiers and response
// policies.
//
// Detection Architecture:
//
//	Observation -> Detector.Analyze -> []AnomalyEvent -> Detector.Handle
//	                   |                                     |
//	                   v                                     v
//	           Rules (rolling windows,              audit.Appender (SUSPICIOUS_ACTIVITY)
//	           behavior profiles, history)          Responders / Notifiers (HIGH+)
//
// The caller records the raw event first and then analyzes an Observation built
// from the stored event, so a rule never races ahead of the event it inspects.
//
// Supported Detection Rules:
//   - Brute Force: failed logins per source IP in a rolling window
//   - Rapid API Calls: requests per source IP in a rolling window
//   - Unusual Login Time: login hour against the principal's behavior profile
//   - Suspicious IP: login from an address the principal has not used recently
//   - Data Exfiltration: exports and downloads per principal per window
//
// Behavior profiles are derived from audit history, cached for a freshness
// period and rebuilt lazily. Concurrent rebuilds for one principal share a
// single query. Events in the SECURITY_EVENT category never contribute to a
// profile, so an attacker's address cannot become "known" by being flagged.
//
// Evidence attached to an anomaly is a closed set of typed structs serialized
// in a versioned envelope:
//
//	{"kind":"brute_force","version":1,"data":{"attempt_count":5,...}}
package detection
