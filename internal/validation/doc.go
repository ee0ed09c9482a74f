// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

// Package validation provides struct validation using go-playground/validator
// v10 for the JSON payloads the API accepts: session bootstrap, event
// ingestion and dashboard queries.
//
// A single validator instance is shared (it caches struct metadata). Error
// field names follow json tags, and two custom tags check audit vocabulary:
// event_type and severity.
//
//	type RecordEventRequest struct {
//	    EventType string `json:"event_type" validate:"required,event_type"`
//	    Severity  string `json:"severity" validate:"omitempty,severity"`
//	}
//
// Errors convert to the API error shape through ToAPIError; rejected values
// are never echoed back.
package validation
