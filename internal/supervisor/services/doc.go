// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

// Package services wraps AssetGuard components as suture.Service values.
//
// Every wrapper follows the same contract: Serve blocks until its context is
// canceled, returns ctx.Err() on a clean stop, and returns any other error to
// ask the supervisor for a restart.
package services
