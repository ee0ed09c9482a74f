// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package middleware provides HTTP infrastructure shared by every route.

Key Components:

  - RequestID: assigns or propagates X-Request-ID and seeds the logging context
  - PrometheusMetrics: request count, duration and in-flight gauge, labeled by
    chi route pattern
  - StatusRecorder: captures the response status for outer layers
  - LatencyTracker: sliding window of recent requests with per-endpoint
    percentiles, fed by the security gateway and shown on the dashboard

Usage with chi (handlers here use the http.HandlerFunc shape, so the router
adapts them):

	r.Use(adapt(middleware.RequestID))
	r.Group(func(r chi.Router) {
	    r.Use(adapt(middleware.PrometheusMetrics))
	    r.Get("/api/v1/health/live", live)
	})

All components are safe for concurrent use.
*/
package middleware
