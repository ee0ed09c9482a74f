// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package api provides the shared HTTP layer of AssetGuard.

It owns the pieces every route uses, while the security endpoints themselves
live in the gateway package and are mounted here:

  - NewRouter: chi router with the global stack (request ID, recoverer, CORS,
    optional RealIP), health probes, /metrics and mounted sub-routers
  - ChiMiddleware: go-chi/cors and go-chi/httprate factories with per-group
    limits; rejections are counted and can be audited through OnRateLimited
  - ResponseWriter: the APIResponse envelope used by every JSON endpoint
  - HealthHandler: /api/v1/health, /health/live and /health/ready

Response format:

	{
	  "success": true,
	  "data": {...},
	  "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 3}
	}

Errors carry a machine-readable code and a short fixed message:

	{
	  "success": false,
	  "error": {"code": "UNAUTHORIZED", "message": "signature verification failed"}
	}
*/
package api
