// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/assetguard/internal/middleware"
)

// chiMiddleware adapts the http.HandlerFunc middleware of the middleware
// package to chi's func(http.Handler) http.Handler shape.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Mount attaches a sub-router below Pattern.
type Mount struct {
	Pattern string
	Handler http.Handler
}

// RouterConfig assembles the HTTP surface.
type RouterConfig struct {
	Middleware *ChiMiddlewareConfig
	Health     *HealthHandler

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites them, since the client IP
	// drives blocking and brute-force detection.
	TrustProxyHeaders bool

	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool

	Mounts []Mount
}

// NewRouter builds the chi router: the global middleware stack, health
// probes, /metrics, and every mounted sub-router.
func NewRouter(cfg RouterConfig) chi.Router {
	mw := NewChiMiddleware(cfg.Middleware)
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	// ========================
	// Health
	// ========================
	if cfg.Health != nil {
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitCustom(RateLimitHealth))
			r.Use(chiMiddleware(middleware.PrometheusMetrics))
			r.Get("/api/v1/health", cfg.Health.Health)
			r.Get("/api/v1/health/live", cfg.Health.Live)
			r.Get("/api/v1/health/ready", cfg.Health.Ready)
		})
	}

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	for _, m := range cfg.Mounts {
		r.Mount(m.Pattern, m.Handler)
	}

	return r
}
