// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/assetguard/internal/metrics"
	"github.com/tomtom215/assetguard/internal/middleware"
)

// ChiMiddlewareConfig holds configuration for the chi middleware factories.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSExposedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           int // seconds

	RateLimitDisabled bool

	// OnRateLimited, when set, is told about every rejected request before the
	// 429 is written. The security gateway uses it to audit the rejection.
	OnRateLimited func(r *http.Request, limiter string)
}

// DefaultChiMiddlewareConfig returns a secure default configuration. CORS
// origins are empty, so cross-origin access needs explicit configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{},
		CORSAllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{
			"Content-Type", "Authorization", middleware.HeaderRequestID,
			"X-Timestamp", "X-Nonce", "X-Signature",
			"X-Session-ID", "X-Message-ID", "X-Integrity-Hash", "X-Client-Signature", "X-Payload-Encrypted",
		},
		CORSExposedHeaders: []string{middleware.HeaderRequestID, "X-Response-Time"},
		CORSMaxAge:         86400,
	}
}

// ChiMiddleware provides chi-compatible middleware factories.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}

	return &ChiMiddleware{
		config: config,
		cors: cors.Handler(cors.Options{
			AllowedOrigins:   config.CORSAllowedOrigins,
			AllowedMethods:   config.CORSAllowedMethods,
			AllowedHeaders:   config.CORSAllowedHeaders,
			ExposedHeaders:   config.CORSExposedHeaders,
			AllowCredentials: config.CORSAllowCredentials,
			MaxAge:           config.CORSMaxAge,
		}),
	}
}

// CORS returns the go-chi/cors middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimitConfig defines rate limit parameters for a route group.
type RateLimitConfig struct {
	// Name labels the limiter in metrics and audit records.
	Name     string
	Requests int
	Window   time.Duration
}

// Per-group limits.
var (
	// RateLimitSessionKey is strict: every call mints a session key.
	RateLimitSessionKey = RateLimitConfig{Name: "session_key", Requests: 10, Window: time.Minute}

	// RateLimitEvents covers signed event ingestion from trusted services.
	RateLimitEvents = RateLimitConfig{Name: "events", Requests: 600, Window: time.Minute}

	// RateLimitDashboard covers the operations dashboard.
	RateLimitDashboard = RateLimitConfig{Name: "dashboard", Requests: 300, Window: time.Minute}

	// RateLimitPublic covers unauthenticated reads such as the public key.
	RateLimitPublic = RateLimitConfig{Name: "public", Requests: 100, Window: time.Minute}

	// RateLimitHealth is permissive for monitoring probes.
	RateLimitHealth = RateLimitConfig{Name: "health", Requests: 1000, Window: time.Minute}
)

// RateLimitCustom returns a per-IP limiter for config. Rejections are counted
// and, when configured, reported through OnRateLimited.
func (m *ChiMiddleware) RateLimitCustom(config RateLimitConfig) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	onLimit := m.config.OnRateLimited
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(config.Name).Inc()
			if onLimit != nil {
				onLimit(r, config.Name)
			}
			NewResponseWriter(w, r).TooManyRequests("Rate limit exceeded")
		}),
	)
}
