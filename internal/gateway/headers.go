// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"net/http"
	"strconv"
	"time"
)

// HeaderResponseTime carries the server-side handling time.
const HeaderResponseTime = "X-Response-Time"

// SecurityHeaders sets the fixed security header set on every response.
func (g *Gateway) SecurityHeaders() func(http.Handler) http.Handler {
	hsts := "max-age=" + strconv.FormatInt(int64(g.config.HSTSMaxAge/time.Second), 10) + "; includeSubDomains"
	csp := g.config.ContentSecurityPolicy
	if csp == "" {
		csp = DefaultConfig().ContentSecurityPolicy
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Strict-Transport-Security", hsts)
			h.Set("Content-Security-Policy", csp)
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
			next.ServeHTTP(w, r)
		})
	}
}
