// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package api

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/assetguard/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitCustom_RejectsAndReports(t *testing.T) {
	var reported atomic.Int32
	var limiterName atomic.Value

	cfg := DefaultChiMiddlewareConfig()
	cfg.OnRateLimited = func(r *http.Request, limiter string) {
		reported.Add(1)
		limiterName.Store(limiter)
	}
	mw := NewChiMiddleware(cfg)

	limit := RateLimitConfig{Name: "test_limit", Requests: 2, Window: time.Minute}
	handler := mw.RateLimitCustom(limit)(okHandler())
	hits := metrics.APIRateLimitHits.WithLabelValues("test_limit")
	before := testutil.ToFloat64(hits)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
	if reported.Load() != 1 || limiterName.Load() != "test_limit" {
		t.Errorf("reported = %d (%v)", reported.Load(), limiterName.Load())
	}
	if got := testutil.ToFloat64(hits) - before; got != 1 {
		t.Errorf("rate limit hits = %v, want 1", got)
	}
}

func TestRateLimitCustom_PerIP(t *testing.T) {
	mw := NewChiMiddleware(DefaultChiMiddlewareConfig())
	handler := mw.RateLimitCustom(RateLimitConfig{Name: "per_ip", Requests: 1, Window: time.Minute})(okHandler())

	for _, addr := range []string{"198.51.100.1:1", "198.51.100.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", addr, rec.Code)
		}
	}
}

func TestRateLimitCustom_Disabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	handler := NewChiMiddleware(cfg).RateLimitCustom(RateLimitConfig{Name: "off", Requests: 1, Window: time.Minute})(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"https://dashboard.example.com"}
	handler := NewChiMiddleware(cfg).CORS()(okHandler())

	tests := []struct {
		origin string
		want   string
	}{
		{"https://dashboard.example.com", "https://dashboard.example.com"},
		{"https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}
