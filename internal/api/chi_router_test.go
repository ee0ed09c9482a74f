// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(checks ...HealthCheck) http.Handler {
	sub := chi.NewRouter()
	sub.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, "pong")
	})

	return NewRouter(RouterConfig{
		Health:         NewHealthHandler("test", 0, checks...),
		MetricsEnabled: true,
		Mounts:         []Mount{{Pattern: "/api/v1/things", Handler: sub}},
	})
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	ok := HealthCheck{Name: "audit_store", Ping: func(context.Context) error { return nil }}
	broken := HealthCheck{Name: "cache", Ping: func(context.Context) error { return errors.New("connection refused") }}

	healthy := newTestRouter(ok)
	if rec := serve(healthy, http.MethodGet, "/api/v1/health/ready"); rec.Code != http.StatusOK {
		t.Errorf("ready = %d, want 200", rec.Code)
	}
	if rec := serve(healthy, http.MethodGet, "/api/v1/health"); !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("health body = %s", rec.Body.String())
	}

	degraded := newTestRouter(ok, broken)
	rec := serve(degraded, http.MethodGet, "/api/v1/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("check error leaked: %s", rec.Body.String())
	}
	if rec := serve(degraded, http.MethodGet, "/api/v1/health"); !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("health body = %s", rec.Body.String())
	}
	if rec := serve(degraded, http.MethodGet, "/api/v1/health/live"); rec.Code != http.StatusOK {
		t.Errorf("live = %d, want 200", rec.Code)
	}
}

func TestRouter_MountsAndFallbacks(t *testing.T) {
	t.Parallel()

	router := newTestRouter()

	rec := serve(router, http.MethodGet, "/api/v1/things/ping")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pong") {
		t.Errorf("mounted route = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id middleware not applied")
	}

	if rec := serve(router, http.MethodGet, "/nope"); rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), ErrCodeNotFound) {
		t.Errorf("not found = %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(router, http.MethodPost, "/api/v1/health/live"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("method not allowed = %d", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	_ = serve(router, http.MethodGet, "/api/v1/health/live")

	rec := serve(router, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "assetguard_api_requests_total") {
		t.Errorf("metrics = %d", rec.Code)
	}
}
