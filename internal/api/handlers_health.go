// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/assetguard/internal/logging"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler serves the health probes.
type HealthHandler struct {
	version   string
	checks    []HealthCheck
	timeout   time.Duration
	startTime time.Time
}

// NewHealthHandler creates a handler reporting version and running checks on
// readiness. Each check gets timeout; zero means two seconds.
func NewHealthHandler(version string, timeout time.Duration, checks ...HealthCheck) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{
		version:   version,
		checks:    checks,
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// ComponentStatus is the outcome of one check. The error text is not
// exposed; see the server log.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Uptime     float64           `json:"uptime_seconds"`
	Components []ComponentStatus `json:"components"`
}

func (h *HealthHandler) run(ctx context.Context) ([]ComponentStatus, bool) {
	results := make([]ComponentStatus, 0, len(h.checks))
	healthy := true
	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := c.Ping(checkCtx)
		cancel()
		if err != nil {
			healthy = false
			logging.Ctx(ctx).Warn().Err(err).Str("component", c.Name).Msg("Health check failed")
		}
		results = append(results, ComponentStatus{Name: c.Name, Healthy: err == nil})
	}
	return results, healthy
}

// Health reports every component. It always answers 200; status is
// "healthy" or "degraded".
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	components, healthy := h.run(r.Context())
	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	WriteSuccess(w, r, HealthStatus{
		Status:     status,
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Seconds(),
		Components: components,
	})
}

// Live is the liveness probe: 200 while the process serves HTTP.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// Ready is the readiness probe: 503 while any check fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	components, healthy := h.run(r.Context())
	if !healthy {
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Service not ready", components)
		return
	}
	WriteSuccess(w, r, map[string]interface{}{
		"ready":      true,
		"components": components,
	})
}
