// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package services

import (
	"context"
	"time"

	"github.com/tomtom215/assetguard/internal/logging"
)

// MaintenanceFunc does one round of housekeeping and reports how many items
// it removed.
type MaintenanceFunc func(ctx context.Context) (int, error)

// MaintenanceService runs a MaintenanceFunc on a fixed interval. A failed
// round is logged and retried on the next tick rather than restarting the
// service.
type MaintenanceService struct {
	name     string
	interval time.Duration
	fn       MaintenanceFunc
}

// NewMaintenanceService creates a periodic service. interval must be positive.
func NewMaintenanceService(name string, interval time.Duration, fn MaintenanceFunc) *MaintenanceService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaintenanceService{name: name, interval: interval, fn: fn}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *MaintenanceService) runOnce(ctx context.Context) {
	n, err := m.fn(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn().Err(err).Str("task", m.name).Msg("Maintenance round failed")
		}
		return
	}
	if n > 0 {
		logging.Debug().Int("removed", n).Str("task", m.name).Msg("Maintenance round completed")
	}
}

// String implements fmt.Stringer for supervisor logs.
func (m *MaintenanceService) String() string {
	return m.name
}
