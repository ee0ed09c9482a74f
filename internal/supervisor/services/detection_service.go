// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package services

import "context"

// DetectionEngine is implemented by *detection.Detector.
type DetectionEngine interface {
	RunWithContext(ctx context.Context) error
}

// DetectionService runs the detector's background cleanup.
type DetectionService struct {
	engine DetectionEngine
	name   string
}

// NewDetectionService wraps engine as a supervised service.
func NewDetectionService(engine DetectionEngine) *DetectionService {
	return &DetectionService{
		engine: engine,
		name:   "detection-engine",
	}
}

// Serve implements suture.Service.
func (d *DetectionService) Serve(ctx context.Context) error {
	return d.engine.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (d *DetectionService) String() string {
	return d.name
}
