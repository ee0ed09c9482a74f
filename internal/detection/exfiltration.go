// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/assetguard/internal/audit"
)

var exportEventTypes = []audit.EventType{audit.EventDataExport, audit.EventFileDownload}

// ExfiltrationRule counts a principal's exports and downloads in the audit log.
type ExfiltrationRule struct {
	toggle
	config  ExfiltrationConfig
	history audit.Reader
}

// NewExfiltrationRule creates a data exfiltration rule.
func NewExfiltrationRule(cfg ExfiltrationConfig, history audit.Reader) *ExfiltrationRule {
	return &ExfiltrationRule{
		toggle:  toggle{enabled: cfg.Enabled},
		config:  cfg,
		history: history,
	}
}

// Type returns the anomaly type.
func (r *ExfiltrationRule) Type() AnomalyType { return AnomalyDataExfiltration }

// Applies runs the rule on recorded exports and downloads of a principal.
func (r *ExfiltrationRule) Applies(obs *Observation) bool {
	if obs.Kind != ObserveEvent || obs.PrincipalID == "" {
		return false
	}
	return obs.EventType == audit.EventDataExport || obs.EventType == audit.EventFileDownload
}

// Evaluate counts exports in the window ending at the observation, the
// observed event included.
func (r *ExfiltrationRule) Evaluate(ctx context.Context, obs *Observation) (*AnomalyEvent, error) {
	count, err := r.history.Count(ctx, audit.Filter{
		EventTypes:  exportEventTypes,
		PrincipalID: obs.PrincipalID,
		Since:       obs.Timestamp.Add(-r.config.Window),
		Until:       obs.Timestamp.Add(time.Microsecond),
	})
	if err != nil {
		return nil, fmt.Errorf("count exports: %w", err)
	}
	if count < int64(r.config.Threshold) {
		return nil, nil
	}

	hours := r.config.Window.Hours()
	return &AnomalyEvent{
		Type:        AnomalyDataExfiltration,
		ThreatLevel: ThreatHigh,
		PrincipalID: obs.PrincipalID,
		SourceIP:    obs.SourceIP,
		Description: fmt.Sprintf("%d exports within %.1f hours", count, hours),
		Confidence:  clampConfidence(float64(count) / float64(r.config.Threshold)),
		Evidence: ExfiltrationEvidence{
			ExportCount: count,
			Threshold:   r.config.Threshold,
			WindowHours: hours,
		},
		RiskScore: audit.ClampRisk(80 + 2*int(count)),
		Timestamp: obs.Timestamp,
	}, nil
}
