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
	"github.com/tomtom215/assetguard/internal/cache"
)

// RapidCallsRule counts every inbound API call per source IP.
type RapidCallsRule struct {
	toggle
	config RapidCallsConfig
	calls  *cache.RollingWindowStore
}

// NewRapidCallsRule creates a rapid API call rule tracking at most maxKeys IPs.
func NewRapidCallsRule(cfg RapidCallsConfig, maxKeys int) *RapidCallsRule {
	return &RapidCallsRule{
		toggle: toggle{enabled: cfg.Enabled},
		config: cfg,
		calls:  cache.NewRollingWindowStore(cfg.Window, cfg.MaxCalls, maxKeys),
	}
}

// Type returns the anomaly type.
func (r *RapidCallsRule) Type() AnomalyType { return AnomalyRapidAPICalls }

// Applies runs the rule on inbound requests.
func (r *RapidCallsRule) Applies(obs *Observation) bool {
	return obs.Kind == ObserveRequest && obs.SourceIP != ""
}

// Evaluate records the call and reports a burst at or above the threshold.
func (r *RapidCallsRule) Evaluate(_ context.Context, obs *Observation) (*AnomalyEvent, error) {
	count := r.calls.Add(obs.SourceIP, obs.Timestamp)
	if count < r.config.Threshold {
		return nil, nil
	}

	windowSeconds := int(r.config.Window / time.Second)
	return &AnomalyEvent{
		Type:        AnomalyRapidAPICalls,
		ThreatLevel: ThreatMedium,
		PrincipalID: obs.PrincipalID,
		SourceIP:    obs.SourceIP,
		Description: fmt.Sprintf("%d API calls within %d seconds", count, windowSeconds),
		Confidence:  clampConfidence(float64(count) / float64(r.config.Threshold)),
		Evidence: RapidCallEvidence{
			CallCount:      count,
			Threshold:      r.config.Threshold,
			WindowSeconds:  windowSeconds,
			CallsPerMinute: float64(count) / r.config.Window.Minutes(),
		},
		RiskScore: audit.ClampRisk(50 + count),
		Timestamp: obs.Timestamp,
	}, nil
}

// Cleanup drops IPs with no calls inside the window.
func (r *RapidCallsRule) Cleanup(now time.Time) int {
	return r.calls.Cleanup(now)
}
