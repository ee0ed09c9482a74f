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

// recentAttemptsInEvidence is how many attempt timestamps are kept as evidence.
const recentAttemptsInEvidence = 5

// BruteForceRule counts failed logins per source IP in a rolling window.
type BruteForceRule struct {
	toggle
	config   BruteForceConfig
	attempts *cache.RollingWindowStore
}

// NewBruteForceRule creates a brute-force rule tracking at most maxKeys IPs.
func NewBruteForceRule(cfg BruteForceConfig, maxKeys int) *BruteForceRule {
	return &BruteForceRule{
		toggle:   toggle{enabled: cfg.Enabled},
		config:   cfg,
		attempts: cache.NewRollingWindowStore(cfg.Window, cfg.MaxAttempts, maxKeys),
	}
}

// Type returns the anomaly type.
func (r *BruteForceRule) Type() AnomalyType { return AnomalyBruteForce }

// Applies runs the rule on recorded failed logins that carry a source IP.
func (r *BruteForceRule) Applies(obs *Observation) bool {
	return obs.Kind == ObserveEvent && obs.EventType == audit.EventLoginFailed && obs.SourceIP != ""
}

// Evaluate records the failure and reports an attack once the count in the
// window reaches the threshold. Every further failure in the window reports
// again with a score that never decreases.
func (r *BruteForceRule) Evaluate(_ context.Context, obs *Observation) (*AnomalyEvent, error) {
	count := r.attempts.Add(obs.SourceIP, obs.Timestamp)
	if count < r.config.Threshold {
		return nil, nil
	}

	recent := r.attempts.Timestamps(obs.SourceIP, obs.Timestamp)
	if len(recent) > recentAttemptsInEvidence {
		recent = recent[len(recent)-recentAttemptsInEvidence:]
	}
	windowSeconds := int(r.config.Window / time.Second)

	return &AnomalyEvent{
		Type:        AnomalyBruteForce,
		ThreatLevel: ThreatHigh,
		PrincipalID: obs.PrincipalID,
		SourceIP:    obs.SourceIP,
		Description: fmt.Sprintf("%d failed logins within %d seconds", count, windowSeconds),
		Confidence:  clampConfidence(float64(count) / float64(r.config.Threshold)),
		Evidence: BruteForceEvidence{
			AttemptCount:   count,
			Threshold:      r.config.Threshold,
			WindowSeconds:  windowSeconds,
			RecentAttempts: recent,
		},
		RiskScore: audit.ClampRisk(70 + 5*count),
		Timestamp: obs.Timestamp,
	}, nil
}

// Attempts returns the failed logins from ip inside the window at now.
func (r *BruteForceRule) Attempts(ip string, now time.Time) int {
	return r.attempts.Count(ip, now)
}

// Cleanup drops IPs with no failures inside the window.
func (r *BruteForceRule) Cleanup(now time.Time) int {
	return r.attempts.Cleanup(now)
}
