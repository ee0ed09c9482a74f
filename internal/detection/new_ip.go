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

const knownIPsInEvidence = 5

// NewIPRule flags successful logins from an IP the principal has not used.
type NewIPRule struct {
	toggle
	config   NewIPConfig
	profiles *ProfileCache
	history  audit.Reader
}

// NewNewIPRule creates a suspicious IP rule.
func NewNewIPRule(cfg NewIPConfig, profiles *ProfileCache, history audit.Reader) *NewIPRule {
	return &NewIPRule{
		toggle:   toggle{enabled: cfg.Enabled},
		config:   cfg,
		profiles: profiles,
		history:  history,
	}
}

// Type returns the anomaly type.
func (r *NewIPRule) Type() AnomalyType { return AnomalySuspiciousIP }

// Applies runs the rule on recorded successful logins with a principal and IP.
func (r *NewIPRule) Applies(obs *Observation) bool {
	return obs.Kind == ObserveEvent &&
		obs.EventType == audit.EventLoginSuccess &&
		obs.PrincipalID != "" &&
		obs.SourceIP != ""
}

// Evaluate reports the login when the IP is not in the profile and the
// principal has no successful events from it in the lookback window.
func (r *NewIPRule) Evaluate(ctx context.Context, obs *Observation) (*AnomalyEvent, error) {
	profile, err := r.profiles.GetOrBuild(ctx, obs.PrincipalID, obs.Timestamp)
	if err != nil {
		return nil, err
	}
	if profile.KnowsIP(obs.SourceIP) {
		return nil, nil
	}

	prior, err := r.history.Count(ctx, audit.Filter{
		PrincipalID:       obs.PrincipalID,
		SourceIP:          obs.SourceIP,
		Results:           []audit.Result{audit.ResultSuccess},
		ExcludeCategories: []audit.Category{audit.CategorySecurityEvent},
		Since:             obs.Timestamp.Add(-r.config.Lookback),
		Until:             obs.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("count prior events from ip: %w", err)
	}
	if prior > 0 {
		return nil, nil
	}

	known := profile.SortedKnownIPs()
	if len(known) > knownIPsInEvidence {
		known = known[:knownIPsInEvidence]
	}

	return &AnomalyEvent{
		Type:        AnomalySuspiciousIP,
		ThreatLevel: ThreatMedium,
		PrincipalID: obs.PrincipalID,
		SourceIP:    obs.SourceIP,
		Description: fmt.Sprintf("login from new IP address %s", obs.SourceIP),
		Confidence:  0.8,
		Evidence: NewIPEvidence{
			NewIP:           obs.SourceIP,
			KnownIPs:        known,
			HistoricalCount: prior,
			LookbackDays:    int(r.config.Lookback / (24 * time.Hour)),
		},
		RiskScore: 60,
		Timestamp: obs.Timestamp,
	}, nil
}
