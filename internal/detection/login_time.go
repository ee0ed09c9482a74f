// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"context"
	"fmt"

	"github.com/tomtom215/assetguard/internal/audit"
)

// historicalHoursInEvidence is how many past login hours are kept as evidence.
const historicalHoursInEvidence = 10

// LoginTimeRule compares the hour of a successful login with the principal's
// behavior profile.
type LoginTimeRule struct {
	toggle
	config   LoginTimeConfig
	profiles *ProfileCache
}

// NewLoginTimeRule creates an unusual login time rule.
func NewLoginTimeRule(cfg LoginTimeConfig, profiles *ProfileCache) *LoginTimeRule {
	return &LoginTimeRule{
		toggle:   toggle{enabled: cfg.Enabled},
		config:   cfg,
		profiles: profiles,
	}
}

// Type returns the anomaly type.
func (r *LoginTimeRule) Type() AnomalyType { return AnomalyUnusualLoginTime }

// Applies runs the rule on recorded successful logins of a known principal.
func (r *LoginTimeRule) Applies(obs *Observation) bool {
	return obs.Kind == ObserveEvent && obs.EventType == audit.EventLoginSuccess && obs.PrincipalID != ""
}

// Evaluate reports a login whose UTC hour is far from the usual login hours.
func (r *LoginTimeRule) Evaluate(ctx context.Context, obs *Observation) (*AnomalyEvent, error) {
	profile, err := r.profiles.GetOrBuild(ctx, obs.PrincipalID, obs.Timestamp)
	if err != nil {
		return nil, err
	}

	hour := obs.Timestamp.UTC().Hour()
	a := profile.AssessLoginHour(hour)
	if !a.Unusual || a.Confidence < r.config.MinConfidence {
		return nil, nil
	}

	history := profile.LoginHours
	if len(history) > historicalHoursInEvidence {
		history = history[:historicalHoursInEvidence]
	}

	return &AnomalyEvent{
		Type:        AnomalyUnusualLoginTime,
		ThreatLevel: ThreatLow,
		PrincipalID: obs.PrincipalID,
		SourceIP:    obs.SourceIP,
		Description: fmt.Sprintf("login at %02d:00 UTC, usual hour %.1f", hour, a.MeanHour),
		Confidence:  a.Confidence,
		Evidence: LoginTimeEvidence{
			LoginHour:       hour,
			MeanHour:        a.MeanHour,
			StdDevHours:     a.StdDev,
			DeviationHours:  a.Deviation,
			ThresholdHours:  a.Threshold,
			HistoricalHours: append([]int(nil), history...),
		},
		RiskScore: audit.ClampRisk(int(30 + a.Confidence*20)),
		Timestamp: obs.Timestamp,
	}, nil
}
