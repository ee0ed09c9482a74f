// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import (
	"context"
	"time"

	"github.com/tomtom215/assetguard/internal/logging"
)

// Scorer computes the risk score of a draft event before it is persisted.
type Scorer interface {
	Score(ctx context.Context, event *Event) int
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, event *Event) int

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, event *Event) int { return f(ctx, event) }

// Counter is the read-only history lookup the default scorer needs.
type Counter interface {
	Count(ctx context.Context, filter Filter) (int64, error)
}

var severityWeights = map[Severity]int{
	SeverityLow:      5,
	SeverityMedium:   20,
	SeverityHigh:     50,
	SeverityCritical: 90,
}

var eventTypeWeights = map[EventType]int{
	EventLoginFailed:        15,
	EventSecurityViolation:  80,
	EventSuspiciousActivity: 60,
	EventDataExport:         30,
	EventPermissionGrant:    40,
	EventSystemConfig:       50,
}

const (
	baseRisk = 10

	repeatedFailureThreshold = 3
	repeatedFailureWindow    = 5 * time.Minute
	repeatedFailureBonus     = 30

	unfamiliarIPWindow = 30 * 24 * time.Hour
	unfamiliarIPBonus  = 25
)

// DefaultScorer scores events from their severity and type plus the principal's
// recent history:
//
//	10 + severity weight + event type weight
//	+30 if the principal has 3 or more LOGIN_FAILED events in the last 5 minutes
//	+25 if the source IP never appears among the principal's successful events in
//	    the last 30 days, while such events exist
//
// The result is clamped to [0, 100]. History lookups that fail are logged and
// contribute nothing.
type DefaultScorer struct {
	history Counter
}

// NewDefaultScorer creates the default scorer. history may be nil, in which case
// only the static weights apply.
func NewDefaultScorer(history Counter) *DefaultScorer {
	return &DefaultScorer{history: history}
}

// Score implements Scorer.
func (s *DefaultScorer) Score(ctx context.Context, event *Event) int {
	score := baseRisk + severityWeights[event.Severity] + eventTypeWeights[event.EventType]

	if s.history != nil && event.PrincipalID != "" {
		score += s.historyAdjustment(ctx, event)
	}

	return ClampRisk(score)
}

func (s *DefaultScorer) historyAdjustment(ctx context.Context, event *Event) int {
	adjustment := 0

	failures, err := s.history.Count(ctx, Filter{
		EventTypes:  []EventType{EventLoginFailed},
		PrincipalID: event.PrincipalID,
		Since:       event.Timestamp.Add(-repeatedFailureWindow),
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Risk scorer: failed-login lookup failed")
	} else if failures >= repeatedFailureThreshold {
		adjustment += repeatedFailureBonus
	}

	if event.SourceIP == "" {
		return adjustment
	}

	since := event.Timestamp.Add(-unfamiliarIPWindow)
	known, err := s.history.Count(ctx, Filter{
		Results:           []Result{ResultSuccess},
		ExcludeCategories: []Category{CategorySecurityEvent},
		PrincipalID:       event.PrincipalID,
		Since:             since,
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Risk scorer: history lookup failed")
		return adjustment
	}
	if known == 0 {
		return adjustment
	}

	fromIP, err := s.history.Count(ctx, Filter{
		Results:           []Result{ResultSuccess},
		ExcludeCategories: []Category{CategorySecurityEvent},
		PrincipalID:       event.PrincipalID,
		SourceIP:          event.SourceIP,
		Since:             since,
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Risk scorer: source IP lookup failed")
		return adjustment
	}
	if fromIP == 0 {
		adjustment += unfamiliarIPBonus
	}
	return adjustment
}

// ClampRisk bounds a risk score to [0, 100].
func ClampRisk(score int) int {
	return min(max(score, 0), 100)
}
