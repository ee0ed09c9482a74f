// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/assetguard/internal/audit"
)

// AnomalyType identifies a detection rule and the anomalies it emits.
type AnomalyType string

const (
	AnomalyBruteForce       AnomalyType = "BRUTE_FORCE_ATTACK"
	AnomalyRapidAPICalls    AnomalyType = "RAPID_API_CALLS"
	AnomalyUnusualLoginTime AnomalyType = "UNUSUAL_LOGIN_TIME"
	AnomalySuspiciousIP     AnomalyType = "SUSPICIOUS_IP"
	AnomalyDataExfiltration AnomalyType = "DATA_EXFILTRATION"
)

// ThreatLevel is the severity of an anomaly.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "LOW"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatCritical ThreatLevel = "CRITICAL"
)

// AuditSeverity maps the threat level onto the audit severity scale. Unknown
// levels map to MEDIUM.
func (t ThreatLevel) AuditSeverity() audit.Severity {
	switch t {
	case ThreatLow:
		return audit.SeverityLow
	case ThreatHigh:
		return audit.SeverityHigh
	case ThreatCritical:
		return audit.SeverityCritical
	default:
		return audit.SeverityMedium
	}
}

// Escalates reports whether anomalies at this level are sent to notifiers and
// the block policy.
func (t ThreatLevel) Escalates() bool {
	return t == ThreatHigh || t == ThreatCritical
}

// AnomalyEvent is one detector finding. It is always recorded through the audit
// log and never stored on its own.
type AnomalyEvent struct {
	Type        AnomalyType `json:"anomaly_type"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	PrincipalID string      `json:"principal_id,omitempty"`
	SourceIP    string      `json:"source_ip,omitempty"`
	Description string      `json:"description"`
	Confidence  float64     `json:"confidence"`
	Evidence    Evidence    `json:"evidence"`
	RiskScore   int         `json:"risk_score"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ObservationKind tells rules what an Observation describes.
type ObservationKind int

const (
	// ObserveRequest is an inbound API call seen by the gateway.
	ObserveRequest ObservationKind = iota

	// ObserveEvent is an audit event that has just been recorded.
	ObserveEvent
)

// Observation is the input to Analyze: either an inbound request or a freshly
// appended audit event. For events, the audit record must already be
// persisted, so history lookups include it.
type Observation struct {
	Kind        ObservationKind
	EventType   audit.EventType
	PrincipalID string
	SourceIP    string
	UserAgent   string
	Endpoint    string
	Timestamp   time.Time
}

// ObservationFromEvent builds an event observation from an appended audit
// event.
func ObservationFromEvent(e *audit.Event) Observation {
	return Observation{
		Kind:        ObserveEvent,
		EventType:   e.EventType,
		PrincipalID: e.PrincipalID,
		SourceIP:    e.SourceIP,
		UserAgent:   e.UserAgent,
		Endpoint:    e.Endpoint,
		Timestamp:   e.Timestamp,
	}
}

// Rule is a single detection rule.
type Rule interface {
	// Type returns the anomaly type this rule emits.
	Type() AnomalyType

	// Applies reports whether the rule should run for obs.
	Applies(obs *Observation) bool

	// Evaluate checks obs and returns an anomaly, or nil.
	Evaluate(ctx context.Context, obs *Observation) (*AnomalyEvent, error)

	// Enabled returns whether the rule is active.
	Enabled() bool

	// SetEnabled enables or disables the rule.
	SetEnabled(enabled bool)
}

// Notifier delivers escalated anomalies to an external channel.
type Notifier interface {
	// Send delivers one anomaly.
	Send(ctx context.Context, anomaly *AnomalyEvent) error

	// Name identifies the notifier in logs and metrics.
	Name() string

	// Enabled returns whether this notifier should receive anomalies.
	Enabled() bool
}

// Responder reacts to escalated anomalies, for example by blocking the source
// IP.
type Responder interface {
	Respond(ctx context.Context, anomaly *AnomalyEvent) error
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// toggle holds the enabled flag shared by every rule.
type toggle struct {
	mu      sync.RWMutex
	enabled bool
}

// Enabled returns whether the rule is active.
func (t *toggle) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled enables or disables the rule.
func (t *toggle) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}
