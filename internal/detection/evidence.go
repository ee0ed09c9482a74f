// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EvidenceVersion is the schema version written with every evidence payload.
// Bump it when a field of an evidence type changes meaning.
const EvidenceVersion = 1

// EvidenceKind tags the concrete evidence type in serialized form.
type EvidenceKind string

const (
	EvidenceBruteForce   EvidenceKind = "brute_force"
	EvidenceRapidCalls   EvidenceKind = "rapid_calls"
	EvidenceLoginTime    EvidenceKind = "login_time"
	EvidenceNewIP        EvidenceKind = "new_ip"
	EvidenceExfiltration EvidenceKind = "exfiltration"
)

// Evidence errors.
var (
	ErrUnknownEvidence     = errors.New("unknown evidence kind")
	ErrUnsupportedEvidence = errors.New("unsupported evidence version")
)

// Evidence is the closed set of structured payloads attached to anomalies.
// Only the types in this file implement it.
type Evidence interface {
	Kind() EvidenceKind
	evidence()
}

// BruteForceEvidence supports a BRUTE_FORCE_ATTACK anomaly.
type BruteForceEvidence struct {
	AttemptCount   int         `json:"attempt_count"`
	Threshold      int         `json:"threshold"`
	WindowSeconds  int         `json:"window_seconds"`
	RecentAttempts []time.Time `json:"recent_attempts"`
}

// RapidCallEvidence supports a RAPID_API_CALLS anomaly.
type RapidCallEvidence struct {
	CallCount      int     `json:"call_count"`
	Threshold      int     `json:"threshold"`
	WindowSeconds  int     `json:"window_seconds"`
	CallsPerMinute float64 `json:"calls_per_minute"`
}

// LoginTimeEvidence supports an UNUSUAL_LOGIN_TIME anomaly.
type LoginTimeEvidence struct {
	LoginHour       int     `json:"login_hour"`
	MeanHour        float64 `json:"mean_hour"`
	StdDevHours     float64 `json:"stddev_hours"`
	DeviationHours  float64 `json:"deviation_hours"`
	ThresholdHours  float64 `json:"threshold_hours"`
	HistoricalHours []int   `json:"historical_hours"`
}

// NewIPEvidence supports a SUSPICIOUS_IP anomaly.
type NewIPEvidence struct {
	NewIP           string   `json:"new_ip"`
	KnownIPs        []string `json:"known_ips"`
	HistoricalCount int64    `json:"historical_count"`
	LookbackDays    int      `json:"lookback_days"`
}

// ExfiltrationEvidence supports a DATA_EXFILTRATION anomaly.
type ExfiltrationEvidence struct {
	ExportCount int64   `json:"export_count"`
	Threshold   int     `json:"threshold"`
	WindowHours float64 `json:"window_hours"`
}

func (BruteForceEvidence) Kind() EvidenceKind   { return EvidenceBruteForce }
func (RapidCallEvidence) Kind() EvidenceKind    { return EvidenceRapidCalls }
func (LoginTimeEvidence) Kind() EvidenceKind    { return EvidenceLoginTime }
func (NewIPEvidence) Kind() EvidenceKind        { return EvidenceNewIP }
func (ExfiltrationEvidence) Kind() EvidenceKind { return EvidenceExfiltration }

func (BruteForceEvidence) evidence()   {}
func (RapidCallEvidence) evidence()    {}
func (LoginTimeEvidence) evidence()    {}
func (NewIPEvidence) evidence()        {}
func (ExfiltrationEvidence) evidence() {}

type evidenceEnvelope struct {
	Kind    EvidenceKind    `json:"kind"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// EncodeEvidence serializes ev as {"kind", "version", "data"}. A nil ev encodes
// as JSON null.
func EncodeEvidence(ev Evidence) (json.RawMessage, error) {
	if ev == nil {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s evidence: %w", ev.Kind(), err)
	}
	return json.Marshal(evidenceEnvelope{Kind: ev.Kind(), Version: EvidenceVersion, Data: data})
}

// DecodeEvidence parses a payload written by EncodeEvidence.
func DecodeEvidence(raw json.RawMessage) (Evidence, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var env evidenceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse evidence envelope: %w", err)
	}
	if env.Version != EvidenceVersion {
		return nil, fmt.Errorf("%w: %s v%d", ErrUnsupportedEvidence, env.Kind, env.Version)
	}

	switch env.Kind {
	case EvidenceBruteForce:
		return decodeAs[BruteForceEvidence](env.Data)
	case EvidenceRapidCalls:
		return decodeAs[RapidCallEvidence](env.Data)
	case EvidenceLoginTime:
		return decodeAs[LoginTimeEvidence](env.Data)
	case EvidenceNewIP:
		return decodeAs[NewIPEvidence](env.Data)
	case EvidenceExfiltration:
		return decodeAs[ExfiltrationEvidence](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvidence, env.Kind)
	}
}

func decodeAs[T Evidence](data json.RawMessage) (Evidence, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parse %s evidence: %w", ev.Kind(), err)
	}
	return ev, nil
}

// SecurityContext is the security_context stored on the SUSPICIOUS_ACTIVITY
// audit event that records an anomaly.
type SecurityContext struct {
	AnomalyType AnomalyType     `json:"anomaly_type"`
	ThreatLevel ThreatLevel     `json:"threat_level"`
	Confidence  float64         `json:"confidence_score"`
	RiskScore   int             `json:"risk_score"`
	Evidence    json.RawMessage `json:"evidence"`
}

// NewSecurityContext encodes the audit security context for a.
func NewSecurityContext(a *AnomalyEvent) (json.RawMessage, error) {
	evidence, err := EncodeEvidence(a.Evidence)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SecurityContext{
		AnomalyType: a.Type,
		ThreatLevel: a.ThreatLevel,
		Confidence:  a.Confidence,
		RiskScore:   a.RiskScore,
		Evidence:    evidence,
	})
}

// ParseSecurityContext reads a security context back from an audit event and
// decodes its evidence.
func ParseSecurityContext(raw json.RawMessage) (*SecurityContext, Evidence, error) {
	var sc SecurityContext
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, nil, fmt.Errorf("parse security context: %w", err)
	}
	ev, err := DecodeEvidence(sc.Evidence)
	if err != nil {
		return &sc, nil, err
	}
	return &sc, ev, nil
}

// anomalyWire is the JSON form of AnomalyEvent with enveloped evidence.
type anomalyWire struct {
	Type        AnomalyType     `json:"anomaly_type"`
	ThreatLevel ThreatLevel     `json:"threat_level"`
	PrincipalID string          `json:"principal_id,omitempty"`
	SourceIP    string          `json:"source_ip,omitempty"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
	Evidence    json.RawMessage `json:"evidence"`
	RiskScore   int             `json:"risk_score"`
	Timestamp   time.Time       `json:"timestamp"`
}

// MarshalJSON writes the evidence in its tagged envelope.
func (a AnomalyEvent) MarshalJSON() ([]byte, error) {
	evidence, err := EncodeEvidence(a.Evidence)
	if err != nil {
		return nil, err
	}
	return json.Marshal(anomalyWire{
		Type:        a.Type,
		ThreatLevel: a.ThreatLevel,
		PrincipalID: a.PrincipalID,
		SourceIP:    a.SourceIP,
		Description: a.Description,
		Confidence:  a.Confidence,
		Evidence:    evidence,
		RiskScore:   a.RiskScore,
		Timestamp:   a.Timestamp,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *AnomalyEvent) UnmarshalJSON(data []byte) error {
	var w anomalyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ev, err := DecodeEvidence(w.Evidence)
	if err != nil {
		return err
	}
	*a = AnomalyEvent{
		Type:        w.Type,
		ThreatLevel: w.ThreatLevel,
		PrincipalID: w.PrincipalID,
		SourceIP:    w.SourceIP,
		Description: w.Description,
		Confidence:  w.Confidence,
		Evidence:    ev,
		RiskScore:   w.RiskScore,
		Timestamp:   w.Timestamp,
	}
	return nil
}
