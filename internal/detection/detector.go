// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// cleanupInterval is how often RunWithContext drops idle rolling windows.
const cleanupInterval = time.Minute

// Detector runs detection rules over observations and records what they find.
type Detector struct {
	config   Config
	appender audit.Appender
	profiles *ProfileCache
	now      func() time.Time

	bruteForce *BruteForceRule
	rapidCalls *RapidCallsRule

	mu         sync.RWMutex
	rules      []Rule
	notifiers  []Notifier
	responders []Responder

	alerts  *AlertBus
	pending sync.WaitGroup
}

// Option customizes a Detector.
type Option func(*detectorOptions)

type detectorOptions struct {
	now    func() time.Time
	alerts *AlertBus
}

// WithClock replaces the clock used for observations without a timestamp,
// profile freshness and cleanup.
func WithClock(now func() time.Time) Option {
	return func(o *detectorOptions) { o.now = now }
}

// WithAlertBus publishes escalated anomalies on bus instead of calling the
// notifiers directly. Something must run ConsumeAlerts on the bus for the
// notifiers to be reached.
func WithAlertBus(bus *AlertBus) Option {
	return func(o *detectorOptions) { o.alerts = bus }
}

// New creates a detector with the five built-in rules. Anomalies are recorded
// through appender; history is the read side of the same audit log.
func New(cfg Config, appender audit.Appender, history audit.Reader, opts ...Option) *Detector {
	o := detectorOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	profiles := NewProfileCache(history, cfg.Profile, cfg.LoginTime, WithProfileClock(o.now))
	d := &Detector{
		config:     cfg,
		appender:   appender,
		profiles:   profiles,
		now:        o.now,
		alerts:     o.alerts,
		bruteForce: NewBruteForceRule(cfg.BruteForce, cfg.MaxTrackedKeys),
		rapidCalls: NewRapidCallsRule(cfg.RapidCalls, cfg.MaxTrackedKeys),
	}
	d.RegisterRule(d.bruteForce)
	d.RegisterRule(d.rapidCalls)
	d.RegisterRule(NewLoginTimeRule(cfg.LoginTime, profiles))
	d.RegisterRule(NewNewIPRule(cfg.NewIP, profiles, history))
	d.RegisterRule(NewExfiltrationRule(cfg.Exfiltration, history))
	return d
}

// RegisterRule adds a rule, replacing any rule of the same type.
func (d *Detector) RegisterRule(rule Rule) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.rules {
		if existing.Type() == rule.Type() {
			d.rules[i] = rule
			return
		}
	}
	d.rules = append(d.rules, rule)
	logging.Debug().Str("rule", string(rule.Type())).Msg("registered detection rule")
}

// RegisterNotifier adds a notifier for escalated anomalies.
func (d *Detector) RegisterNotifier(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
	logging.Info().Str("notifier", n.Name()).Msg("registered notifier")
}

// RegisterResponder adds a responder for escalated anomalies.
func (d *Detector) RegisterResponder(r Responder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responders = append(d.responders, r)
}

// Analyze runs every enabled rule that applies to obs and returns what they
// found. A failing rule is logged and counted, and the others still run.
func (d *Detector) Analyze(ctx context.Context, obs Observation) []AnomalyEvent {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = d.now()
	}

	var found []AnomalyEvent
	for _, rule := range d.applicableRules(&obs) {
		anomaly, err := d.evaluate(ctx, rule, &obs)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("rule", string(rule.Type())).
				Msg("Detection rule failed")
			continue
		}
		if anomaly != nil {
			found = append(found, *anomaly)
		}
	}
	return found
}

func (d *Detector) applicableRules(obs *Observation) []Rule {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rules := make([]Rule, 0, len(d.rules))
	for _, rule := range d.rules {
		if rule.Enabled() && rule.Applies(obs) {
			rules = append(rules, rule)
		}
	}
	return rules
}

// evaluate runs one rule and turns a panic into an error so that one broken
// rule cannot take the request down.
func (d *Detector) evaluate(ctx context.Context, rule Rule, obs *Observation) (anomaly *AnomalyEvent, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			anomaly, err = nil, fmt.Errorf("%s: panic: %v", rule.Type(), r)
		}
		metrics.RecordRuleEvaluation(string(rule.Type()), time.Since(start), err)
	}()

	anomaly, err = rule.Evaluate(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rule.Type(), err)
	}
	if anomaly != nil {
		anomaly.Confidence = clampConfidence(anomaly.Confidence)
		anomaly.RiskScore = audit.ClampRisk(anomaly.RiskScore)
	}
	return anomaly, nil
}

// Handle records each anomaly as a SUSPICIOUS_ACTIVITY audit event. HIGH and
// CRITICAL anomalies are also passed to every responder and, asynchronously,
// to every enabled notifier.
func (d *Detector) Handle(ctx context.Context, anomalies []AnomalyEvent) {
	for i := range anomalies {
		a := &anomalies[i]
		metrics.RecordAnomaly(string(a.Type), string(a.ThreatLevel))

		securityContext, err := NewSecurityContext(a)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("anomaly_type", string(a.Type)).Msg("Failed to encode anomaly evidence")
		}

		d.appender.Append(ctx, audit.Event{
			EventType:       audit.EventSuspiciousActivity,
			Severity:        a.ThreatLevel.AuditSeverity(),
			PrincipalID:     a.PrincipalID,
			SourceIP:        a.SourceIP,
			Description:     fmt.Sprintf("%s: %s", a.Type, a.Description),
			ResourceType:    "SecurityEvent",
			ResourceID:      string(a.Type),
			Result:          audit.ResultSuccess,
			SecurityContext: securityContext,
			RiskScore:       a.RiskScore,
		})

		logging.Ctx(ctx).Warn().
			Str("anomaly_type", string(a.Type)).
			Str("threat_level", string(a.ThreatLevel)).
			Float64("confidence", a.Confidence).
			Int("risk_score", a.RiskScore).
			Str("source_ip", logging.MaskIP(a.SourceIP)).
			Msg("Anomaly detected")

		if a.ThreatLevel.Escalates() {
			d.escalate(ctx, a)
		}
	}
}

// escalate runs responders inline, so a block is in place before the next
// request. Notifiers are reached through the alert bus when one is set, and
// directly in the background otherwise or when publishing fails.
func (d *Detector) escalate(ctx context.Context, a *AnomalyEvent) {
	logging.Ctx(ctx).Error().
		Str("anomaly_type", string(a.Type)).
		Str("principal_id", logging.SanitizeUserID(a.PrincipalID)).
		Str("source_ip", logging.MaskIP(a.SourceIP)).
		Msg("High-threat anomaly")

	d.mu.RLock()
	responders := append([]Responder(nil), d.responders...)
	d.mu.RUnlock()

	for _, r := range responders {
		if err := r.Respond(ctx, a); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("anomaly_type", string(a.Type)).Msg("Anomaly response failed")
		}
	}

	if d.alerts != nil {
		err := d.alerts.Publish(a)
		metrics.RecordAlertPublish(err)
		if err == nil {
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Str("anomaly_type", string(a.Type)).Msg("Failed to publish anomaly alert, notifying directly")
	}
	d.notify(ctx, a)
}

// notify sends a to every enabled notifier in the background.
func (d *Detector) notify(ctx context.Context, a *AnomalyEvent) {
	d.mu.RLock()
	notifiers := append([]Notifier(nil), d.notifiers...)
	d.mu.RUnlock()

	anomaly := *a
	for _, n := range notifiers {
		if !n.Enabled() {
			continue
		}
		d.pending.Add(1)
		go func(n Notifier) {
			defer d.pending.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.notifyTimeout())
			defer cancel()

			err := n.Send(sendCtx, &anomaly)
			metrics.RecordNotification(n.Name(), err)
			if err != nil {
				logging.Warn().Err(err).Str("notifier", n.Name()).Msg("failed to send anomaly notification")
			}
		}(n)
	}
}

func (d *Detector) notifyTimeout() time.Duration {
	if d.config.NotifyTimeout > 0 {
		return d.config.NotifyTimeout
	}
	return DefaultConfig().NotifyTimeout
}

// Wait blocks until every in-flight notification has finished.
func (d *Detector) Wait() {
	d.pending.Wait()
}

// RuleStatus describes one registered rule.
type RuleStatus struct {
	Type    AnomalyType `json:"type"`
	Enabled bool        `json:"enabled"`
}

// Rules lists the registered rules in registration order.
func (d *Detector) Rules() []RuleStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]RuleStatus, 0, len(d.rules))
	for _, rule := range d.rules {
		out = append(out, RuleStatus{Type: rule.Type(), Enabled: rule.Enabled()})
	}
	return out
}

// SetRuleEnabled enables or disables the rule of type t.
func (d *Detector) SetRuleEnabled(t AnomalyType, enabled bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, rule := range d.rules {
		if rule.Type() == t {
			rule.SetEnabled(enabled)
			return nil
		}
	}
	return fmt.Errorf("rule not found: %s", t)
}

// Profiles returns the behavior profile cache.
func (d *Detector) Profiles() *ProfileCache { return d.profiles }

// FailedLogins returns the failed logins from ip inside the brute-force window.
func (d *Detector) FailedLogins(ip string) int {
	return d.bruteForce.Attempts(ip, d.now())
}

// Cleanup drops rolling windows that hold nothing inside their window and
// returns how many were dropped.
func (d *Detector) Cleanup() int {
	now := d.now()
	return d.bruteForce.Cleanup(now) + d.rapidCalls.Cleanup(now)
}

// RunWithContext runs periodic cleanup until ctx is canceled. It is meant to
// run under the supervisor.
func (d *Detector) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Wait()
			return ctx.Err()
		case <-ticker.C:
			if removed := d.Cleanup(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Dropped idle detection windows")
			}
		}
	}
}
