// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/metrics"
)

var baseTime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	store    *audit.MemoryStore
	logger   *audit.Logger
	detector *Detector
	clock    *fakeClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clock := newFakeClock(baseTime)
	store := audit.NewMemoryStore(10000)
	logger := audit.NewLogger(store, audit.DefaultConfig(), audit.WithClock(clock.Now))
	return &harness{
		store:    store,
		logger:   logger,
		detector: New(cfg, logger, logger, WithClock(clock.Now)),
		clock:    clock,
	}
}

// record appends e, then analyzes and handles it, the way the gateway does.
func (h *harness) record(ctx context.Context, e audit.Event) []AnomalyEvent {
	appended := h.logger.Append(ctx, e)
	anomalies := h.detector.Analyze(ctx, ObservationFromEvent(appended))
	h.detector.Handle(ctx, anomalies)
	return anomalies
}

func (h *harness) count(t *testing.T, f audit.Filter) int64 {
	t.Helper()
	n, err := h.store.Count(context.Background(), f)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []AnomalyType
	enabled bool
	err     error
}

func (n *recordingNotifier) Send(_ context.Context, a *AnomalyEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a.Type)
	return n.err
}

func (n *recordingNotifier) Name() string  { return "recording" }
func (n *recordingNotifier) Enabled() bool { return n.enabled }

func (n *recordingNotifier) Sent() []AnomalyType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]AnomalyType(nil), n.sent...)
}

type recordingResponder struct {
	mu        sync.Mutex
	responded []string
}

func (r *recordingResponder) Respond(_ context.Context, a *AnomalyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responded = append(r.responded, a.SourceIP)
	return nil
}

func TestDetector_BruteForceLoginScenario(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	var anomalies []AnomalyEvent
	for i := 0; i < 5; i++ {
		anomalies = h.record(ctx, audit.Event{
			EventType:   audit.EventLoginFailed,
			Severity:    audit.SeverityMedium,
			PrincipalID: "alice",
			SourceIP:    "10.0.0.5",
			Description: "invalid password",
			Result:      audit.ResultFailed,
		})
		if i < 4 && len(anomalies) != 0 {
			t.Fatalf("attempt %d raised %v", i+1, anomalies)
		}
		h.clock.Advance(10 * time.Second)
	}

	if len(anomalies) != 1 || anomalies[0].Type != AnomalyBruteForce || anomalies[0].ThreatLevel != ThreatHigh {
		t.Fatalf("5th attempt anomalies = %+v", anomalies)
	}

	if n := h.count(t, audit.Filter{EventTypes: []audit.EventType{audit.EventLoginFailed}}); n != 5 {
		t.Errorf("LOGIN_FAILED events = %d, want 5", n)
	}

	events, err := h.store.Find(ctx, audit.Filter{EventTypes: []audit.EventType{audit.EventSuspiciousActivity}}, 0, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("SUSPICIOUS_ACTIVITY events = %d, want 1", len(events))
	}
	recorded := events[0]
	if recorded.Severity != audit.SeverityHigh || recorded.ResourceID != string(AnomalyBruteForce) {
		t.Errorf("recorded anomaly = %+v", recorded)
	}
	sc, ev, err := ParseSecurityContext(recorded.SecurityContext)
	if err != nil {
		t.Fatalf("ParseSecurityContext: %v", err)
	}
	if sc.AnomalyType != AnomalyBruteForce || sc.ThreatLevel != ThreatHigh {
		t.Errorf("security context = %+v", sc)
	}
	if bf, ok := ev.(BruteForceEvidence); !ok || bf.AttemptCount != 5 {
		t.Errorf("evidence = %#v", ev)
	}
	if recorded.RiskScore < anomalies[0].RiskScore {
		t.Errorf("audit risk %d below anomaly risk %d", recorded.RiskScore, anomalies[0].RiskScore)
	}
}

func TestDetector_EscalatesHighThreats(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	notifier := &recordingNotifier{enabled: true}
	disabled := &recordingNotifier{enabled: false}
	responder := &recordingResponder{}
	h.detector.RegisterNotifier(notifier)
	h.detector.RegisterNotifier(disabled)
	h.detector.RegisterResponder(responder)

	h.detector.Handle(ctx, []AnomalyEvent{
		{Type: AnomalyUnusualLoginTime, ThreatLevel: ThreatLow, SourceIP: "10.0.0.1", Timestamp: baseTime},
		{Type: AnomalyBruteForce, ThreatLevel: ThreatHigh, SourceIP: "10.0.0.5", Timestamp: baseTime},
	})
	h.detector.Wait()

	if got := notifier.Sent(); len(got) != 1 || got[0] != AnomalyBruteForce {
		t.Errorf("notified = %v, want only the HIGH anomaly", got)
	}
	if len(disabled.Sent()) != 0 {
		t.Error("disabled notifier was called")
	}
	if len(responder.responded) != 1 || responder.responded[0] != "10.0.0.5" {
		t.Errorf("responded = %v", responder.responded)
	}
	if n := h.count(t, audit.Filter{EventTypes: []audit.EventType{audit.EventSuspiciousActivity}}); n != 2 {
		t.Errorf("recorded anomalies = %d, want 2", n)
	}
}

func TestDetector_NotifierFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	notifier := &recordingNotifier{enabled: true, err: errors.New("endpoint down")}
	h.detector.RegisterNotifier(notifier)

	before := testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("recording", "failure"))
	h.detector.Handle(context.Background(), []AnomalyEvent{{Type: AnomalyDataExfiltration, ThreatLevel: ThreatCritical}})
	h.detector.Wait()

	if got := testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("recording", "failure")) - before; got != 1 {
		t.Errorf("failure notifications = %v, want 1", got)
	}
}

type failingRule struct {
	toggle
	panics bool
}

func (r *failingRule) Type() AnomalyType {
	if r.panics {
		return "PANICKING_RULE"
	}
	return "FAILING_RULE"
}

func (r *failingRule) Applies(*Observation) bool { return true }

func (r *failingRule) Evaluate(context.Context, *Observation) (*AnomalyEvent, error) {
	if r.panics {
		panic("boom")
	}
	return nil, errors.New("profile store unavailable")
}

func TestDetector_FailingRuleDoesNotStopOthers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RapidCalls.Threshold = 1
	h := newHarness(t, cfg)
	h.detector.RegisterRule(&failingRule{toggle: toggle{enabled: true}})
	h.detector.RegisterRule(&failingRule{toggle: toggle{enabled: true}, panics: true})

	before := testutil.ToFloat64(metrics.DetectionRuleErrors.WithLabelValues("FAILING_RULE"))
	beforePanic := testutil.ToFloat64(metrics.DetectionRuleErrors.WithLabelValues("PANICKING_RULE"))

	anomalies := h.detector.Analyze(context.Background(), Observation{Kind: ObserveRequest, SourceIP: "10.0.0.9"})

	if len(anomalies) != 1 || anomalies[0].Type != AnomalyRapidAPICalls {
		t.Fatalf("anomalies = %+v, want the rapid call anomaly", anomalies)
	}
	if got := testutil.ToFloat64(metrics.DetectionRuleErrors.WithLabelValues("FAILING_RULE")) - before; got != 1 {
		t.Errorf("rule errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.DetectionRuleErrors.WithLabelValues("PANICKING_RULE")) - beforePanic; got != 1 {
		t.Errorf("panicking rule errors = %v, want 1", got)
	}
}

func TestDetector_OnlyApplicableRulesRun(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	// A request observation never feeds the brute-force window.
	for i := 0; i < 10; i++ {
		h.detector.Analyze(ctx, Observation{Kind: ObserveRequest, EventType: audit.EventLoginFailed, SourceIP: "10.0.0.5"})
	}
	if n := h.detector.FailedLogins("10.0.0.5"); n != 0 {
		t.Errorf("failed logins = %d, want 0", n)
	}
}

func TestDetector_SetRuleEnabled(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.detector.SetRuleEnabled(AnomalyBruteForce, false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}
	for i := 0; i < 6; i++ {
		if got := h.record(ctx, audit.Event{EventType: audit.EventLoginFailed, SourceIP: "10.0.0.5", Result: audit.ResultFailed}); len(got) != 0 {
			t.Fatalf("disabled rule raised %v", got)
		}
	}

	if err := h.detector.SetRuleEnabled("NO_SUCH_RULE", true); err == nil {
		t.Error("expected error for unknown rule")
	}

	for _, status := range h.detector.Rules() {
		if status.Type == AnomalyBruteForce && status.Enabled {
			t.Error("Rules() reports brute force enabled")
		}
	}
}

func TestDetector_CleanupDropsIdleWindows(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	h.detector.Analyze(ctx, Observation{Kind: ObserveRequest, SourceIP: "10.0.0.1"})
	h.record(ctx, audit.Event{EventType: audit.EventLoginFailed, SourceIP: "10.0.0.2", Result: audit.ResultFailed})

	if removed := h.detector.Cleanup(); removed != 0 {
		t.Errorf("Cleanup removed %d live windows", removed)
	}
	h.clock.Advance(10 * time.Minute)
	if removed := h.detector.Cleanup(); removed != 2 {
		t.Errorf("Cleanup removed %d, want 2", removed)
	}
}

func TestDetector_RunWithContextStops(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.detector.RunWithContext(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunWithContext did not return after cancel")
	}
}

func TestThreatLevel_AuditSeverity(t *testing.T) {
	tests := []struct {
		level ThreatLevel
		want  audit.Severity
	}{
		{ThreatLow, audit.SeverityLow},
		{ThreatMedium, audit.SeverityMedium},
		{ThreatHigh, audit.SeverityHigh},
		{ThreatCritical, audit.SeverityCritical},
		{"BOGUS", audit.SeverityMedium},
	}
	for _, tt := range tests {
		if got := tt.level.AuditSeverity(); got != tt.want {
			t.Errorf("%s.AuditSeverity() = %s, want %s", tt.level, got, tt.want)
		}
	}
}
