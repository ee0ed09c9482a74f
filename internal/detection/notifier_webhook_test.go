// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func testAnomaly() *AnomalyEvent {
	return &AnomalyEvent{
		Type:        AnomalyBruteForce,
		ThreatLevel: ThreatHigh,
		SourceIP:    "10.0.0.5",
		Description: "5 failed logins within 300 seconds",
		Confidence:  1,
		Evidence:    BruteForceEvidence{AttemptCount: 5, Threshold: 5, WindowSeconds: 300},
		RiskScore:   95,
		Timestamp:   baseTime,
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received WebhookPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:         server.URL,
		Headers:     map[string]string{"Authorization": "Bearer token"},
		Enabled:     true,
		MinInterval: time.Millisecond,
	})
	if err := n.Send(context.Background(), testAnomaly()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if auth != "Bearer token" {
		t.Errorf("Authorization = %q", auth)
	}
	if received.EventType != "security_anomaly" || received.Source != "assetguard" {
		t.Errorf("payload = %+v", received)
	}
	if received.Anomaly == nil || received.Anomaly.Type != AnomalyBruteForce {
		t.Fatalf("anomaly = %+v", received.Anomaly)
	}
	if ev, ok := received.Anomaly.Evidence.(BruteForceEvidence); !ok || ev.AttemptCount != 5 {
		t.Errorf("evidence = %#v", received.Anomaly.Evidence)
	}
}

func TestWebhookNotifier_Enabled(t *testing.T) {
	tests := []struct {
		name   string
		config WebhookConfig
		want   bool
	}{
		{"enabled with URL", WebhookConfig{URL: "https://example.com/hook", Enabled: true}, true},
		{"disabled", WebhookConfig{URL: "https://example.com/hook"}, false},
		{"enabled but no URL", WebhookConfig{Enabled: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewWebhookNotifier(tt.config).Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhookNotifier_DisabledSendsNothing(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, Enabled: true})
	n.SetEnabled(false)
	if err := n.Send(context.Background(), testAnomaly()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 0 {
		t.Error("disabled notifier made a request")
	}
}

func TestWebhookNotifier_CircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:              server.URL,
		Enabled:          true,
		MinInterval:      time.Millisecond,
		FailureThreshold: 2,
		CooldownPeriod:   time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := n.Send(ctx, testAnomaly())
		if err == nil || errors.Is(err, ErrNotifierUnavailable) {
			t.Fatalf("send %d err = %v, want status error", i+1, err)
		}
	}
	if err := n.Send(ctx, testAnomaly()); !errors.Is(err, ErrNotifierUnavailable) {
		t.Errorf("err = %v, want ErrNotifierUnavailable", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestWebhookNotifier_RateLimitHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, Enabled: true, MinInterval: time.Hour})
	if err := n.Send(context.Background(), testAnomaly()); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, testAnomaly()); err == nil {
		t.Error("second Send within the interval should fail once ctx expires")
	}
}
