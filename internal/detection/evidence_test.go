// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestEncodeEvidence_Envelope(t *testing.T) {
	raw, err := EncodeEvidence(NewIPEvidence{NewIP: "203.0.113.9", KnownIPs: []string{"10.0.0.1"}, LookbackDays: 7})
	if err != nil {
		t.Fatalf("EncodeEvidence: %v", err)
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope is not an object: %v", err)
	}
	if string(env["kind"]) != `"new_ip"` || string(env["version"]) != "1" {
		t.Errorf("envelope = %s", raw)
	}
	if !strings.Contains(string(env["data"]), `"new_ip":"203.0.113.9"`) {
		t.Errorf("data = %s", env["data"])
	}

	decoded, err := DecodeEvidence(raw)
	if err != nil {
		t.Fatalf("DecodeEvidence: %v", err)
	}
	if ev, ok := decoded.(NewIPEvidence); !ok || ev.NewIP != "203.0.113.9" || ev.LookbackDays != 7 {
		t.Errorf("decoded = %#v", decoded)
	}
}

func TestDecodeEvidence_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown kind", `{"kind":"geo_velocity","version":1,"data":{}}`, ErrUnknownEvidence},
		{"future version", `{"kind":"brute_force","version":2,"data":{}}`, ErrUnsupportedEvidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEvidence(json.RawMessage(tt.raw)); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := DecodeEvidence(json.RawMessage(`not json`)); err == nil {
		t.Error("expected parse error")
	}
	if ev, err := DecodeEvidence(nil); ev != nil || err != nil {
		t.Errorf("empty payload = %v, %v", ev, err)
	}
}

func TestAnomalyEvent_JSON(t *testing.T) {
	in := AnomalyEvent{
		Type:        AnomalyDataExfiltration,
		ThreatLevel: ThreatHigh,
		PrincipalID: "p",
		Description: "12 exports within 1.0 hours",
		Confidence:  1,
		Evidence:    ExfiltrationEvidence{ExportCount: 12, Threshold: 10, WindowHours: 1},
		RiskScore:   100,
		Timestamp:   baseTime,
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"exfiltration"`) {
		t.Errorf("evidence not enveloped: %s", data)
	}

	var out AnomalyEvent
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Type != in.Type || !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("round trip = %+v", out)
	}
	if ev, ok := out.Evidence.(ExfiltrationEvidence); !ok || ev.ExportCount != 12 {
		t.Errorf("evidence = %#v", out.Evidence)
	}
}
