// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCtx_AddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	SetLogger(NewTestLogger(&buf))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	ctx = ContextWithPrincipalID(ctx, "principal-123456")
	Ctx(ctx).Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %v", entry["correlation_id"])
	}
	if entry["principal_id"] != "prin...3456" {
		t.Errorf("principal_id = %v", entry["principal_id"])
	}
}

func TestGenerateIDs(t *testing.T) {
	if got := len(GenerateCorrelationID()); got != 8 {
		t.Errorf("correlation ID length = %d", got)
	}
	if a, b := GenerateRequestID(), GenerateRequestID(); a == b {
		t.Error("request IDs should be unique")
	}
}

func TestSlogHandler_WritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	logger := slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf)))
	logger.WithGroup("supervisor").With("service", "http").Warn("restarting", "attempt", 2)

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"supervisor.service":"http"`, `"supervisor.attempt":2`, `"message":"restarting"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}
