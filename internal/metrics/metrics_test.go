// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery_TruncatesErrorLabel(t *testing.T) {
	long := errors.New(strings.Repeat("e", 80))
	RecordDBQuery("insert", "audit_events", 5*time.Millisecond, long)

	got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "audit_events", strings.Repeat("e", 50)))
	if got < 1 {
		t.Errorf("expected truncated error label to be recorded, got %v", got)
	}
}

func TestRecordAuditAppend(t *testing.T) {
	before := testutil.ToFloat64(AuditHighRiskEvents.WithLabelValues("SECURITY_VIOLATION"))
	RecordAuditAppend("SECURITY_VIOLATION", "HIGH", 100, true)
	RecordAuditAppend("SECURITY_VIOLATION", "LOW", 20, false)

	after := testutil.ToFloat64(AuditHighRiskEvents.WithLabelValues("SECURITY_VIOLATION"))
	if after-before != 1 {
		t.Errorf("high risk counter delta = %v, want 1", after-before)
	}
}

func TestRecordNotification(t *testing.T) {
	okBefore := testutil.ToFloat64(NotificationsSent.WithLabelValues("webhook", "success"))
	failBefore := testutil.ToFloat64(NotificationsSent.WithLabelValues("webhook", "failure"))

	RecordNotification("webhook", nil)
	RecordNotification("webhook", errors.New("timeout"))

	if d := testutil.ToFloat64(NotificationsSent.WithLabelValues("webhook", "success")) - okBefore; d != 1 {
		t.Errorf("success delta = %v", d)
	}
	if d := testutil.ToFloat64(NotificationsSent.WithLabelValues("webhook", "failure")) - failBefore; d != 1 {
		t.Errorf("failure delta = %v", d)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("after inc = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("after dec = %v, want %v", got, before)
	}
}
