// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/assetguard/internal/logging"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generates when absent", "", false},
		{"keeps upstream id", "proxy-123", true},
		{"rejects spaces", "bad id", false},
		{"rejects control characters", "id\nInjected: yes", false},
		{"rejects oversized", strings.Repeat("a", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var ctxID, logID, correlation string
			handler := RequestID(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
				logID = logging.RequestIDFromContext(r.Context())
				correlation = logging.CorrelationIDFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if tt.keep {
				if got != tt.incoming {
					t.Errorf("response id = %q, want %q", got, tt.incoming)
				}
			} else if _, err := uuid.Parse(got); err != nil {
				t.Errorf("response id %q is not a generated UUID", got)
			}
			if ctxID != got || logID != got {
				t.Errorf("context ids = %q/%q, header = %q", ctxID, logID, got)
			}
			if correlation == "" {
				t.Error("correlation id not set")
			}
		})
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}
