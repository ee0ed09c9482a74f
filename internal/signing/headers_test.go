// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package signing

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	validSig := strings.Repeat("ab", 32)

	tests := []struct {
		name      string
		timestamp string
		nonce     string
		signature string
		minNonce  int
		wantErr   error
	}{
		{"valid", "1767225600", "abc123", validSig, 0, nil},
		{"missing timestamp", "", "abc123", validSig, 0, ErrMissingHeaders},
		{"missing nonce", "1767225600", "", validSig, 0, ErrMissingHeaders},
		{"missing signature", "1767225600", "abc123", "", 0, ErrMissingHeaders},
		{"timestamp not decimal", "2026-03-10", "abc123", validSig, 0, ErrMalformed},
		{"nonce too long", "1767225600", strings.Repeat("n", 65), validSig, 0, ErrMalformed},
		{"nonce at maximum", "1767225600", strings.Repeat("n", 64), validSig, 0, nil},
		{"nonce below configured minimum", "1767225600", "abc123", validSig, 16, ErrMalformed},
		{"signature too short", "1767225600", "abc123", validSig[:63], 0, ErrMalformed},
		{"signature uppercase", "1767225600", "abc123", strings.ToUpper(validSig), 0, ErrMalformed},
		{"signature not hex", "1767225600", "abc123", strings.Repeat("zz", 32), 0, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.timestamp != "" {
				h.Set(HeaderTimestamp, tt.timestamp)
			}
			if tt.nonce != "" {
				h.Set(HeaderNonce, tt.nonce)
			}
			if tt.signature != "" {
				h.Set(HeaderSignature, tt.signature)
			}

			got, err := ParseHeaders(h, tt.minNonce)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ParseHeaders: %v", err)
				}
				if got.Nonce != tt.nonce || got.Signature != tt.signature {
					t.Errorf("headers = %+v", got)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReasonFor(t *testing.T) {
	if got := ReasonFor(ErrMissingHeaders); got != ReasonMissingHeaders {
		t.Errorf("missing = %q", got)
	}
	if _, err := ParseHeaders(http.Header{
		HeaderTimestamp: {"x"}, HeaderNonce: {"n"}, HeaderSignature: {strings.Repeat("a", 64)},
	}, 0); ReasonFor(err) != ReasonMalformed {
		t.Errorf("malformed = %q", ReasonFor(err))
	}
	if ReasonBadSignature.Label() != "bad_signature" {
		t.Errorf("label = %q", ReasonBadSignature.Label())
	}
}

func TestPresent(t *testing.T) {
	if Present(http.Header{}) {
		t.Error("empty header reported present")
	}
	if !Present(http.Header{HeaderNonce: {"n"}}) {
		t.Error("partial headers not reported present")
	}
}
