// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, now *time.Time) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(Config{Secret: testSecret, Issuer: "assetguard", TokenTTL: time.Hour},
		WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestNewJWTManager_RequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewJWTManager(Config{Secret: "short"}); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("err = %v, want ErrSecretTooShort", err)
	}
}

func TestJWTManager_RoundTrip(t *testing.T) {
	t.Parallel()

	now := testNow
	m := newTestManager(t, &now)
	token, err := m.GenerateToken("p-42", "alice", "analyst")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "p-42" || claims.Username != "alice" || len(claims.Roles) != 1 || claims.Roles[0] != "analyst" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	t.Parallel()

	now := testNow
	m := newTestManager(t, &now)
	valid, _ := m.GenerateToken("p-42", "alice")

	otherIssuer, _ := NewJWTManager(Config{Secret: testSecret, Issuer: "someone-else"}, WithClock(func() time.Time { return testNow }))
	wrongIssuer, _ := otherIssuer.GenerateToken("p-42", "alice")

	otherSecret, _ := NewJWTManager(Config{Secret: strings.Repeat("z", 32), Issuer: "assetguard"}, WithClock(func() time.Time { return testNow }))
	wrongSecret, _ := otherSecret.GenerateToken("p-42", "alice")

	noSubject, _ := m.GenerateToken("", "alice")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "p-42",
		Issuer:    "assetguard",
		ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
	}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"wrong issuer", wrongIssuer},
		{"wrong secret", wrongSecret},
		{"no subject", noSubject},
		{"alg none", unsigned},
		{"tampered", valid[:len(valid)-2] + "xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateToken(tt.token); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestJWTManager_Expiry(t *testing.T) {
	t.Parallel()

	now := testNow
	m := newTestManager(t, &now)
	token, _ := m.GenerateToken("p-42", "alice")

	now = testNow.Add(59 * time.Minute)
	if _, err := m.ValidateToken(token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	now = testNow.Add(2 * time.Hour)
	if _, err := m.ValidateToken(token); !errors.Is(err, ErrExpiredCredentials) {
		t.Errorf("err = %v, want ErrExpiredCredentials", err)
	}
}

func TestRequireJWT(t *testing.T) {
	t.Parallel()

	now := testNow
	m := newTestManager(t, &now)
	token, _ := m.GenerateToken("p-42", "alice", "admin")

	var seen *AuthSubject
	handler := RequireJWT(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAuthSubject(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && (seen == nil || seen.ID != "p-42" || !seen.HasRole("admin")) {
				t.Errorf("subject = %+v", seen)
			}
		})
	}
}
