// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/cache"
	"github.com/tomtom215/assetguard/internal/channel"
	"github.com/tomtom215/assetguard/internal/detection"
	"github.com/tomtom215/assetguard/internal/signing"
)

var baseTime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

const testSecret = "gateway-test-signing-secret"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

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
	clock    *fakeClock
	cache    *cache.MemoryStore
	logger   *audit.Logger
	detector *detection.Detector
	channel  *channel.Channel
	gateway  *Gateway
}

type harnessOptions struct {
	detection      detection.Config
	withChannel    bool
	requireChannel bool
	deps        func(*harness, *Deps)
}

var (
	serverKeysOnce sync.Once
	serverKeys     *channel.ServerKeys
	serverKeysErr  error
)

// testServerKeys generates one RSA key pair for the whole package.
func testServerKeys(t *testing.T) *channel.ServerKeys {
	t.Helper()
	serverKeysOnce.Do(func() {
		serverKeys, serverKeysErr = channel.GenerateServerKeys()
	})
	if serverKeysErr != nil {
		t.Fatalf("GenerateServerKeys: %v", serverKeysErr)
	}
	return serverKeys
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	if opts.detection.BruteForce.Threshold == 0 {
		opts.detection = detection.DefaultConfig()
	}
	clock := &fakeClock{t: baseTime}
	h := &harness{
		clock: clock,
		cache: cache.NewMemoryStore(10000, cache.WithClock(clock.Now)),
	}
	h.logger = audit.NewLogger(audit.NewMemoryStore(10000), audit.DefaultConfig(), audit.WithClock(clock.Now))
	h.detector = detection.New(opts.detection, h.logger, h.logger, detection.WithClock(clock.Now))

	deps := Deps{
		Audit:    h.logger,
		Detector: h.detector,
		Blocklist: NewBlocklist(h.cache, BlocklistConfig{
			AutoBlock: opts.detection.AutoBlock,
			Duration:  opts.detection.BlockDuration,
		}, WithBlocklistClock(clock.Now)),
		Signer: signing.New(signing.Config{Enabled: true, Secret: testSecret},
			cache.NewNamespace(h.cache, "nonce:"), signing.WithClock(clock.Now)),
		SigningSecret: []byte(testSecret),
	}
	if opts.withChannel {
		cfg := channel.DefaultConfig()
		cfg.Enabled = opts.requireChannel
		h.channel = channel.New(cfg, testServerKeys(t),
			cache.NewNamespace(h.cache, "session:"), cache.NewNamespace(h.cache, "msg:"),
			channel.WithClock(clock.Now))
		deps.Channel = h.channel
	}
	if opts.deps != nil {
		opts.deps(h, &deps)
	}

	g, err := New(DefaultConfig(), deps, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.gateway = g
	return h
}

func (h *harness) events(t *testing.T, types ...audit.EventType) []audit.Event {
	t.Helper()
	events, err := h.logger.Find(context.Background(), audit.Filter{EventTypes: types}, 1000)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	return events
}

func (h *harness) signedHeaders(t *testing.T, method, target string, body []byte, nonce string) http.Header {
	t.Helper()
	ts := strconv.FormatInt(h.clock.Now().Unix(), 10)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	signed, err := signing.SigningBody(method, "application/json", body)
	if err != nil {
		t.Fatalf("SigningBody: %v", err)
	}
	signing.Headers{
		Timestamp: ts,
		Nonce:     nonce,
		Signature: signing.Sign(method, target, ts, nonce, signed, []byte(testSecret)),
	}.Apply(header)
	return header
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Error("New without dependencies succeeded")
	}

	h := newHarness(t, harnessOptions{})
	_, err := New(DefaultConfig(), Deps{
		Audit:     h.logger,
		Detector:  h.detector,
		Blocklist: h.gateway.Blocklist(),
		Signer:    signing.New(signing.DefaultConfig(), cache.NewMemoryStore(10)),
	})
	if err == nil {
		t.Error("signer without secret accepted")
	}
}

// Five failed logins from one IP produce one brute-force anomaly, and with
// auto-blocking the next request from that IP is refused.
func TestRecord_BruteForceBlocksSource(t *testing.T) {
	cfg := detection.DefaultConfig()
	cfg.AutoBlock = true
	h := newHarness(t, harnessOptions{detection: cfg})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		out := h.gateway.Record(ctx, RecordInput{
			EventType:   audit.EventLoginFailed,
			Severity:    audit.SeverityMedium,
			Description: "wrong password",
			SourceIP:    "10.0.0.5",
		})
		if out.Event == nil || out.Event.ID == 0 {
			t.Fatalf("attempt %d: event not persisted: %+v", i, out.Event)
		}
		if i < 5 && len(out.Anomalies) != 0 {
			t.Fatalf("attempt %d: anomalies = %+v", i, out.Anomalies)
		}
		if i == 5 {
			if len(out.Anomalies) != 1 {
				t.Fatalf("attempt 5: anomalies = %+v", out.Anomalies)
			}
			a := out.Anomalies[0]
			if a.Type != detection.AnomalyBruteForce || a.ThreatLevel != detection.ThreatHigh {
				t.Errorf("anomaly = %s/%s", a.Type, a.ThreatLevel)
			}
			if a.RiskScore < 70 || a.RiskScore > 100 {
				t.Errorf("risk score = %d", a.RiskScore)
			}
		}
		h.clock.Advance(10 * time.Second)
	}

	if got := len(h.events(t, audit.EventLoginFailed)); got != 5 {
		t.Errorf("LOGIN_FAILED events = %d, want 5", got)
	}
	suspicious := h.events(t, audit.EventSuspiciousActivity)
	if len(suspicious) != 1 || suspicious[0].ResourceID != string(detection.AnomalyBruteForce) {
		t.Fatalf("SUSPICIOUS_ACTIVITY events = %+v", suspicious)
	}
	if suspicious[0].Severity != audit.SeverityHigh {
		t.Errorf("anomaly severity = %s", suspicious[0].Severity)
	}

	decision := h.gateway.OnRequestStart(ctx, RequestInfo{Method: http.MethodPost, Endpoint: "/login", ClientIP: "10.0.0.5"})
	if decision.Allow {
		t.Fatal("blocked IP allowed")
	}
	if decision.Err.Kind != KindAuthorization || decision.Err.Kind.HTTPStatus() != http.StatusForbidden {
		t.Errorf("err = %v", decision.Err)
	}
	if denied := h.events(t, audit.EventAccessDenied); len(denied) != 1 || denied[0].SourceIP != "10.0.0.5" {
		t.Errorf("ACCESS_DENIED events = %+v", denied)
	}

	if d := h.gateway.OnRequestStart(ctx, RequestInfo{Method: http.MethodGet, ClientIP: "10.0.0.6"}); !d.Allow {
		t.Errorf("unrelated IP denied: %v", d.Err)
	}
}

func TestRecord_WithoutAutoBlock(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		h.gateway.Record(ctx, RecordInput{EventType: audit.EventLoginFailed, Description: "wrong password", SourceIP: "10.0.0.7"})
	}
	if d := h.gateway.OnRequestStart(ctx, RequestInfo{ClientIP: "10.0.0.7"}); !d.Allow {
		t.Error("IP blocked although auto-blocking is off")
	}
}

// A signed request succeeds once; the same headers on another endpoint and
// body are rejected as a replay.
func TestOnRequestStart_SignatureReplay(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	body := []byte(`{"event_type":"DATA_READ","description":"first"}`)
	header := h.signedHeaders(t, http.MethodPost, "/api/v1/security/events", body, "abc123")

	first := h.gateway.OnRequestStart(ctx, RequestInfo{
		Method: http.MethodPost, Target: "/api/v1/security/events", Header: header,
		Body: body, ClientIP: "192.0.2.10", RequireSignature: true,
	})
	if !first.Allow {
		t.Fatalf("first request denied: %v", first.Err)
	}

	second := h.gateway.OnRequestStart(ctx, RequestInfo{
		Method: http.MethodPost, Target: "/api/v1/security/other", Header: header,
		Body: []byte(`{"different":true}`), ClientIP: "192.0.2.10", RequireSignature: true,
	})
	if second.Allow {
		t.Fatal("replayed request allowed")
	}
	if second.Err.Kind != KindAuthentication || second.Err.Reason != string(signing.ReasonReplay) {
		t.Errorf("err = %v", second.Err)
	}
	if second.Err.Message != MessageSignatureFailed {
		t.Errorf("message = %q leaks detail", second.Err.Message)
	}

	violations := h.events(t, audit.EventSecurityViolation)
	if len(violations) != 1 || violations[0].Severity != audit.SeverityHigh {
		t.Fatalf("SECURITY_VIOLATION events = %+v", violations)
	}
}

func TestOnRequestStart_SignatureFailures(t *testing.T) {
	tests := []struct {
		name       string
		header     func(h *harness) http.Header
		wantKind   Kind
		wantReason string
		audited    bool
	}{
		{
			name:       "missing headers",
			header:     func(*harness) http.Header { return http.Header{} },
			wantKind:   KindAuthentication,
			wantReason: string(signing.ReasonMissingHeaders),
			audited:    true,
		},
		{
			name: "malformed signature",
			header: func(*harness) http.Header {
				hd := http.Header{}
				signing.Headers{Timestamp: "1", Nonce: "n", Signature: "xyz"}.Apply(hd)
				return hd
			},
			wantKind:   KindValidation,
			wantReason: string(signing.ReasonMalformed),
		},
		{
			name: "wrong secret",
			header: func(h *harness) http.Header {
				ts := strconv.FormatInt(h.clock.Now().Unix(), 10)
				hd := http.Header{}
				signing.Headers{Timestamp: ts, Nonce: "nonce-1", Signature: signing.Sign(http.MethodGet, "/x", ts, "nonce-1", nil, []byte("other"))}.Apply(hd)
				return hd
			},
			wantKind:   KindAuthentication,
			wantReason: string(signing.ReasonBadSignature),
			audited:    true,
		},
		{
			name: "expired",
			header: func(h *harness) http.Header {
				ts := strconv.FormatInt(h.clock.Now().Add(-301*time.Second).Unix(), 10)
				hd := http.Header{}
				signing.Headers{Timestamp: ts, Nonce: "nonce-2", Signature: signing.Sign(http.MethodGet, "/x", ts, "nonce-2", nil, []byte(testSecret))}.Apply(hd)
				return hd
			},
			wantKind:   KindAuthentication,
			wantReason: string(signing.ReasonExpired),
			audited:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{})
			d := h.gateway.OnRequestStart(context.Background(), RequestInfo{
				Method: http.MethodGet, Target: "/x", Header: tt.header(h),
				ClientIP: "192.0.2.20", RequireSignature: true,
			})
			if d.Allow {
				t.Fatal("request allowed")
			}
			if d.Err.Kind != tt.wantKind || d.Err.Reason != tt.wantReason {
				t.Errorf("err = %v, want %s/%s", d.Err, tt.wantKind, tt.wantReason)
			}
			if got := len(h.events(t, audit.EventSecurityViolation)); (got == 1) != tt.audited {
				t.Errorf("SECURITY_VIOLATION events = %d, audited = %v", got, tt.audited)
			}
		})
	}
}

func TestOnRequestStart_RapidCalls(t *testing.T) {
	cfg := detection.DefaultConfig()
	cfg.RapidCalls.Threshold = 3
	h := newHarness(t, harnessOptions{detection: cfg})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := h.gateway.OnRequestStart(ctx, RequestInfo{Method: http.MethodGet, Endpoint: "/api/v1/things", ClientIP: "198.51.100.4"}); !d.Allow {
			t.Fatalf("request %d denied: %v", i+1, d.Err)
		}
	}

	events := h.events(t, audit.EventSuspiciousActivity)
	if len(events) != 1 || events[0].ResourceID != string(detection.AnomalyRapidAPICalls) {
		t.Fatalf("SUSPICIOUS_ACTIVITY events = %+v", events)
	}
	if blocked, _ := h.gateway.Blocklist().IsBlocked(ctx, "198.51.100.4"); blocked {
		t.Error("medium threat blocked the source")
	}
}

func secureHeaders(t *testing.T, h *harness, s *channel.Session, messageID string, message []byte) http.Header {
	t.Helper()
	key, err := channel.DeriveKey(s.Key, channel.PurposeIntegrity)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(channel.HeaderSessionID, s.ID)
	header.Set(channel.HeaderMessageID, messageID)
	header.Set(channel.HeaderIntegrityHash, channel.IntegrityTagAt(message, key, h.clock.Now()))
	return header
}

func TestOnRequestStart_SecureChannel(t *testing.T) {
	h := newHarness(t, harnessOptions{withChannel: true})
	ctx := context.Background()

	s, err := h.channel.EstablishSession(ctx, "agent-1")
	if err != nil {
		t.Fatalf("EstablishSession: %v", err)
	}
	message := []byte(`{"x":1}`)

	info := RequestInfo{
		Method: http.MethodPost, Target: "/secure", Header: secureHeaders(t, h, s, "m-1", message),
		Body: message, ClientIP: "192.0.2.30", RequireSecureChannel: true,
	}
	d := h.gateway.OnRequestStart(ctx, info)
	if !d.Allow {
		t.Fatalf("denied: %v", d.Err)
	}
	if d.Session == nil || d.Session.ID != s.ID || string(d.Body) != string(message) {
		t.Errorf("decision = %+v", d)
	}

	// Same message ID again.
	d = h.gateway.OnRequestStart(ctx, info)
	if d.Allow || d.Err.Reason != "duplicate" || d.Err.Severity != audit.SeverityHigh {
		t.Errorf("duplicate decision = %+v", d)
	}

	// Tag computed for another body.
	tampered := info
	tampered.Header = secureHeaders(t, h, s, "m-2", []byte(`{"x":2}`))
	d = h.gateway.OnRequestStart(ctx, tampered)
	if d.Allow || d.Err.Severity != audit.SeverityCritical || d.Err.Message != MessageChannelFailed {
		t.Errorf("tampered decision = %+v", d)
	}

	unknown := info
	unknown.Header = secureHeaders(t, h, &channel.Session{ID: "missing", Key: s.Key}, "m-3", message)
	d = h.gateway.OnRequestStart(ctx, unknown)
	if d.Allow || d.Err.Reason != "invalid_session" {
		t.Errorf("unknown session decision = %+v", d)
	}

	violations := h.events(t, audit.EventSecurityViolation)
	if len(violations) != 3 {
		t.Fatalf("SECURITY_VIOLATION events = %d, want 3", len(violations))
	}
	critical := 0
	for _, v := range violations {
		if v.Severity == audit.SeverityCritical {
			critical++
		}
	}
	if critical != 1 {
		t.Errorf("critical violations = %d, want 1", critical)
	}
}

func TestOnRequestStart_SecureChannelHeaderShape(t *testing.T) {
	h := newHarness(t, harnessOptions{withChannel: true})
	ctx := context.Background()

	s, err := h.channel.EstablishSession(ctx, "agent-3")
	if err != nil {
		t.Fatalf("EstablishSession: %v", err)
	}
	message := []byte(`{"x":1}`)

	tests := []struct {
		name string
		drop []string
	}{
		{"no channel headers", []string{channel.HeaderSessionID, channel.HeaderMessageID, channel.HeaderIntegrityHash}},
		{"no session id", []string{channel.HeaderSessionID}},
		{"no message id", []string{channel.HeaderMessageID}},
		{"no integrity hash", []string{channel.HeaderIntegrityHash}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := secureHeaders(t, h, s, fmt.Sprintf("shape-%d", i), message)
			for _, name := range tt.drop {
				header.Del(name)
			}
			d := h.gateway.OnRequestStart(ctx, RequestInfo{
				Method: http.MethodPost, Target: "/secure", Header: header,
				Body: message, ClientIP: "192.0.2.32", RequireSecureChannel: true,
			})
			if d.Allow {
				t.Fatal("allowed request without channel headers")
			}
			if d.Err.Kind != KindValidation || d.Err.Code != CodeMalformedHeaders {
				t.Errorf("err = %+v, want validation %s", d.Err, CodeMalformedHeaders)
			}
			if d.Err.Kind.HTTPStatus() != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", d.Err.Kind.HTTPStatus())
			}
		})
	}

	if got := h.events(t, audit.EventSecurityViolation); len(got) != 0 {
		t.Errorf("SECURITY_VIOLATION events = %d, want 0", len(got))
	}
}

func TestOnRequestStart_EncryptedPayload(t *testing.T) {
	h := newHarness(t, harnessOptions{withChannel: true})
	ctx := context.Background()

	s, err := h.channel.EstablishSession(ctx, "agent-2")
	if err != nil {
		t.Fatalf("EstablishSession: %v", err)
	}
	message := []byte(`{"secret":"value"}`)
	ciphertext, err := channel.Encrypt(message, s.Key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	header := secureHeaders(t, h, s, "m-1", message)
	header.Set(channel.HeaderPayloadEncrypted, "true")
	d := h.gateway.OnRequestStart(ctx, RequestInfo{
		Method: http.MethodPost, Header: header, Body: []byte(ciphertext),
		ClientIP: "192.0.2.31", RequireSecureChannel: true,
	})
	if !d.Allow {
		t.Fatalf("denied: %v", d.Err)
	}
	if string(d.Body) != string(message) {
		t.Errorf("body = %s, want decrypted payload", d.Body)
	}
}

func TestOnRequestEnd(t *testing.T) {
	tests := []struct {
		status  int
		audited bool
		want    audit.EventType
	}{
		{http.StatusOK, false, ""},
		{http.StatusNotFound, false, ""},
		{http.StatusUnauthorized, false, audit.EventUnauthorizedAccess},
		{http.StatusForbidden, false, audit.EventAccessDenied},
		{http.StatusInternalServerError, false, audit.EventSystemError},
		{http.StatusForbidden, true, ""},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status)+"/"+strconv.FormatBool(tt.audited), func(t *testing.T) {
			h := newHarness(t, harnessOptions{})
			h.gateway.OnRequestEnd(context.Background(), ResponseInfo{
				Method: http.MethodGet, Endpoint: "/api/v1/things", Status: tt.status,
				Duration: 12 * time.Millisecond, ClientIP: "192.0.2.40", Audited: tt.audited,
			})

			if h.gateway.Latency().Len() != 1 {
				t.Errorf("latency samples = %d, want 1", h.gateway.Latency().Len())
			}
			events := h.events(t)
			if tt.want == "" {
				if len(events) != 0 {
					t.Errorf("events = %+v, want none", events)
				}
				return
			}
			if len(events) != 1 || events[0].EventType != tt.want || events[0].StatusCode != tt.status {
				t.Errorf("events = %+v, want one %s", events, tt.want)
			}
		})
	}
}

func TestKind_HTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindValidation:     http.StatusBadRequest,
		KindAuthentication: http.StatusUnauthorized,
		KindAuthorization:  http.StatusForbidden,
		KindPersistence:    http.StatusInternalServerError,
		KindDetection:      http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", kind, got, want)
		}
	}

	wrapped := &Error{Kind: KindAuthentication, Code: CodeSignatureInvalid, Reason: "replay"}
	if gerr, ok := AsError(wrapped); !ok || gerr.Code != CodeSignatureInvalid {
		t.Errorf("AsError = %v, %v", gerr, ok)
	}
}

// A failed login from an attacker's IP must not make that IP look familiar to
// the principal's later successful login from it.
func TestRecord_FailedLoginDoesNotWhitelistIP(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	h.gateway.Record(ctx, RecordInput{
		EventType:   audit.EventLoginSuccess,
		Description: "login",
		PrincipalID: "p1",
		SourceIP:    "192.168.1.10",
	})
	h.clock.Advance(time.Minute)

	failed := h.gateway.Record(ctx, RecordInput{
		EventType:   audit.EventLoginFailed,
		Description: "wrong password",
		PrincipalID: "p1",
		SourceIP:    "203.0.113.9",
	})
	if failed.Event.Result != audit.ResultFailed {
		t.Fatalf("LOGIN_FAILED stored with result %s", failed.Event.Result)
	}
	h.clock.Advance(time.Minute)

	out := h.gateway.Record(ctx, RecordInput{
		EventType:   audit.EventLoginSuccess,
		Description: "login",
		PrincipalID: "p1",
		SourceIP:    "203.0.113.9",
	})
	var flagged bool
	for _, a := range out.Anomalies {
		if a.Type == detection.AnomalySuspiciousIP {
			flagged = true
		}
	}
	if !flagged {
		t.Errorf("login from an IP only seen failing was not flagged: %+v", out.Anomalies)
	}
}

func TestRecord_ExplicitResult(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   RecordInput
		want audit.Result
	}{
		{"denied defaults to failed", RecordInput{EventType: audit.EventAccessDenied, Description: "denied"}, audit.ResultFailed},
		{"success on a failure type is corrected", RecordInput{EventType: audit.EventLoginFailed, Result: audit.ResultSuccess, Description: "x"}, audit.ResultFailed},
		{"explicit error kept", RecordInput{EventType: audit.EventDataUpdate, Result: audit.ResultError, Description: "x"}, audit.ResultError},
		{"plain update succeeds", RecordInput{EventType: audit.EventDataUpdate, Description: "x"}, audit.ResultSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.gateway.Record(ctx, tt.in)
			if out.Event.Result != tt.want {
				t.Errorf("Result = %s, want %s", out.Event.Result, tt.want)
			}
		})
	}
}
