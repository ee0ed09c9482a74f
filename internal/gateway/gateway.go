// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/auth"
	"github.com/tomtom215/assetguard/internal/authz"
	"github.com/tomtom215/assetguard/internal/channel"
	"github.com/tomtom215/assetguard/internal/detection"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
	"github.com/tomtom215/assetguard/internal/middleware"
	"github.com/tomtom215/assetguard/internal/signing"
)

// Deps are the services the gateway composes. Audit, Detector and Blocklist
// are required.
type Deps struct {
	Audit     *audit.Logger
	Detector  *detection.Detector
	Blocklist *Blocklist

	// Signer verifies signed routes. Without it, signed event ingestion is
	// not mounted.
	Signer        *signing.Signer
	SigningSecret []byte

	// Channel serves session bootstrap and secure routes when set.
	Channel *channel.Channel

	// JWT and Enforcer protect the dashboard. Without both it is not mounted.
	JWT      *auth.JWTManager
	Enforcer *authz.Enforcer

	// Latency defaults to a tracker of Config.LatencyWindow samples.
	Latency *middleware.LatencyTracker
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithClock replaces the clock used for observations and samples.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway orchestrates the security components around each request.
type Gateway struct {
	config    Config
	audit     *audit.Logger
	detector  *detection.Detector
	blocklist *Blocklist
	signer    *signing.Signer
	secret    []byte
	channel   *channel.Channel
	jwt       *auth.JWTManager
	authz     *authz.Middleware
	latency   *middleware.LatencyTracker
	now       func() time.Time
}

// New creates a gateway and registers the blocklist as a detector responder.
func New(cfg Config, deps Deps, opts ...Option) (*Gateway, error) {
	if deps.Audit == nil || deps.Detector == nil || deps.Blocklist == nil {
		return nil, errors.New("gateway: audit, detector and blocklist are required")
	}
	if deps.Signer != nil && len(deps.SigningSecret) == 0 {
		return nil, errors.New("gateway: signing secret is required with a signer")
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = DefaultConfig().LatencyWindow
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = DefaultConfig().StatsWindow
	}

	g := &Gateway{
		config:    cfg,
		audit:     deps.Audit,
		detector:  deps.Detector,
		blocklist: deps.Blocklist,
		signer:    deps.Signer,
		secret:    deps.SigningSecret,
		channel:   deps.Channel,
		jwt:       deps.JWT,
		latency:   deps.Latency,
		now:       time.Now,
	}
	if deps.Enforcer != nil {
		g.authz = authz.NewMiddleware(deps.Enforcer)
	}
	if g.latency == nil {
		g.latency = middleware.NewLatencyTracker(cfg.LatencyWindow)
	}
	for _, opt := range opts {
		opt(g)
	}

	g.detector.RegisterResponder(g.blocklist)
	return g, nil
}

// Blocklist returns the gateway's blocklist.
func (g *Gateway) Blocklist() *Blocklist { return g.blocklist }

// Latency returns the request latency tracker.
func (g *Gateway) Latency() *middleware.LatencyTracker { return g.latency }

// RequestInfo describes an inbound request to OnRequestStart.
type RequestInfo struct {
	Method string
	// Target is the request URI as sent, the signed target.
	Target   string
	Endpoint string
	Header   http.Header
	Body     []byte

	ClientIP    string
	UserAgent   string
	PrincipalID string

	RequireSignature     bool
	RequireSecureChannel bool
}

// Decision is the outcome of OnRequestStart.
type Decision struct {
	Allow bool
	Err   *Error

	// Session is set when the secure channel verified the request.
	Session *channel.Session

	// Body is the verified body, decrypted when it arrived encrypted.
	Body []byte
}

func deny(err *Error) Decision {
	return Decision{Err: err}
}

// OnRequestStart runs before business logic: blocked IPs are rejected, the
// request is counted for rapid-call detection, and signature and
// secure-channel checks run when the route requires them.
func (g *Gateway) OnRequestStart(ctx context.Context, info RequestInfo) Decision {
	blocked, err := g.blocklist.IsBlocked(ctx, info.ClientIP)
	if err != nil {
		// Fail open: an unavailable cache must not take the API down.
		logging.Ctx(ctx).Warn().Err(err).Msg("Blocklist lookup failed")
	}
	if blocked {
		g.audit.Append(ctx, requestEvent(info, audit.Event{
			EventType:    audit.EventAccessDenied,
			Severity:     audit.SeverityHigh,
			Description:  "Request from blocked IP",
			Result:       audit.ResultFailed,
			ErrorMessage: "ip blocked",
		}))
		return deny(&Error{
			Kind:     KindAuthorization,
			Code:     CodeIPBlocked,
			Message:  MessageAccessDenied,
			Reason:   "ip blocked",
			Severity: audit.SeverityHigh,
		})
	}

	g.detector.Handle(ctx, g.detector.Analyze(ctx, detection.Observation{
		Kind:        detection.ObserveRequest,
		PrincipalID: info.PrincipalID,
		SourceIP:    info.ClientIP,
		UserAgent:   info.UserAgent,
		Endpoint:    info.Endpoint,
		Timestamp:   g.now(),
	}))

	if info.RequireSignature {
		if derr := g.verifySignature(ctx, info); derr != nil {
			return deny(derr)
		}
	}

	decision := Decision{Allow: true, Body: info.Body}
	if info.RequireSecureChannel {
		verified, derr := g.verifyChannel(ctx, info)
		if derr != nil {
			return deny(derr)
		}
		decision.Session = verified.Session
		decision.Body = verified.Body
	}
	return decision
}

func (g *Gateway) verifySignature(ctx context.Context, info RequestInfo) *Error {
	if g.signer == nil {
		return g.signatureFailure(ctx, info, signing.ReasonUnavailable)
	}

	headers, err := g.signer.ParseHeaders(info.Header)
	if err != nil {
		reason := signing.ReasonFor(err)
		metrics.RecordSignatureVerification(reason.Label())
		if reason == signing.ReasonMalformed {
			logging.Ctx(ctx).Debug().Err(err).Msg("Malformed signature headers")
			return validationError(CodeMalformedHeaders, "malformed signature headers", string(reason))
		}
		return g.signatureFailure(ctx, info, reason)
	}

	body, err := signing.SigningBody(info.Method, info.Header.Get("Content-Type"), info.Body)
	if err != nil {
		return validationError(CodeMalformedBody, "malformed request body", err.Error())
	}

	res := g.signer.Verify(ctx, signing.NewRequest(info.Method, info.Target, headers, body), g.secret)
	if !res.OK {
		return g.signatureFailure(ctx, info, res.Reason)
	}
	return nil
}

func (g *Gateway) signatureFailure(ctx context.Context, info RequestInfo, reason signing.Reason) *Error {
	g.audit.Append(ctx, requestEvent(info, audit.Event{
		EventType:    audit.EventSecurityViolation,
		Severity:     audit.SeverityHigh,
		Description:  fmt.Sprintf("Signature verification failed: %s", reason),
		ResourceType: "Request",
		Result:       audit.ResultFailed,
		ErrorMessage: string(reason),
	}))
	return &Error{
		Kind:     KindAuthentication,
		Code:     CodeSignatureInvalid,
		Message:  MessageSignatureFailed,
		Reason:   string(reason),
		Severity: audit.SeverityHigh,
	}
}

func (g *Gateway) verifyChannel(ctx context.Context, info RequestInfo) (*channel.Verified, *Error) {
	headers := channel.ParseHeaders(info.Header)

	body := info.Body
	if !headers.Encrypted {
		var err error
		if body, err = signing.SigningBody(info.Method, info.Header.Get("Content-Type"), info.Body); err != nil {
			return nil, validationError(CodeMalformedBody, "malformed request body", err.Error())
		}
	}

	var verified *channel.Verified
	err := errors.New("secure channel disabled")
	if g.channel != nil {
		verified, err = g.channel.VerifyRequest(ctx, headers, "", body)
	}
	if err == nil {
		return verified, nil
	}
	if errors.Is(err, channel.ErrMissingHeaders) {
		return nil, validationError(CodeMalformedHeaders, "malformed secure channel headers", channel.FailureLabel(err))
	}

	severity := audit.SeverityHigh
	if channel.Tampering(err) {
		severity = audit.SeverityCritical
	}
	label := channel.FailureLabel(err)
	event := requestEvent(info, audit.Event{
		EventType:    audit.EventSecurityViolation,
		Severity:     severity,
		Description:  fmt.Sprintf("Secure channel verification failed: %s", label),
		ResourceType: "SecureSession",
		Result:       audit.ResultFailed,
		ErrorMessage: label,
	})
	event.SessionID = headers.SessionID
	g.audit.Append(ctx, event)

	return nil, &Error{
		Kind:     KindAuthentication,
		Code:     CodeSecureChannelInvalid,
		Message:  MessageChannelFailed,
		Reason:   label,
		Severity: severity,
		Err:      err,
	}
}

// ResponseInfo describes a completed request to OnRequestEnd.
type ResponseInfo struct {
	Method      string
	Endpoint    string
	Status      int
	Duration    time.Duration
	ClientIP    string
	UserAgent   string
	PrincipalID string

	// Audited is set when the rejection was already recorded by
	// OnRequestStart.
	Audited bool
}

// OnRequestEnd records request metrics and latency and audits 401, 403 and
// 5xx responses.
func (g *Gateway) OnRequestEnd(ctx context.Context, info ResponseInfo) {
	metrics.RecordAPIRequest(info.Method, info.Endpoint, strconv.Itoa(info.Status), info.Duration)
	g.latency.Record(middleware.RequestSample{
		Method:     info.Method,
		Endpoint:   info.Endpoint,
		StatusCode: info.Status,
		DurationMS: info.Duration.Milliseconds(),
		Timestamp:  g.now(),
	})

	if !g.config.AuditErrorResponses || info.Audited {
		return
	}

	var event audit.Event
	switch {
	case info.Status == http.StatusUnauthorized:
		event = audit.Event{EventType: audit.EventUnauthorizedAccess, Severity: audit.SeverityMedium, Description: "Unauthorized access"}
	case info.Status == http.StatusForbidden:
		event = audit.Event{EventType: audit.EventAccessDenied, Severity: audit.SeverityMedium, Description: "Access denied"}
	case info.Status >= http.StatusInternalServerError:
		event = audit.Event{EventType: audit.EventSystemError, Severity: audit.SeverityHigh, Description: "Server error"}
	default:
		return
	}

	event.PrincipalID = info.PrincipalID
	event.SourceIP = info.ClientIP
	event.UserAgent = info.UserAgent
	event.Method = info.Method
	event.Endpoint = info.Endpoint
	event.StatusCode = info.Status
	event.DurationMS = info.Duration.Milliseconds()
	event.Result = audit.ResultFailed
	if info.Status >= http.StatusInternalServerError {
		event.Result = audit.ResultError
	}
	g.audit.Append(ctx, event)
}

// OnRateLimited audits a request rejected by a rate limiter. It is meant for
// api.ChiMiddlewareConfig.OnRateLimited.
func (g *Gateway) OnRateLimited(r *http.Request, limiter string) {
	g.audit.Append(r.Context(), audit.Event{
		EventType:     audit.EventRateLimitExceeded,
		Severity:      audit.SeverityMedium,
		SourceIP:      ClientIP(r),
		UserAgent:     r.UserAgent(),
		Method:        r.Method,
		Endpoint:      r.URL.Path,
		Description:   "Rate limit exceeded",
		RequestParams: map[string]string{"limiter": limiter},
		Result:        audit.ResultFailed,
		StatusCode:    http.StatusTooManyRequests,
	})
}

// RecordInput is a domain event reported by a business handler or an
// external service.
type RecordInput struct {
	EventType     audit.EventType   `json:"event_type" validate:"required,event_type"`
	Severity      audit.Severity    `json:"severity,omitempty" validate:"omitempty,severity"`
	Result        audit.Result      `json:"result,omitempty" validate:"omitempty,result"`
	Description   string            `json:"description" validate:"required,max=1024"`
	PrincipalID   string            `json:"principal_id,omitempty" validate:"max=128"`
	PrincipalName string            `json:"principal_name,omitempty" validate:"max=256"`
	SourceIP      string            `json:"source_ip,omitempty" validate:"omitempty,ip"`
	UserAgent     string            `json:"user_agent,omitempty" validate:"max=512"`
	Endpoint      string            `json:"endpoint,omitempty" validate:"max=512"`
	ResourceType  string            `json:"resource_type,omitempty" validate:"max=128"`
	ResourceID    string            `json:"resource_id,omitempty" validate:"max=128"`
	RequestParams map[string]string `json:"request_params,omitempty" validate:"max=64"`
	Before        json.RawMessage   `json:"before,omitempty"`
	After         json.RawMessage   `json:"after,omitempty"`
	Error         string            `json:"error,omitempty" validate:"max=1024"`
}

// RecordOutcome is the appended event and whatever detection found in it.
type RecordOutcome struct {
	Event     *audit.Event             `json:"event"`
	Anomalies []detection.AnomalyEvent `json:"anomalies"`
}

// Record appends a domain event and then runs detection on it. The append
// happens first so history-based rules see the event; anomalies are handled
// before Record returns.
func (g *Gateway) Record(ctx context.Context, in RecordInput) RecordOutcome {
	event := g.audit.Append(ctx, audit.Event{
		EventType:     in.EventType,
		Severity:      in.Severity,
		Result:        in.Result,
		Description:   in.Description,
		PrincipalID:   in.PrincipalID,
		PrincipalName: in.PrincipalName,
		SourceIP:      in.SourceIP,
		UserAgent:     in.UserAgent,
		Endpoint:      in.Endpoint,
		ResourceType:  in.ResourceType,
		ResourceID:    in.ResourceID,
		RequestParams: in.RequestParams,
		BeforeState:   in.Before,
		AfterState:    in.After,
		ErrorMessage:  in.Error,
	})

	anomalies := g.detector.Analyze(ctx, detection.ObservationFromEvent(event))
	g.detector.Handle(ctx, anomalies)
	if anomalies == nil {
		anomalies = []detection.AnomalyEvent{}
	}
	return RecordOutcome{Event: event, Anomalies: anomalies}
}

// requestEvent fills the request fields of a gateway audit event.
func requestEvent(info RequestInfo, e audit.Event) audit.Event {
	e.PrincipalID = info.PrincipalID
	e.SourceIP = info.ClientIP
	e.UserAgent = info.UserAgent
	e.Method = info.Method
	e.Endpoint = info.Endpoint
	return e
}
