// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/auth"
	"github.com/tomtom215/assetguard/internal/authz"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/validation"
)

// auditQuery holds the parsed query string of GET /audit.
type auditQuery struct {
	EventTypes  []audit.EventType `json:"event_type" validate:"max=32,dive,event_type"`
	Severities  []audit.Severity  `json:"severity" validate:"max=4,dive,severity"`
	Results     []audit.Result    `json:"result" validate:"max=3,dive,oneof=SUCCESS FAILED ERROR"`
	PrincipalID string            `json:"principal_id" validate:"max=128"`
	SourceIP    string            `json:"source_ip" validate:"omitempty,ip"`
	MinRisk     int               `json:"min_risk" validate:"gte=0,lte=100"`
	Page        int               `json:"page" validate:"gte=0"`
	PageSize    int               `json:"page_size" validate:"gte=0,lte=100"`
	Since       time.Time         `json:"since"`
	Until       time.Time         `json:"until"`
}

// listParam returns the values of key, accepting both repeated parameters and
// comma-separated lists.
func listParam(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func timeParam(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", key)
	}
	return t, nil
}

func parseAuditQuery(q url.Values) (*auditQuery, error) {
	out := &auditQuery{
		PrincipalID: q.Get("principal_id"),
		SourceIP:    q.Get("source_ip"),
	}
	for _, v := range listParam(q, "event_type") {
		out.EventTypes = append(out.EventTypes, audit.EventType(strings.ToUpper(v)))
	}
	for _, v := range listParam(q, "severity") {
		out.Severities = append(out.Severities, audit.Severity(strings.ToUpper(v)))
	}
	for _, v := range listParam(q, "result") {
		out.Results = append(out.Results, audit.Result(strings.ToUpper(v)))
	}

	var err error
	if out.MinRisk, err = intParam(q, "min_risk"); err != nil {
		return nil, err
	}
	if out.Page, err = intParam(q, "page"); err != nil {
		return nil, err
	}
	if out.PageSize, err = intParam(q, "page_size"); err != nil {
		return nil, err
	}
	if out.Since, err = timeParam(q, "since"); err != nil {
		return nil, err
	}
	if out.Until, err = timeParam(q, "until"); err != nil {
		return nil, err
	}
	if !out.Since.IsZero() && !out.Until.IsZero() && !out.Since.Before(out.Until) {
		return nil, errors.New("since must be before until")
	}
	return out, nil
}

func (q *auditQuery) filter() audit.Filter {
	return audit.Filter{
		EventTypes:  q.EventTypes,
		Severities:  q.Severities,
		Results:     q.Results,
		PrincipalID: q.PrincipalID,
		SourceIP:    q.SourceIP,
		Since:       q.Since,
		Until:       q.Until,
		MinRisk:     q.MinRisk,
	}
}

func (g *Gateway) persistenceFailure(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).Msg("Audit read failed")
	writeError(w, r, &Error{
		Kind:    KindPersistence,
		Code:    CodeAuditUnavailable,
		Message: "Audit data is unavailable",
		Reason:  "audit read failed",
		Err:     err,
	})
}

// handleAuditQuery returns a page of audit events. Source IPs and request
// parameters are masked unless the principal may read sensitive audit fields.
//
// GET /api/v1/security/dashboard/audit
func (g *Gateway) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	q, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(q); verr != nil {
		rw.ValidationError(verr)
		return
	}

	access := audit.Access{IncludeSensitive: g.authz.Allowed(r, authz.ObjectAuditSensitive, authz.ActionRead)}
	page, err := g.audit.Query(r.Context(), q.filter(), audit.PageRequest{Page: q.Page, PageSize: q.PageSize}, access)
	if err != nil {
		g.persistenceFailure(w, r, err)
		return
	}

	rw.SuccessWithPagination(page.Items, &api.PaginationMeta{
		Total:    page.Total,
		Count:    len(page.Items),
		Page:     page.Page,
		PageSize: page.PageSize,
		HasMore:  int64(page.Page*page.PageSize) < page.Total,
	})
}

// handleAuditStats returns aggregate counts, by default over the last
// StatsWindow.
//
// GET /api/v1/security/dashboard/audit/stats
func (g *Gateway) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	q := r.URL.Query()

	since, err := timeParam(q, "since")
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	until, err := timeParam(q, "until")
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if since.IsZero() {
		since = g.now().Add(-g.config.StatsWindow)
	}
	if !until.IsZero() && !since.Before(until) {
		rw.BadRequest("since must be before until")
		return
	}

	stats, err := g.audit.Statistics(r.Context(), since, until)
	if err != nil {
		g.persistenceFailure(w, r, err)
		return
	}
	rw.Success(stats)
}

// IntegrityResult is the body of the integrity verification endpoint.
type IntegrityResult struct {
	ID    int64  `json:"id"`
	Valid bool   `json:"valid"`
	Hash  string `json:"integrity_hash"`
}

// handleVerifyIntegrity recomputes the integrity hash of a stored event.
//
// GET /api/v1/security/dashboard/audit/{id}/verify
func (g *Gateway) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		rw.BadRequest("id must be a positive integer")
		return
	}

	event, err := g.audit.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrEventNotFound) {
			rw.NotFound("Audit event not found")
			return
		}
		g.persistenceFailure(w, r, err)
		return
	}

	valid := g.audit.VerifyIntegrity(event)
	if !valid {
		logging.Ctx(r.Context()).Error().Int64("event_id", id).Msg("Audit event failed integrity verification")
	}
	rw.Success(IntegrityResult{ID: id, Valid: valid, Hash: event.IntegrityHash})
}

// handleListBlocked lists the blocked IPs.
//
// GET /api/v1/security/dashboard/blocked-ips
func (g *Gateway) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	entries, err := g.blocklist.List(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list blocked IPs")
		rw.ServiceUnavailable("Blocklist is unavailable")
		return
	}
	if entries == nil {
		entries = []BlockEntry{}
	}
	rw.Success(entries)
}

// BlockRequest is the body of the manual block endpoint.
type BlockRequest struct {
	IP              string `json:"ip" validate:"required,ip"`
	Reason          string `json:"reason" validate:"required,max=256"`
	DurationSeconds int64  `json:"duration_seconds" validate:"gte=0,lte=2592000"`
}

// handleBlock blocks an IP by hand.
//
// POST /api/v1/security/dashboard/blocked-ips
func (g *Gateway) handleBlock(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req BlockRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		rw.BadRequest("Invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	entry, err := g.blocklist.Block(r.Context(), req.IP, req.Reason, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to block IP")
		rw.ServiceUnavailable("Blocklist is unavailable")
		return
	}

	g.auditSettingChange(r, fmt.Sprintf("IP blocked: %s", req.Reason), entry.IP)
	rw.Created(entry)
}

// handleUnblock removes an IP from the blocklist.
//
// DELETE /api/v1/security/dashboard/blocked-ips/{ip}
func (g *Gateway) handleUnblock(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	ip := chi.URLParam(r, "ip")
	if err := validation.GetValidator().Var(ip, "required,ip"); err != nil {
		rw.BadRequest("ip must be an IP address")
		return
	}

	removed, err := g.blocklist.Unblock(r.Context(), ip)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to unblock IP")
		rw.ServiceUnavailable("Blocklist is unavailable")
		return
	}
	if !removed {
		rw.NotFound("IP is not blocked")
		return
	}

	g.auditSettingChange(r, "IP unblocked", ip)
	rw.NoContent()
}

// auditSettingChange records a dashboard change to the security settings.
func (g *Gateway) auditSettingChange(r *http.Request, description, ip string) {
	event := audit.Event{
		EventType:    audit.EventSecuritySetting,
		Severity:     audit.SeverityMedium,
		SourceIP:     ClientIP(r),
		UserAgent:    r.UserAgent(),
		Method:       r.Method,
		Endpoint:     r.URL.Path,
		Description:  description,
		ResourceType: "BlockedIP",
		ResourceID:   ip,
		Result:       audit.ResultSuccess,
	}
	if subject := auth.GetAuthSubject(r.Context()); subject != nil {
		event.PrincipalID = subject.ID
		event.PrincipalName = subject.Username
	}
	g.audit.Append(r.Context(), event)
}

// handlePerformance returns per-endpoint latency statistics.
//
// GET /api/v1/security/dashboard/performance
func (g *Gateway) handlePerformance(w http.ResponseWriter, r *http.Request) {
	api.NewResponseWriter(w, r).Success(g.latency.Stats())
}

// handleRules lists the detection rules and whether they are enabled.
//
// GET /api/v1/security/dashboard/rules
func (g *Gateway) handleRules(w http.ResponseWriter, r *http.Request) {
	api.NewResponseWriter(w, r).Success(g.detector.Rules())
}
