// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"errors"
	"net/http"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/channel"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/validation"
)

// handlePublicKey serves the server's RSA public key.
//
// GET /api/v1/security/public-key
func (g *Gateway) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	api.NewResponseWriter(w, r).Success(g.channel.PublicKeyInfo())
}

// handleSessionKey establishes a secure-channel session.
//
// POST /api/v1/security/session-key
func (g *Gateway) handleSessionKey(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req channel.BootstrapRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		rw.BadRequest("Invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	resp, err := g.channel.Bootstrap(r.Context(), req)
	if err != nil {
		if errors.Is(err, channel.ErrInvalidPEM) {
			rw.BadRequest("Invalid client public key")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to establish secure session")
		rw.InternalError("Failed to establish session")
		return
	}
	rw.Created(resp)
}

// handleRecordEvent ingests a domain event from an external service. The
// route is signed; the event's source IP defaults to the caller's.
//
// POST /api/v1/security/events
func (g *Gateway) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var in RecordInput
	if err := api.DecodeJSON(r, &in); err != nil {
		rw.BadRequest("Invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&in); verr != nil {
		rw.ValidationError(verr)
		return
	}
	if in.SourceIP == "" {
		in.SourceIP = ClientIP(r)
	}
	if in.UserAgent == "" {
		in.UserAgent = r.UserAgent()
	}

	rw.Created(g.Record(r.Context(), in))
}
