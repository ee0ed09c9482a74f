// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/auth"
)

// MountPath is where Routes is meant to be mounted.
const MountPath = "/api/v1/security"

// Routes builds the security sub-router. Endpoints whose dependencies are not
// configured are not mounted.
func (g *Gateway) Routes(mw *api.ChiMiddleware) chi.Router {
	r := chi.NewRouter()
	r.Use(g.SecurityHeaders())

	if g.channel != nil {
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitCustom(api.RateLimitPublic))
			r.Use(g.Middleware(RouteOptions{}))
			r.Get("/public-key", g.handlePublicKey)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitCustom(api.RateLimitSessionKey))
			r.Use(g.Middleware(RouteOptions{}))
			r.Post("/session-key", g.handleSessionKey)
		})
	}

	if g.signer != nil {
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitCustom(api.RateLimitEvents))
			r.Use(g.Middleware(RouteOptions{
				RequireSignature:     true,
				RequireSecureChannel: g.channel != nil && g.channel.Required(),
			}))
			r.Post("/events", g.handleRecordEvent)
		})
	}

	if g.jwt != nil && g.authz != nil {
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(mw.RateLimitCustom(api.RateLimitDashboard))
			r.Use(g.Middleware(RouteOptions{}))
			r.Use(auth.RequireJWT(g.jwt))
			r.Use(g.authz.AuthorizeRequest)

			r.Get("/audit", g.handleAuditQuery)
			r.Get("/audit/stats", g.handleAuditStats)
			r.Get("/audit/{id}/verify", g.handleVerifyIntegrity)
			r.Get("/blocked-ips", g.handleListBlocked)
			r.Post("/blocked-ips", g.handleBlock)
			r.Delete("/blocked-ips/{ip}", g.handleUnblock)
			r.Get("/performance", g.handlePerformance)
			r.Get("/rules", g.handleRules)
		})
	}
	return r
}
