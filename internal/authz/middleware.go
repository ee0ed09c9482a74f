// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package authz

import (
	"net/http"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/auth"
	"github.com/tomtom215/assetguard/internal/logging"
)

// Middleware enforces the policy for authenticated requests.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Allowed reports whether the subject in r's context may perform action on
// object. Enforcement errors deny.
func (m *Middleware) Allowed(r *http.Request, object, action string) bool {
	subject := auth.GetAuthSubject(r.Context())
	if subject == nil {
		return false
	}
	allowed, err := m.enforcer.EnforceWithRoles(subject.ID, subject.Roles, object, action)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
		return false
	}
	return allowed
}

// AuthorizeRequest derives the action from the method and authorizes the
// request path. Denials are answered with 403.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Allowed(r, r.URL.Path, methodToAction(r.Method)) {
			api.NewResponseWriter(w, r).Forbidden("Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// methodToAction maps HTTP methods to Casbin actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return ActionWrite
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}
