// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/logging"
)

type contextKey string

// AuthSubjectContextKey holds the authenticated *AuthSubject.
const AuthSubjectContextKey contextKey = "auth_subject"

// AuthSubject is an authenticated principal.
type AuthSubject struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the subject holds role.
func (s *AuthSubject) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SubjectFromClaims converts validated claims.
func SubjectFromClaims(c *Claims) *AuthSubject {
	return &AuthSubject{ID: c.Subject, Username: c.Username, Roles: c.Roles}
}

// ContextWithAuthSubject stores s in ctx, and its ID in the logging context.
func ContextWithAuthSubject(ctx context.Context, s *AuthSubject) context.Context {
	ctx = context.WithValue(ctx, AuthSubjectContextKey, s)
	return logging.ContextWithPrincipalID(ctx, s.ID)
}

// GetAuthSubject retrieves the AuthSubject from the request context.
func GetAuthSubject(ctx context.Context) *AuthSubject {
	subject, ok := ctx.Value(AuthSubjectContextKey).(*AuthSubject)
	if !ok {
		return nil
	}
	return subject
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireJWT rejects requests without a valid bearer token with 401. The
// response is the same for every failure.
func RequireJWT(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				api.NewResponseWriter(w, r).Unauthorized("Authentication required")
				return
			}

			claims, err := m.ValidateToken(token)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Rejected bearer token")
				api.NewResponseWriter(w, r).Unauthorized("Authentication required")
				return
			}

			ctx := ContextWithAuthSubject(r.Context(), SubjectFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
