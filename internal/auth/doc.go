// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

// Package auth authenticates dashboard principals from HS256 bearer JWTs.
//
// Tokens are issued by the identity service in front of AssetGuard; this
// package only validates them. The "sub" claim is the principal ID that audit
// events and behavior profiles are keyed by, and "roles" feed the Casbin
// policy in the authz package.
//
//	manager, err := auth.NewJWTManager(cfg.Auth)
//	r.Use(auth.RequireJWT(manager))
//	...
//	subject := auth.GetAuthSubject(r.Context())
package auth
