// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package authz authorizes dashboard principals with Casbin RBAC.

The model and policy are embedded (model.conf, policy.csv) and can be
replaced by files through EnforcerConfig. Objects are request paths matched
with keyMatch2, plus named objects such as "audit:sensitive" for unmasked
audit fields. Actions are read, write and delete, derived from the HTTP
method.

Roles:

	viewer   aggregate statistics
	analyst  viewer + audit log, blocked IPs, integrity checks
	admin    analyst + unblock + unmasked audit fields

A subject is allowed when its principal ID or any of its roles is.
*/
package authz
