// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/audit"
)

// Kind classifies a gateway failure.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindDetection
	KindPersistence
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindDetection:
		return "detection"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code a failure of this kind is answered with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error codes.
const (
	CodeIPBlocked            = "IP_BLOCKED"
	CodeSignatureInvalid     = "SIGNATURE_INVALID"
	CodeSecureChannelInvalid = "SECURE_CHANNEL_INVALID"
	CodeMalformedHeaders     = "MALFORMED_HEADERS"
	CodeMalformedBody        = "MALFORMED_BODY"
	CodeAuditUnavailable     = "AUDIT_UNAVAILABLE"
)

// Client-facing messages. Authentication messages are fixed regardless of
// which check failed.
const (
	MessageSignatureFailed = "signature verification failed"
	MessageChannelFailed   = "secure channel verification failed"
	MessageAccessDenied    = "Access denied"
)

// Error is a typed gateway failure. Message is safe to return to clients;
// Reason and Err are for logs only.
type Error struct {
	Kind     Kind
	Code     string
	Message  string
	Reason   string
	Severity audit.Severity
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failure %s (%s): %v", e.Kind, e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failure %s (%s)", e.Kind, e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns the *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

func writeError(w http.ResponseWriter, r *http.Request, e *Error) {
	api.NewResponseWriter(w, r).Error(e.Kind.HTTPStatus(), e.Code, e.Message)
}

func validationError(code, message, reason string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Reason: reason}
}
