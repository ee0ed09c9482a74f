// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import (
	"time"

	"github.com/goccy/go-json"
)

// EventType identifies what happened.
type EventType string

const (
	// Authentication
	EventLoginSuccess       EventType = "LOGIN_SUCCESS"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventLogout             EventType = "LOGOUT"
	EventPasswordChange     EventType = "PASSWORD_CHANGE"
	EventUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"

	// Data operations
	EventDataCreate EventType = "DATA_CREATE"
	EventDataRead   EventType = "DATA_READ"
	EventDataUpdate EventType = "DATA_UPDATE"
	EventDataDelete EventType = "DATA_DELETE"
	EventDataExport EventType = "DATA_EXPORT"
	EventDataImport EventType = "DATA_IMPORT"

	// Access control
	EventPermissionGrant  EventType = "PERMISSION_GRANT"
	EventPermissionRevoke EventType = "PERMISSION_REVOKE"
	EventRoleAssign       EventType = "ROLE_ASSIGN"
	EventRoleRemove       EventType = "ROLE_REMOVE"

	// System management
	EventSystemConfig    EventType = "SYSTEM_CONFIG"
	EventUserManagement  EventType = "USER_MANAGEMENT"
	EventSecuritySetting EventType = "SECURITY_SETTING"
	EventSystemError     EventType = "SYSTEM_ERROR"

	// File operations
	EventFileUpload   EventType = "FILE_UPLOAD"
	EventFileDownload EventType = "FILE_DOWNLOAD"
	EventFileDelete   EventType = "FILE_DELETE"

	// Security events
	EventSecurityViolation  EventType = "SECURITY_VIOLATION"
	EventSuspiciousActivity EventType = "SUSPICIOUS_ACTIVITY"
	EventAccessDenied       EventType = "ACCESS_DENIED"
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
)

// Category groups event types for dashboards.
type Category string

const (
	CategoryAuthentication   Category = "AUTHENTICATION"
	CategoryDataOperation    Category = "DATA_OPERATION"
	CategoryAccessControl    Category = "ACCESS_CONTROL"
	CategorySystemManagement Category = "SYSTEM_MANAGEMENT"
	CategoryFileOperation    Category = "FILE_OPERATION"
	CategorySecurityEvent    Category = "SECURITY_EVENT"
	CategoryOther            Category = "OTHER"
)

var categories = map[EventType]Category{
	EventLoginSuccess:       CategoryAuthentication,
	EventLoginFailed:        CategoryAuthentication,
	EventLogout:             CategoryAuthentication,
	EventPasswordChange:     CategoryAuthentication,
	EventUnauthorizedAccess: CategoryAuthentication,

	EventDataCreate: CategoryDataOperation,
	EventDataRead:   CategoryDataOperation,
	EventDataUpdate: CategoryDataOperation,
	EventDataDelete: CategoryDataOperation,
	EventDataExport: CategoryDataOperation,
	EventDataImport: CategoryDataOperation,

	EventPermissionGrant:  CategoryAccessControl,
	EventPermissionRevoke: CategoryAccessControl,
	EventRoleAssign:       CategoryAccessControl,
	EventRoleRemove:       CategoryAccessControl,

	EventSystemConfig:    CategorySystemManagement,
	EventUserManagement:  CategorySystemManagement,
	EventSecuritySetting: CategorySystemManagement,
	EventSystemError:     CategorySystemManagement,

	EventFileUpload:   CategoryFileOperation,
	EventFileDownload: CategoryFileOperation,
	EventFileDelete:   CategoryFileOperation,

	EventSecurityViolation:  CategorySecurityEvent,
	EventSuspiciousActivity: CategorySecurityEvent,
	EventAccessDenied:       CategorySecurityEvent,
	EventRateLimitExceeded:  CategorySecurityEvent,
}

// CategoryOf returns the dashboard category of t, or CategoryOther.
func CategoryOf(t EventType) Category {
	if c, ok := categories[t]; ok {
		return c
	}
	return CategoryOther
}

// Known reports whether t is one of the defined event types.
func (t EventType) Known() bool {
	_, ok := categories[t]
	return ok
}

// Severity is the importance of an event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a defined severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Result is the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailed  Result = "FAILED"
	ResultError   Result = "ERROR"
)

// Valid reports whether r is a defined result.
func (r Result) Valid() bool {
	switch r {
	case ResultSuccess, ResultFailed, ResultError:
		return true
	}
	return false
}

// failureTypes record an operation that was refused or went wrong; they can
// never carry ResultSuccess.
var failureTypes = map[EventType]Result{
	EventLoginFailed:        ResultFailed,
	EventUnauthorizedAccess: ResultFailed,
	EventAccessDenied:       ResultFailed,
	EventSecurityViolation:  ResultFailed,
	EventRateLimitExceeded:  ResultFailed,
	EventSystemError:        ResultError,
}

// DefaultResult is the result an event of type t gets when none is given.
func (t EventType) DefaultResult() Result {
	if r, ok := failureTypes[t]; ok {
		return r
	}
	return ResultSuccess
}

// IsFailure reports whether t always records a refused or failed operation.
func (t EventType) IsFailure() bool {
	_, ok := failureTypes[t]
	return ok
}

// Event is one immutable audit record. Callers fill in a draft and pass it to
// Logger.Append, which assigns ID, Timestamp (when zero), Category, RiskScore and
// IntegrityHash.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	EventType EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`
	Category  Category  `json:"category"`

	PrincipalID   string `json:"principal_id,omitempty"`
	PrincipalName string `json:"principal_name,omitempty"`
	SessionID     string `json:"session_id,omitempty"`

	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Method    string `json:"method,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`

	// RequestParams never holds secrets; sensitive keys are redacted on append.
	RequestParams map[string]string `json:"request_params,omitempty"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Description  string `json:"description"`

	Result       Result `json:"result"`
	ErrorMessage string `json:"error_message,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`

	BeforeState json.RawMessage `json:"before_state,omitempty"`
	AfterState  json.RawMessage `json:"after_state,omitempty"`

	// SecurityContext carries structured detector evidence for anomaly events.
	SecurityContext json.RawMessage `json:"security_context,omitempty"`

	RiskScore     int    `json:"risk_score"`
	IntegrityHash string `json:"integrity_hash"`
}

// Filter selects events. Zero values mean "no constraint". Since is inclusive,
// Until is exclusive.
type Filter struct {
	EventTypes  []EventType `json:"event_types,omitempty"`
	Severities  []Severity  `json:"severities,omitempty"`
	Results     []Result    `json:"results,omitempty"`
	PrincipalID string      `json:"principal_id,omitempty"`
	SourceIP    string      `json:"source_ip,omitempty"`
	Since       time.Time   `json:"since,omitempty"`
	Until       time.Time   `json:"until,omitempty"`
	MinRisk     int         `json:"min_risk,omitempty"`

	// ExcludeCategories drops events whose category is listed.
	ExcludeCategories []Category `json:"exclude_categories,omitempty"`
}

// PageRequest selects one page of a query, 1-based.
type PageRequest struct {
	Page     int
	PageSize int
}

// Access describes what the caller may see.
type Access struct {
	// IncludeSensitive returns source IPs and request parameters unmasked.
	IncludeSensitive bool
}

// Page is one page of query results, newest first.
type Page struct {
	Items    []Event `json:"items"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Statistics aggregates events over a time range.
type Statistics struct {
	ByCategory  map[Category]int64 `json:"by_category"`
	BySeverity  map[Severity]int64 `json:"by_severity"`
	Total       int64              `json:"total"`
	HighRisk    int64              `json:"high_risk"`
	Failed      int64              `json:"failed"`
	Since       time.Time          `json:"since"`
	Until       time.Time          `json:"until"`
	GeneratedAt time.Time          `json:"generated_at"`
}
