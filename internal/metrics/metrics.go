// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Audit store (DuckDB or memory)
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetguard_db_query_duration_seconds",
			Help:    "Duration of audit store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_db_query_errors_total",
			Help: "Total number of audit store query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetguard_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetguard_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_api_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Cache (nonces, sessions, dedup, blocklist)
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_cache_operations_total",
			Help: "Total number of cache operations by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_cache_evictions_total",
			Help: "Total number of cache entries evicted",
		},
		[]string{"backend", "reason"}, // reason: expired, capacity
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetguard_cache_entries",
			Help: "Current number of entries held by in-process caches",
		},
		[]string{"backend"},
	)

	// Audit
	AuditEventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_audit_events_appended_total",
			Help: "Total number of audit events appended",
		},
		[]string{"event_type", "severity"},
	)

	AuditAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetguard_audit_append_failures_total",
			Help: "Total number of audit events that could not be persisted",
		},
	)

	AuditHighRiskEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_audit_high_risk_events_total",
			Help: "Total number of audit events at or above the high-risk threshold",
		},
		[]string{"event_type"},
	)

	AuditRiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assetguard_audit_risk_score",
			Help:    "Distribution of computed audit risk scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// Detection
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"type", "threat_level"},
	)

	DetectionRuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_detection_rule_errors_total",
			Help: "Total number of detection rule evaluation failures",
		},
		[]string{"rule"},
	)

	DetectionRuleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetguard_detection_rule_duration_seconds",
			Help:    "Duration of detection rule evaluation in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"rule"},
	)

	ProfileRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_profile_rebuilds_total",
			Help: "Total number of behavior profile rebuilds",
		},
		[]string{"outcome"},
	)

	BlockedIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetguard_blocked_ips",
			Help: "Number of source IPs currently blocked",
		},
	)

	IPBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_ip_blocks_total",
			Help: "Total number of IP block actions",
		},
		[]string{"action"}, // block, unblock
	)

	// Notifications
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_notifications_total",
			Help: "Total number of anomaly notifications by notifier and outcome",
		},
		[]string{"notifier", "outcome"},
	)

	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_alerts_published_total",
			Help: "Total number of escalated anomalies published to the alert bus by outcome",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetguard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Request signing
	SignatureVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_signature_verifications_total",
			Help: "Total number of request signature verifications by result",
		},
		[]string{"result"}, // ok, expired, replay, bad_signature, missing_headers, malformed
	)

	NoncesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetguard_nonces_pruned_total",
			Help: "Total number of expired nonces removed",
		},
	)

	// Secure channel
	SecureSessionsEstablished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetguard_secure_sessions_established_total",
			Help: "Total number of secure channel sessions established",
		},
	)

	SecureChannelFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetguard_secure_channel_failures_total",
			Help: "Total number of secure channel verification failures",
		},
		[]string{"reason"},
	)

	// System
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetguard_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetguard_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records an audit store query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCacheOp records a cache operation outcome.
func RecordCacheOp(backend, operation, outcome string) {
	CacheOperations.WithLabelValues(backend, operation, outcome).Inc()
}

// RecordAuditAppend records a persisted audit event.
func RecordAuditAppend(eventType, severity string, riskScore int, highRisk bool) {
	AuditEventsAppended.WithLabelValues(eventType, severity).Inc()
	AuditRiskScore.Observe(float64(riskScore))
	if highRisk {
		AuditHighRiskEvents.WithLabelValues(eventType).Inc()
	}
}

// RecordAnomaly records a detected anomaly.
func RecordAnomaly(anomalyType, threatLevel string) {
	AnomaliesDetected.WithLabelValues(anomalyType, threatLevel).Inc()
}

// RecordRuleEvaluation records how long a detection rule took and whether it failed.
func RecordRuleEvaluation(rule string, duration time.Duration, err error) {
	DetectionRuleDuration.WithLabelValues(rule).Observe(duration.Seconds())
	if err != nil {
		DetectionRuleErrors.WithLabelValues(rule).Inc()
	}
}

// RecordNotification records a notifier delivery outcome.
func RecordNotification(notifier string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	NotificationsSent.WithLabelValues(notifier, outcome).Inc()
}

// RecordAlertPublish records an alert bus publish outcome.
func RecordAlertPublish(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	AlertsPublished.WithLabelValues(outcome).Inc()
}

// RecordSignatureVerification records a request signature verification result.
func RecordSignatureVerification(result string) {
	SignatureVerifications.WithLabelValues(result).Inc()
}

// RecordSecureChannelFailure records a secure channel rejection.
func RecordSecureChannelFailure(reason string) {
	SecureChannelFailures.WithLabelValues(reason).Inc()
}
