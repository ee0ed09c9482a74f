// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// Config holds configuration for the audit logger.
type Config struct {
	// IntegrityKey switches integrity hashes from SHA-256 to HMAC-SHA256.
	IntegrityKey string `koanf:"integrity_key"`

	// HighRiskThreshold is the risk score at which an event raises an alert and
	// counts as high risk in statistics.
	HighRiskThreshold int `koanf:"high_risk_threshold"`

	// WriteTimeout bounds a single persistence call.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// DefaultPageSize applies when a query does not ask for a page size.
	DefaultPageSize int `koanf:"default_page_size"`

	// MaxPageSize caps every query page.
	MaxPageSize int `koanf:"max_page_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HighRiskThreshold: 70,
		WriteTimeout:      5 * time.Second,
		DefaultPageSize:   20,
		MaxPageSize:       100,
	}
}

// Reader is the read-only view of the audit log used by detection.
type Reader interface {
	Count(ctx context.Context, filter Filter) (int64, error)
	Find(ctx context.Context, filter Filter, limit int) ([]Event, error)
}

// Appender records audit events.
type Appender interface {
	Append(ctx context.Context, draft Event) *Event
}

// Logger is the audit logging service. It completes drafts (timestamp, category,
// risk score, integrity hash) and persists them through a Store.
type Logger struct {
	config Config
	store  Store
	scorer Scorer
	hasher *Hasher
	now    func() time.Time
}

// Option customizes a Logger.
type Option func(*Logger)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithScorer replaces the default risk scorer.
func WithScorer(s Scorer) Option {
	return func(l *Logger) { l.scorer = s }
}

// NewLogger creates an audit logger over store.
func NewLogger(store Store, cfg Config, opts ...Option) *Logger {
	defaults := DefaultConfig()
	if cfg.HighRiskThreshold <= 0 {
		cfg.HighRiskThreshold = defaults.HighRiskThreshold
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaults.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaults.MaxPageSize
	}

	l := &Logger{
		config: cfg,
		store:  store,
		hasher: NewHasher([]byte(cfg.IntegrityKey)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.scorer == nil {
		l.scorer = NewDefaultScorer(store)
	}
	return l
}

// Append completes draft and persists it. It never fails the caller: if the
// store rejects the event, the failure is logged and counted, and the completed
// event is returned with ID 0.
//
// A risk score already set on the draft (anomaly events carry the detector's
// score) is kept when it exceeds the computed one.
func (l *Logger) Append(ctx context.Context, draft Event) *Event {
	event := cloneEvent(&draft)
	event.ID = 0
	event.IntegrityHash = ""

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	// DuckDB stores microseconds; truncating here keeps the hash stable on read.
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)

	if !event.Severity.Valid() {
		event.Severity = SeverityLow
	}
	switch {
	case !event.Result.Valid() && event.ErrorMessage != "" && !event.EventType.IsFailure():
		event.Result = ResultFailed
	case !event.Result.Valid():
		event.Result = event.EventType.DefaultResult()
	case event.Result == ResultSuccess && event.EventType.IsFailure():
		event.Result = event.EventType.DefaultResult()
	}
	event.Category = CategoryOf(event.EventType)
	event.RequestParams = RedactParams(event.RequestParams)

	event.RiskScore = ClampRisk(max(event.RiskScore, l.scorer.Score(ctx, &event)))

	hash, err := l.hasher.Sum(&event)
	if err != nil {
		logging.Error().Err(err).Str("event_type", string(event.EventType)).Msg("Failed to compute audit integrity hash")
	}
	event.IntegrityHash = hash

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.config.WriteTimeout)
	defer cancel()

	id, err := l.store.Insert(writeCtx, &event)
	if err != nil {
		metrics.AuditAppendFailures.Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("event_type", string(event.EventType)).
			Str("severity", string(event.Severity)).
			Msg("Failed to persist audit event")
		return &event
	}
	event.ID = id

	highRisk := l.isHighRisk(&event)
	metrics.RecordAuditAppend(string(event.EventType), string(event.Severity), event.RiskScore, highRisk)
	if highRisk {
		l.alert(ctx, &event)
	}
	return &event
}

func (l *Logger) isHighRisk(event *Event) bool {
	return event.RiskScore >= l.config.HighRiskThreshold || event.Severity == SeverityCritical
}

// alert raises a high-risk log line for an appended event.
func (l *Logger) alert(ctx context.Context, event *Event) {
	logging.Ctx(ctx).Warn().
		Int64("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Int("risk_score", event.RiskScore).
		Str("principal_id", logging.SanitizeUserID(event.PrincipalID)).
		Str("source_ip", logging.MaskIP(event.SourceIP)).
		Str("description", event.Description).
		Msg("High-risk security event")
}

// Query returns one page of events matching filter, newest first. Unless access
// grants sensitive data, source IPs are masked and request parameters redacted.
// Read errors propagate.
func (l *Logger) Query(ctx context.Context, filter Filter, page PageRequest, access Access) (*Page, error) {
	page = l.normalizePage(page)

	total, err := l.store.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}

	items, err := l.store.Find(ctx, filter, page.PageSize, (page.Page-1)*page.PageSize)
	if err != nil {
		return nil, fmt.Errorf("find audit events: %w", err)
	}
	if !access.IncludeSensitive {
		for i := range items {
			items[i] = Redacted(items[i])
		}
	}

	return &Page{
		Items:    items,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}, nil
}

func (l *Logger) normalizePage(page PageRequest) PageRequest {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize <= 0 {
		page.PageSize = l.config.DefaultPageSize
	}
	if page.PageSize > l.config.MaxPageSize {
		page.PageSize = l.config.MaxPageSize
	}
	return page
}

// Statistics aggregates events in [since, until) for dashboards. Zero bounds
// are open.
func (l *Logger) Statistics(ctx context.Context, since, until time.Time) (*Statistics, error) {
	stats, err := l.store.Statistics(ctx, since, until, l.config.HighRiskThreshold)
	if err != nil {
		return nil, fmt.Errorf("audit statistics: %w", err)
	}
	stats.GeneratedAt = l.now().UTC()
	return stats, nil
}

// VerifyIntegrity reports whether event's stored hash matches its fields.
func (l *Logger) VerifyIntegrity(event *Event) bool {
	return l.hasher.Verify(event)
}

// Get returns the unredacted event with the given ID.
func (l *Logger) Get(ctx context.Context, id int64) (*Event, error) {
	return l.store.Get(ctx, id)
}

// Count implements Reader.
func (l *Logger) Count(ctx context.Context, filter Filter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Find implements Reader. Results are unredacted and newest first.
func (l *Logger) Find(ctx context.Context, filter Filter, limit int) ([]Event, error) {
	return l.store.Find(ctx, filter, limit, 0)
}

// HighRiskThreshold returns the configured alerting threshold.
func (l *Logger) HighRiskThreshold() int { return l.config.HighRiskThreshold }

var (
	_ Reader   = (*Logger)(nil)
	_ Appender = (*Logger)(nil)
)
