// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// DuckDBStore implements Store on a DuckDB table. IDs come from a sequence, so
// they are unique and increasing across restarts of the same database file.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore wraps an open DuckDB handle. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table, its ID sequence and indexes.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	schema := `
		CREATE SEQUENCE IF NOT EXISTS audit_events_id_seq START 1;

		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGINT DEFAULT nextval('audit_events_id_seq') PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			category TEXT NOT NULL,

			principal_id TEXT NOT NULL DEFAULT '',
			principal_name TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',

			source_ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL DEFAULT '',
			request_params TEXT,

			resource_type TEXT NOT NULL DEFAULT '',
			resource_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',

			result TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,

			-- Stored as TEXT so the exact bytes covered by the integrity hash survive
			before_state TEXT,
			after_state TEXT,
			security_context TEXT,

			risk_score INTEGER NOT NULL,
			integrity_hash TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_events_principal ON audit_events(principal_id);
		CREATE INDEX IF NOT EXISTS idx_audit_events_source_ip ON audit_events(source_ip);
		CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Audit events table created/verified")
	return nil
}

const selectColumns = `
	SELECT
		id, timestamp, event_type, severity, category,
		principal_id, principal_name, session_id,
		source_ip, user_agent, method, endpoint, request_params,
		resource_type, resource_id, description,
		result, error_message, status_code, duration_ms,
		before_state, after_state, security_context,
		risk_score, integrity_hash
	FROM audit_events
`

// Insert implements Store.
func (s *DuckDBStore) Insert(ctx context.Context, event *Event) (int64, error) {
	if event == nil {
		return 0, fmt.Errorf("event cannot be nil")
	}

	params, err := encodeParams(event.RequestParams)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request params: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			timestamp, event_type, severity, category,
			principal_id, principal_name, session_id,
			source_ip, user_agent, method, endpoint, request_params,
			resource_type, resource_id, description,
			result, error_message, status_code, duration_ms,
			before_state, after_state, security_context,
			risk_score, integrity_hash
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?,
			?, ?
		) RETURNING id`,
		event.Timestamp, string(event.EventType), string(event.Severity), string(event.Category),
		event.PrincipalID, event.PrincipalName, event.SessionID,
		event.SourceIP, event.UserAgent, event.Method, event.Endpoint, params,
		event.ResourceType, event.ResourceID, event.Description,
		string(event.Result), event.ErrorMessage, event.StatusCode, event.DurationMS,
		nullableRaw(event.BeforeState), nullableRaw(event.AfterState), nullableRaw(event.SecurityContext),
		event.RiskScore, event.IntegrityHash,
	).Scan(&id)
	metrics.RecordDBQuery("insert", "audit_events", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to save audit event: %w", err)
	}
	return id, nil
}

// Get implements Store.
func (s *DuckDBStore) Get(ctx context.Context, id int64) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	var data scannedEvent
	if err := row.Scan(data.destinations()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
		}
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return data.toEvent(), nil
}

// Find implements Store.
func (s *DuckDBStore) Find(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conditions, args := buildFilterConditions(filter)
	query := selectColumns + whereClause(conditions) + " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordDBQuery("select", "audit_events", time.Since(start), err)
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, max(limit, 0))
	for rows.Next() {
		var data scannedEvent
		if err := rows.Scan(data.destinations()...); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit event row")
			continue
		}
		events = append(events, *data.toEvent())
	}
	err = rows.Err()
	metrics.RecordDBQuery("select", "audit_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Count implements Store.
func (s *DuckDBStore) Count(ctx context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conditions, args := buildFilterConditions(filter)
	start := time.Now()
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+whereClause(conditions), args...).Scan(&count)
	metrics.RecordDBQuery("count", "audit_events", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Statistics implements Store.
func (s *DuckDBStore) Statistics(ctx context.Context, since, until time.Time, highRisk int) (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conditions, args := buildFilterConditions(Filter{Since: since, Until: until})
	where := whereClause(conditions)
	stats := newStatistics(since, until)

	totalsArgs := append([]interface{}{highRisk, string(ResultFailed)}, args...)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN risk_score >= ? THEN 1 END),
			COUNT(CASE WHEN result = ? THEN 1 END)
		FROM audit_events`+where, totalsArgs...).Scan(&stats.Total, &stats.HighRisk, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit totals: %w", err)
	}

	byCategory, err := s.countByColumn(ctx, "category", where, args)
	if err != nil {
		return nil, err
	}
	for k, v := range byCategory {
		stats.ByCategory[Category(k)] = v
	}

	bySeverity, err := s.countByColumn(ctx, "severity", where, args)
	if err != nil {
		return nil, err
	}
	for k, v := range bySeverity {
		stats.BySeverity[Severity(k)] = v
	}

	return stats, nil
}

// countByColumn runs a GROUP BY over column. column is always a constant from
// this file, never caller input.
func (s *DuckDBStore) countByColumn(ctx context.Context, column, where string, args []interface{}) (map[string]int64, error) {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_events%s GROUP BY %s", column, where, column)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err == nil {
			result[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return result, nil
}

func buildFilterConditions(filter Filter) ([]string, []interface{}) {
	var args []interface{}
	var conditions []string

	if cond := buildSliceCondition("event_type", filter.EventTypes, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("severity", filter.Severities, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("result", filter.Results, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("category", filter.ExcludeCategories, &args); cond != "" {
		conditions = append(conditions, "NOT "+cond)
	}

	conditions, args = appendStringCondition(conditions, args, "principal_id", filter.PrincipalID)
	conditions, args = appendStringCondition(conditions, args, "source_ip", filter.SourceIP)

	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.Until)
	}
	if filter.MinRisk > 0 {
		conditions = append(conditions, "risk_score >= ?")
		args = append(args, filter.MinRisk)
	}

	return conditions, args
}

func buildSliceCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

func appendStringCondition(conditions []string, args []interface{}, column, value string) ([]string, []interface{}) {
	if value != "" {
		conditions = append(conditions, column+" = ?")
		args = append(args, value)
	}
	return conditions, args
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func encodeParams(params map[string]string) (*string, error) {
	if len(params) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func nullableRaw(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// scannedEvent holds raw column values for one row.
type scannedEvent struct {
	event           Event
	eventType       string
	severity        string
	category        string
	result          string
	requestParams   sql.NullString
	beforeState     sql.NullString
	afterState      sql.NullString
	securityContext sql.NullString
}

func (d *scannedEvent) destinations() []interface{} {
	return []interface{}{
		&d.event.ID,
		&d.event.Timestamp,
		&d.eventType,
		&d.severity,
		&d.category,
		&d.event.PrincipalID,
		&d.event.PrincipalName,
		&d.event.SessionID,
		&d.event.SourceIP,
		&d.event.UserAgent,
		&d.event.Method,
		&d.event.Endpoint,
		&d.requestParams,
		&d.event.ResourceType,
		&d.event.ResourceID,
		&d.event.Description,
		&d.result,
		&d.event.ErrorMessage,
		&d.event.StatusCode,
		&d.event.DurationMS,
		&d.beforeState,
		&d.afterState,
		&d.securityContext,
		&d.event.RiskScore,
		&d.event.IntegrityHash,
	}
}

func (d *scannedEvent) toEvent() *Event {
	d.event.Timestamp = d.event.Timestamp.UTC()
	d.event.EventType = EventType(d.eventType)
	d.event.Severity = Severity(d.severity)
	d.event.Category = Category(d.category)
	d.event.Result = Result(d.result)

	if d.requestParams.Valid && d.requestParams.String != "" {
		if err := json.Unmarshal([]byte(d.requestParams.String), &d.event.RequestParams); err != nil {
			logging.Debug().Err(err).Int64("event_id", d.event.ID).Msg("Failed to parse request params JSON")
		}
	}
	d.event.BeforeState = rawOrNil(d.beforeState)
	d.event.AfterState = rawOrNil(d.afterState)
	d.event.SecurityContext = rawOrNil(d.securityContext)
	return &d.event
}

func rawOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

var _ Store = (*DuckDBStore)(nil)
