// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// ErrEventNotFound is returned by Store.Get for an unknown ID.
var ErrEventNotFound = errors.New("audit event not found")

// Store persists audit events. Implementations must be safe for concurrent use;
// Insert is the serialization point for concurrent writers.
type Store interface {
	// Insert persists event and returns the assigned sequence ID. event.ID is
	// ignored on input.
	Insert(ctx context.Context, event *Event) (int64, error)

	// Get returns the event with the given ID.
	Get(ctx context.Context, id int64) (*Event, error)

	// Find returns events matching filter, newest first.
	Find(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)

	// Count returns the number of events matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// Statistics aggregates events in [since, until). Events with a risk score of
	// at least highRisk count as high risk.
	Statistics(ctx context.Context, since, until time.Time, highRisk int) (*Statistics, error)
}

// MemoryStore keeps events in a bounded slice. When full, the oldest 10% are
// dropped. Suitable for development and tests; data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	maxLen int
	nextID int64
}

// NewMemoryStore creates a store holding at most maxLen events.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, min(maxLen, 1024)),
		maxLen: maxLen,
	}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, event *Event) (int64, error) {
	if event == nil {
		return 0, fmt.Errorf("event cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		drop := max(s.maxLen/10, 1)
		s.events = slices.Delete(s.events, 0, drop)
	}

	s.nextID++
	stored := cloneEvent(event)
	stored.ID = s.nextID
	s.events = append(s.events, stored)
	return stored.ID, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id int64) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// IDs are ascending, so binary search applies.
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].ID >= id })
	if i < len(s.events) && s.events[i].ID == id {
		event := cloneEvent(&s.events[i])
		return &event, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
}

// Find implements Store.
func (s *MemoryStore) Find(_ context.Context, filter Filter, limit, offset int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Event, 0, 64)
	for i := range s.events {
		if matches(&s.events[i], &filter) {
			matched = append(matched, &s.events[i])
		}
	}
	// Newest first; timestamps supplied by callers are not necessarily in ID order.
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	if offset >= len(matched) {
		return []Event{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Event, len(matched))
	for i, e := range matched {
		out[i] = cloneEvent(e)
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.events {
		if matches(&s.events[i], &filter) {
			n++
		}
	}
	return n, nil
}

// Statistics implements Store.
func (s *MemoryStore) Statistics(_ context.Context, since, until time.Time, highRisk int) (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := newStatistics(since, until)
	window := Filter{Since: since, Until: until}
	for i := range s.events {
		e := &s.events[i]
		if !matches(e, &window) {
			continue
		}
		stats.Total++
		stats.ByCategory[e.Category]++
		stats.BySeverity[e.Severity]++
		if e.RiskScore >= highRisk {
			stats.HighRisk++
		}
		if e.Result == ResultFailed {
			stats.Failed++
		}
	}
	return stats, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func newStatistics(since, until time.Time) *Statistics {
	return &Statistics{
		ByCategory: make(map[Category]int64),
		BySeverity: make(map[Severity]int64),
		Since:      since,
		Until:      until,
	}
}

func matches(e *Event, f *Filter) bool {
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, e.Severity) {
		return false
	}
	if len(f.Results) > 0 && !slices.Contains(f.Results, e.Result) {
		return false
	}
	if len(f.ExcludeCategories) > 0 && slices.Contains(f.ExcludeCategories, e.Category) {
		return false
	}
	if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
		return false
	}
	if f.SourceIP != "" && e.SourceIP != f.SourceIP {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	if f.MinRisk > 0 && e.RiskScore < f.MinRisk {
		return false
	}
	return true
}

// cloneEvent copies the reference-typed fields so stored events stay immutable.
func cloneEvent(e *Event) Event {
	out := *e
	if e.RequestParams != nil {
		out.RequestParams = make(map[string]string, len(e.RequestParams))
		for k, v := range e.RequestParams {
			out.RequestParams[k] = v
		}
	}
	out.BeforeState = slices.Clone(e.BeforeState)
	out.AfterState = slices.Clone(e.AfterState)
	out.SecurityContext = slices.Clone(e.SecurityContext)
	return out
}

var _ Store = (*MemoryStore)(nil)
