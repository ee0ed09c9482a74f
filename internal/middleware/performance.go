// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package middleware

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultLatencySamples is the sliding window size used when none is given.
const DefaultLatencySamples = 1000

// RequestSample is one completed request.
type RequestSample struct {
	Method     string    `json:"method"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// EndpointStats aggregates the samples of one endpoint.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int64   `json:"request_count"`
	ErrorCount   int64   `json:"error_count"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        float64 `json:"p50_ms"`
	P95MS        float64 `json:"p95_ms"`
	P99MS        float64 `json:"p99_ms"`
	MinMS        int64   `json:"min_ms"`
	MaxMS        int64   `json:"max_ms"`
}

// LatencyTracker keeps a sliding window of recent requests and reports
// per-endpoint latency percentiles. Safe for concurrent use.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []RequestSample
	next    int
	full    bool
}

// NewLatencyTracker creates a tracker holding up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = DefaultLatencySamples
	}
	return &LatencyTracker{samples: make([]RequestSample, size)}
}

// Record adds a sample, overwriting the oldest once the window is full.
func (t *LatencyTracker) Record(sample RequestSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = sample
	t.next = (t.next + 1) % len(t.samples)
	if t.next == 0 {
		t.full = true
	}
}

// Len returns the number of samples in the window.
func (t *LatencyTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lenLocked()
}

func (t *LatencyTracker) lenLocked() int {
	if t.full {
		return len(t.samples)
	}
	return t.next
}

// Recent returns up to n samples, oldest first.
func (t *LatencyTracker) Recent(n int) []RequestSample {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := t.lenLocked()
	if n > size {
		n = size
	}
	out := make([]RequestSample, n)
	start := t.next - n
	if start < 0 {
		start += len(t.samples)
	}
	for i := 0; i < n; i++ {
		out[i] = t.samples[(start+i)%len(t.samples)]
	}
	return out
}

// Stats aggregates the window per "METHOD endpoint", busiest first.
func (t *LatencyTracker) Stats() []EndpointStats {
	samples := t.Recent(t.Len())

	type group struct {
		durations []float64
		errors    int64
	}
	groups := make(map[string]*group)
	for _, s := range samples {
		key := s.Method + " " + s.Endpoint
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.durations = append(g.durations, float64(s.DurationMS))
		if s.StatusCode >= 500 {
			g.errors++
		}
	}

	stats := make([]EndpointStats, 0, len(groups))
	for endpoint, g := range groups {
		sort.Float64s(g.durations)
		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: int64(len(g.durations)),
			ErrorCount:   g.errors,
			AvgMS:        stat.Mean(g.durations, nil),
			P50MS:        stat.Quantile(0.50, stat.Empirical, g.durations, nil),
			P95MS:        stat.Quantile(0.95, stat.Empirical, g.durations, nil),
			P99MS:        stat.Quantile(0.99, stat.Empirical, g.durations, nil),
			MinMS:        int64(g.durations[0]),
			MaxMS:        int64(g.durations[len(g.durations)-1]),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}
