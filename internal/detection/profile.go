// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// ErrNoPrincipal is returned when a profile is requested without a principal.
var ErrNoPrincipal = errors.New("principal id is required")

// BehaviorProfile summarizes a principal's normal behavior from audit history.
// A profile is immutable once built; callers must not modify its maps.
type BehaviorProfile struct {
	PrincipalID string `json:"principal_id"`

	// LoginHours holds the UTC hour of each successful login, newest first.
	LoginHours []int `json:"login_hours"`

	KnownIPs        map[string]struct{} `json:"-"`
	KnownUserAgents map[string]struct{} `json:"-"`

	// EndpointCallHours maps an endpoint path (query removed) to the hours it
	// was called.
	EndpointCallHours map[string][]int `json:"endpoint_call_hours"`

	// AccessFrequency counts calls per endpoint path.
	AccessFrequency map[string]int `json:"access_frequency"`

	EventsReplayed int       `json:"events_replayed"`
	LastRebuiltAt  time.Time `json:"last_rebuilt_at"`

	meanHour   float64
	stdDevHour float64
	tolerance  hourTolerance
}

type hourTolerance struct {
	minHours   float64
	stdDevBase float64
}

// HourAssessment explains an unusual-login-time decision.
type HourAssessment struct {
	Unusual    bool
	Confidence float64
	MeanHour   float64
	StdDev     float64
	Deviation  float64
	Threshold  float64
}

// CircularHourDistance returns the distance between two hours of the day on a
// 24-hour clock, so 23 and 1 are 2 hours apart.
func CircularHourDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 24)
	return math.Min(d, 24-d)
}

// AssessLoginHour compares hour with the profile's login hours. A profile with
// no logins never reports an unusual hour.
func (p *BehaviorProfile) AssessLoginHour(hour int) HourAssessment {
	if len(p.LoginHours) == 0 {
		return HourAssessment{}
	}

	std := p.stdDevHour
	if std < 1 {
		std = p.tolerance.stdDevBase
	}
	threshold := math.Max(2*std, p.tolerance.minHours)
	deviation := CircularHourDistance(float64(hour), p.meanHour)

	return HourAssessment{
		Unusual:    deviation > threshold,
		Confidence: clampConfidence(deviation / threshold),
		MeanHour:   p.meanHour,
		StdDev:     std,
		Deviation:  deviation,
		Threshold:  threshold,
	}
}

// IsUnusualLoginTime reports whether a login at hour deviates from the usual
// login hours, and how confident that call is.
func (p *BehaviorProfile) IsUnusualLoginTime(hour int) (bool, float64) {
	a := p.AssessLoginHour(hour)
	return a.Unusual, a.Confidence
}

// KnowsIP reports whether ip appears in the profile history.
func (p *BehaviorProfile) KnowsIP(ip string) bool {
	_, ok := p.KnownIPs[ip]
	return ok
}

// KnowsUserAgent reports whether ua appears in the profile history.
func (p *BehaviorProfile) KnowsUserAgent(ua string) bool {
	_, ok := p.KnownUserAgents[ua]
	return ok
}

// SortedKnownIPs returns the known IPs in lexical order.
func (p *BehaviorProfile) SortedKnownIPs() []string {
	ips := make([]string, 0, len(p.KnownIPs))
	for ip := range p.KnownIPs {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// buildProfile replays events (newest first) into a profile. Security events
// record detector findings and rejections rather than the principal's own
// behavior and are skipped.
func buildProfile(principalID string, events []audit.Event, tol hourTolerance, builtAt time.Time) *BehaviorProfile {
	p := &BehaviorProfile{
		PrincipalID:       principalID,
		LoginHours:        make([]int, 0),
		KnownIPs:          make(map[string]struct{}),
		KnownUserAgents:   make(map[string]struct{}),
		EndpointCallHours: make(map[string][]int),
		AccessFrequency:   make(map[string]int),
		LastRebuiltAt:     builtAt,
		tolerance:         tol,
	}

	for i := range events {
		e := &events[i]
		if audit.CategoryOf(e.EventType) == audit.CategorySecurityEvent {
			continue
		}
		p.EventsReplayed++
		hour := e.Timestamp.UTC().Hour()

		if e.EventType == audit.EventLoginSuccess {
			p.LoginHours = append(p.LoginHours, hour)
		}
		if e.SourceIP != "" {
			p.KnownIPs[e.SourceIP] = struct{}{}
		}
		if e.UserAgent != "" {
			p.KnownUserAgents[e.UserAgent] = struct{}{}
		}
		if e.Endpoint != "" {
			path, _, _ := strings.Cut(e.Endpoint, "?")
			p.EndpointCallHours[path] = append(p.EndpointCallHours[path], hour)
			p.AccessFrequency[path]++
		}
	}

	if n := len(p.LoginHours); n > 0 {
		hours := make([]float64, n)
		for i, h := range p.LoginHours {
			hours[i] = float64(h)
		}
		p.meanHour = stat.Mean(hours, nil)
		if n > 1 {
			p.stdDevHour = stat.StdDev(hours, nil)
		}
	}
	return p
}

// ProfileCache builds behavior profiles from the audit log and keeps the most
// recently used ones. Concurrent rebuilds of the same principal share one
// audit query.
type ProfileCache struct {
	reader    audit.Reader
	config    ProfileConfig
	tolerance hourTolerance
	now       func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[string]*list.Element
}

// ProfileOption customizes a ProfileCache.
type ProfileOption func(*ProfileCache)

// WithProfileClock replaces the clock used for freshness.
func WithProfileClock(now func() time.Time) ProfileOption {
	return func(c *ProfileCache) { c.now = now }
}

// NewProfileCache creates a cache that rebuilds profiles from reader.
func NewProfileCache(reader audit.Reader, cfg ProfileConfig, login LoginTimeConfig, opts ...ProfileOption) *ProfileCache {
	defaults := DefaultConfig()
	if cfg.FreshFor <= 0 {
		cfg.FreshFor = defaults.Profile.FreshFor
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaults.Profile.Lookback
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaults.Profile.MaxEvents
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.Profile.CacheSize
	}
	tol := hourTolerance{minHours: login.MinToleranceHours, stdDevBase: login.StdDevFloorHours}
	if tol.minHours <= 0 {
		tol.minHours = defaults.LoginTime.MinToleranceHours
	}
	if tol.stdDevBase <= 0 {
		tol.stdDevBase = defaults.LoginTime.StdDevFloorHours
	}

	c := &ProfileCache{
		reader:    reader,
		config:    cfg,
		tolerance: tol,
		now:       time.Now,
		order:     list.New(),
		items:     make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrBuild returns the cached profile for principalID while it is fresh, and
// otherwise rebuilds it from successful events in the lookback window ending
// at asOf (exclusive). A zero asOf means now.
func (c *ProfileCache) GetOrBuild(ctx context.Context, principalID string, asOf time.Time) (*BehaviorProfile, error) {
	if principalID == "" {
		return nil, ErrNoPrincipal
	}
	if p := c.fresh(principalID); p != nil {
		return p, nil
	}

	v, err, _ := c.group.Do(principalID, func() (interface{}, error) {
		if p := c.fresh(principalID); p != nil {
			return p, nil
		}
		return c.rebuild(ctx, principalID, asOf)
	})
	if err != nil {
		return nil, err
	}
	return v.(*BehaviorProfile), nil
}

func (c *ProfileCache) rebuild(ctx context.Context, principalID string, asOf time.Time) (*BehaviorProfile, error) {
	if asOf.IsZero() {
		asOf = c.now()
	}

	events, err := c.reader.Find(ctx, audit.Filter{
		PrincipalID:       principalID,
		Results:           []audit.Result{audit.ResultSuccess},
		ExcludeCategories: []audit.Category{audit.CategorySecurityEvent},
		Since:             asOf.Add(-c.config.Lookback),
		Until:             asOf,
	}, c.config.MaxEvents)
	if err != nil {
		metrics.ProfileRebuilds.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load history for profile: %w", err)
	}

	p := buildProfile(principalID, events, c.tolerance, c.now())
	c.put(p)
	metrics.ProfileRebuilds.WithLabelValues("success").Inc()

	logging.Debug().
		Str("principal_id", logging.SanitizeUserID(principalID)).
		Int("events", p.EventsReplayed).
		Int("logins", len(p.LoginHours)).
		Msg("Rebuilt behavior profile")
	return p, nil
}

func (c *ProfileCache) fresh(principalID string) *BehaviorProfile {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[principalID]
	if !ok {
		return nil
	}
	p := el.Value.(*BehaviorProfile)
	if c.now().Sub(p.LastRebuiltAt) >= c.config.FreshFor {
		return nil
	}
	c.order.MoveToFront(el)
	return p
}

func (c *ProfileCache) put(p *BehaviorProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[p.PrincipalID]; ok {
		el.Value = p
		c.order.MoveToFront(el)
		return
	}
	c.items[p.PrincipalID] = c.order.PushFront(p)

	for c.order.Len() > c.config.CacheSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*BehaviorProfile).PrincipalID)
	}
}

// Invalidate drops the cached profile for principalID.
func (c *ProfileCache) Invalidate(principalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[principalID]; ok {
		c.order.Remove(el)
		delete(c.items, principalID)
	}
}

// Len returns the number of cached profiles.
func (c *ProfileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
