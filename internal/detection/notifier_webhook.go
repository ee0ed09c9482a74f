// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/metrics"
)

// ErrNotifierUnavailable is returned while the webhook circuit is open.
var ErrNotifierUnavailable = errors.New("notifier circuit open")

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string            `koanf:"url"`
	Headers map[string]string `koanf:"headers"`
	Enabled bool              `koanf:"enabled"`

	// MinInterval spaces deliveries; a burst of anomalies waits its turn.
	MinInterval time.Duration `koanf:"min_interval"`

	// Timeout bounds a single HTTP delivery.
	Timeout time.Duration `koanf:"timeout"`

	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. CooldownPeriod is how long it stays open.
	FailureThreshold uint32        `koanf:"failure_threshold"`
	CooldownPeriod   time.Duration `koanf:"cooldown_period"`
}

// WebhookPayload is the JSON body posted to the webhook endpoint.
type WebhookPayload struct {
	Anomaly   *AnomalyEvent `json:"anomaly"`
	EventType string        `json:"event_type"` // security_anomaly
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"` // assetguard
}

// WebhookNotifier posts escalated anomalies to an HTTP endpoint. Deliveries
// are rate limited and pass through a circuit breaker so a dead endpoint does
// not pile up goroutines.
type WebhookNotifier struct {
	mu      sync.RWMutex
	url     string
	headers map[string]string
	enabled bool

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	now     func() time.Time
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = time.Minute
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	const breakerName = "anomaly-webhook"
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &WebhookNotifier{
		url:     cfg.URL,
		headers: headers,
		enabled: cfg.Enabled,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		breaker: breaker,
		now:     time.Now,
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled returns whether this notifier is enabled and has a URL.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled enables or disables the notifier.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Send posts one anomaly. It waits for the rate limiter, honoring ctx, and
// fails fast with ErrNotifierUnavailable while the circuit is open.
func (n *WebhookNotifier) Send(ctx context.Context, anomaly *AnomalyEvent) error {
	n.mu.RLock()
	if !n.enabled || n.url == "" {
		n.mu.RUnlock()
		return nil
	}
	url := n.url
	headers := make(map[string]string, len(n.headers))
	for k, v := range n.headers {
		headers[k] = v
	}
	n.mu.RUnlock()

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit wait: %w", err)
	}

	body, err := json.Marshal(WebhookPayload{
		Anomaly:   anomaly,
		EventType: "security_anomaly",
		Timestamp: n.now().UTC(),
		Source:    "assetguard",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.post(ctx, url, headers, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrNotifierUnavailable, err)
	}
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
