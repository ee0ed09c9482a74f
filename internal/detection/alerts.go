// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package detection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/logging"
)

// AlertTopic is the topic escalated anomalies are published on.
const AlertTopic = "detection.alerts"

// Alert bus transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// AlertBusConfig selects how escalated anomalies travel from the detector to
// the notifiers.
type AlertBusConfig struct {
	// Transport is "memory" for an in-process channel or "nats" to share one
	// notification stream between instances. NATS needs a build with -tags nats.
	Transport string `koanf:"transport"`

	// Buffer is the per-subscriber queue length of the memory transport.
	Buffer int64 `koanf:"buffer"`

	NATSURL string `koanf:"nats_url"`

	// QueueGroup makes exactly one instance of the group notify for each alert.
	QueueGroup string `koanf:"queue_group"`
}

// DefaultAlertBusConfig returns an in-process bus.
func DefaultAlertBusConfig() AlertBusConfig {
	return AlertBusConfig{
		Transport:  TransportMemory,
		Buffer:     256,
		NATSURL:    "nats://localhost:4222",
		QueueGroup: "assetguard-notifiers",
	}
}

// AlertBus carries escalated anomalies to the notifiers as watermill messages
// on AlertTopic.
type AlertBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	close      func() error
}

// NewAlertBus opens the transport named by cfg.
func NewAlertBus(cfg AlertBusConfig, logger *slog.Logger) (*AlertBus, error) {
	var wmLogger watermill.LoggerAdapter = watermill.NopLogger{}
	if logger != nil {
		wmLogger = watermill.NewSlogLogger(logger)
	}

	switch cfg.Transport {
	case "", TransportMemory:
		return NewMemoryAlertBus(cfg.Buffer, wmLogger), nil
	case TransportNATS:
		return newNATSAlertBus(cfg, wmLogger)
	default:
		return nil, fmt.Errorf("unknown alert transport %q", cfg.Transport)
	}
}

// NewMemoryAlertBus creates an in-process bus. Alerts published while nothing
// is subscribed are dropped.
func NewMemoryAlertBus(buffer int64, logger watermill.LoggerAdapter) *AlertBus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: buffer}, logger)
	return &AlertBus{publisher: ch, subscriber: ch, close: ch.Close}
}

// Publish sends a to the subscribers of AlertTopic.
func (b *AlertBus) Publish(a *AnomalyEvent) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal anomaly: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("anomaly_type", string(a.Type))
	msg.Metadata.Set("threat_level", string(a.ThreatLevel))
	if a.PrincipalID != "" {
		msg.Metadata.Set("principal_id", a.PrincipalID)
	}
	return b.publisher.Publish(AlertTopic, msg)
}

// Subscribe returns the alert stream. The channel is closed when ctx is
// canceled or the bus is closed.
func (b *AlertBus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, AlertTopic)
}

// Close shuts the transport down.
func (b *AlertBus) Close() error {
	return b.close()
}

// decodeAlert reads the anomaly back from an alert message.
func decodeAlert(msg *message.Message) (*AnomalyEvent, error) {
	var a AnomalyEvent
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w", msg.UUID, err)
	}
	return &a, nil
}

// ConsumeAlerts hands every alert on messages to the registered notifiers. An
// undecodable message is logged and acked so it is not redelivered. It returns
// ctx.Err() once messages is closed or ctx is canceled.
func (d *Detector) ConsumeAlerts(ctx context.Context, messages <-chan *message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			anomaly, err := decodeAlert(msg)
			if err != nil {
				logging.Warn().Err(err).Msg("Dropping undecodable anomaly alert")
				msg.Ack()
				continue
			}
			d.notify(msg.Context(), anomaly)
			msg.Ack()
		}
	}
}
