// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

//go:build nats

package detection

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
)

// newNATSAlertBus connects a core NATS publisher and a queue-group subscriber.
// Alerts are transient, so JetStream is not used.
func newNATSAlertBus(cfg AlertBusConfig, logger watermill.LoggerAdapter) (*AlertBus, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Alert bus disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Alert bus reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
	marshaler := &wmNats.NATSMarshaler{}
	jetStream := wmNats.JetStreamConfig{Disabled: true}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   marshaler,
		JetStream:   jetStream,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create alert publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      marshaler,
		JetStream:        jetStream,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create alert subscriber: %w", err)
	}

	return &AlertBus{
		publisher:  pub,
		subscriber: sub,
		close: func() error {
			return errors.Join(sub.Close(), pub.Close())
		},
	}, nil
}
