// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package services

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/thejerf/suture/v4"
)

// AlertConsumer is implemented by *detection.Detector.
type AlertConsumer interface {
	ConsumeAlerts(ctx context.Context, messages <-chan *message.Message) error
}

// AlertService feeds an alert subscription to the notifiers. The subscription
// is opened by the caller before the tree starts; a restarted service resumes
// reading the same stream.
type AlertService struct {
	consumer AlertConsumer
	messages <-chan *message.Message
	name     string
}

// NewAlertService wraps consumer and its subscription as a supervised service.
func NewAlertService(consumer AlertConsumer, messages <-chan *message.Message) *AlertService {
	return &AlertService{
		consumer: consumer,
		messages: messages,
		name:     "alert-subscriber",
	}
}

// Serve implements suture.Service. A closed subscription cannot be reopened
// here, so it ends the service for good.
func (a *AlertService) Serve(ctx context.Context) error {
	if err := a.consumer.ConsumeAlerts(ctx, a.messages); err != nil {
		return err
	}
	return suture.ErrDoNotRestart
}

// String implements fmt.Stringer for supervisor logs.
func (a *AlertService) String() string {
	return a.name
}
