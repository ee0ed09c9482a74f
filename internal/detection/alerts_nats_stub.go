// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

//go:build !nats

package detection

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill"
)

// ErrNATSNotBuilt is returned for the nats transport in builds without -tags nats.
var ErrNATSNotBuilt = errors.New("alert transport nats requires a build with -tags nats")

func newNATSAlertBus(AlertBusConfig, watermill.LoggerAdapter) (*AlertBus, error) {
	return nil, ErrNATSNotBuilt
}
