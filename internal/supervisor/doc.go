// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

/*
Package supervisor runs AssetGuard's long-lived services under a suture v4
supervisor tree.

The tree has three layers, each its own supervisor so a crash-looping service
is restarted with backoff without taking its siblings down:

	assetguard (root)
	├── data-layer       cache eviction, nonce pruning
	├── detection-layer  rule counter cleanup
	└── api-layer        HTTP server

Supervisor events (service failures, backoff, restarts) are logged through
sutureslog onto an slog.Logger; main passes one backed by zerolog.

Usage:

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewMaintenanceService("cache-eviction", time.Minute, store.EvictExpired))
	tree.AddDetectionService(services.NewDetectionService(detector))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
