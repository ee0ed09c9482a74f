// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/audit"
	"github.com/tomtom215/assetguard/internal/auth"
	"github.com/tomtom215/assetguard/internal/authz"
	"github.com/tomtom215/assetguard/internal/cache"
	"github.com/tomtom215/assetguard/internal/channel"
	"github.com/tomtom215/assetguard/internal/config"
	"github.com/tomtom215/assetguard/internal/database"
	"github.com/tomtom215/assetguard/internal/detection"
	"github.com/tomtom215/assetguard/internal/gateway"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/signing"
	"github.com/tomtom215/assetguard/internal/supervisor"
	"github.com/tomtom215/assetguard/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const checkpointInterval = 5 * time.Minute

//nolint:gocyclo // Sequential startup
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggerConfig())

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("audit_storage", string(cfg.Audit.Storage)).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("Starting AssetGuard")

	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin; restrict CORS_ORIGINS before exposing the dashboard")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// === AUDIT STORAGE ===

	var healthChecks []api.HealthCheck
	var auditStore audit.Store
	var db *database.DB
	switch cfg.Audit.Storage {
	case config.AuditStorageMemory:
		auditStore = audit.NewMemoryStore(cfg.Audit.MemoryMaxEvents)
		logging.Warn().Msg("Audit events are kept in memory and lost on restart")
	default:
		db, err = database.Open(cfg.Database)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open database")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing database")
			}
		}()
		store := audit.NewDuckDBStore(db.Conn())
		if err := store.CreateTable(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to create audit table")
		}
		auditStore = store
		healthChecks = append(healthChecks, api.HealthCheck{Name: "database", Ping: db.Ping})
		tree.AddDataService(services.NewMaintenanceService("duckdb-checkpoint", checkpointInterval,
			func(ctx context.Context) (int, error) { return 0, db.Checkpoint(ctx) }))
	}
	auditLog := audit.NewLogger(auditStore, cfg.Audit.LoggerConfig())

	// === CACHE ===

	kv, err := cache.Open(ctx, cfg.Cache.StoreConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache")
		}
	}()
	tree.AddDataService(services.NewMaintenanceService("cache-eviction", cfg.Cache.EvictInterval, kv.EvictExpired))

	// === DETECTION ===

	alertBus, err := detection.NewAlertBus(cfg.Notifier.Bus, slogLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open alert bus")
	}
	defer func() {
		if err := alertBus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing alert bus")
		}
	}()
	alerts, err := alertBus.Subscribe(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe to anomaly alerts")
	}

	detector := detection.New(cfg.Detection, auditLog, auditLog, detection.WithAlertBus(alertBus))
	if cfg.Notifier.Webhook.Enabled {
		detector.RegisterNotifier(detection.NewWebhookNotifier(cfg.Notifier.Webhook))
		logging.Info().Msg("Webhook anomaly notifications enabled")
	}
	tree.AddDetectionService(services.NewDetectionService(detector))
	tree.AddDetectionService(services.NewAlertService(detector, alerts))
	logging.Info().Str("transport", cfg.Notifier.Bus.Transport).Str("topic", detection.AlertTopic).Msg("Anomaly alert bus ready")

	blocklist := gateway.NewBlocklist(cache.NewNamespace(kv, "block:"), gateway.BlocklistConfig{
		AutoBlock: cfg.Detection.AutoBlock,
		Duration:  cfg.Detection.BlockDuration,
	})

	deps := gateway.Deps{
		Audit:     auditLog,
		Detector:  detector,
		Blocklist: blocklist,
	}

	// === SIGNING AND SECURE CHANNEL ===

	if cfg.Signing.Secret != "" {
		deps.Signer = signing.New(cfg.Signing, cache.NewNamespace(kv, "nonce:"))
		deps.SigningSecret = []byte(cfg.Signing.Secret)
		logging.Info().Bool("required", cfg.Signing.Enabled).Msg("Request signing configured")
	} else {
		logging.Warn().Msg("No signing secret configured, event ingestion is disabled")
	}

	keys, err := channel.LoadServerKeys(cfg.Channel.Keys, cfg.IsProduction())
	switch {
	case errors.Is(err, channel.ErrKeysRequired) && !cfg.Channel.Enabled:
		logging.Info().Msg("No server key pair configured, secure channel is disabled")
	case err != nil:
		logging.Fatal().Err(err).Msg("Failed to load server key pair")
	default:
		// Unauthenticated bootstrap calls write sessions, so in memory they get
		// their own bound and cannot fill the store holding nonces and blocks.
		sessionKV := kv
		if cache.Backend(cfg.Cache.Backend) == cache.BackendMemory || cfg.Cache.Backend == "" {
			mem := cache.NewMemoryStore(cfg.Cache.MemoryCapacity)
			defer func() { _ = mem.Close() }()
			tree.AddDataService(services.NewMaintenanceService("session-eviction", cfg.Cache.EvictInterval, mem.EvictExpired))
			sessionKV = mem
		}
		deps.Channel = channel.New(cfg.Channel, keys,
			cache.NewNamespace(sessionKV, "session:"), cache.NewNamespace(sessionKV, "msg:"))
		logging.Info().Bool("required", cfg.Channel.Enabled).Msg("Secure channel configured")
	}

	// === DASHBOARD ===

	if cfg.DashboardEnabled() {
		deps.JWT, err = auth.NewJWTManager(cfg.Security.Auth)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create JWT manager")
		}
		deps.Enforcer, err = authz.NewEnforcer(cfg.Security.Casbin)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create authorization enforcer")
		}
		defer deps.Enforcer.Close()
	} else {
		logging.Warn().Msg("No JWT secret configured, the security dashboard is disabled")
	}

	gw, err := gateway.New(cfg.Gateway, deps)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create security gateway")
	}

	// === HTTP ===

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled
	mwCfg.OnRateLimited = gw.OnRateLimited

	router := api.NewRouter(api.RouterConfig{
		Middleware:        mwCfg,
		Health:            api.NewHealthHandler(version, 2*time.Second, healthChecks...),
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		MetricsEnabled:    cfg.Server.MetricsEnabled,
		Mounts: []api.Mount{
			{Pattern: gateway.MountPath, Handler: gw.Routes(api.NewChiMiddleware(mwCfg))},
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	detector.Wait()
	logging.Info().Msg("AssetGuard stopped")
}
