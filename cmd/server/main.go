// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package main is the entry point for the recgate server.
//
// Recgate is a backend-to-backend request security gateway fronting an
// order recommendation cache. Callers authenticate every request with
// an encrypted envelope header; authenticated traffic reads and
// invalidates per-user recommendation pools kept warm by an async
// refresh pipeline against the upstream recommendation engine.
//
// # Application Architecture
//
// Components start under a Suture v4 supervision tree:
//
//	RootSupervisor ("recgate")
//	├── DataSupervisor ("data-layer")
//	│   ├── Badger value-log GC (persistent store only)
//	│   └── Audit retention sweep (when audit is enabled)
//	├── WorkerSupervisor ("worker-layer")
//	│   ├── Refresh runner (async pool refresh workers)
//	│   └── Nonce sweeper (replay ledger expiry)
//	└── APISupervisor ("api-layer")
//	    └── HTTP server (graceful drain on shutdown)
//
// Initialization order before the tree starts:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML, env)
//  2. Badger store: nonce ledger, order-user mapping, recommendation pools
//  3. Audit trail: embedded DuckDB with async writer (optional)
//  4. Envelope authentication: AES codec, caller allow-list, replay ledger
//  5. Operator surface: bcrypt accounts, JWT manager, Casbin RBAC (optional)
//  6. Recommendation pipeline: engine client, pool manager, task queue
//  7. HTTP router: chi route tree with per-surface middleware
//
// # Configuration
//
// All settings load through Koanf v2 (highest priority wins):
// environment variables, then an optional config.yaml, then built-in
// defaults. ENCRYPT_KEY is the only required setting; see the config
// package for the full variable list.
//
// Minimal production run:
//
//	export ENCRYPT_KEY=0123456789abcdef0123456789abcdef
//	export ENGINE_URL=http://recommend-engine:9000
//	export STORE_PATH=/data/recgate
//	./recgate
//
// Development without persistence or an engine:
//
//	export ENCRYPT_KEY=0123456789abcdef
//	export STORE_IN_MEMORY=true
//	./recgate
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and drains in-flight requests within
// SHUTDOWN_TIMEOUT, workers finish their current task, and the stores
// close after the tree has stopped.
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

	"github.com/ordercast/recgate/internal/api"
	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/auth"
	"github.com/ordercast/recgate/internal/authz"
	"github.com/ordercast/recgate/internal/cache"
	"github.com/ordercast/recgate/internal/config"
	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/recommend"
	"github.com/ordercast/recgate/internal/store"
	"github.com/ordercast/recgate/internal/supervisor"
	"github.com/ordercast/recgate/internal/supervisor/services"
	"github.com/ordercast/recgate/internal/tasks"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Config errors surface through the default logger; Init needs
		// the config that just failed to load.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Bool("store_in_memory", cfg.Store.InMemory).
		Bool("engine_enabled", cfg.Engine.URL != "").
		Bool("audit_enabled", cfg.Audit.Enabled).
		Msg("Starting recgate")

	// Badger backs the nonce ledger, the order-user mapping, and the
	// recommendation pools. In-memory mode keeps the same code paths
	// without touching disk.
	db, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Str("path", cfg.Store.Path).Bool("in_memory", cfg.Store.InMemory).Msg("Store opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Audit trail in an embedded DuckDB. Failure to open degrades to
	// no audit trail rather than refusing to start; the gateway keeps
	// protecting traffic either way.
	var auditLogger *audit.Logger
	if cfg.Audit.Enabled {
		auditDB, err := store.OpenDuckDB(cfg.Audit.DBPath)
		if err != nil {
			logging.Warn().Err(err).Str("path", cfg.Audit.DBPath).Msg("Failed to open audit database - audit trail disabled")
		} else {
			defer func() {
				if err := auditDB.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing audit database")
				}
			}()

			auditStore := audit.NewDuckDBStore(auditDB)
			if err := auditStore.CreateTable(ctx); err != nil {
				logging.Warn().Err(err).Msg("Failed to create audit events table - audit trail disabled")
			} else {
				auditLogger = audit.NewLogger(auditStore, &audit.Config{
					Enabled:       true,
					RetentionDays: cfg.Audit.RetentionDays,
					BufferSize:    cfg.Audit.BufferSize,
				})
				defer func() {
					if err := auditLogger.Close(); err != nil {
						logging.Error().Err(err).Msg("Error closing audit logger")
					}
				}()
				logging.Info().
					Str("path", cfg.Audit.DBPath).
					Int("retention_days", cfg.Audit.RetentionDays).
					Msg("Audit trail initialized")
			}
		}
	} else {
		logging.Info().Msg("Audit trail disabled (AUDIT_ENABLED=false)")
	}

	// Envelope authentication: AES codec, replay ledger, optional
	// caller allow-list.
	codec, err := auth.NewEnvelopeCodec([]byte(cfg.Security.EncryptKey), []byte(cfg.Security.SignKey))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize envelope codec")
	}

	var ledger auth.NonceLedger
	if cfg.Store.InMemory {
		// Development profile: capped in-process ledger, nothing to
		// replay across a restart anyway.
		ledger = auth.NewMemoryNonceLedger(cfg.Security.NonceCapacity)
	} else {
		// Nonces survive restarts so a replay inside the freshness
		// window cannot slip through a reboot.
		ledger = auth.NewBadgerNonceLedger(db, "")
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing nonce ledger")
		}
	}()

	var registry *auth.CallerRegistry
	if len(cfg.Security.Callers) > 0 {
		creds := make([]auth.CallerCredential, 0, len(cfg.Security.Callers))
		for _, c := range cfg.Security.Callers {
			creds = append(creds, auth.CallerCredential{ID: c.ID, Token: c.Token})
		}
		registry = auth.NewCallerRegistry(creds)
		logging.Info().Int("callers", len(creds)).Msg("Caller allow-list enabled")
	} else {
		logging.Info().Msg("Caller allow-list disabled - any authenticated caller is admitted")
	}

	authenticator := auth.NewAuthenticator(codec, ledger, registry, auth.AuthenticatorConfig{
		Tolerance:        time.Duration(cfg.Security.TimestampToleranceMs) * time.Millisecond,
		NonceTTL:         cfg.Security.NonceTTL,
		ExpectedPlatform: cfg.Security.ExpectedPlatform,
		VerifySignature:  cfg.Security.SignatureValidation,
		ReplayProtection: cfg.Security.ReplayProtection,
	})

	if !cfg.Security.SignatureValidation {
		logging.Warn().Msg("Envelope signature validation is DISABLED - envelopes are accepted unsigned")
	}
	if !cfg.Security.ReplayProtection {
		logging.Warn().Msg("Replay protection is DISABLED - repeated nonces are accepted")
	}

	// Operator surface: bcrypt accounts, JWT, Casbin RBAC. All nil
	// when no accounts are configured; the ops endpoints then answer
	// 503 instead of silently allowing access.
	var (
		users      *auth.OpsUserStore
		jwtManager *auth.JWTManager
		enforcer   *authz.Enforcer
	)
	if len(cfg.Security.OpsUsers) > 0 {
		users, err = auth.NewOpsUserStore(cfg.Security.OpsUsers)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to load operator accounts")
		}

		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}

		enforcer, err = authz.NewEnforcer(authz.EnforcerConfigFrom(cfg.Authz))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize authorization enforcer")
		}
		defer enforcer.Close()

		// Role assignments come from the account list, not the policy
		// file, so one YAML block fully describes an operator.
		for _, u := range cfg.Security.OpsUsers {
			if err := enforcer.AddGroupingPolicy(u.Username, u.Role); err != nil {
				logging.Fatal().Err(err).Str("username", u.Username).Msg("Failed to assign operator role")
			}
		}
		logging.Info().Int("operators", len(cfg.Security.OpsUsers)).Msg("Ops API enabled")
	} else {
		logging.Info().Msg("Ops API disabled - no operator accounts configured")
	}

	// Recommendation pipeline: engine client, dual pools with the
	// bidirectional order-user mapping, async refresh queue.
	var source recommend.Source
	if cfg.Engine.URL != "" {
		source = recommend.NewHTTPSource(cfg.Engine)
		logging.Info().Str("url", cfg.Engine.URL).Msg("Recommendation engine enabled")
	} else {
		source = recommend.NullSource{}
		logging.Warn().Msg("Recommendation engine disabled (ENGINE_URL empty) - pool refreshes write empty lists")
	}

	manager := recommend.NewManager(
		recommend.NewBadgerPoolStore(db),
		recommend.NewBadgerMappingIndex(db),
		cfg.Cache.PoolTTL,
	)

	taskCache := cache.New(cfg.Cache.TaskTTL, cfg.Cache.SweepInterval)
	defer taskCache.Stop()

	tracker := tasks.NewTracker(taskCache)
	queue := tasks.NewQueue(cfg.Tasks.BufferSize, tracker, logging.NewWatermillAdapter())
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing task queue")
		}
	}()
	runner := tasks.NewRunner(queue, tracker, source, manager, cfg.Tasks.Workers)

	// HTTP surface.
	var sink auth.DecisionSink
	if auditLogger != nil {
		sink = audit.NewAuthSink(auditLogger)
	}

	authMW := auth.NewMiddleware(authenticator, jwtManager, sink, auth.MiddlewareConfig{
		SkipPaths:         cfg.Security.SkipPaths,
		RateLimitReqs:     cfg.Security.RateLimitReqs,
		RateLimitWindow:   cfg.Security.RateLimitWindow,
		RateLimitDisabled: cfg.Security.RateLimitDisabled,
	})

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED")
	}

	var authzMW *authz.Middleware
	if enforcer != nil {
		authzMW = authz.NewMiddleware(enforcer, auditLogger)
	}

	handler := api.NewHandler(cfg, manager, source, queue, tracker, taskCache,
		ledger, users, jwtManager, enforcer, auditLogger)

	router := api.NewRouter(handler, authMW, authzMW, api.NewChiMiddlewareFromSecurity(cfg.Security))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree. sutureslog wants slog, so the zerolog global
	// goes through the bridge.
	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	zlog := logging.Logger()

	if !cfg.Store.InMemory {
		tree.AddDataService(services.NewStoreGCService(db, cfg.Store, zlog))
	}
	if auditLogger != nil {
		tree.AddDataService(services.NewAuditRetentionService(auditLogger, cfg.Audit.CleanupInterval, zlog))
	}

	tree.AddWorkerService(services.NewRefreshRunnerService(runner, zlog))
	tree.AddWorkerService(services.NewNonceSweeperService(ledger, cfg.Cache.SweepInterval, zlog))

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor closes the channel.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Recgate stopped gracefully")
}
