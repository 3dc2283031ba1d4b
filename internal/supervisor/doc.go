// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

/*
Package supervisor provides process supervision for the gateway using
suture v4.

The supervisor tree manages every long-running component with
Erlang/OTP-style supervision: crashed services restart automatically
with exponential backoff, and shutdown is orderly.

# Tree layout

Services are organized into three layers for failure isolation:

	RootSupervisor ("recgate")
	├── DataSupervisor ("data-layer")
	│   ├── StoreGCService (Badger value-log GC)
	│   └── AuditRetentionService (audit event expiry)
	├── WorkerSupervisor ("worker-layer")
	│   ├── RefreshRunnerService (async pool recomputation)
	│   └── NonceSweeperService (replay ledger expiry)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A wedged maintenance loop restarts inside the data layer while requests
keep flowing; an HTTP listener failure restarts the API layer without
losing queued refresh tasks.

# Usage

	slogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogger, supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	tree.AddDataService(services.NewStoreGCService(db, cfg.Store, logger))
	tree.AddWorkerService(services.NewRefreshRunnerService(runner, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

Supervision events (starts, failures, restarts) are logged through the
sutureslog adapter, which internal/logging bridges back onto the shared
zerolog stream so all output stays in one format.
*/
package supervisor
