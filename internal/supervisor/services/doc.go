// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

/*
Package services provides suture.Service wrappers for the gateway's
long-running components.

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

and identifies itself via fmt.Stringer for supervision logs.

# Available services

HTTP Server (HTTPServerService):
  - Wraps *http.Server, translating ListenAndServe into Serve
  - Graceful shutdown with a configurable drain timeout
  - http.ErrServerClosed maps to a clean stop

Refresh Runner (RefreshRunnerService):
  - Wraps the task runner draining the async refresh queue
  - The runner's own Serve blocks on the context; the wrapper adds
    naming and lifecycle logging

Nonce Sweeper (NonceSweeperService):
  - Periodically expires replay-protection nonces from the ledger
  - The only sweep loop in the process; the ledger itself spawns no
    goroutines

Store GC (StoreGCService):
  - Runs Badger value-log garbage collection on a cadence
  - Badger reclaims no value-log space without it

Audit Retention (AuditRetentionService):
  - Deletes audit events past the configured retention
  - Runs one pass at startup, then on the cleanup interval

# Error handling

Return values determine supervisor behavior: nil stops the service for
good, an error triggers a supervised restart with backoff, and ctx.Err()
after cancellation is normal termination. The periodic loops log and
absorb per-pass failures instead of returning them; a failing sweep is
retried on the next tick, and a restart would change nothing.
*/
package services
