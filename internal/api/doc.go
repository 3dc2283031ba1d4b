// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package api provides the HTTP surface of the gateway: route wiring
// on chi, the request handlers, and the Chi-compatible middleware
// factories (CORS, per-group rate limits).
//
// The surface splits into three groups:
//
//	Open                        /, /health, /metrics, POST /api/auth/login
//	Envelope-gated   /api/orders  submit, delete, cache invalidation,
//	                              pool reads, async refresh, task status
//	Operator         /api/ops     stats, audit trail, mapping lookups,
//	                              cache administration
//
// The open group carries no authentication beyond rate limiting. The
// orders group sits behind the encrypted-envelope authenticator
// (auth.Middleware.Authenticate): every request must present a valid
// x-encrypt-key header or it is rejected before any handler runs. The
// ops group requires a Bearer JWT from POST /api/auth/login
// (auth.Middleware.OpsAuthenticate) followed by Casbin role
// enforcement (authz.Middleware.AuthorizeRequest): viewers read,
// admins also write and delete.
//
// Middleware stack, outermost first:
//
//	middleware.RequestID        X-Request-ID in and out, logging context
//	chimiddleware.RealIP        client IP from proxy headers
//	chimiddleware.Recoverer     panic -> 500
//	cors.Handler                global, handles OPTIONS preflight
//	  per group:
//	  httprate / auth.RateLimit rate limits (strict on login)
//	  middleware.PrometheusMetrics
//	  middleware.Compression    ops group only, for audit exports
//	  auth / authz middlewares  as above
//
// Response conventions follow the services this gateway fronts:
// submit echoes camelCase field names, the invalidation and ops
// endpoints use snake_case. Handlers write bespoke response structs
// per operation instead of one shared envelope; respondError provides
// the uniform error shape.
package api
