// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package middleware provides HTTP middleware shared by every surface
// of the server: request id propagation, Prometheus instrumentation,
// and response compression.
//
// Middlewares here follow the http.HandlerFunc chaining style used by
// internal/auth; the API router adapts them onto chi with a one-line
// wrapper. Authentication and authorization middlewares live with
// their packages (internal/auth, internal/authz), not here.
package middleware
