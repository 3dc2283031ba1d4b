// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ordercast/recgate/internal/auth"
	"github.com/ordercast/recgate/internal/authz"
	"github.com/ordercast/recgate/internal/middleware"
)

// Router wires handlers and middleware into the chi route tree.
type Router struct {
	handler       *Handler
	middleware    *auth.Middleware
	authzMW       *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates the router. authzMW may be nil when no ops users
// are configured; the ops group then stays behind OpsAuthenticate
// alone, which rejects everything without a JWT manager.
func NewRouter(handler *Handler, authMW *auth.Middleware, authzMW *authz.Middleware, chiMW *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		middleware:    authMW,
		authzMW:       authzMW,
		chiMiddleware: chiMW,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	// CORS is global so OPTIONS preflights resolve before auth.
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed", nil)
	})

	// Open endpoints: banner and health, permissively rate limited.
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/", router.handler.Banner)
		r.Get("/health", router.handler.Health)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Operator login, strictly rate limited against credential
	// stuffing.
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitLogin())
		r.Use(SecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Post("/login", router.handler.Login)
	})

	// Envelope-gated order surface. The gateway's own per-IP limiter
	// runs before envelope verification so floods are cut without
	// paying for decryption.
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(SecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(router.middleware.RateLimit))
		r.Use(chiMiddleware(router.middleware.Authenticate))

		r.Post("/submit", router.handler.SubmitOrder)
		r.Delete("/delete/{orderId}", router.handler.DeleteOrder)
		r.Delete("/cache/{userId}", router.handler.DeleteUserCache)
		r.Get("/recommendations/{userId}", router.handler.Recommendations)
		r.Get("/recommend-async/{userId}", router.handler.RecommendAsync)
		r.Get("/task-status/{userId}/{taskId}", router.handler.TaskStatus)
	})

	// Operator surface: Bearer JWT, then casbin role enforcement.
	// Compression serves the audit export endpoint.
	r.Route("/api/ops", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))
		r.Use(chiMiddleware(router.middleware.OpsAuthenticate))
		if router.authzMW != nil {
			r.Use(chiMiddleware(router.authzMW.AuthorizeRequest))
		}

		r.Get("/stats", router.handler.OpsStats)
		r.Get("/authz", router.handler.OpsAuthz)
		r.Get("/audit/events", router.handler.AuditEvents)
		r.Get("/audit/export", router.handler.AuditExport)
		r.Get("/mappings/{orderId}", router.handler.OpsMapping)
		r.Delete("/cache/{userId}", router.handler.OpsDeleteCache)
	})

	return r
}
