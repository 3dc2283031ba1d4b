// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package api

import (
	"net/http"
	"time"

	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/auth"
	"github.com/ordercast/recgate/internal/authz"
	"github.com/ordercast/recgate/internal/cache"
	"github.com/ordercast/recgate/internal/config"
	"github.com/ordercast/recgate/internal/recommend"
	"github.com/ordercast/recgate/internal/tasks"
	"github.com/ordercast/recgate/internal/validation"
)

const (
	serviceName    = "recgate"
	serviceVersion = "1.0.0"
)

// Handler carries the dependencies the request handlers need.
//
// Handler methods are split across files by surface:
//   - handlers_core.go: banner, health, operator login
//   - handlers_orders.go: envelope-gated order and pool operations
//   - handlers_ops.go: operator stats, mapping lookups, cache admin
//   - handlers_audit.go: operator audit trail query and export
type Handler struct {
	cfg       *config.Config
	manager   *recommend.Manager
	source    recommend.Source
	queue     *tasks.Queue
	tracker   *tasks.Tracker
	taskCache *cache.Cache
	ledger    auth.NonceLedger
	users     *auth.OpsUserStore
	jwt       *auth.JWTManager
	enforcer  *authz.Enforcer
	audit     *audit.Logger
	startTime time.Time
}

// NewHandler creates the API handler. users, jwtManager, enforcer and
// auditLog may be nil when the matching surface is not configured;
// the affected endpoints then answer 503.
func NewHandler(
	cfg *config.Config,
	manager *recommend.Manager,
	source recommend.Source,
	queue *tasks.Queue,
	tracker *tasks.Tracker,
	taskCache *cache.Cache,
	ledger auth.NonceLedger,
	users *auth.OpsUserStore,
	jwtManager *auth.JWTManager,
	enforcer *authz.Enforcer,
	auditLog *audit.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		manager:   manager,
		source:    source,
		queue:     queue,
		tracker:   tracker,
		taskCache: taskCache,
		ledger:    ledger,
		users:     users,
		jwt:       jwtManager,
		enforcer:  enforcer,
		audit:     auditLog,
		startTime: time.Now(),
	}
}

// validateRequest runs struct validation and converts failures to the
// API error format. Returns nil when the value passes.
func validateRequest(v interface{}) *validation.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	return validationErr.ToAPIError()
}

// callerActor resolves the audit actor for an envelope-authenticated
// request: the allow-list caller ID when one matched, the envelope
// user otherwise.
func callerActor(r *http.Request) audit.Actor {
	if caller, ok := auth.CallerFromContext(r.Context()); ok && caller != "" {
		return audit.CallerActor(caller)
	}
	if env, ok := auth.EnvelopeFromContext(r.Context()); ok && env.UserID != "" {
		return audit.CallerActor(env.UserID)
	}
	return audit.CallerActor("unknown")
}

// operatorActor resolves the audit actor for a JWT-authenticated ops
// request.
func operatorActor(r *http.Request) audit.Actor {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return audit.OperatorActor(claims.Username)
	}
	return audit.SystemActor()
}
