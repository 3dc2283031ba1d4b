// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package authz

import (
	"net/http"

	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/auth"
	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/metrics"
)

// Middleware enforces RBAC on operator endpoints. Subjects come from
// the JWT claims placed in the request context by auth.OpsAuthenticate,
// so this middleware must run after it. Denials are written to the
// audit trail.
type Middleware struct {
	enforcer *Enforcer
	audit    *audit.Logger
}

// NewMiddleware creates a new authorization middleware. auditLog may be
// nil, in which case denials are only logged.
func NewMiddleware(enforcer *Enforcer, auditLog *audit.Logger) *Middleware {
	return &Middleware{
		enforcer: enforcer,
		audit:    auditLog,
	}
}

// Authorize enforces authorization for a specific object and action.
func (m *Middleware) Authorize(object, action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			auth.WriteForbidden(w)
			return
		}

		allowed, err := m.enforcer.EnforceWithRoles(claims.Username, rolesOf(claims), object, action)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		metrics.RecordAuthzDecision(allowed)
		if !allowed {
			m.recordDenial(r, claims.Username, object, action)
			auth.WriteForbidden(w)
			return
		}

		next(w, r)
	}
}

// AuthorizeRequest derives the action from the HTTP method and the
// object from the request path.
func (m *Middleware) AuthorizeRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			auth.WriteForbidden(w)
			return
		}

		action := methodToAction(r.Method)
		object := r.URL.Path

		allowed, err := m.enforcer.EnforceWithRoles(claims.Username, rolesOf(claims), object, action)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		metrics.RecordAuthzDecision(allowed)
		if !allowed {
			m.recordDenial(r, claims.Username, object, action)
			auth.WriteForbidden(w)
			return
		}

		next(w, r)
	}
}

// recordDenial writes a denied check to the log and the audit trail.
func (m *Middleware) recordDenial(r *http.Request, username, object, action string) {
	logging.Ctx(r.Context()).Warn().
		Str("operator", username).
		Str("object", object).
		Str("action", action).
		Msg("Operator authorization denied")

	if m.audit == nil {
		return
	}
	m.audit.LogAuthzDenied(r.Context(), audit.OperatorActor(username), audit.SourceFromRequest(r), object, action)
}

// rolesOf extracts the role list from operator claims.
func rolesOf(claims *auth.Claims) []string {
	if claims.Role == "" {
		return nil
	}
	return []string{claims.Role}
}

// methodToAction maps HTTP methods to policy actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
