// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package authz provides authorization for the operator API using
// Casbin.
//
// The gateway surface authenticates backend services by envelope and
// needs no roles; this package only governs the human operator surface
// under /api/ops. Operators authenticate with a JWT (internal/auth)
// and the middleware here decides what their role may touch:
//
//	Request -> auth.OpsAuthenticate -> authz.Middleware -> Handler
//	                 |                       |
//	            JWT claims             Enforce (Casbin)
//
// # RBAC Model
//
// The embedded model is Casbin RBAC with path matching:
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act
//
//	[role_definition]
//	g = _, _
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && r.act == p.act
//
// # Policy
//
// The embedded policy defines two roles. Admins hold read, write and
// delete on the whole ops surface; viewers hold read only:
//
//	p, admin, /api/ops/*, read
//	p, admin, /api/ops/*, write
//	p, admin, /api/ops/*, delete
//	p, viewer, /api/ops/*, read
//
// Role assignments are not part of the embedded policy. They are added
// at startup from the configured ops users, so the account list in the
// YAML config stays the single source of operator identity. A
// file-backed policy (AUTHZ_POLICY_PATH) replaces the embedded one
// entirely and may carry its own assignments.
//
// # Usage
//
//	enforcer, err := authz.NewEnforcer(authz.EnforcerConfigFrom(cfg.Authz))
//	if err != nil {
//	    return err
//	}
//	defer enforcer.Close()
//
//	for _, u := range cfg.Security.OpsUsers {
//	    if err := enforcer.AddGroupingPolicy(u.Username, u.Role); err != nil {
//	        return err
//	    }
//	}
//
//	mw := authz.NewMiddleware(enforcer, auditLogger)
//	mux.Get("/api/ops/stats", mw.Authorize("/api/ops/stats", "read", statsHandler))
//
// Decisions are cached per subject, object and action for the
// configured TTL; role changes invalidate the affected subject's
// entries. Denials are recorded in the audit trail.
package authz
