// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/auth"
	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/recommend"
)

// taskCacheStats is the task-status cache census inside the ops stats
// body.
type taskCacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	TotalKeys int64   `json:"total_keys"`
	HitRate   float64 `json:"hit_rate"`
}

// sizeStats wraps a bare element count.
type sizeStats struct {
	Size int `json:"size"`
}

// opsStatsResponse is the GET /api/ops/stats body.
type opsStatsResponse struct {
	Status        string              `json:"status"`
	Pools         recommend.PoolStats `json:"pools"`
	Tasks         taskCacheStats      `json:"tasks"`
	NonceLedger   sizeStats           `json:"nonce_ledger"`
	Mapping       sizeStats           `json:"mapping"`
	UptimeSeconds float64             `json:"uptime_seconds"`
}

// OpsStats handles GET /api/ops/stats. A point-in-time census of the
// pool store, the task cache, the nonce ledger, and the mapping index.
func (h *Handler) OpsStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	poolStats, err := h.manager.PoolStats(ctx)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"pool store stats failed", err)
		return
	}

	ledgerSize, err := h.ledger.Size(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Nonce ledger size failed")
		ledgerSize = -1
	}

	mappingSize, err := h.manager.Mapping().Size(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Mapping size failed")
		mappingSize = -1
	}

	cacheStats := h.taskCache.GetStats()

	writeJSON(w, http.StatusOK, &opsStatsResponse{
		Status: "success",
		Pools:  poolStats,
		Tasks: taskCacheStats{
			Hits:      cacheStats.Hits,
			Misses:    cacheStats.Misses,
			Evictions: cacheStats.Evictions,
			TotalKeys: cacheStats.TotalKeys,
			HitRate:   h.taskCache.HitRate(),
		},
		NonceLedger:   sizeStats{Size: ledgerSize},
		Mapping:       sizeStats{Size: mappingSize},
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// opsMappingResponse is the GET /api/ops/mappings/{orderId} body: the
// order's owner and the owner's full order set.
type opsMappingResponse struct {
	Status  string   `json:"status"`
	OrderID string   `json:"order_id"`
	UserID  string   `json:"user_id"`
	Orders  []string `json:"orders"`
	Count   int      `json:"count"`
}

// OpsMapping handles GET /api/ops/mappings/{orderId}.
func (h *Handler) OpsMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "order ID is required", nil)
		return
	}

	owner, err := h.manager.Mapping().LookupUser(ctx, orderID)
	if err != nil {
		if errors.Is(err, recommend.ErrOrderNotMapped) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound,
				"no user mapping for order", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"mapping lookup failed", err)
		return
	}

	orders, err := h.manager.Mapping().LookupOrders(ctx, owner)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"order set lookup failed", err)
		return
	}
	if orders == nil {
		orders = []string{}
	}

	writeJSON(w, http.StatusOK, &opsMappingResponse{
		Status:  "success",
		OrderID: orderID,
		UserID:  owner,
		Orders:  orders,
		Count:   len(orders),
	})
}

// OpsDeleteCache handles DELETE /api/ops/cache/{userId}. Same cache
// drop as the envelope-gated endpoint, but actor-attributed to the
// logged-in operator. The DELETE verb maps to the casbin delete
// action, so only admins reach this handler.
func (h *Handler) OpsDeleteCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userId")
	if userID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "user ID is required", nil)
		return
	}

	if err := h.manager.InvalidateUser(ctx, userID); err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"user invalidation failed", err)
		return
	}

	if h.audit != nil {
		h.audit.LogUserInvalidated(ctx, operatorActor(r), audit.SourceFromRequest(r), userID)
	}

	writeJSON(w, http.StatusOK, &deleteUserCacheResponse{
		Status:  "success",
		Message: "user cache cleared",
		UserID:  userID,
	})
}

// opsAuthzResponse is the GET /api/ops/authz body: the effective
// policy, role assignments, and the caller's own roles.
type opsAuthzResponse struct {
	Status          string     `json:"status"`
	Policies        [][]string `json:"policies"`
	RoleAssignments [][]string `json:"role_assignments"`
	Caller          authzWho   `json:"caller"`
}

type authzWho struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// OpsAuthz handles GET /api/ops/authz. Read-only visibility into the
// loaded casbin policy, mainly for debugging role grants without
// shelling into the container.
func (h *Handler) OpsAuthz(w http.ResponseWriter, r *http.Request) {
	if h.enforcer == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"authorization is not configured", nil)
		return
	}

	who := authzWho{Roles: []string{}}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		who.Username = claims.Username
		if roles, err := h.enforcer.GetRolesForUser(claims.Username); err == nil && roles != nil {
			who.Roles = roles
		}
	}

	writeJSON(w, http.StatusOK, &opsAuthzResponse{
		Status:          "success",
		Policies:        h.enforcer.GetPolicy(),
		RoleAssignments: h.enforcer.GetGroupingPolicy(),
		Caller:          who,
	})
}
