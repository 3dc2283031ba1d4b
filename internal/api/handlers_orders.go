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
	"github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/recommend"
)

// bidirectionalMapping echoes both directions of the order<->user
// index for the submitted order's owner.
type bidirectionalMapping struct {
	OrderIDToUser map[string]string   `json:"orderIdToUser"`
	UserToOrders  map[string][]string `json:"userToOrders"`
}

// submitResponse is the POST /api/orders/submit body. Field names are
// camelCase to match the order payload itself.
type submitResponse struct {
	Status               string               `json:"status"`
	Message              string               `json:"message"`
	UserID               string               `json:"userId"`
	OrderID              string               `json:"orderId"`
	TaskNumber           string               `json:"taskNumber"`
	BidirectionalMapping bidirectionalMapping `json:"bidirectionalMapping"`
}

// SubmitOrder handles POST /api/orders/submit.
//
// Validates the order payload, computes recommendations through the
// engine client, records the order->user mapping, and rewrites both of
// the owner's pools. An unavailable engine degrades to empty pools
// rather than failing the submission.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var order recommend.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", err)
		return
	}
	if apiErr := validateRequest(&order); apiErr != nil {
		respondValidationError(w, r, apiErr.Message, apiErr.Details)
		return
	}

	items, err := h.source.Recommend(ctx, order.UserID, &order)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("user_id", sanitizeLogValue(order.UserID)).
			Msg("Engine compute failed, caching empty pools")
		items = nil
	}

	if err := h.manager.Submit(ctx, order.ID, order.UserID, items); err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"failed to record submission", err)
		return
	}

	if h.audit != nil {
		h.audit.LogOrderSubmitted(ctx, callerActor(r), audit.SourceFromRequest(r),
			order.ID, order.UserID, len(items))
	}

	orders, err := h.manager.Mapping().LookupOrders(ctx, order.UserID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Mapping echo lookup failed")
		orders = []string{order.ID}
	}

	writeJSON(w, http.StatusOK, &submitResponse{
		Status:     "success",
		Message:    "order submitted; recommendation pools rewritten",
		UserID:     order.UserID,
		OrderID:    order.ID,
		TaskNumber: order.TaskNumber,
		BidirectionalMapping: bidirectionalMapping{
			OrderIDToUser: map[string]string{order.ID: order.UserID},
			UserToOrders:  map[string][]string{order.UserID: orders},
		},
	})
}

// deleteOrderResponse is the DELETE /api/orders/delete/{orderId} body.
type deleteOrderResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	OrderID       string `json:"order_id"`
	AffectedUsers int    `json:"affected_users"`
	DeletedAt     string `json:"deleted_at"`
	Note          string `json:"note"`
}

// DeleteOrder handles DELETE /api/orders/delete/{orderId}.
//
// Resolves the order's owner through the mapping index and invalidates
// every pool still holding the order, then removes the mapping entry.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
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

	affected, err := h.manager.InvalidateOrder(ctx, orderID)
	if err != nil && !errors.Is(err, recommend.ErrOrderNotMapped) {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"order invalidation failed", err)
		return
	}

	if h.audit != nil {
		h.audit.LogOrderInvalidated(ctx, callerActor(r), audit.SourceFromRequest(r),
			orderID, owner, affected)
	}

	writeJSON(w, http.StatusOK, &deleteOrderResponse{
		Status:        "success",
		Message:       "order deleted",
		OrderID:       orderID,
		AffectedUsers: affected,
		DeletedAt:     time.Now().UTC().Format(time.RFC3339),
		Note:          "cascade invalidated the recommendation pools of every user holding this order",
	})
}

// deleteUserCacheResponse is the DELETE /api/orders/cache/{userId} body.
type deleteUserCacheResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// DeleteUserCache handles DELETE /api/orders/cache/{userId}. Drops
// both of the user's pools; the mapping index is left intact so later
// submissions keep cascading correctly.
func (h *Handler) DeleteUserCache(w http.ResponseWriter, r *http.Request) {
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
		h.audit.LogUserInvalidated(ctx, callerActor(r), audit.SourceFromRequest(r), userID)
	}

	writeJSON(w, http.StatusOK, &deleteUserCacheResponse{
		Status:  "success",
		Message: "user cache cleared",
		UserID:  userID,
	})
}

// recommendationsResponse is the GET /api/orders/recommendations body.
// CacheState distinguishes a hit from expired and absent pools; the
// latter two come back with an empty item list.
type recommendationsResponse struct {
	Status     string           `json:"status"`
	UserID     string           `json:"user_id"`
	Pool       string           `json:"pool"`
	CacheState string           `json:"cache_state"`
	Count      int              `json:"count"`
	Items      []recommend.Item `json:"items"`
}

// Recommendations handles GET /api/orders/recommendations/{userId}.
//
// Query parameters:
//   - pool: normal (default) or promotional
//   - refresh: "true" recomputes through the engine before reading
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userId")
	if userID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "user ID is required", nil)
		return
	}

	pool := r.URL.Query().Get("pool")
	if pool == "" {
		pool = string(recommend.PoolNormal)
	}
	kind := recommend.PoolKind(pool)
	if !kind.Valid() {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest,
			"pool must be normal or promotional", nil)
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		items, err := h.source.Recommend(ctx, userID, nil)
		if err != nil {
			if errors.Is(err, recommend.ErrEngineUnavailable) {
				respondError(w, r, http.StatusServiceUnavailable, ErrCodeExternalServiceFail,
					"recommendation engine unavailable", err)
				return
			}
			respondError(w, r, http.StatusBadGateway, ErrCodeExternalServiceFail,
				"recommendation engine request failed", err)
			return
		}
		if err := h.manager.WritePools(ctx, userID, items); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
				"pool rewrite failed", err)
			return
		}
	}

	items, result, err := h.manager.ReadPool(ctx, userID, kind)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"pool read failed", err)
		return
	}
	if items == nil {
		items = []recommend.Item{}
	}

	writeJSON(w, http.StatusOK, &recommendationsResponse{
		Status:     "success",
		UserID:     userID,
		Pool:       string(kind),
		CacheState: string(result),
		Count:      len(items),
		Items:      items,
	})
}

// RecommendAsync handles GET /api/orders/recommend-async/{userId}.
// Enqueues a background refresh and answers 202 with the pending task
// record; progress is visible via the task-status endpoint.
func (h *Handler) RecommendAsync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "user ID is required", nil)
		return
	}

	task, err := h.queue.Enqueue(r.Context(), userID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"failed to enqueue refresh task", err)
		return
	}

	writeJSON(w, http.StatusAccepted, task)
}

// TaskStatus handles GET /api/orders/task-status/{userId}/{taskId}.
// Unknown task IDs and tasks belonging to a different user both
// answer 404; task records expire out of the tracker on their own.
func (h *Handler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	taskID := chi.URLParam(r, "taskId")
	if userID == "" || taskID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest,
			"user ID and task ID are required", nil)
		return
	}

	task, ok := h.tracker.Get(taskID)
	if !ok || task.UserID != userID {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "task not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, task)
}
