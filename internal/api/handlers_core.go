// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/logging"
)

// bannerResponse is the GET / body.
type bannerResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Banner handles GET /. A plain liveness banner for humans and load
// balancers poking the root path.
func (h *Handler) Banner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &bannerResponse{
		Service: serviceName,
		Version: serviceVersion,
		Status:  "running",
		Message: "order recommendation gateway",
	})
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status        string            `json:"status"`
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// Health handles GET /health. Reports degraded (still 200) when a
// backing store stops answering; orchestrators decide what to do with
// that.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string, 3)
	status := "healthy"

	if _, err := h.manager.PoolStats(ctx); err != nil {
		checks["pool_store"] = "unreachable"
		status = "degraded"
	} else {
		checks["pool_store"] = "ok"
	}

	if _, err := h.ledger.Size(ctx); err != nil {
		checks["nonce_ledger"] = "unreachable"
		status = "degraded"
	} else {
		checks["nonce_ledger"] = "ok"
	}

	switch {
	case h.audit == nil || !h.audit.Enabled():
		checks["audit"] = "disabled"
	default:
		if _, err := h.audit.Stats(ctx); err != nil {
			checks["audit"] = "unreachable"
			status = "degraded"
		} else {
			checks["audit"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, &healthResponse{
		Status:        status,
		Service:       serviceName,
		Version:       serviceVersion,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Checks:        checks,
	})
}

// loginRequest is the POST /api/auth/login body.
type loginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// loginResponse is the successful login body.
type loginResponse struct {
	Status    string    `json:"status"`
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/auth/login. Verifies a configured operator
// credential and issues a Bearer token for the /api/ops surface. Every
// attempt lands in the audit trail.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.users == nil || h.users.Empty() || h.jwt == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"operator login is not configured", nil)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, r, apiErr.Message, apiErr.Details)
		return
	}

	source := audit.SourceFromRequest(r)

	role, err := h.users.Verify(req.Username, req.Password)
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Str("username", sanitizeLogValue(req.Username)).
			Msg("Operator login rejected")
		if h.audit != nil {
			h.audit.LogOpsLogin(r.Context(), req.Username, source, false, "invalid credentials")
		}
		respondError(w, r, http.StatusUnauthorized, ErrCodeLoginFailed, "invalid credentials", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, role)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"failed to issue token", err)
		return
	}

	if h.audit != nil {
		h.audit.LogOpsLogin(r.Context(), req.Username, source, true, "")
	}

	writeJSON(w, http.StatusOK, &loginResponse{
		Status:    "success",
		Token:     token,
		Role:      role,
		ExpiresAt: time.Now().Add(h.cfg.Security.JWTTTL),
	})
}
