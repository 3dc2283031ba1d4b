// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/logging"
)

// Error codes used in error responses.
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeValidationFailed    = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeLoginFailed         = "LOGIN_FAILED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeExternalServiceFail = "EXTERNAL_SERVICE_FAILED"
)

// errorBody is the uniform error response shape for handler-level
// failures. The auth middlewares write their own 401/403 bodies; this
// covers everything after them.
type errorBody struct {
	Status    string      `json:"status"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// writeJSON encodes data as JSON and writes it with the given status.
// Encode errors are logged, not surfaced; headers are already sent.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError sends the uniform error body. err is logged but never
// echoed to the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Str("code", sanitizeLogValue(code)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}

	writeJSON(w, status, &errorBody{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}

// respondValidationError sends a 400 carrying the field-level details
// from the validation layer.
func respondValidationError(w http.ResponseWriter, r *http.Request, message string, details interface{}) {
	writeJSON(w, http.StatusBadRequest, &errorBody{
		Status:    "error",
		Code:      ErrCodeValidationFailed,
		Message:   message,
		Details:   details,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}

// sanitizeLogValue strips control characters so attacker-supplied
// strings cannot forge log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
