// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ordercast/recgate/internal/logging"
)

// RequestID tags each request with a unique id, honoring an
// X-Request-ID set by an upstream proxy. The id is echoed in the
// response header and stored in the request context, where the logger,
// the auth decision sink, and the audit trail all pick it up, so one id
// ties a request's log lines and audit rows together.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next(w, r.WithContext(ctx))
	}
}
