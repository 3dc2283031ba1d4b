// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/logging"
)

// exportLimit caps one audit export run.
const exportLimit = 10000

// auditFilterFromQuery builds a query filter from the shared request
// parameters: event_type (repeatable), outcome (repeatable),
// caller_id, since and until (RFC 3339).
func (h *Handler) auditFilterFromQuery(r *http.Request) audit.QueryFilter {
	filter := audit.DefaultQueryFilter()
	q := r.URL.Query()

	for _, t := range q["event_type"] {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	for _, o := range q["outcome"] {
		filter.Outcomes = append(filter.Outcomes, audit.Outcome(o))
	}

	if v := q.Get("caller_id"); v != "" {
		filter.ActorID = v
	}

	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = &t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = &t
		}
	}

	return filter
}

// AuditEvents handles GET /api/ops/audit/events. Paginated view of
// the security audit trail; newest first.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.audit == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"audit trail is not configured", nil)
		return
	}

	filter := h.auditFilterFromQuery(r)

	maxPage := h.cfg.API.MaxPageSize
	if maxPage <= 0 {
		maxPage = 1000
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if filter.Limit > maxPage {
		filter.Limit = maxPage
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	events, err := h.audit.Query(ctx, filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"failed to fetch audit events", err)
		return
	}

	total, err := h.audit.Count(ctx, filter)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Audit event count failed")
		total = int64(len(events))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// AuditExport handles GET /api/ops/audit/export. Streams the filtered
// trail as a JSON or CEF attachment; the ops group's compression
// middleware keeps large pulls reasonable on the wire.
func (h *Handler) AuditExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.audit == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"audit trail is not configured", nil)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	filter := h.auditFilterFromQuery(r)
	filter.Limit = exportLimit
	filter.Offset = 0

	events, err := h.audit.Query(ctx, filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"failed to query events for export", err)
		return
	}

	var data []byte
	var contentType string
	var filename string

	switch format {
	case "cef":
		exporter := audit.NewCEFExporter()
		data, err = exporter.Export(events)
		contentType = "text/plain"
		filename = "audit-events.cef"
	case "json":
		exporter := &audit.JSONExporter{}
		data, err = exporter.Export(events)
		contentType = "application/json"
		filename = "audit-events.json"
	default:
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest,
			"format must be json or cef", nil)
		return
	}

	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"failed to export events", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Audit export write failed")
	}
}
