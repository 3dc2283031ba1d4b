// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package metrics defines the Prometheus collectors for Recgate.
//
// All collectors are registered with the default registry via promauto at
// package load, and exposed on GET /metrics by the API router. Helper
// functions wrap the label plumbing so call sites stay one-line.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthRequests counts envelope authentication attempts by outcome
	// ("accepted" or "rejected").
	AuthRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Envelope authentication attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AuthRejections counts rejected authentications by internal reason.
	// The reason label is for operators only; remote callers always see
	// the same generic response.
	AuthRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "auth",
			Name:      "rejections_total",
			Help:      "Rejected envelope authentications by reason",
		},
		[]string{"reason"},
	)

	// NonceOperations counts nonce ledger operations by operation and outcome.
	NonceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "nonce",
			Name:      "operations_total",
			Help:      "Nonce ledger operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// NonceReplays counts replayed nonces caught by the ledger.
	NonceReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "nonce",
			Name:      "replays_detected_total",
			Help:      "Replayed nonces rejected by the ledger",
		},
	)

	// NonceLedgerSize tracks the number of live entries in the nonce ledger.
	NonceLedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recgate",
			Subsystem: "nonce",
			Name:      "ledger_size",
			Help:      "Live entries in the nonce ledger",
		},
	)

	// NonceSwept counts expired nonce entries removed by the sweeper.
	NonceSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "nonce",
			Name:      "swept_total",
			Help:      "Expired nonce entries removed by the sweeper",
		},
	)

	// PoolWrites counts recommendation pool writes by pool kind.
	PoolWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "pools",
			Name:      "writes_total",
			Help:      "Recommendation pool writes by pool kind",
		},
		[]string{"pool"},
	)

	// PoolReads counts pool reads by pool kind and result
	// ("hit", "expired", "absent").
	PoolReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "pools",
			Name:      "reads_total",
			Help:      "Recommendation pool reads by pool kind and result",
		},
		[]string{"pool", "result"},
	)

	// CascadeInvalidations counts order deletions that cascaded into pool
	// rewrites, by whether a mapped owner was found.
	CascadeInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "pools",
			Name:      "cascade_invalidations_total",
			Help:      "Order cascade invalidations by result (mapped or unmapped)",
		},
		[]string{"result"},
	)

	// MappingSize tracks the number of orders currently in the mapping index.
	MappingSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recgate",
			Subsystem: "mapping",
			Name:      "orders",
			Help:      "Orders currently tracked by the mapping index",
		},
	)

	// RefreshTasks counts async recommendation refresh tasks by terminal state.
	RefreshTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "tasks",
			Name:      "refresh_total",
			Help:      "Async refresh tasks by terminal state",
		},
		[]string{"state"},
	)

	// EngineRequests counts calls to the external recommendation engine by
	// outcome ("ok", "error", "breaker_open").
	EngineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "External recommendation engine calls by outcome",
		},
		[]string{"outcome"},
	)

	// HTTPRequests counts HTTP requests by method, route pattern and status class.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status class",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes HTTP request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route"},
	)

	// AuditEventsDropped counts audit events discarded because the buffer
	// was full.
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "audit",
			Name:      "events_dropped_total",
			Help:      "Audit events dropped due to a full buffer",
		},
	)

	// AuthzDecisions counts operator authorization checks by outcome
	// ("allowed" or "denied").
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recgate",
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Operator authorization checks by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordAuthOutcome records one authentication attempt. reason is ignored
// for accepted requests.
func RecordAuthOutcome(accepted bool, reason string) {
	if accepted {
		AuthRequests.WithLabelValues("accepted").Inc()
		return
	}
	AuthRequests.WithLabelValues("rejected").Inc()
	AuthRejections.WithLabelValues(reason).Inc()
}

// RecordNonceOperation records one ledger operation.
func RecordNonceOperation(operation, outcome string) {
	NonceOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordPoolRead records one pool read with its result.
func RecordPoolRead(pool, result string) {
	PoolReads.WithLabelValues(pool, result).Inc()
}

// RecordPoolWrite records one pool write.
func RecordPoolWrite(pool string) {
	PoolWrites.WithLabelValues(pool).Inc()
}

// RecordCascade records one invalidateOrder call; mapped reports whether an
// owning user was found.
func RecordCascade(mapped bool) {
	if mapped {
		CascadeInvalidations.WithLabelValues("mapped").Inc()
		return
	}
	CascadeInvalidations.WithLabelValues("unmapped").Inc()
}

// RecordRefreshTask records a refresh task reaching a terminal state.
func RecordRefreshTask(state string) {
	RefreshTasks.WithLabelValues(state).Inc()
}

// RecordEngineRequest records one external engine call outcome.
func RecordEngineRequest(outcome string) {
	EngineRequests.WithLabelValues(outcome).Inc()
}

// RecordAuthzDecision records one operator authorization check.
func RecordAuthzDecision(allowed bool) {
	if allowed {
		AuthzDecisions.WithLabelValues("allowed").Inc()
		return
	}
	AuthzDecisions.WithLabelValues("denied").Inc()
}

// RecordHTTPRequest records one served HTTP request. route should be a
// route pattern, not a raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route, statusClass string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, statusClass).Inc()
	HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}
