// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// histogramSampleCount extracts the observation count from a histogram.
// testutil.ToFloat64 only handles counters and gauges.
func histogramSampleCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	h, ok := o.(prometheus.Histogram)
	if !ok {
		t.Fatalf("observer %T is not a histogram", o)
	}
	var m io_prometheus_client.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordAuthOutcome(t *testing.T) {
	before := testutil.ToFloat64(AuthRequests.WithLabelValues("accepted"))
	RecordAuthOutcome(true, "")
	after := testutil.ToFloat64(AuthRequests.WithLabelValues("accepted"))
	if after != before+1 {
		t.Errorf("accepted counter = %v, want %v", after, before+1)
	}

	rejBefore := testutil.ToFloat64(AuthRejections.WithLabelValues("replay"))
	RecordAuthOutcome(false, "replay")
	rejAfter := testutil.ToFloat64(AuthRejections.WithLabelValues("replay"))
	if rejAfter != rejBefore+1 {
		t.Errorf("rejection counter = %v, want %v", rejAfter, rejBefore+1)
	}
}

func TestRecordCascade(t *testing.T) {
	before := testutil.ToFloat64(CascadeInvalidations.WithLabelValues("unmapped"))
	RecordCascade(false)
	after := testutil.ToFloat64(CascadeInvalidations.WithLabelValues("unmapped"))
	if after != before+1 {
		t.Errorf("unmapped cascade counter = %v, want %v", after, before+1)
	}
}

func TestRecordPoolRead(t *testing.T) {
	before := testutil.ToFloat64(PoolReads.WithLabelValues("normal", "hit"))
	RecordPoolRead("normal", "hit")
	after := testutil.ToFloat64(PoolReads.WithLabelValues("normal", "hit"))
	if after != before+1 {
		t.Errorf("pool read counter = %v, want %v", after, before+1)
	}
}

func TestNonceLedgerSizeGauge(t *testing.T) {
	NonceLedgerSize.Set(42)
	if got := testutil.ToFloat64(NonceLedgerSize); got != 42 {
		t.Errorf("gauge = %v, want 42", got)
	}
	NonceLedgerSize.Set(0)
}

func TestRecordHTTPRequest(t *testing.T) {
	const route = "/api/orders/recommendations/{userId}"

	countBefore := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", route, "2xx"))
	samplesBefore := histogramSampleCount(t, HTTPDuration.WithLabelValues(route))

	RecordHTTPRequest("GET", route, "2xx", 42*time.Millisecond)

	countAfter := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", route, "2xx"))
	if countAfter != countBefore+1 {
		t.Errorf("request counter = %v, want %v", countAfter, countBefore+1)
	}
	samplesAfter := histogramSampleCount(t, HTTPDuration.WithLabelValues(route))
	if samplesAfter != samplesBefore+1 {
		t.Errorf("duration samples = %d, want %d", samplesAfter, samplesBefore+1)
	}
}

func TestRecordAuthzDecision(t *testing.T) {
	allowedBefore := testutil.ToFloat64(AuthzDecisions.WithLabelValues("allowed"))
	RecordAuthzDecision(true)
	if got := testutil.ToFloat64(AuthzDecisions.WithLabelValues("allowed")); got != allowedBefore+1 {
		t.Errorf("allowed counter = %v, want %v", got, allowedBefore+1)
	}

	deniedBefore := testutil.ToFloat64(AuthzDecisions.WithLabelValues("denied"))
	RecordAuthzDecision(false)
	if got := testutil.ToFloat64(AuthzDecisions.WithLabelValues("denied")); got != deniedBefore+1 {
		t.Errorf("denied counter = %v, want %v", got, deniedBefore+1)
	}
}
