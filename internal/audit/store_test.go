// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestCEFExporter(t *testing.T) {
	exporter := NewCEFExporter()
	events := []Event{
		{
			ID:          "evt-1",
			Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Type:        EventTypeAuthReplay,
			Severity:    SeverityCritical,
			Outcome:     OutcomeFailure,
			Actor:       Actor{ID: "svc-orders", Type: "caller"},
			Target:      &Target{ID: "12345", Type: "user"},
			Source:      Source{IPAddress: "192.0.2.66"},
			Action:      "authenticate",
			Description: "Request rejected: replay",
			RequestID:   "req-9",
		},
	}

	out, err := exporter.Export(events)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	line := string(out)
	if !strings.HasPrefix(line, "CEF:0|Ordercast|Recgate|1.0|auth.replay|") {
		t.Errorf("unexpected CEF prefix: %s", line)
	}
	if !strings.Contains(line, "|10|") {
		t.Errorf("critical severity should map to 10: %s", line)
	}
	for _, want := range []string{"suid=svc-orders", "src=192.0.2.66", "duid=12345", "act=authenticate", "outcome=failure", "externalId=req-9"} {
		if !strings.Contains(line, want) {
			t.Errorf("CEF line missing %q: %s", want, line)
		}
	}
}

func TestCEFExporter_SeverityMapping(t *testing.T) {
	exporter := NewCEFExporter()
	cases := []struct {
		severity Severity
		want     int
	}{
		{SeverityDebug, 0},
		{SeverityInfo, 3},
		{SeverityWarning, 5},
		{SeverityError, 7},
		{SeverityCritical, 10},
	}
	for _, tc := range cases {
		if got := exporter.cefSeverity(tc.severity); got != tc.want {
			t.Errorf("cefSeverity(%s) = %d, want %d", tc.severity, got, tc.want)
		}
	}
}

func TestCEFExporter_Escaping(t *testing.T) {
	exporter := NewCEFExporter()
	events := []Event{
		{
			Timestamp:   time.Now(),
			Type:        EventTypeAuthRejected,
			Severity:    SeverityWarning,
			Outcome:     OutcomeFailure,
			Actor:       Actor{ID: "svc|pipe=equals\\slash"},
			Source:      Source{IPAddress: "192.0.2.1"},
			Action:      "authenticate",
			Description: "line\nbreak|pipe",
		},
	}

	out, err := exporter.Export(events)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	line := string(out)
	if strings.Contains(line, "\n") {
		t.Error("newline survived escaping")
	}
	if !strings.Contains(line, `suid=svc\|pipe\=equals\\slash`) {
		t.Errorf("special characters not escaped: %s", line)
	}
}

func TestCEFExporter_NilTarget(t *testing.T) {
	exporter := NewCEFExporter()
	events := []Event{
		{
			Timestamp: time.Now(),
			Type:      EventTypeAuthAccepted,
			Severity:  SeverityInfo,
			Outcome:   OutcomeSuccess,
			Actor:     Actor{ID: "svc-a"},
			Source:    Source{IPAddress: "192.0.2.1"},
			Action:    "authenticate",
		},
	}

	out, err := exporter.Export(events)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.Contains(string(out), "duid=") {
		t.Errorf("nil target produced duid field: %s", out)
	}
}

func TestCEFExporter_MultipleEvents(t *testing.T) {
	exporter := NewCEFExporter()
	events := []Event{
		{Timestamp: time.Now(), Type: EventTypeAuthAccepted, Severity: SeverityInfo, Actor: Actor{ID: "a"}, Source: Source{IPAddress: "1.1.1.1"}, Action: "authenticate"},
		{Timestamp: time.Now(), Type: EventTypeAuthRejected, Severity: SeverityWarning, Actor: Actor{ID: "b"}, Source: Source{IPAddress: "2.2.2.2"}, Action: "authenticate"},
	}

	out, err := exporter.Export(events)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	lines := strings.Split(string(out), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 CEF lines, got %d", len(lines))
	}
}

func TestCEFExporter_EmptyEvents(t *testing.T) {
	exporter := NewCEFExporter()
	out, err := exporter.Export(nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %q", out)
	}
}

func TestJSONExporter(t *testing.T) {
	exporter := &JSONExporter{}
	events := []Event{
		{
			ID:        "evt-1",
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Type:      EventTypeOrderInvalidated,
			Severity:  SeverityInfo,
			Outcome:   OutcomeSuccess,
			Actor:     Actor{ID: "svc-orders", Type: "caller"},
			Source:    Source{IPAddress: "192.0.2.1"},
			Action:    "invalidate_order",
		},
	}

	out, err := exporter.Export(events)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var decoded []Event
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("exported JSON does not decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID != "evt-1" || decoded[0].Type != EventTypeOrderInvalidated {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}
