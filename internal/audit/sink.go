// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package audit

import (
	"github.com/ordercast/recgate/internal/auth"
)

// AuthSink feeds gateway authentication verdicts into the audit trail.
// It satisfies the gateway's non-blocking sink contract because
// Logger.Log drops on a full buffer instead of waiting.
type AuthSink struct {
	logger *Logger
}

// Interface compliance check
var _ auth.DecisionSink = (*AuthSink)(nil)

// NewAuthSink creates a sink that records decisions via the logger.
func NewAuthSink(logger *Logger) *AuthSink {
	return &AuthSink{logger: logger}
}

// RecordDecision translates one authentication verdict into an event.
func (s *AuthSink) RecordDecision(d auth.AuthDecision) {
	event := &Event{
		Timestamp: d.Time,
		Type:      EventTypeAuthAccepted,
		Severity:  SeverityInfo,
		Outcome:   OutcomeSuccess,
		Actor:     callerFromDecision(d),
		Source: Source{
			IPAddress: d.SourceIP,
		},
		Action:      "authenticate",
		Description: "Caller authenticated",
		Metadata: mustJSON(map[string]string{
			"method": d.Method,
			"path":   d.Path,
		}),
		RequestID: d.RequestID,
	}

	if d.UserID != "" {
		event.Target = &Target{ID: d.UserID, Type: "user"}
	}

	if !d.Accepted {
		event.Type = EventTypeAuthRejected
		event.Severity = SeverityWarning
		event.Outcome = OutcomeFailure
		event.Description = "Request rejected: " + string(d.Reason)
		event.Metadata = mustJSON(map[string]string{
			"method": d.Method,
			"path":   d.Path,
			"reason": string(d.Reason),
		})

		// A replayed nonce is the signature of an active replay
		// attack, not a misconfigured caller.
		if d.Reason == auth.ReasonReplay {
			event.Type = EventTypeAuthReplay
			event.Severity = SeverityCritical
		}
	}

	s.logger.Log(event)
}

func callerFromDecision(d auth.AuthDecision) Actor {
	id := d.Caller
	if id == "" {
		id = "unknown"
	}
	return Actor{
		ID:         id,
		Type:       "caller",
		AuthMethod: "envelope",
	}
}
