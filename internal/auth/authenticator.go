// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/ordercast/recgate/internal/metrics"
)

// Reason classifies why a request was rejected. Reasons feed logs,
// metrics, and the audit trail; they are never sent to callers.
type Reason string

// Rejection reasons, in pipeline order.
const (
	ReasonNone              Reason = ""
	ReasonMissingHeader     Reason = "missing_header"
	ReasonDecryptFailed     Reason = "decrypt_failed"
	ReasonMalformedEnvelope Reason = "malformed_envelope"
	ReasonStaleTimestamp    Reason = "timestamp_out_of_range"
	ReasonPathMismatch      Reason = "path_mismatch"
	ReasonBadSignature      Reason = "bad_signature"
	ReasonReplay            Reason = "replay"
	ReasonUnknownCaller     Reason = "unknown_caller"
	ReasonUnavailable       Reason = "ledger_unavailable"
)

// Outcome is the result of running the verification pipeline.
type Outcome struct {
	// Accepted reports whether the request passed every check.
	Accepted bool

	// Reason is set when Accepted is false.
	Reason Reason

	// Envelope is the parsed payload, present once decryption and
	// parsing succeeded, including on later-stage rejections.
	Envelope *Envelope

	// Caller is the resolved caller ID when the allow-list matched.
	Caller string
}

// AuthenticatorConfig configures the verification pipeline.
type AuthenticatorConfig struct {
	// Tolerance is the accepted clock skew either side of now.
	// An envelope stamped exactly at the edge is accepted.
	Tolerance time.Duration

	// NonceTTL is how long an observed nonce blocks reuse. Must be at
	// least twice Tolerance so a replayed copy of an edge-stamped
	// envelope still finds the original nonce on record.
	NonceTTL time.Duration

	// ExpectedPlatform pins the envelope platform field to one value.
	// Empty accepts any non-empty platform.
	ExpectedPlatform string

	// VerifySignature toggles the signature check. Disabling it is for
	// staged rollouts against callers that cannot sign yet.
	VerifySignature bool

	// ReplayProtection toggles the nonce check.
	ReplayProtection bool
}

// Authenticator runs the fixed verification pipeline over incoming
// requests. Checks run cheapest-first and stop at the first failure;
// the nonce is observed only after every envelope check has passed, so
// rejected requests never consume their nonce, and a later identical
// replay of a once-rejected request is judged on its own merits.
type Authenticator struct {
	codec   *EnvelopeCodec
	ledger  NonceLedger
	callers *CallerRegistry
	cfg     AuthenticatorConfig

	now func() time.Time
}

// NewAuthenticator creates an Authenticator. callers may be nil or
// empty to disable the allow-list check.
func NewAuthenticator(codec *EnvelopeCodec, ledger NonceLedger, callers *CallerRegistry, cfg AuthenticatorConfig) *Authenticator {
	return &Authenticator{
		codec:   codec,
		ledger:  ledger,
		callers: callers,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Authenticate verifies one request. header is the raw x-encrypt-key
// value, requestPath the path actually requested, and sourceIP the
// client address for the ledger record.
func (a *Authenticator) Authenticate(ctx context.Context, header, requestPath, sourceIP string) Outcome {
	outcome := a.run(ctx, header, requestPath, sourceIP)
	metrics.RecordAuthOutcome(outcome.Accepted, string(outcome.Reason))
	return outcome
}

func (a *Authenticator) run(ctx context.Context, header, requestPath, sourceIP string) Outcome {
	if header == "" {
		return Outcome{Reason: ReasonMissingHeader}
	}

	plaintext, err := a.codec.Decrypt(header)
	if err != nil {
		return Outcome{Reason: ReasonDecryptFailed}
	}

	envelope, err := ParseEnvelope(plaintext)
	if err != nil {
		return Outcome{Reason: ReasonMalformedEnvelope}
	}
	if err := envelope.Validate(a.cfg.ExpectedPlatform); err != nil {
		return Outcome{Reason: ReasonMalformedEnvelope, Envelope: envelope}
	}

	if !a.timestampFresh(envelope.Timestamp) {
		return Outcome{Reason: ReasonStaleTimestamp, Envelope: envelope}
	}

	if !pathMatches(envelope.URL, requestPath) {
		return Outcome{Reason: ReasonPathMismatch, Envelope: envelope}
	}

	if a.cfg.VerifySignature && !a.codec.VerifySignature(envelope) {
		return Outcome{Reason: ReasonBadSignature, Envelope: envelope}
	}

	if a.cfg.ReplayProtection {
		entry := &NonceEntry{
			Nonce:    envelope.Nonce,
			SourceIP: sourceIP,
		}
		switch err := a.ledger.Observe(ctx, entry, a.cfg.NonceTTL); {
		case errors.Is(err, ErrNonceReplayed):
			return Outcome{Reason: ReasonReplay, Envelope: envelope}
		case err != nil:
			// No verdict from the ledger means no admission.
			return Outcome{Reason: ReasonUnavailable, Envelope: envelope}
		}
	}

	caller := ""
	if !a.callers.Empty() {
		id, ok := a.callers.Resolve(envelope.Token)
		if !ok {
			return Outcome{Reason: ReasonUnknownCaller, Envelope: envelope}
		}
		caller = id
	}

	return Outcome{Accepted: true, Envelope: envelope, Caller: caller}
}

// timestampFresh checks the envelope timestamp against now with the
// configured tolerance. Both edges are inclusive.
func (a *Authenticator) timestampFresh(tsMillis int64) bool {
	now := a.now().UnixMilli()
	diff := now - tsMillis
	if diff < 0 {
		diff = -diff
	}
	return diff <= a.cfg.Tolerance.Milliseconds()
}

// pathMatches compares the envelope's url field with the requested
// path. Callers may sign either the bare path or a full URL; only the
// path component is bound.
func pathMatches(signed, requestPath string) bool {
	if signed == requestPath {
		return true
	}
	u, err := url.Parse(signed)
	if err != nil {
		return false
	}
	return u.Path == requestPath
}
