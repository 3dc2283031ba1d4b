// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// MinNonceLength is the minimum accepted nonce length. Shorter values
// collide too easily inside the replay window.
const MinNonceLength = 18

// ErrMalformedEnvelope indicates the decrypted payload is not a valid
// envelope: bad JSON, missing fields, or field values out of range.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the authentication payload a backend caller encrypts
// into the x-encrypt-key header. Timestamp is Unix milliseconds at
// signing time. Sign covers every other non-empty field.
type Envelope struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
	Platform  string `json:"platform"`
	Nonce     string `json:"nonce"`
	Sign      string `json:"sign"`
}

// ParseEnvelope decodes a decrypted payload into an Envelope. It does
// not validate field contents; see Validate.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &e, nil
}

// Validate checks that every required field is present and well
// formed. expectedPlatform narrows the platform check to one exact
// value; when empty, any non-empty platform is accepted.
func (e *Envelope) Validate(expectedPlatform string) error {
	switch {
	case e.Token == "":
		return fmt.Errorf("%w: missing token", ErrMalformedEnvelope)
	case e.Timestamp <= 0:
		return fmt.Errorf("%w: missing timestamp", ErrMalformedEnvelope)
	case e.URL == "":
		return fmt.Errorf("%w: missing url", ErrMalformedEnvelope)
	case e.Platform == "":
		return fmt.Errorf("%w: missing platform", ErrMalformedEnvelope)
	case e.Nonce == "":
		return fmt.Errorf("%w: missing nonce", ErrMalformedEnvelope)
	case len(e.Nonce) < MinNonceLength:
		return fmt.Errorf("%w: nonce shorter than %d characters", ErrMalformedEnvelope, MinNonceLength)
	case e.Sign == "":
		return fmt.Errorf("%w: missing sign", ErrMalformedEnvelope)
	}
	if expectedPlatform != "" && e.Platform != expectedPlatform {
		return fmt.Errorf("%w: unexpected platform %q", ErrMalformedEnvelope, e.Platform)
	}
	return nil
}

// CanonicalString renders the signed fields as k=v pairs joined with
// "&", keys in ascending alphabetical order, empty fields omitted.
// The sign field itself is never part of the string. Both signer and
// verifier must produce this byte-for-byte.
func (e *Envelope) CanonicalString() string {
	// Keys listed in sorted order: nonce, platform, timestamp, token,
	// url, userId. The field set is fixed; unknown JSON keys are not
	// signed even if a caller sends them.
	pairs := make([]string, 0, 6)
	if e.Nonce != "" {
		pairs = append(pairs, "nonce="+e.Nonce)
	}
	if e.Platform != "" {
		pairs = append(pairs, "platform="+e.Platform)
	}
	if e.Timestamp != 0 {
		pairs = append(pairs, "timestamp="+strconv.FormatInt(e.Timestamp, 10))
	}
	if e.Token != "" {
		pairs = append(pairs, "token="+e.Token)
	}
	if e.URL != "" {
		pairs = append(pairs, "url="+e.URL)
	}
	if e.UserID != "" {
		pairs = append(pairs, "userId="+e.UserID)
	}
	return strings.Join(pairs, "&")
}
