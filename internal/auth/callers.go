// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CallerCredential is one allow-listed backend caller. Token is either
// a bcrypt hash of the caller's shared token (recognized by the $2
// prefix) or the plain token itself.
type CallerCredential struct {
	ID    string
	Token string
}

// CallerRegistry resolves envelope tokens to caller identities.
// An empty registry is valid and matches nothing; whether that means
// "reject everyone" or "allow-list disabled" is the authenticator's
// call.
type CallerRegistry struct {
	creds []CallerCredential
}

// NewCallerRegistry creates a registry over the given credentials.
func NewCallerRegistry(creds []CallerCredential) *CallerRegistry {
	return &CallerRegistry{creds: append([]CallerCredential(nil), creds...)}
}

// Empty reports whether the registry holds no credentials.
func (r *CallerRegistry) Empty() bool {
	return r == nil || len(r.creds) == 0
}

// Resolve matches a presented token against the registry and returns
// the caller ID. Plain tokens are compared in constant time; bcrypt
// hashes go through bcrypt's own comparison. Every credential is
// checked even after a match so the work done does not depend on which
// entry matched.
func (r *CallerRegistry) Resolve(token string) (string, bool) {
	if r.Empty() || token == "" {
		return "", false
	}

	matchedID := ""
	matched := false
	for _, cred := range r.creds {
		var ok bool
		if strings.HasPrefix(cred.Token, "$2") {
			ok = bcrypt.CompareHashAndPassword([]byte(cred.Token), []byte(token)) == nil
		} else {
			ok = subtle.ConstantTimeCompare([]byte(cred.Token), []byte(token)) == 1
		}
		if ok && !matched {
			matchedID = cred.ID
			matched = true
		}
	}
	return matchedID, matched
}
