// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package auth implements the backend-to-backend request security
// gateway: decryption and verification of the x-encrypt-key envelope,
// replay rejection through a nonce ledger, the caller allow-list, and
// the HTTP middleware that gates the API surface.
//
// Request verification runs a fixed pipeline and stops at the first
// failure: decrypt, parse and field checks, timestamp freshness, path
// binding, signature, nonce, caller identity. The nonce check runs
// after every envelope check so a tampered or stale request never
// consumes its nonce. Callers are told only that a request was
// unauthorized; the precise reason goes to logs, metrics, and the
// audit trail.
//
// The package also carries the operator login surface for the ops
// API: bcrypt-backed accounts and short-lived HS256 tokens.
package auth
