// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package recommend holds the dual-pool recommendation cache and the
// bidirectional order/user mapping that keeps it consistent.
//
// Each user has two cached pools: the normal pool carries every
// recommended item, the promotional pool only the promotion-flagged
// subset. Pools are written together from one recommendation run and
// expire independently on a fixed TTL.
//
// The MappingIndex records which user owns each order, in both
// directions, so that deleting an order can find and rewrite exactly
// the pools that reference it. The Manager composes the two: it owns
// per-user locking, cascade invalidation, and the expiry semantics of
// pool reads.
//
// Recommendation computation itself is delegated to an external engine
// behind the Source interface; this package never ranks anything.
package recommend
