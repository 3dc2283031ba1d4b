// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

/*
Package cache provides a thread-safe in-memory store with TTL support.

This is the utility cache for short-lived bookkeeping, not the
recommendation pools (those live in internal/recommend behind the
PoolStore interface). It holds async refresh task records while
clients poll their status, and briefly caches assembled ops-stats
responses so the admin dashboard cannot hammer the stores.

# Overview

The cache provides:
  - Thread-safe concurrent access (sync.RWMutex)
  - Time-to-live expiration with lazy checks on Get
  - A background sweep that prunes expired entries
  - Hit/miss/eviction statistics for the ops surface

# Usage Example

	// Task records live for 24 hours
	c := cache.New(24*time.Hour, 5*time.Minute)
	defer c.Stop()

	c.Set("task:"+task.ID, task)

	if value, ok := c.Get("task:" + id); ok {
	    task := value.(*tasks.Task)
	    // Report status
	}
*/
package cache
