// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

/*
Package tasks runs asynchronous recommendation refreshes.

A refresh recomputes one user's recommendation pools through the
engine client without holding up the request that asked for it. The
API enqueues a task and returns its ID immediately; clients poll the
task status while a worker recomputes and rewrites the pools.

The queue is an in-process watermill Pub/Sub (gochannel). Tasks move
through pending, running and finally completed or failed; records are
kept in the utility TTL cache so status stays queryable for a day.
The Runner is a supervised service: it subscribes once and fans the
message stream out to a fixed pool of workers.

The channel is persistent, so a runner restarted by the supervisor
re-receives earlier messages; tasks already in a terminal state are
skipped on redelivery.
*/
package tasks
