// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package tasks

import (
	"time"

	"github.com/ordercast/recgate/internal/cache"
)

// State is a refresh task's lifecycle position.
type State string

const (
	// StatePending means the task is queued but no worker picked it up.
	StatePending State = "pending"

	// StateRunning means a worker is recomputing the pools.
	StateRunning State = "running"

	// StateCompleted means the pools were rewritten.
	StateCompleted State = "completed"

	// StateFailed means the recompute failed; Error carries the cause.
	StateFailed State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Task is one asynchronous refresh. Serialized as the task-status API
// response body, so the tags follow that endpoint's snake_case shape.
type Task struct {
	ID          string     `json:"task_id"`
	UserID      string     `json:"user_id"`
	State       State      `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"completed_at,omitempty"`
	ItemCount   int        `json:"item_count"`
	Error       string     `json:"error,omitempty"`
}

// clone deep-copies the task so tracker readers and writers never
// share memory.
func (t *Task) clone() *Task {
	c := *t
	if t.StartedAt != nil {
		at := *t.StartedAt
		c.StartedAt = &at
	}
	if t.FinishedAt != nil {
		at := *t.FinishedAt
		c.FinishedAt = &at
	}
	return &c
}

const trackerKeyPrefix = "task:"

// Tracker stores task records in the utility TTL cache. Records fall
// out on their own once the cache TTL passes, so finished tasks don't
// accumulate.
type Tracker struct {
	cache *cache.Cache
}

// NewTracker creates a tracker over the given cache.
func NewTracker(c *cache.Cache) *Tracker {
	return &Tracker{cache: c}
}

// Put stores a snapshot of the task.
func (tr *Tracker) Put(task *Task) {
	tr.cache.Set(trackerKeyPrefix+task.ID, task.clone())
}

// Get returns a snapshot of the task, or false if the ID is unknown
// or the record already expired.
func (tr *Tracker) Get(taskID string) (*Task, bool) {
	value, ok := tr.cache.Get(trackerKeyPrefix + taskID)
	if !ok {
		return nil, false
	}
	task, ok := value.(*Task)
	if !ok {
		return nil, false
	}
	return task.clone(), true
}
