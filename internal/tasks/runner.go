// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/metrics"
	"github.com/ordercast/recgate/internal/recommend"
)

// Runner consumes refresh tasks and rewrites the owning user's pools.
// It subscribes once and the workers share the one delivery channel,
// so each queued task runs on exactly one worker. Task outcomes live
// in the Tracker; a failed refresh is recorded there, never
// redelivered.
type Runner struct {
	queue   *Queue
	tracker *Tracker
	source  recommend.Source
	manager *recommend.Manager
	workers int
}

// NewRunner creates a runner with the given worker count (minimum 1).
func NewRunner(queue *Queue, tracker *Tracker, source recommend.Source, manager *recommend.Manager, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		queue:   queue,
		tracker: tracker,
		source:  source,
		manager: manager,
		workers: workers,
	}
}

// Serve implements suture.Service. It blocks until ctx is canceled or
// the queue closes.
func (r *Runner) Serve(ctx context.Context) error {
	messages, err := r.queue.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicRefresh, err)
	}

	logging.Info().
		Int("workers", r.workers).
		Str("topic", TopicRefresh).
		Msg("Refresh task runner started")

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx, messages)
		}()
	}
	wg.Wait()

	return ctx.Err()
}

// work drains the shared message channel until it closes. Each message
// is acked on receipt: the channel blocks further delivery until the
// in-flight message is acked, and holding the ack through a slow
// engine call would idle the rest of the pool.
func (r *Runner) work(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		msg.Ack()
		r.handle(ctx, msg)
	}
}

func (r *Runner) handle(ctx context.Context, msg *message.Message) {
	var req refreshMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		logging.Error().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Discarding malformed refresh task")
		metrics.RecordRefreshTask("malformed")
		return
	}

	task, ok := r.tracker.Get(req.TaskID)
	if !ok {
		logging.Warn().
			Str("task_id", req.TaskID).
			Msg("Refresh task has no record; skipping")
		return
	}
	if task.State.Terminal() {
		// Redelivered after a runner restart; already done.
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(task, fmt.Errorf("panic: %v", rec))
		}
	}()

	started := time.Now()
	task.State = StateRunning
	task.StartedAt = &started
	r.tracker.Put(task)

	items, err := r.source.Recommend(ctx, task.UserID, nil)
	if err != nil {
		r.fail(task, err)
		return
	}

	if err := r.manager.WritePools(ctx, task.UserID, items); err != nil {
		r.fail(task, err)
		return
	}

	finished := time.Now()
	task.State = StateCompleted
	task.FinishedAt = &finished
	task.ItemCount = len(items)
	r.tracker.Put(task)
	metrics.RecordRefreshTask("completed")

	logging.Debug().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Int("items", len(items)).
		Dur("took", finished.Sub(started)).
		Msg("Refresh task completed")
}

func (r *Runner) fail(task *Task, cause error) {
	finished := time.Now()
	task.State = StateFailed
	task.FinishedAt = &finished
	task.Error = cause.Error()
	r.tracker.Put(task)
	metrics.RecordRefreshTask("failed")

	logging.Error().Err(cause).
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Msg("Refresh task failed")
}
