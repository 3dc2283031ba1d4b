// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/logging"
)

// TopicRefresh is the queue topic for recommendation refreshes.
const TopicRefresh = "recommend.refresh"

// refreshMessage is the queued payload.
type refreshMessage struct {
	TaskID string `json:"taskId"`
	UserID string `json:"userId"`
}

// Queue is the in-process task queue: an embedded watermill Pub/Sub
// plus the tracker that holds task records. Persistent delivery means
// a subscriber that (re)attaches receives everything published so
// far, so a supervised runner restart loses no tasks.
type Queue struct {
	pubsub  *gochannel.GoChannel
	tracker *Tracker
}

// NewQueue creates a queue with the given channel buffer. A nil
// logger selects the zerolog-backed watermill adapter.
func NewQueue(bufferSize int, tracker *Tracker, logger watermill.LoggerAdapter) *Queue {
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	if bufferSize < 0 {
		bufferSize = 0
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(bufferSize),
		Persistent:          true,
	}, logger)

	return &Queue{
		pubsub:  pubsub,
		tracker: tracker,
	}
}

// Enqueue records a pending task and publishes it. The returned task
// snapshot carries the ID that clients poll with.
func (q *Queue) Enqueue(ctx context.Context, userID string) (*Task, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	task := &Task{
		ID:          watermill.NewUUID(),
		UserID:      userID,
		State:       StatePending,
		SubmittedAt: time.Now(),
	}

	payload, err := json.Marshal(refreshMessage{TaskID: task.ID, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("encode refresh task: %w", err)
	}

	q.tracker.Put(task)

	if err := q.pubsub.Publish(TopicRefresh, message.NewMessage(task.ID, payload)); err != nil {
		task.State = StateFailed
		task.Error = "could not be queued"
		q.tracker.Put(task)
		return nil, fmt.Errorf("publish refresh task: %w", err)
	}

	logging.Ctx(ctx).Debug().
		Str("task_id", task.ID).
		Str("user_id", userID).
		Msg("Refresh task queued")
	return task, nil
}

// Status returns a snapshot of a task.
func (q *Queue) Status(taskID string) (*Task, bool) {
	return q.tracker.Get(taskID)
}

// Subscribe attaches a consumer to the refresh topic. The returned
// channel closes when ctx is canceled or the queue is closed.
func (q *Queue) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return q.pubsub.Subscribe(ctx, TopicRefresh)
}

// Close shuts the queue down. Pending messages are discarded.
func (q *Queue) Close() error {
	return q.pubsub.Close()
}
