// Copyright 2026 The Pulse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notification is the fire-and-forget boundary to outbound user
// notifications. Delivery (email, chat) is an external concern; this side
// only queues.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsehq/pulse/internal/observability/logger"
)

// Notification kinds queued by the moderation pipeline.
const (
	KindQuestionApproved = "question.approved"
	KindQuestionRejected = "question.rejected"
)

// Notification is one queued outbound message.
type Notification struct {
	Kind        string
	TenantID    string
	RecipientID string         // empty for anonymous authors: nothing to deliver
	Data        map[string]any // kind-specific payload (e.g. rejection reason)
	QueuedAt    time.Time
}

// Dispatcher enqueues notifications. Implementations must not block request
// handling and must not surface delivery failures to callers.
type Dispatcher interface {
	Enqueue(ctx context.Context, n Notification)
}

// QueueDispatcher hands notifications to a buffered channel consumed by the
// delivery worker (external). A full queue drops with a warning.
type QueueDispatcher struct {
	queue chan Notification
}

// NewQueueDispatcher creates a dispatcher with the given buffer size.
func NewQueueDispatcher(size int) *QueueDispatcher {
	if size <= 0 {
		size = 256
	}
	return &QueueDispatcher{queue: make(chan Notification, size)}
}

// Enqueue queues n for delivery. Anonymous recipients are skipped.
func (d *QueueDispatcher) Enqueue(ctx context.Context, n Notification) {
	if n.RecipientID == "" {
		return
	}
	if n.QueuedAt.IsZero() {
		n.QueuedAt = time.Now()
	}
	select {
	case d.queue <- n:
	default:
		slog.WarnContext(ctx, "notification dropped: queue full",
			logger.Component("notification"),
			logger.String("kind", n.Kind),
			logger.TenantID(n.TenantID),
		)
	}
}

// Queue exposes the channel to the delivery worker.
func (d *QueueDispatcher) Queue() <-chan Notification {
	return d.queue
}
