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

// Package events delivers state-transition notifications to per-tenant
// subscriber sets. Delivery is best effort: a subscriber that cannot keep up
// is removed, never errored on, and unpublished content never reaches it.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/pulsehq/pulse/internal/observability/logger"
)

// Event types published by the moderation pipeline.
const (
	TypeQuestionCreated  = "question.created"
	TypeQuestionAnswered = "question.answered"
	TypeQuestionPinned   = "question.pinned"
	TypeQuestionFrozen   = "question.frozen"
	TypeHeartbeat        = "heartbeat"
)

// Event is one state-transition notification scoped to a tenant.
type Event struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	Type     string    `json:"type"`
	Payload  any       `json:"payload,omitempty"`
	Time     time.Time `json:"time"`
}

// NewEvent builds an event for the given tenant.
func NewEvent(tenantID, eventType string, payload any) Event {
	return Event{
		ID:       uuid.Must(uuid.NewV7()).String(),
		TenantID: tenantID,
		Type:     eventType,
		Payload:  payload,
		Time:     time.Now(),
	}
}

// Subscriber is one registered event-stream consumer. Events arrives on C;
// the channel is closed when the subscriber is removed.
type Subscriber struct {
	ID       string
	TenantID string
	C        <-chan Event

	ch chan Event
}

// Notifier maintains per-tenant subscriber sets. Connect/disconnect and
// publish run concurrently; iteration works on a consistent snapshot.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscriber]struct{} // tenant id → set
	bufferSize  int
	heartbeat   time.Duration
	gauge       metric.Int64UpDownCounter
}

// NewNotifier creates a notifier. bufferSize bounds each subscriber's
// in-flight events; a subscriber whose buffer is full is considered stale
// and dropped.
func NewNotifier(bufferSize int, heartbeat time.Duration, gauge metric.Int64UpDownCounter) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Notifier{
		subscribers: make(map[string]map[*Subscriber]struct{}),
		bufferSize:  bufferSize,
		heartbeat:   heartbeat,
		gauge:       gauge,
	}
}

// Subscribe registers a consumer for one tenant's events.
func (n *Notifier) Subscribe(tenantID string) *Subscriber {
	ch := make(chan Event, n.bufferSize)
	sub := &Subscriber{
		ID:       uuid.Must(uuid.NewV7()).String(),
		TenantID: tenantID,
		C:        ch,
		ch:       ch,
	}

	n.mu.Lock()
	set, ok := n.subscribers[tenantID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		n.subscribers[tenantID] = set
	}
	set[sub] = struct{}{}
	n.mu.Unlock()

	if n.gauge != nil {
		n.gauge.Add(context.Background(), 1)
	}
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call for a
// subscriber that was already dropped as stale.
func (n *Notifier) Unsubscribe(sub *Subscriber) {
	n.mu.Lock()
	removed := n.removeLocked(sub)
	n.mu.Unlock()

	if removed && n.gauge != nil {
		n.gauge.Add(context.Background(), -1)
	}
}

// Publish delivers event to every subscriber currently registered for
// event.TenantID only. Stale subscribers are dropped during delivery.
func (n *Notifier) Publish(event Event) {
	n.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(n.subscribers[event.TenantID]))
	for sub := range n.subscribers[event.TenantID] {
		snapshot = append(snapshot, sub)
	}
	n.mu.RUnlock()

	for _, sub := range snapshot {
		n.deliver(sub, event)
	}
}

// Run emits heartbeats to all subscribers until ctx is canceled, letting
// clients detect silent disconnects and letting the notifier shed stale
// subscribers. Intended to run as a goroutine from main.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.closeAll()
			return
		case <-ticker.C:
			n.mu.RLock()
			snapshot := make([]*Subscriber, 0)
			for _, set := range n.subscribers {
				for sub := range set {
					snapshot = append(snapshot, sub)
				}
			}
			n.mu.RUnlock()

			for _, sub := range snapshot {
				n.deliver(sub, Event{
					ID:       uuid.Must(uuid.NewV7()).String(),
					TenantID: sub.TenantID,
					Type:     TypeHeartbeat,
					Time:     time.Now(),
				})
			}
		}
	}
}

// SubscriberCount reports the number of registered subscribers for a tenant.
func (n *Notifier) SubscriberCount(tenantID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers[tenantID])
}

func (n *Notifier) deliver(sub *Subscriber, event Event) {
	// The send happens under the read lock with a membership re-check:
	// removal (and the channel close) only happens under the write lock, so
	// a send can never race a concurrent Unsubscribe. The send is
	// non-blocking, so holding the lock is safe.
	n.mu.RLock()
	if _, ok := n.subscribers[sub.TenantID][sub]; !ok {
		n.mu.RUnlock()
		return
	}
	select {
	case sub.ch <- event:
		n.mu.RUnlock()
		return
	default:
	}
	n.mu.RUnlock()

	// Buffer full: the transport stopped draining. Remove, don't error.
	n.mu.Lock()
	removed := n.removeLocked(sub)
	n.mu.Unlock()
	if removed {
		if n.gauge != nil {
			n.gauge.Add(context.Background(), -1)
		}
		slog.Warn("dropped stale event subscriber",
			logger.Component("events"),
			logger.TenantID(sub.TenantID),
			logger.String("subscriber_id", sub.ID),
		)
	}
}

// removeLocked removes sub from the registry. Caller holds the write lock.
func (n *Notifier) removeLocked(sub *Subscriber) bool {
	set, ok := n.subscribers[sub.TenantID]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(n.subscribers, sub.TenantID)
	}
	close(sub.ch)
	return true
}

func (n *Notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, set := range n.subscribers {
		for sub := range set {
			close(sub.ch)
		}
	}
	n.subscribers = make(map[string]map[*Subscriber]struct{})
}
