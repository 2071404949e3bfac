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

package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/pulsehq/pulse/internal/observability/logger"
	"github.com/pulsehq/pulse/internal/tenantctx"
)

// Recorder is the write side handed to services. Log is fire-and-forget:
// it never blocks the caller on storage and never returns an error.
type Recorder interface {
	Log(ctx context.Context, entry Entry)
}

// Service dispatches audit writes to a background worker and serves the
// tenant-scoped read contract. It is an explicitly constructed component:
// create it in main, Close it on shutdown.
type Service struct {
	repo          Repository
	queue         chan *Record
	wg            sync.WaitGroup
	closeOnce     sync.Once
	writeTimeout  time.Duration
	writeFailures metric.Int64Counter
}

// NewService creates the audit service and starts its writer. queueSize
// bounds the number of in-flight records; when the queue is full, records
// are dropped with a warning rather than blocking request handling.
func NewService(repo Repository, queueSize int, writeFailures metric.Int64Counter) *Service {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &Service{
		repo:          repo,
		queue:         make(chan *Record, queueSize),
		writeTimeout:  5 * time.Second,
		writeFailures: writeFailures,
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// SetWriteTimeout overrides the per-record storage deadline. Call during
// wiring, before records start flowing.
func (s *Service) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		s.writeTimeout = d
	}
}

// Log records entry against the tenant and actor bound to ctx. The write is
// deferred; it may complete after the caller's response has been sent.
// Failures are absorbed: they are logged, counted, and never propagated.
func (s *Service) Log(ctx context.Context, entry Entry) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		// No tenant to attribute the record to. This is a bug in the call
		// site: log it loudly and drop the record.
		slog.ErrorContext(ctx, "audit entry dropped: no tenant context bound",
			logger.Component("audit"),
			logger.Action(entry.Action),
		)
		return
	}

	actor := ActorFrom(ctx)
	record := &Record{
		ID:         uuid.Must(uuid.NewV7()).String(),
		TenantID:   tc.TenantID,
		UserID:     actor.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Before:     entry.Before,
		After:      entry.After,
		Metadata:   sanitizeMetadata(entry.Metadata),
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		CreatedAt:  time.Now(),
	}

	select {
	case s.queue <- record:
	default:
		s.countFailure(ctx)
		slog.WarnContext(ctx, "audit entry dropped: queue full",
			logger.Component("audit"),
			logger.Action(entry.Action),
			logger.TenantID(tc.TenantID),
		)
	}
}

// writer drains the queue. Each write uses a fresh context: the triggering
// request may be long gone by the time the record lands.
func (s *Service) writer() {
	defer s.wg.Done()
	for record := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.repo.Insert(ctx, record)
		cancel()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrActorVanished) {
			// Expected: the acting user was deleted before the deferred
			// write landed. Keep the record actorless instead of losing it.
			slog.DebugContext(ctx, "audit actor vanished, retrying without actor",
				logger.Component("audit"),
				logger.Action(record.Action),
			)
			record.UserID = nil
			retryCtx, retryCancel := context.WithTimeout(context.Background(), s.writeTimeout)
			err = s.repo.Insert(retryCtx, record)
			retryCancel()
			if err == nil {
				continue
			}
		}
		s.countFailure(context.Background())
		slog.WarnContext(context.Background(), "audit write failed",
			logger.Component("audit"),
			logger.Action(record.Action),
			logger.TenantID(record.TenantID),
			logger.Error(err),
		)
	}
}

// Close drains outstanding records and stops the writer.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

// Query returns audit records for the bound tenant, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.Query(ctx, filter)
}

// Count returns the number of records matching filter for the bound tenant.
func (s *Service) Count(ctx context.Context, filter Filter) (int64, error) {
	return s.repo.Count(ctx, filter)
}

func (s *Service) countFailure(ctx context.Context) {
	if s.writeFailures != nil {
		s.writeFailures.Add(ctx, 1)
	}
}
