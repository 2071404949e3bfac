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

package question

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	otelattr "go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/authz"
	"github.com/pulsehq/pulse/internal/events"
	"github.com/pulsehq/pulse/internal/moderation"
	"github.com/pulsehq/pulse/internal/notification"
	"github.com/pulsehq/pulse/internal/observability/logger"
	"github.com/pulsehq/pulse/internal/team"
	"github.com/pulsehq/pulse/internal/tenantctx"
)

// snapshotBodyLimit caps question bodies embedded in audit snapshots.
const snapshotBodyLimit = 500

// EventPublisher is the notifier's publish side.
type EventPublisher interface {
	Publish(event events.Event)
}

// TeamSource resolves a team id within the bound tenant. Absence, including
// a team belonging to another tenant, surfaces as team.ErrTeamNotFound.
type TeamSource interface {
	Get(ctx context.Context, id string) (*team.Team, error)
}

// Service governs the question lifecycle: submission through automated
// screening, conditional human review, and terminal publication or deletion.
type Service struct {
	repo      Repository
	teams     TeamSource
	moderator moderation.Moderator
	checker   *authz.Checker
	auditor   audit.Recorder
	publisher EventPublisher
	notifier  notification.Dispatcher
	decisions metric.Int64Counter
}

// NewService creates the question service.
func NewService(
	repo Repository,
	teams TeamSource,
	moderator moderation.Moderator,
	checker *authz.Checker,
	auditor audit.Recorder,
	publisher EventPublisher,
	notifier notification.Dispatcher,
	decisions metric.Int64Counter,
) *Service {
	return &Service{
		repo:      repo,
		teams:     teams,
		moderator: moderator,
		checker:   checker,
		auditor:   auditor,
		publisher: publisher,
		notifier:  notifier,
		decisions: decisions,
	}
}

// SubmitInput carries a new submission. ActorID is empty for anonymous
// submitters.
type SubmitInput struct {
	Body    string
	TeamID  *string
	ActorID string
}

// Submit runs the moderation pipeline for a new question:
//
//	clean                → persist OPEN, publish creation event
//	flagged high         → never persisted, audit-logged, error to caller
//	flagged medium/low   → persist UNDER_REVIEW, audit-logged, NO event
//
// When the moderation capability itself errors the pipeline fails closed:
// the submission is held for human review instead of published.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Question, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	if _, err := s.checker.Check(ctx, in.ActorID, authz.PermQuestionCreate, teamOpts(in.TeamID)); err != nil {
		return nil, err
	}

	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}

	// A named team must exist within the bound tenant. The lookup is
	// tenant-scoped, so a foreign tenant's team id is indistinguishable from
	// a nonexistent one.
	if in.TeamID != nil {
		if _, err := s.teams.Get(ctx, *in.TeamID); err != nil {
			return nil, err
		}
	}

	verdict, modErr := s.moderator.Moderate(ctx, body)
	if modErr != nil {
		// Fail closed: an unscreened submission is held for review, never
		// published unseen.
		slog.WarnContext(ctx, "moderation capability unavailable, holding submission for review",
			logger.Component("question"),
			logger.Error(modErr),
		)
		verdict = moderation.Verdict{
			Flagged:    true,
			Confidence: moderation.ConfidenceLow,
			Reasons:    []string{"moderation_unavailable"},
		}
	}

	if verdict.Flagged && verdict.Confidence == moderation.ConfidenceHigh {
		// High-confidence violations never reach storage.
		s.countDecision(ctx, "rejected_auto")
		s.auditor.Log(ctx, audit.Entry{
			Action:     audit.ActionQuestionAutoRejected,
			EntityType: audit.EntityQuestion,
			Metadata: map[string]any{
				"body":      truncate(body, snapshotBodyLimit),
				"reasons":   verdict.Reasons,
				"providers": verdict.Providers,
				"team_id":   deref(in.TeamID),
			},
		})
		return nil, ErrContentRejected
	}

	now := time.Now()
	q := &Question{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tc.TenantID,
		TeamID:    in.TeamID,
		Body:      body,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.ActorID != "" {
		actorID := in.ActorID
		q.AuthorID = &actorID
	}

	if verdict.Flagged {
		q.Status = StatusUnderReview
		q.ModerationReasons = verdict.Reasons
		q.ModerationConfidence = verdict.Confidence
		q.ModerationProviders = verdict.Providers
	}

	if err := s.repo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	if q.Status == StatusUnderReview {
		s.countDecision(ctx, "under_review")
		s.auditor.Log(ctx, audit.Entry{
			Action:     audit.ActionQuestionUnderReview,
			EntityType: audit.EntityQuestion,
			EntityID:   &q.ID,
			After: map[string]any{
				"status":     string(q.Status),
				"confidence": string(q.ModerationConfidence),
				"reasons":    q.ModerationReasons,
			},
		})
		// Unpublished content must not reach subscribers: the creation
		// event is deferred until approval.
		return q, nil
	}

	s.countDecision(ctx, "published")
	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionQuestionCreated,
		EntityType: audit.EntityQuestion,
		EntityID:   &q.ID,
		After:      map[string]any{"status": string(q.Status), "team_id": deref(q.TeamID)},
	})
	s.publisher.Publish(events.NewEvent(tc.TenantID, events.TypeQuestionCreated, q))

	return q, nil
}

// Approve moves an UNDER_REVIEW question to OPEN, stamps the reviewer,
// publishes the deferred creation event and queues an approval
// notification. A losing concurrent actor receives ErrConcurrentTransition.
func (s *Service) Approve(ctx context.Context, id, actorID string) (*Question, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionAnswer, teamOpts(q.TeamID)); err != nil {
		return nil, err
	}
	if q.Status != StatusUnderReview {
		return nil, ErrConcurrentTransition
	}

	now := time.Now()
	update := StatusUpdate{ReviewedBy: &actorID, ReviewedAt: &now}
	if err := s.repo.TransitionStatus(ctx, id, StatusUnderReview, StatusOpen, update); err != nil {
		return nil, err
	}

	before := map[string]any{"status": string(StatusUnderReview)}
	q.Status = StatusOpen
	q.ReviewedBy = &actorID
	q.ReviewedAt = &now
	q.UpdatedAt = now

	s.countDecision(ctx, "approved")
	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionQuestionApproved,
		EntityType: audit.EntityQuestion,
		EntityID:   &q.ID,
		Before:     before,
		After:      map[string]any{"status": string(q.Status), "reviewed_by": actorID},
	})

	s.publisher.Publish(events.NewEvent(q.TenantID, events.TypeQuestionCreated, q))
	s.notifier.Enqueue(ctx, notification.Notification{
		Kind:        notification.KindQuestionApproved,
		TenantID:    q.TenantID,
		RecipientID: deref(q.AuthorID),
		Data:        map[string]any{"question_id": q.ID},
	})

	return q, nil
}

// Reject permanently deletes an UNDER_REVIEW question and queues a
// rejection notification carrying the reviewer's reason. The audit record
// keeps the truncated original body: it is the only trace left.
func (s *Service) Reject(ctx context.Context, id, actorID, reason string) error {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionAnswer, teamOpts(q.TeamID)); err != nil {
		return err
	}
	if q.Status != StatusUnderReview {
		return ErrConcurrentTransition
	}

	if err := s.repo.DeleteIfStatus(ctx, id, StatusUnderReview); err != nil {
		return err
	}

	s.countDecision(ctx, "rejected")
	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionQuestionRejected,
		EntityType: audit.EntityQuestion,
		EntityID:   &q.ID,
		Before: map[string]any{
			"status": string(q.Status),
			"body":   truncate(q.Body, snapshotBodyLimit),
		},
		Metadata: map[string]any{"reason": reason, "reviewed_by": actorID},
	})

	s.notifier.Enqueue(ctx, notification.Notification{
		Kind:        notification.KindQuestionRejected,
		TenantID:    q.TenantID,
		RecipientID: deref(q.AuthorID),
		Data:        map[string]any{"question_id": q.ID, "reason": reason},
	})

	return nil
}

// Answer moves an OPEN question to ANSWERED with the response text, stamping
// the responder as reviewer.
func (s *Service) Answer(ctx context.Context, id, actorID, text string) (*Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyBody
	}

	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionAnswer, teamOpts(q.TeamID)); err != nil {
		return nil, err
	}
	if q.Frozen {
		return nil, ErrQuestionFrozen
	}
	if q.Status != StatusOpen {
		return nil, ErrConcurrentTransition
	}

	now := time.Now()
	update := StatusUpdate{ReviewedBy: &actorID, ReviewedAt: &now, Answer: &text}
	if err := s.repo.TransitionStatus(ctx, id, StatusOpen, StatusAnswered, update); err != nil {
		return nil, err
	}

	before := map[string]any{"status": string(StatusOpen)}
	q.Status = StatusAnswered
	q.Answer = &text
	q.ReviewedBy = &actorID
	q.ReviewedAt = &now
	q.UpdatedAt = now

	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionQuestionAnswered,
		EntityType: audit.EntityQuestion,
		EntityID:   &q.ID,
		Before:     before,
		After:      map[string]any{"status": string(q.Status), "reviewed_by": actorID},
	})
	s.publisher.Publish(events.NewEvent(q.TenantID, events.TypeQuestionAnswered, q))

	return q, nil
}

// Upvote records one upvote by actorID. Self-upvotes and repeat upvotes are
// rejected for every role.
func (s *Service) Upvote(ctx context.Context, id, actorID string) error {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionUpvote, teamOpts(q.TeamID)); err != nil {
		return err
	}
	if err := authz.DenySelf(actorID, q.AuthorID); err != nil {
		return err
	}
	if q.Frozen {
		return ErrQuestionFrozen
	}

	if err := s.repo.AddUpvote(ctx, id, actorID); err != nil {
		return err
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionQuestionUpvoted,
		EntityType: audit.EntityQuestion,
		EntityID:   &q.ID,
		Metadata:   map[string]any{"voter_id": actorID},
	})

	return nil
}

// SetPinned pins or unpins a question.
func (s *Service) SetPinned(ctx context.Context, id, actorID string, pinned bool) (*Question, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionPin, teamOpts(q.TeamID)); err != nil {
		return nil, err
	}
	if q.Pinned == pinned {
		return q, nil
	}

	if err := s.repo.SetPinned(ctx, id, pinned); err != nil {
		return nil, fmt.Errorf("failed to update pin flag: %w", err)
	}

	action := audit.ActionQuestionPinned
	if !pinned {
		action = audit.ActionQuestionUnpinned
	}
	s.auditor.Log(ctx, audit.Entry{
		Action:     action,
		EntityType: audit.EntityQuestion,
		EntityID:   &q.ID,
		Before:     map[string]any{"pinned": q.Pinned},
		After:      map[string]any{"pinned": pinned},
	})

	q.Pinned = pinned
	s.publisher.Publish(events.NewEvent(q.TenantID, events.TypeQuestionPinned, q))
	return q, nil
}

// SetFrozen freezes or unfreezes a question. Frozen questions reject
// upvotes and answers until unfrozen.
func (s *Service) SetFrozen(ctx context.Context, id, actorID string, frozen bool) (*Question, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionFreeze, teamOpts(q.TeamID)); err != nil {
		return nil, err
	}
	if q.Frozen == frozen {
		return q, nil
	}

	if err := s.repo.SetFrozen(ctx, id, frozen); err != nil {
		return nil, fmt.Errorf("failed to update freeze flag: %w", err)
	}

	action := audit.ActionQuestionFrozen
	if !frozen {
		action = audit.ActionQuestionUnfrozen
	}
	s.auditor.Log(ctx, audit.Entry{
		Action:     action,
		EntityType: audit.EntityQuestion,
		EntityID:   &q.ID,
		Before:     map[string]any{"frozen": q.Frozen},
		After:      map[string]any{"frozen": frozen},
	})

	q.Frozen = frozen
	s.publisher.Publish(events.NewEvent(q.TenantID, events.TypeQuestionFrozen, q))
	return q, nil
}

// Get retrieves a question visible to actorID. Held questions are visible
// only to their author and to reviewers; for everyone else they do not exist.
func (s *Service) Get(ctx context.Context, id, actorID string) (*Question, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionView, teamOpts(q.TeamID)); err != nil {
		return nil, err
	}
	if q.Status == StatusUnderReview && !isAuthor(actorID, q.AuthorID) {
		if _, err := s.checker.Check(ctx, actorID, authz.PermAdminAccess, authz.CheckOptions{}); err != nil {
			return nil, ErrQuestionNotFound
		}
	}
	return q, nil
}

// List returns published questions matching filter. Only published statuses
// are listable here; held content is reachable through ReviewQueue alone.
func (s *Service) List(ctx context.Context, actorID string, filter ListFilter) ([]*Question, error) {
	if _, err := s.checker.Check(ctx, actorID, authz.PermQuestionView, authz.CheckOptions{TeamID: filter.TeamID}); err != nil {
		return nil, err
	}
	switch filter.Status {
	case "":
		filter.Status = StatusOpen
	case StatusOpen, StatusAnswered:
	default:
		return nil, ErrInvalidStatusFilter
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// ReviewQueue lists UNDER_REVIEW questions for human moderators, filterable
// by team and confidence.
func (s *Service) ReviewQueue(ctx context.Context, actorID string, filter ListFilter) ([]*Question, error) {
	if _, err := s.checker.Check(ctx, actorID, authz.PermAdminAccess, authz.CheckOptions{}); err != nil {
		return nil, err
	}
	filter.Status = StatusUnderReview
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) countDecision(ctx context.Context, outcome string) {
	if s.decisions != nil {
		s.decisions.Add(ctx, 1, metric.WithAttributes(otelattr.String("outcome", outcome)))
	}
}

func isAuthor(actorID string, authorID *string) bool {
	return actorID != "" && authorID != nil && *authorID == actorID
}

func teamOpts(teamID *string) authz.CheckOptions {
	if teamID == nil {
		return authz.CheckOptions{}
	}
	return authz.CheckOptions{TeamID: *teamID}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
