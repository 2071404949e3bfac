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

// Package audit provides the append-only trail of privileged actions.
// Writes are asynchronous and never fail the triggering operation; reads are
// tenant-scoped and paginated, newest first.
package audit

import (
	"context"
	"errors"
	"time"
)

// Action names form a dotted taxonomy: entity, sub-domain, verb.
const (
	ActionQuestionCreated        = "question.created"
	ActionQuestionUnderReview    = "question.moderation.under_review"
	ActionQuestionAutoRejected   = "question.moderation.rejected_auto"
	ActionQuestionApproved       = "question.moderation.approved"
	ActionQuestionRejected       = "question.moderation.rejected"
	ActionQuestionAnswered       = "question.answered"
	ActionQuestionUpvoted        = "question.upvoted"
	ActionQuestionPinned         = "question.pinned"
	ActionQuestionUnpinned       = "question.unpinned"
	ActionQuestionFrozen         = "question.frozen"
	ActionQuestionUnfrozen       = "question.unfrozen"
	ActionTeamCreated            = "team.created"
	ActionTeamMemberAdded        = "team.member.added"
	ActionTeamMemberRemoved      = "team.member.removed"
	ActionTeamMemberRoleChanged  = "team.member.role_changed"
	ActionUserProvisioned        = "user.provisioned"
	ActionTenantCreated          = "tenant.created"
	ActionTenantDeactivated      = "tenant.deactivated"
)

// Entity types
const (
	EntityQuestion   = "question"
	EntityTeam       = "team"
	EntityMembership = "team_membership"
	EntityUser       = "user"
	EntityTenant     = "tenant"
)

// ErrActorVanished classifies the expected write failure where the acting
// user was deleted between the action and the deferred audit write. Storage
// implementations map their foreign-key violation onto it.
var ErrActorVanished = errors.New("audit actor no longer exists")

// Entry is what call sites log: the action plus optional snapshots.
type Entry struct {
	Action     string
	EntityType string
	EntityID   *string
	Before     map[string]any
	After      map[string]any
	Metadata   map[string]any
}

// Actor is the request provenance attached to every record.
type Actor struct {
	UserID    *string
	IPAddress string
	UserAgent string
}

// Record is one persisted audit row. Records are never updated or deleted.
type Record struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	UserID     *string        `json:"user_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   *string        `json:"entity_id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows audit queries. All queries are implicitly scoped to the
// tenant bound to the context.
type Filter struct {
	UserID       string
	Action       string
	ActionPrefix string
	EntityType   string
	EntityID     string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Repository defines the interface for audit storage. Insert takes the
// tenant id from the record itself (captured when the action ran); Query and
// Count are tenant-scoped through the context.
type Repository interface {
	Insert(ctx context.Context, record *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

type actorKey struct{}

// WithActor stashes request provenance for deferred audit writes.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom retrieves the actor bound to the context, if any. Absence is
// legal: system-initiated actions have no actor.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{}
}

// absenceMarker is stored when sanitation leaves no metadata, so readers can
// distinguish "nothing recorded" from "recorded nothing".
const absenceMarker = "_absent"

// sanitizeMetadata strips nil-valued keys. A map left empty collapses to the
// explicit absence marker, never to an ambiguous {}.
func sanitizeMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	clean := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if v == nil {
			continue
		}
		clean[k] = v
	}
	if len(clean) == 0 {
		return map[string]any{absenceMarker: true}
	}
	return clean
}
