package question

import (
	"context"
	"errors"
	"time"

	"github.com/pulsehq/pulse/internal/moderation"
)

// Domain errors
var (
	ErrQuestionNotFound     = errors.New("question not found")
	ErrContentRejected      = errors.New("content rejected by moderation")
	ErrConcurrentTransition = errors.New("question was transitioned by a concurrent actor")
	ErrAlreadyUpvoted       = errors.New("question already upvoted by this user")
	ErrQuestionFrozen       = errors.New("question is frozen")
	ErrEmptyBody            = errors.New("question body is required")
	ErrInvalidStatusFilter  = errors.New("status filter must be a published status")
)

// Status is a question's lifecycle state. SUBMITTED is transient and never
// persisted; REJECTED is modeled as deletion.
type Status string

const (
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusOpen        Status = "OPEN"
	StatusAnswered    Status = "ANSWERED"
)

// Question is moderated content within a tenant, optionally scoped to a
// team and optionally anonymous.
type Question struct {
	ID                   string                `json:"id"`
	TenantID             string                `json:"tenant_id"`
	TeamID               *string               `json:"team_id"`
	AuthorID             *string               `json:"author_id"`
	Body                 string                `json:"body"`
	Status               Status                `json:"status"`
	Answer               *string               `json:"answer,omitempty"`
	Upvotes              int                   `json:"upvotes"`
	ModerationReasons    []string              `json:"moderation_reasons,omitempty"`
	ModerationConfidence moderation.Confidence `json:"moderation_confidence,omitempty"`
	ModerationProviders  []string              `json:"moderation_providers,omitempty"`
	ReviewedBy           *string               `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time            `json:"reviewed_at,omitempty"`
	Pinned               bool                  `json:"pinned"`
	Frozen               bool                  `json:"frozen"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// StatusUpdate carries the fields stamped alongside a status transition.
type StatusUpdate struct {
	ReviewedBy *string
	ReviewedAt *time.Time
	Answer     *string
}

// ListFilter narrows question listings. All listings are tenant-scoped by
// the data-access layer.
type ListFilter struct {
	TeamID     string
	Status     Status
	Confidence moderation.Confidence
	Limit      int
	Offset     int
}

// Repository defines the interface for question storage. Implementations
// are tenant-scoped by the data-access layer.
type Repository interface {
	Create(ctx context.Context, q *Question) error
	GetByID(ctx context.Context, id string) (*Question, error)
	List(ctx context.Context, filter ListFilter) ([]*Question, error)

	// TransitionStatus moves a question from one status to another as a
	// single conditional update. It returns ErrConcurrentTransition when the
	// question is no longer in the expected from status.
	TransitionStatus(ctx context.Context, id string, from, to Status, update StatusUpdate) error

	// DeleteIfStatus removes a question only while it is in the expected
	// status, returning ErrConcurrentTransition otherwise.
	DeleteIfStatus(ctx context.Context, id string, status Status) error

	SetPinned(ctx context.Context, id string, pinned bool) error
	SetFrozen(ctx context.Context, id string, frozen bool) error

	// AddUpvote records one upvote per user, returning ErrAlreadyUpvoted on
	// a repeat vote.
	AddUpvote(ctx context.Context, questionID, userID string) error
}
