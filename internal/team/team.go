package team

import (
	"context"
	"errors"
	"time"

	"github.com/pulsehq/pulse/internal/authz"
)

// Domain errors
var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamAlreadyExists  = errors.New("team already exists")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrAlreadyMember      = errors.New("user is already a member of this team")
	ErrLastOwner          = errors.New("a team must retain at least one owner")
	ErrInvalidRole        = errors.New("invalid membership role")
)

// Team is the scoping unit for content and role assignment within a tenant.
type Team struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership grants a user a role within one team.
type Membership struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	TeamID    string     `json:"team_id"`
	UserID    string     `json:"user_id"`
	Role      authz.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Repository defines the interface for team storage. Implementations are
// tenant-scoped by the data-access layer.
type Repository interface {
	Create(ctx context.Context, team *Team) error
	GetByID(ctx context.Context, id string) (*Team, error)
	GetBySlug(ctx context.Context, slug string) (*Team, error)
	List(ctx context.Context, limit, offset int) ([]*Team, error)
}

// MembershipRepository defines the interface for membership storage.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, teamID, userID string) (*Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
	ListByTeam(ctx context.Context, teamID string) ([]*Membership, error)
	UpdateRole(ctx context.Context, teamID, userID string, role authz.Role) error
	Delete(ctx context.Context, teamID, userID string) error
	CountByRole(ctx context.Context, teamID string, role authz.Role) (int, error)
}
