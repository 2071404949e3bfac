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

package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/authz"
)

// Service provides team and membership management. It implements
// authz.RoleSource for the permission checker.
type Service struct {
	repo        Repository
	memberships MembershipRepository
	auditor     audit.Recorder
}

// NewService creates a new team service
func NewService(repo Repository, memberships MembershipRepository, auditor audit.Recorder) *Service {
	return &Service{
		repo:        repo,
		memberships: memberships,
		auditor:     auditor,
	}
}

// Create provisions a team and makes creatorID its first owner.
func (s *Service) Create(ctx context.Context, slug, name, creatorID string) (*Team, error) {
	if slug == "" || name == "" {
		return nil, fmt.Errorf("team slug and name are required")
	}

	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, ErrTeamAlreadyExists
	} else if !errors.Is(err, ErrTeamNotFound) {
		return nil, fmt.Errorf("failed to check team slug: %w", err)
	}

	now := time.Now()
	t := &Team{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Slug:      slug,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	m := &Membership{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TeamID:    t.ID,
		UserID:    creatorID,
		Role:      authz.RoleOwner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionTeamCreated,
		EntityType: audit.EntityTeam,
		EntityID:   &t.ID,
		After:      map[string]any{"slug": t.Slug, "name": t.Name},
	})

	return t, nil
}

// Get retrieves a team by ID within the bound tenant.
func (s *Service) Get(ctx context.Context, id string) (*Team, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves teams with pagination.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Team, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// AddMember grants userID a role on teamID.
func (s *Service) AddMember(ctx context.Context, teamID, userID string, role authz.Role) (*Membership, error) {
	if !isAssignable(role) {
		return nil, ErrInvalidRole
	}
	if _, err := s.repo.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	if _, err := s.memberships.Get(ctx, teamID, userID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrMembershipNotFound) {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	now := time.Now()
	m := &Membership{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TeamID:    teamID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionTeamMemberAdded,
		EntityType: audit.EntityMembership,
		EntityID:   &m.ID,
		After:      map[string]any{"team_id": teamID, "user_id": userID, "role": string(role)},
	})

	return m, nil
}

// RemoveMember revokes userID's membership on teamID. Removing the last
// owner is rejected: a team must always retain at least one owner.
func (s *Service) RemoveMember(ctx context.Context, teamID, userID string) error {
	m, err := s.memberships.Get(ctx, teamID, userID)
	if err != nil {
		return err
	}

	if m.Role == authz.RoleOwner {
		owners, err := s.memberships.CountByRole(ctx, teamID, authz.RoleOwner)
		if err != nil {
			return fmt.Errorf("failed to count owners: %w", err)
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if err := s.memberships.Delete(ctx, teamID, userID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionTeamMemberRemoved,
		EntityType: audit.EntityMembership,
		EntityID:   &m.ID,
		Before:     map[string]any{"team_id": teamID, "user_id": userID, "role": string(m.Role)},
	})

	return nil
}

// ChangeRole updates a member's role. Demoting the last owner is rejected.
func (s *Service) ChangeRole(ctx context.Context, teamID, userID string, role authz.Role) error {
	if !isAssignable(role) {
		return ErrInvalidRole
	}

	m, err := s.memberships.Get(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if m.Role == role {
		return nil
	}

	if m.Role == authz.RoleOwner && role != authz.RoleOwner {
		owners, err := s.memberships.CountByRole(ctx, teamID, authz.RoleOwner)
		if err != nil {
			return fmt.Errorf("failed to count owners: %w", err)
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if err := s.memberships.UpdateRole(ctx, teamID, userID, role); err != nil {
		return fmt.Errorf("failed to change role: %w", err)
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:     audit.ActionTeamMemberRoleChanged,
		EntityType: audit.EntityMembership,
		EntityID:   &m.ID,
		Before:     map[string]any{"role": string(m.Role)},
		After:      map[string]any{"role": string(role)},
		Metadata:   map[string]any{"team_id": teamID, "user_id": userID},
	})

	return nil
}

// Members lists a team's memberships.
func (s *Service) Members(ctx context.Context, teamID string) ([]*Membership, error) {
	if _, err := s.repo.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.memberships.ListByTeam(ctx, teamID)
}

// RolesForUser implements authz.RoleSource: the user's (team, role) pairs
// within the bound tenant.
func (s *Service) RolesForUser(ctx context.Context, userID string) ([]authz.TeamRole, error) {
	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	roles := make([]authz.TeamRole, 0, len(memberships))
	for _, m := range memberships {
		roles = append(roles, authz.TeamRole{TeamID: m.TeamID, Role: m.Role})
	}
	return roles, nil
}

func isAssignable(role authz.Role) bool {
	for _, r := range authz.AssignableRoles {
		if r == role {
			return true
		}
	}
	return false
}
