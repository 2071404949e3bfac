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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsehq/pulse/internal/authz"
	"github.com/pulsehq/pulse/internal/team"
)

// TeamRepository implements team.Repository
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create creates a new team within the bound tenant
func (r *TeamRepository) Create(ctx context.Context, t *team.Team) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO teams (id, tenant_id, slug, name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, tenantID, t.Slug, t.Name, t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return team.ErrTeamAlreadyExists
		}
		return fmt.Errorf("failed to insert team: %w", err)
	}

	t.TenantID = tenantID
	return nil
}

// GetByID retrieves a team by ID within the bound tenant
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*team.Team, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.scan(r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, slug, name, is_active, created_at, updated_at
		FROM teams WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
}

// GetBySlug retrieves a team by slug within the bound tenant
func (r *TeamRepository) GetBySlug(ctx context.Context, slug string) (*team.Team, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.scan(r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, slug, name, is_active, created_at, updated_at
		FROM teams WHERE slug = $1 AND tenant_id = $2
	`, slug, tenantID))
}

// List returns teams within the bound tenant
func (r *TeamRepository) List(ctx context.Context, limit, offset int) ([]*team.Team, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, slug, name, is_active, created_at, updated_at
		FROM teams WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*team.Team
	for rows.Next() {
		var t team.Team
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Slug, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

func (r *TeamRepository) scan(row pgx.Row) (*team.Team, error) {
	var t team.Team
	err := row.Scan(&t.ID, &t.TenantID, &t.Slug, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, team.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to scan team: %w", err)
	}
	return &t, nil
}

// MembershipRepository implements team.MembershipRepository
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Create adds a membership within the bound tenant
func (r *MembershipRepository) Create(ctx context.Context, m *team.Membership) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO team_memberships (id, tenant_id, team_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, tenantID, m.TeamID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return team.ErrAlreadyMember
		}
		return fmt.Errorf("failed to insert membership: %w", err)
	}

	m.TenantID = tenantID
	return nil
}

// Get retrieves one membership within the bound tenant
func (r *MembershipRepository) Get(ctx context.Context, teamID, userID string) (*team.Membership, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}

	var m team.Membership
	err = r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, team_id, user_id, role, created_at, updated_at
		FROM team_memberships
		WHERE team_id = $1 AND user_id = $2 AND tenant_id = $3
	`, teamID, userID, tenantID).Scan(&m.ID, &m.TenantID, &m.TeamID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, team.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// ListByUser returns a user's memberships within the bound tenant
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*team.Membership, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, `
		SELECT id, tenant_id, team_id, user_id, role, created_at, updated_at
		FROM team_memberships WHERE user_id = $1 AND tenant_id = $2
	`, userID, tenantID)
}

// ListByTeam returns a team's memberships within the bound tenant
func (r *MembershipRepository) ListByTeam(ctx context.Context, teamID string) ([]*team.Membership, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, `
		SELECT id, tenant_id, team_id, user_id, role, created_at, updated_at
		FROM team_memberships WHERE team_id = $1 AND tenant_id = $2
		ORDER BY created_at
	`, teamID, tenantID)
}

// UpdateRole changes a member's role within the bound tenant
func (r *MembershipRepository) UpdateRole(ctx context.Context, teamID, userID string, role authz.Role) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE team_memberships SET role = $4, updated_at = NOW()
		WHERE team_id = $1 AND user_id = $2 AND tenant_id = $3
	`, teamID, userID, tenantID, string(role))
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return team.ErrMembershipNotFound
	}
	return nil
}

// Delete removes a membership within the bound tenant
func (r *MembershipRepository) Delete(ctx context.Context, teamID, userID string) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM team_memberships
		WHERE team_id = $1 AND user_id = $2 AND tenant_id = $3
	`, teamID, userID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return team.ErrMembershipNotFound
	}
	return nil
}

// CountByRole counts members holding role on a team within the bound tenant
func (r *MembershipRepository) CountByRole(ctx context.Context, teamID string, role authz.Role) (int, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM team_memberships
		WHERE team_id = $1 AND role = $2 AND tenant_id = $3
	`, teamID, string(role), tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memberships: %w", err)
	}
	return count, nil
}

func (r *MembershipRepository) list(ctx context.Context, query string, args ...any) ([]*team.Membership, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*team.Membership
	for rows.Next() {
		var m team.Membership
		if err := rows.Scan(&m.ID, &m.TenantID, &m.TeamID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}
	return memberships, rows.Err()
}
