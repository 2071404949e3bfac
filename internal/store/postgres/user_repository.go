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

	"github.com/pulsehq/pulse/internal/identity"
)

// UserRepository implements identity.UserRepository. All queries carry the
// tenant predicate derived from the bound context: a user id from another
// tenant scans as not found.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, name, sso_id, password_hash, primary_team_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
	`, user.ID, tenantID, user.Email, user.Name, user.SSOID, user.PasswordHash,
		user.PrimaryTeamID, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.TenantID = tenantID
	return nil
}

// GetByID retrieves a user by ID within the bound tenant
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.scan(r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, name, COALESCE(sso_id, ''), COALESCE(password_hash, ''),
		       primary_team_id, created_at, updated_at
		FROM users WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
}

// GetByEmail retrieves a user by email within the bound tenant
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.scan(r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, name, COALESCE(sso_id, ''), COALESCE(password_hash, ''),
		       primary_team_id, created_at, updated_at
		FROM users WHERE email = $1 AND tenant_id = $2
	`, email, tenantID))
}

// Update updates a user's mutable fields
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET name = $3, password_hash = NULLIF($4, ''), primary_team_id = $5, updated_at = $6
		WHERE id = $1 AND tenant_id = $2
	`, user.ID, tenantID, user.Name, user.PasswordHash, user.PrimaryTeamID, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scan(row pgx.Row) (*identity.User, error) {
	var u identity.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.SSOID, &u.PasswordHash,
		&u.PrimaryTeamID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}
