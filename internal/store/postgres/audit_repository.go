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

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsehq/pulse/internal/audit"
)

// AuditRepository implements audit.Repository. Inserts run on the writer
// goroutine with the tenant id captured in the record; queries are scoped
// through the bound context like every other tenant-owned table.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one audit record. Records are never updated or deleted.
func (r *AuditRepository) Insert(ctx context.Context, record *audit.Record) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_log (
			id, tenant_id, user_id, action, entity_type, entity_id,
			before, after, metadata, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, record.ID, record.TenantID, record.UserID, record.Action,
		record.EntityType, record.EntityID, record.Before, record.After,
		record.Metadata, record.IPAddress, record.UserAgent, record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "audit_log_user_id_fkey" {
			return audit.ErrActorVanished
		}
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Query returns audit records within the bound tenant matching filter,
// newest first.
func (r *AuditRepository) Query(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	where, args, err := r.whereClause(ctx, filter)
	if err != nil {
		return nil, err
	}

	args = append(args, filter.Limit)
	query := `
		SELECT id, tenant_id, user_id, action, entity_type, entity_id,
		       before, after, metadata, ip_address, user_agent, created_at
		FROM audit_log ` + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		var rec audit.Record
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.UserID, &rec.Action, &rec.EntityType,
			&rec.EntityID, &rec.Before, &rec.After, &rec.Metadata,
			&rec.IPAddress, &rec.UserAgent, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Count returns the number of audit records within the bound tenant
// matching filter.
func (r *AuditRepository) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	where, args, err := r.whereClause(ctx, filter)
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return count, nil
}

func (r *AuditRepository) whereClause(ctx context.Context, filter audit.Filter) (string, []any, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return "", nil, err
	}

	where := "WHERE tenant_id = $1"
	args := []any{tenantID}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.ActionPrefix != "" {
		args = append(args, filter.ActionPrefix+"%")
		where += fmt.Sprintf(" AND action LIKE $%d", len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		where += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	return where, args, nil
}
