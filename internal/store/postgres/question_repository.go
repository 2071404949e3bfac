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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsehq/pulse/internal/moderation"
	"github.com/pulsehq/pulse/internal/question"
)

// QuestionRepository implements question.Repository. Every query carries the
// tenant predicate from the bound context, so a question id from another
// tenant scans as not found rather than forbidden.
type QuestionRepository struct {
	db *DB
}

// NewQuestionRepository creates a new question repository
func NewQuestionRepository(db *DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `
	id, tenant_id, team_id, author_id, body, status, answer, upvotes,
	moderation_reasons, moderation_confidence, moderation_providers,
	reviewed_by, reviewed_at, pinned, frozen, created_at, updated_at`

// Create persists a new question
func (r *QuestionRepository) Create(ctx context.Context, q *question.Question) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO questions (
			id, tenant_id, team_id, author_id, body, status, upvotes,
			moderation_reasons, moderation_confidence, moderation_providers,
			pinned, frozen, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NULLIF($8, ''), $9, FALSE, FALSE, $10, $11)
	`, q.ID, tenantID, q.TeamID, q.AuthorID, q.Body, string(q.Status),
		q.ModerationReasons, string(q.ModerationConfidence), q.ModerationProviders,
		q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}

	q.TenantID = tenantID
	return nil
}

// GetByID retrieves a question within the bound tenant
func (r *QuestionRepository) GetByID(ctx context.Context, id string) (*question.Question, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return scanQuestion(r.db.pool.QueryRow(ctx, `
		SELECT `+questionColumns+`
		FROM questions WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
}

// List returns questions within the bound tenant matching filter, pinned
// first, newest first.
func (r *QuestionRepository) List(ctx context.Context, filter question.ListFilter) ([]*question.Question, error) {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + questionColumns + ` FROM questions WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.TeamID != "" {
		args = append(args, filter.TeamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	if filter.Confidence != "" {
		args = append(args, string(filter.Confidence))
		query += fmt.Sprintf(" AND moderation_confidence = $%d", len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY pinned DESC, created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*question.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// TransitionStatus moves a question between statuses as one conditional
// update. Zero rows means a concurrent actor already moved it.
func (r *QuestionRepository) TransitionStatus(ctx context.Context, id string, from, to question.Status, update question.StatusUpdate) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE questions
		SET status = $4,
		    reviewed_by = COALESCE($5, reviewed_by),
		    reviewed_at = COALESCE($6, reviewed_at),
		    answer = COALESCE($7, answer),
		    updated_at = $8
		WHERE id = $1 AND tenant_id = $2 AND status = $3
	`, id, tenantID, string(from), string(to),
		update.ReviewedBy, update.ReviewedAt, update.Answer, time.Now())
	if err != nil {
		return fmt.Errorf("failed to transition question status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return question.ErrConcurrentTransition
	}
	return nil
}

// DeleteIfStatus removes a question only while it holds the expected status
func (r *QuestionRepository) DeleteIfStatus(ctx context.Context, id string, status question.Status) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM questions WHERE id = $1 AND tenant_id = $2 AND status = $3
	`, id, tenantID, string(status))
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return question.ErrConcurrentTransition
	}
	return nil
}

// SetPinned updates the pin flag
func (r *QuestionRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	return r.setFlag(ctx, id, "pinned", pinned)
}

// SetFrozen updates the freeze flag
func (r *QuestionRepository) SetFrozen(ctx context.Context, id string, frozen bool) error {
	return r.setFlag(ctx, id, "frozen", frozen)
}

func (r *QuestionRepository) setFlag(ctx context.Context, id, column string, value bool) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	// column is one of two compile-time constants, never caller input.
	tag, err := r.db.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE questions SET %s = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, column), id, tenantID, value)
	if err != nil {
		return fmt.Errorf("failed to update question %s flag: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return question.ErrQuestionNotFound
	}
	return nil
}

// AddUpvote records one upvote per user in the same transaction as the
// counter bump. The unique index on (question_id, user_id) rejects repeats.
func (r *QuestionRepository) AddUpvote(ctx context.Context, questionID, userID string) error {
	tenantID, err := scopedTenantID(ctx)
	if err != nil {
		return err
	}

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upvote transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO question_upvotes (question_id, tenant_id, user_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`, questionID, tenantID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return question.ErrAlreadyUpvoted
		}
		return fmt.Errorf("failed to insert upvote: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE questions SET upvotes = upvotes + 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, questionID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to bump upvote count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return question.ErrQuestionNotFound
	}

	return tx.Commit(ctx)
}

func scanQuestion(row pgx.Row) (*question.Question, error) {
	var q question.Question
	var confidence *string
	err := row.Scan(
		&q.ID, &q.TenantID, &q.TeamID, &q.AuthorID, &q.Body, &q.Status, &q.Answer,
		&q.Upvotes, &q.ModerationReasons, &confidence, &q.ModerationProviders,
		&q.ReviewedBy, &q.ReviewedAt, &q.Pinned, &q.Frozen, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, question.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	if confidence != nil {
		q.ModerationConfidence = moderation.Confidence(*confidence)
	}
	return &q, nil
}
