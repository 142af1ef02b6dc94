package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"keywordhub/internal/models"
)

const submissionColumns = `id, keyword_text, area, origin_keyword_id, trigger_count, submitted_by,
	status, reviewed_by, review_notes, submitted_at, reviewed_at`

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var sub models.Submission
	err := row.Scan(
		&sub.ID,
		&sub.KeywordText,
		&sub.Area,
		&sub.OriginKeywordID,
		&sub.TriggerCount,
		&sub.SubmittedBy,
		&sub.Status,
		&sub.ReviewedBy,
		&sub.ReviewNotes,
		&sub.SubmittedAt,
		&sub.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmission retrieves a submission by its ID.
func (d *DB) GetSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	sub, err := scanSubmission(d.q.QueryRow(ctx, `SELECT `+submissionColumns+` FROM keyword_submissions WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("submission %s", id), err)
	}
	return sub, nil
}

// PendingSubmission returns the pending submission for text and area.
func (d *DB) PendingSubmission(ctx context.Context, text string, area *string) (*models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM keyword_submissions
		WHERE status = 'pending' AND keyword_text = $1 AND area IS NOT DISTINCT FROM $2
	`
	sub, err := scanSubmission(d.q.QueryRow(ctx, query, text, area))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("pending submission %q", text), err)
	}
	return sub, nil
}

// CreateSubmission inserts a pending submission. It reports false when one
// is already pending for the same text and area.
func (d *DB) CreateSubmission(ctx context.Context, sub *models.Submission) (bool, error) {
	query := `
		INSERT INTO keyword_submissions (keyword_text, area, origin_keyword_id, trigger_count, submitted_by, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (keyword_text, COALESCE(area, '')) WHERE status = 'pending' DO NOTHING
		RETURNING id, status, submitted_at
	`
	err := d.q.QueryRow(ctx, query,
		sub.KeywordText,
		sub.Area,
		sub.OriginKeywordID,
		sub.TriggerCount,
		sub.SubmittedBy,
	).Scan(&sub.ID, &sub.Status, &sub.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr(fmt.Sprintf("submission %q", sub.KeywordText), err)
	}
	return true, nil
}

// ListSubmissions lists submissions with the given status, oldest first.
// An empty status lists all.
func (d *DB) ListSubmissions(ctx context.Context, status string) ([]models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM keyword_submissions
		WHERE $1 = '' OR status = $1
		ORDER BY submitted_at
	`
	rows, err := d.q.Query(ctx, query, status)
	if err != nil {
		return nil, wrapErr("list submissions", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, wrapErr("list submissions", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list submissions", err)
	}
	return subs, nil
}

// UpdateSubmissionReview stores the review decision if the submission is
// still pending. A concurrent reviewer holding the row blocks this update
// until it commits, after which the status check no longer matches.
func (d *DB) UpdateSubmissionReview(ctx context.Context, sub *models.Submission) (bool, error) {
	tag, err := d.q.Exec(ctx, `
		UPDATE keyword_submissions
		SET status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'
	`, sub.ID, sub.Status, sub.ReviewedBy, sub.ReviewNotes, sub.ReviewedAt)
	if err != nil {
		return false, wrapErr(fmt.Sprintf("submission %s", sub.ID), err)
	}
	return tag.RowsAffected() > 0, nil
}
