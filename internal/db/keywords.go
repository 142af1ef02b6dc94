package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

// keywordColumns is the standard column list for keyword queries.
const keywordColumns = `id, text, description, kind, priority, area, active, source, weight,
	hit_count, trigger_threshold, created_at, updated_at`

// scanKeyword scans a row into a Keyword.
func scanKeyword(row pgx.Row) (*models.Keyword, error) {
	var kw models.Keyword
	var priority int16
	err := row.Scan(
		&kw.ID,
		&kw.Text,
		&kw.Description,
		&kw.Kind,
		&priority,
		&kw.Area,
		&kw.Active,
		&kw.Source,
		&kw.Weight,
		&kw.HitCount,
		&kw.TriggerThreshold,
		&kw.CreatedAt,
		&kw.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	kw.Priority = models.Priority(priority)
	return &kw, nil
}

// scanKeywords scans multiple rows into a slice of Keywords.
func scanKeywords(rows pgx.Rows, err error) ([]models.Keyword, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kws []models.Keyword
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		kws = append(kws, *kw)
	}
	return kws, rows.Err()
}

// GetKeyword retrieves a keyword by its ID.
func (d *DB) GetKeyword(ctx context.Context, id uuid.UUID) (*models.Keyword, error) {
	kw, err := scanKeyword(d.q.QueryRow(ctx, `SELECT `+keywordColumns+` FROM keywords WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("keyword %s", id), err)
	}
	return kw, nil
}

// ListKeywords lists keywords ordered by text, then weight, then age.
func (d *DB) ListKeywords(ctx context.Context, filter store.KeywordFilter) ([]models.Keyword, error) {
	var where []string
	var args []any
	if !filter.IncludeInactive {
		where = append(where, "active")
	}
	if filter.Area != nil {
		args = append(args, *filter.Area)
		where = append(where, fmt.Sprintf("area = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}

	query := `SELECT ` + keywordColumns + ` FROM keywords`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY text, weight, created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	kws, err := scanKeywords(d.q.Query(ctx, query, args...))
	if err != nil {
		return nil, wrapErr("list keywords", err)
	}
	return kws, nil
}

// FindByText returns active keywords with exactly this text and area.
func (d *DB) FindByText(ctx context.Context, text string, area *string) ([]models.Keyword, error) {
	query := `
		SELECT ` + keywordColumns + `
		FROM keywords
		WHERE active AND text = $1 AND area IS NOT DISTINCT FROM $2
		ORDER BY weight, created_at
	`
	kws, err := scanKeywords(d.q.Query(ctx, query, text, area))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("find keyword %q", text), err)
	}
	return kws, nil
}

// FindActiveByArea returns active keywords scoped to exactly area.
func (d *DB) FindActiveByArea(ctx context.Context, area *string) ([]models.Keyword, error) {
	query := `
		SELECT ` + keywordColumns + `
		FROM keywords
		WHERE active AND area IS NOT DISTINCT FROM $1
		ORDER BY text, weight, created_at
	`
	kws, err := scanKeywords(d.q.Query(ctx, query, area))
	if err != nil {
		return nil, wrapErr("find keywords by area", err)
	}
	return kws, nil
}

// ListAreas returns the distinct non-null areas of active keywords.
func (d *DB) ListAreas(ctx context.Context) ([]string, error) {
	rows, err := d.q.Query(ctx, `SELECT DISTINCT area FROM keywords WHERE active AND area IS NOT NULL ORDER BY area`)
	if err != nil {
		return nil, wrapErr("list areas", err)
	}
	areas, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapErr("list areas", err)
	}
	return areas, nil
}

// CreateKeyword inserts a keyword. A duplicate active record is a conflict.
func (d *DB) CreateKeyword(ctx context.Context, kw *models.Keyword) error {
	query := `
		INSERT INTO keywords (text, description, kind, priority, area, active, source, weight, trigger_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, hit_count, created_at, updated_at
	`
	err := d.q.QueryRow(ctx, query,
		kw.Text,
		kw.Description,
		kindOrDefault(kw.Kind),
		int16(kw.Priority),
		kw.Area,
		kw.Active,
		kw.Source,
		kw.Weight,
		thresholdOrDefault(kw.TriggerThreshold),
	).Scan(&kw.ID, &kw.HitCount, &kw.CreatedAt, &kw.UpdatedAt)
	if err != nil {
		return wrapErr(fmt.Sprintf("keyword %q", kw.Text), err)
	}
	kw.Kind = kindOrDefault(kw.Kind)
	kw.TriggerThreshold = thresholdOrDefault(kw.TriggerThreshold)
	return nil
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return models.KindCustom
	}
	return kind
}

func thresholdOrDefault(t int) int {
	if t <= 0 {
		return models.DefaultTriggerThreshold
	}
	return t
}

// UpdateKeyword stores editable fields. hit_count is never written here.
func (d *DB) UpdateKeyword(ctx context.Context, kw *models.Keyword) error {
	query := `
		UPDATE keywords
		SET text = $2, description = $3, kind = $4, priority = $5, area = $6, active = $7,
			source = $8, weight = $9, trigger_threshold = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING hit_count, created_at, updated_at
	`
	err := d.q.QueryRow(ctx, query,
		kw.ID,
		kw.Text,
		kw.Description,
		kindOrDefault(kw.Kind),
		int16(kw.Priority),
		kw.Area,
		kw.Active,
		kw.Source,
		kw.Weight,
		thresholdOrDefault(kw.TriggerThreshold),
	).Scan(&kw.HitCount, &kw.CreatedAt, &kw.UpdatedAt)
	if err != nil {
		return wrapErr(fmt.Sprintf("keyword %s", kw.ID), err)
	}
	return nil
}

// DeactivateKeyword soft-deletes a keyword.
func (d *DB) DeactivateKeyword(ctx context.Context, id uuid.UUID) error {
	tag, err := d.q.Exec(ctx, `UPDATE keywords SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return mustAffect(fmt.Sprintf("keyword %s", id), tag, err)
}

// FindOrCreateKeyword returns the active keyword for kw's text, area and
// source, inserting kw when none exists. Concurrent callers converge on one
// row through the partial unique index.
func (d *DB) FindOrCreateKeyword(ctx context.Context, kw *models.Keyword) (*models.Keyword, error) {
	insert := `
		INSERT INTO keywords (text, description, kind, priority, area, active, source, weight, trigger_threshold)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8)
		ON CONFLICT (text, COALESCE(area, ''), source) WHERE active DO NOTHING
		RETURNING ` + keywordColumns
	created, err := scanKeyword(d.q.QueryRow(ctx, insert,
		kw.Text,
		kw.Description,
		kindOrDefault(kw.Kind),
		int16(kw.Priority),
		kw.Area,
		kw.Source,
		kw.Weight,
		thresholdOrDefault(kw.TriggerThreshold),
	))
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapErr(fmt.Sprintf("keyword %q", kw.Text), err)
	}

	query := `
		SELECT ` + keywordColumns + `
		FROM keywords
		WHERE active AND text = $1 AND area IS NOT DISTINCT FROM $2 AND source = $3
	`
	existing, err := scanKeyword(d.q.QueryRow(ctx, query, kw.Text, kw.Area, kw.Source))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("keyword %q", kw.Text), err)
	}
	return existing, nil
}

// IncrementHitCount atomically adds delta to a keyword's hit count.
func (d *DB) IncrementHitCount(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var count int
	err := d.q.QueryRow(ctx, `
		UPDATE keywords SET hit_count = hit_count + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING hit_count
	`, id, delta).Scan(&count)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("keyword %s", id), err)
	}
	return count, nil
}

// InsertTriggerLog records the context of a client keyword trigger.
func (d *DB) InsertTriggerLog(ctx context.Context, entry *models.KeywordTriggerLog) error {
	query := `
		INSERT INTO keyword_trigger_logs (keyword_id, area, user_id, context, triggered_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		RETURNING id, triggered_at
	`
	var at any
	if !entry.TriggeredAt.IsZero() {
		at = entry.TriggeredAt
	}
	err := d.q.QueryRow(ctx, query, entry.KeywordID, entry.Area, entry.UserID, entry.Context, at).
		Scan(&entry.ID, &entry.TriggeredAt)
	return wrapErr("trigger log", err)
}

// RepointKeywordReferences moves trigger logs, trigger rules and daily
// statistics from one keyword to another, summing overlapping stat rows.
func (d *DB) RepointKeywordReferences(ctx context.Context, fromID, toID uuid.UUID) error {
	return d.InTx(ctx, func(s store.Store) error {
		tx := s.(*DB)
		if _, err := tx.GetKeyword(ctx, toID); err != nil {
			return err
		}

		both := []any{fromID, toID}
		statements := []struct {
			sql  string
			args []any
		}{
			{`UPDATE keyword_trigger_logs SET keyword_id = $2 WHERE keyword_id = $1`, both},
			{`UPDATE keyword_trigger_rules SET keyword_id = $2 WHERE keyword_id = $1`, both},
			{`INSERT INTO daily_keyword_stats
				(keyword_id, area, date, hit_count, trigger_count, unique_users, events, successes, response_total)
			SELECT $2, area, date, hit_count, trigger_count, 0, events, successes, response_total
			FROM daily_keyword_stats WHERE keyword_id = $1
			ON CONFLICT (keyword_id, area, date) DO UPDATE SET
				hit_count      = daily_keyword_stats.hit_count + EXCLUDED.hit_count,
				trigger_count  = daily_keyword_stats.trigger_count + EXCLUDED.trigger_count,
				events         = daily_keyword_stats.events + EXCLUDED.events,
				successes      = daily_keyword_stats.successes + EXCLUDED.successes,
				response_total = daily_keyword_stats.response_total + EXCLUDED.response_total`, both},
			{`INSERT INTO daily_keyword_stat_users (keyword_id, area, date, user_id)
			SELECT $2, area, date, user_id FROM daily_keyword_stat_users WHERE keyword_id = $1
			ON CONFLICT DO NOTHING`, both},
			{`DELETE FROM daily_keyword_stats WHERE keyword_id = $1`, []any{fromID}},
			// distinct users are recounted since both keywords may share a user
			{`UPDATE daily_keyword_stats s SET unique_users = (
				SELECT COUNT(*) FROM daily_keyword_stat_users u
				WHERE u.keyword_id = s.keyword_id AND u.area = s.area AND u.date = s.date
			) WHERE s.keyword_id = $1`, []any{toID}},
		}
		for _, stmt := range statements {
			if _, err := tx.q.Exec(ctx, stmt.sql, stmt.args...); err != nil {
				return wrapErr(fmt.Sprintf("repoint %s to %s", fromID, toID), err)
			}
		}
		return nil
	})
}
