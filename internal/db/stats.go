package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

// UpsertDailyStat folds one usage event into its (keyword, area, day) row
// in a single statement. The distinct-user insert and the counter update
// share a snapshot, so a user is counted once per row even under
// concurrent events.
func (d *DB) UpsertDailyStat(ctx context.Context, delta models.StatDelta) error {
	success := 0
	if delta.Success {
		success = 1
	}
	_, err := d.q.Exec(ctx, `
		WITH new_user AS (
			INSERT INTO daily_keyword_stat_users (keyword_id, area, date, user_id)
			SELECT $1, $2, $3, $4 WHERE $4 <> ''
			ON CONFLICT DO NOTHING
			RETURNING 1
		)
		INSERT INTO daily_keyword_stats
			(keyword_id, area, date, hit_count, trigger_count, unique_users, events, successes, response_total)
		VALUES ($1, $2, $3, $5, $6, (SELECT COUNT(*) FROM new_user), 1, $7, $8)
		ON CONFLICT (keyword_id, area, date) DO UPDATE SET
			hit_count      = daily_keyword_stats.hit_count + EXCLUDED.hit_count,
			trigger_count  = daily_keyword_stats.trigger_count + EXCLUDED.trigger_count,
			unique_users   = daily_keyword_stats.unique_users + EXCLUDED.unique_users,
			events         = daily_keyword_stats.events + 1,
			successes      = daily_keyword_stats.successes + EXCLUDED.successes,
			response_total = daily_keyword_stats.response_total + EXCLUDED.response_total
	`, delta.KeywordID, delta.Area, models.Day(delta.Date), delta.UserID,
		delta.Hits, delta.Triggers, success, delta.ResponseTimeMs)
	return wrapErr(fmt.Sprintf("daily stat for keyword %s", delta.KeywordID), err)
}

// DailyStatsBetween returns rows with from <= date <= to ordered by date.
func (d *DB) DailyStatsBetween(ctx context.Context, keywordID *uuid.UUID, from, to time.Time) ([]models.DailyKeywordStat, error) {
	rows, err := d.q.Query(ctx, `
		SELECT s.keyword_id, s.area, s.date, s.hit_count, s.trigger_count, s.unique_users,
			s.events, s.successes, s.response_total, k.text
		FROM daily_keyword_stats s
		JOIN keywords k ON k.id = s.keyword_id
		WHERE s.date BETWEEN $1 AND $2
			AND ($3::uuid IS NULL OR s.keyword_id = $3)
		ORDER BY s.date, s.keyword_id, s.area
	`, models.Day(from), models.Day(to), keywordID)
	if err != nil {
		return nil, wrapErr("daily stats", err)
	}
	defer rows.Close()

	var out []models.DailyKeywordStat
	for rows.Next() {
		var s models.DailyKeywordStat
		var events, successes int
		var responseTotal int64
		if err := rows.Scan(&s.KeywordID, &s.Area, &s.Date, &s.HitCount, &s.TriggerCount, &s.UniqueUsers,
			&events, &successes, &responseTotal, &s.KeywordText); err != nil {
			return nil, wrapErr("daily stats", err)
		}
		if events > 0 {
			s.AvgResponseTimeMs = float64(responseTotal) / float64(events)
			s.SuccessRate = float64(successes) / float64(events)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("daily stats", err)
	}
	return out, nil
}

// DeleteStaleData removes trigger logs, execution logs and daily
// statistics older than before.
func (d *DB) DeleteStaleData(ctx context.Context, before time.Time) (store.CleanupResult, error) {
	var res store.CleanupResult
	err := d.InTx(ctx, func(s store.Store) error {
		tx := s.(*DB)
		steps := []struct {
			sql   string
			arg   any
			count *int64
		}{
			{`DELETE FROM keyword_trigger_logs WHERE triggered_at < $1`, before, &res.TriggerLogs},
			{`DELETE FROM rule_execution_logs WHERE execution_time < $1`, before, &res.ExecutionLogs},
			{`DELETE FROM daily_keyword_stats WHERE date < $1`, models.Day(before), &res.DailyStats},
		}
		for _, step := range steps {
			tag, err := tx.q.Exec(ctx, step.sql, step.arg)
			if err != nil {
				return wrapErr("delete stale data", err)
			}
			*step.count = tag.RowsAffected()
		}
		return nil
	})
	return res, err
}
