package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

const dateLayout = "2006-01-02"

// UpsertDailyStat folds a usage event into its daily row.
func (s *Store) UpsertDailyStat(ctx context.Context, delta models.StatDelta) error {
	defer s.lock()()

	day := models.Day(delta.Date)
	key := statKey{keywordID: delta.KeywordID, area: delta.Area, date: day.Format(dateLayout)}
	row, ok := s.st.stats[key]
	if !ok {
		row = statRow{keywordID: delta.KeywordID, area: delta.Area, date: day}
	}
	row.hits += delta.Hits
	row.triggers += delta.Triggers
	row.events++
	row.responseTotal += delta.ResponseTimeMs
	if delta.Success {
		row.successes++
	}
	if delta.UserID != "" {
		userKey := statUserKey{statKey: key, userID: delta.UserID}
		if _, seen := s.st.statUsers[userKey]; !seen {
			s.st.statUsers[userKey] = struct{}{}
			row.users++
		}
	}
	s.st.stats[key] = row
	return nil
}

// SeedDailyStat writes a fully formed row, replacing any existing one.
// Used by tests that need historical series.
func (s *Store) SeedDailyStat(stat models.DailyKeywordStat) {
	defer s.lock()()

	day := models.Day(stat.Date)
	key := statKey{keywordID: stat.KeywordID, area: stat.Area, date: day.Format(dateLayout)}
	events := stat.HitCount
	if events == 0 {
		events = 1
	}
	s.st.stats[key] = statRow{
		keywordID:     stat.KeywordID,
		area:          stat.Area,
		date:          day,
		hits:          stat.HitCount,
		triggers:      stat.TriggerCount,
		users:         stat.UniqueUsers,
		events:        events,
		successes:     int(stat.SuccessRate*float64(events) + 0.5),
		responseTotal: int64(stat.AvgResponseTimeMs * float64(events)),
	}
}

// DailyStatsBetween returns rows in [from, to] ordered by date.
func (s *Store) DailyStatsBetween(ctx context.Context, keywordID *uuid.UUID, from, to time.Time) ([]models.DailyKeywordStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = models.Day(from), models.Day(to)
	var out []models.DailyKeywordStat
	for _, row := range s.st.stats {
		if keywordID != nil && row.keywordID != *keywordID {
			continue
		}
		if row.date.Before(from) || row.date.After(to) {
			continue
		}
		stat := models.DailyKeywordStat{
			KeywordID:    row.keywordID,
			Area:         row.area,
			Date:         row.date,
			HitCount:     row.hits,
			TriggerCount: row.triggers,
			UniqueUsers:  row.users,
		}
		if row.events > 0 {
			stat.AvgResponseTimeMs = float64(row.responseTotal) / float64(row.events)
			stat.SuccessRate = float64(row.successes) / float64(row.events)
		}
		if kw, ok := s.st.keywords[row.keywordID]; ok {
			stat.KeywordText = kw.Text
		}
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].KeywordID != out[j].KeywordID {
			return out[i].KeywordID.String() < out[j].KeywordID.String()
		}
		return out[i].Area < out[j].Area
	})
	return out, nil
}

// DeleteStaleData removes logs and statistics older than before.
func (s *Store) DeleteStaleData(ctx context.Context, before time.Time) (store.CleanupResult, error) {
	defer s.lock()()

	var res store.CleanupResult

	keptTriggers := s.st.triggerLogs[:0:0]
	for _, l := range s.st.triggerLogs {
		if l.TriggeredAt.Before(before) {
			res.TriggerLogs++
			continue
		}
		keptTriggers = append(keptTriggers, l)
	}
	s.st.triggerLogs = keptTriggers

	keptExec := s.st.execLogs[:0:0]
	for _, l := range s.st.execLogs {
		if l.ExecutionTime.Before(before) {
			res.ExecutionLogs++
			continue
		}
		keptExec = append(keptExec, l)
	}
	s.st.execLogs = keptExec

	cutoff := models.Day(before)
	for key, row := range s.st.stats {
		if row.date.Before(cutoff) {
			delete(s.st.stats, key)
			res.DailyStats++
		}
	}
	for key := range s.st.statUsers {
		if _, ok := s.st.stats[key.statKey]; !ok {
			delete(s.st.statUsers, key)
		}
	}
	return res, nil
}
