package models

import (
	"time"

	"github.com/google/uuid"
)

// DailyKeywordStat aggregates one keyword's usage in one area on one day.
type DailyKeywordStat struct {
	KeywordID         uuid.UUID `json:"keyword_id"`
	Area              string    `json:"area"`
	Date              time.Time `json:"date"`
	HitCount          int       `json:"hit_count"`
	TriggerCount      int       `json:"trigger_count"`
	UniqueUsers       int       `json:"unique_users"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	SuccessRate       float64   `json:"success_rate"`

	// Populated by joins
	KeywordText string `json:"keyword_text,omitempty"`
}

// StatDelta is a single usage event folded into a DailyKeywordStat row.
type StatDelta struct {
	KeywordID      uuid.UUID
	Area           string
	Date           time.Time
	Hits           int
	Triggers       int
	UserID         string
	ResponseTimeMs int64
	Success        bool
}

// Day returns the calendar date of t as midnight UTC, matching how DATE
// columns are scanned.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
