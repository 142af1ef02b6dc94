// Package store defines the storage collaborator consumed by the keyword
// engine. Implementations live in internal/db (PostgreSQL) and
// internal/store/memstore (in-memory).
//
// Implementations wrap failures with the kinds in internal/internalerr:
// unknown ids yield ErrNotFound, uniqueness violations ErrConflict, and
// everything else ErrPersistence.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/models"
)

// KeywordFilter narrows ListKeywords.
type KeywordFilter struct {
	Area            *string // nil lists every area
	Source          string
	IncludeInactive bool
	Limit           int
}

// KeywordStore persists keywords and their trigger context.
type KeywordStore interface {
	GetKeyword(ctx context.Context, id uuid.UUID) (*models.Keyword, error)
	ListKeywords(ctx context.Context, filter KeywordFilter) ([]models.Keyword, error)

	// FindByText returns active keywords with exactly this text and area.
	FindByText(ctx context.Context, text string, area *string) ([]models.Keyword, error)

	// FindActiveByArea returns active keywords scoped to exactly this area;
	// a nil area returns unscoped keywords.
	FindActiveByArea(ctx context.Context, area *string) ([]models.Keyword, error)

	// ListAreas returns the distinct areas of active keywords.
	ListAreas(ctx context.Context) ([]string, error)

	CreateKeyword(ctx context.Context, kw *models.Keyword) error
	// UpdateKeyword stores kw's editable fields; HitCount is left alone and
	// refreshed from storage.
	UpdateKeyword(ctx context.Context, kw *models.Keyword) error
	DeactivateKeyword(ctx context.Context, id uuid.UUID) error

	// FindOrCreateKeyword returns the active keyword matching kw's text,
	// area and source, inserting kw when none exists.
	FindOrCreateKeyword(ctx context.Context, kw *models.Keyword) (*models.Keyword, error)

	// IncrementHitCount atomically adds delta and returns the new count.
	IncrementHitCount(ctx context.Context, id uuid.UUID, delta int) (int, error)

	InsertTriggerLog(ctx context.Context, entry *models.KeywordTriggerLog) error

	// RepointKeywordReferences moves statistics, logs and trigger rules
	// from one keyword to another.
	RepointKeywordReferences(ctx context.Context, fromID, toID uuid.UUID) error
}

// SubmissionStore persists promotion submissions.
type SubmissionStore interface {
	GetSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	PendingSubmission(ctx context.Context, text string, area *string) (*models.Submission, error)

	// CreateSubmission inserts a pending submission unless one is already
	// pending for the same text and area, in which case it returns false.
	CreateSubmission(ctx context.Context, sub *models.Submission) (bool, error)

	ListSubmissions(ctx context.Context, status string) ([]models.Submission, error)

	// UpdateSubmissionReview stores the review decision on a pending
	// submission. It reports false when the submission is no longer pending.
	UpdateSubmissionReview(ctx context.Context, sub *models.Submission) (bool, error)
}

// RedundancyStore persists detected redundancy pairs.
type RedundancyStore interface {
	UpsertRedundancyPair(ctx context.Context, pair *models.RedundancyPair) error
	GetRedundancyPair(ctx context.Context, a, b uuid.UUID) (*models.RedundancyPair, error)
	ListRedundancyPairs(ctx context.Context, status string) ([]models.RedundancyPair, error)
	SetRedundancyPairStatus(ctx context.Context, a, b uuid.UUID, status string, at time.Time) error
}

// RuleStore persists business rules, chains and execution logs.
type RuleStore interface {
	ListRules(ctx context.Context) ([]models.BusinessRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*models.BusinessRule, error)
	CreateRule(ctx context.Context, rule *models.BusinessRule) error
	UpdateRule(ctx context.Context, rule *models.BusinessRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error

	ListRuleChains(ctx context.Context) ([]models.RuleChain, error)
	CreateRuleChain(ctx context.Context, chain *models.RuleChain) error
	DeleteRuleChain(ctx context.Context, id uuid.UUID) error

	InsertExecutionLog(ctx context.Context, entry *models.RuleExecutionLog) error
	ListExecutionLogs(ctx context.Context, ruleID uuid.UUID, limit int) ([]models.RuleExecutionLog, error)
}

// TriggerRuleStore persists keyword trigger rules.
type TriggerRuleStore interface {
	ListTriggerRules(ctx context.Context, keywordID uuid.UUID) ([]models.KeywordTriggerRule, error)
	CreateTriggerRule(ctx context.Context, rule *models.KeywordTriggerRule) error
	DeleteTriggerRule(ctx context.Context, id uuid.UUID) error
}

// StatsStore is the writer and read model for daily keyword statistics.
type StatsStore interface {
	// UpsertDailyStat folds one usage event into its (keyword, area, day)
	// row atomically.
	UpsertDailyStat(ctx context.Context, delta models.StatDelta) error

	// DailyStatsBetween returns rows with from <= date <= to. A nil
	// keywordID returns rows for every keyword.
	DailyStatsBetween(ctx context.Context, keywordID *uuid.UUID, from, to time.Time) ([]models.DailyKeywordStat, error)
}

// CleanupResult counts rows removed by DeleteStaleData.
type CleanupResult struct {
	TriggerLogs   int64
	ExecutionLogs int64
	DailyStats    int64
}

// Store is the full storage collaborator.
type Store interface {
	KeywordStore
	SubmissionStore
	RedundancyStore
	RuleStore
	TriggerRuleStore
	StatsStore

	// InTx runs fn inside a transaction. fn's Store commits when fn returns
	// nil and rolls back otherwise. Calling InTx on a transactional Store
	// reuses the transaction.
	InTx(ctx context.Context, fn func(Store) error) error

	// DeleteStaleData removes logs and statistics older than before.
	DeleteStaleData(ctx context.Context, before time.Time) (CleanupResult, error)
}
