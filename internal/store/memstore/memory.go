// Package memstore is an in-memory implementation of store.Store used by
// tests and by the memory storage mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

type statKey struct {
	keywordID uuid.UUID
	area      string
	date      string
}

type statUserKey struct {
	statKey
	userID string
}

type statRow struct {
	keywordID     uuid.UUID
	area          string
	date          time.Time
	hits          int
	triggers      int
	users         int
	events        int
	successes     int
	responseTotal int64
}

type state struct {
	keywords     map[uuid.UUID]models.Keyword
	triggerLogs  []models.KeywordTriggerLog
	submissions  map[uuid.UUID]models.Submission
	pairs        map[[2]uuid.UUID]models.RedundancyPair
	rules        map[uuid.UUID]models.BusinessRule
	chains       map[uuid.UUID]models.RuleChain
	execLogs     []models.RuleExecutionLog
	triggerRules map[uuid.UUID]models.KeywordTriggerRule
	stats        map[statKey]statRow
	statUsers    map[statUserKey]struct{}
}

func newState() *state {
	return &state{
		keywords:     make(map[uuid.UUID]models.Keyword),
		submissions:  make(map[uuid.UUID]models.Submission),
		pairs:        make(map[[2]uuid.UUID]models.RedundancyPair),
		rules:        make(map[uuid.UUID]models.BusinessRule),
		chains:       make(map[uuid.UUID]models.RuleChain),
		triggerRules: make(map[uuid.UUID]models.KeywordTriggerRule),
		stats:        make(map[statKey]statRow),
		statUsers:    make(map[statUserKey]struct{}),
	}
}

// clone copies every table. Values are stored by value and replaced rather
// than mutated, so a shallow copy of each map is a consistent snapshot.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.keywords {
		c.keywords[k] = v
	}
	c.triggerLogs = append(c.triggerLogs, s.triggerLogs...)
	for k, v := range s.submissions {
		c.submissions[k] = v
	}
	for k, v := range s.pairs {
		c.pairs[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.chains {
		c.chains[k] = v
	}
	c.execLogs = append(c.execLogs, s.execLogs...)
	for k, v := range s.triggerRules {
		c.triggerRules[k] = v
	}
	for k, v := range s.stats {
		c.stats[k] = v
	}
	for k, v := range s.statUsers {
		c.statUsers[k] = v
	}
	return c
}

// Store is an in-memory store.Store. Stores handed to InTx callbacks share
// the tables of the Store that opened the transaction.
type Store struct {
	mu   *sync.RWMutex
	txMu *sync.Mutex
	st   *state
	now  func() time.Time
	inTx bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		mu:   &sync.RWMutex{},
		txMu: &sync.Mutex{},
		st:   newState(),
		now:  time.Now,
	}
}

// SetClock overrides the clock used for generated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// lock takes the write lock and returns its release. Writers outside a
// transaction also wait for the running transaction to finish, so a
// rollback never discards their writes.
func (s *Store) lock() func() {
	if !s.inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.Unlock()
		}
	}
}

// InTx serializes transactions and restores a snapshot when fn fails.
// Nested calls join the running transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	tx := &Store{mu: s.mu, txMu: s.txMu, st: s.st, now: s.now, inTx: true}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		*s.st = *snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func notFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, internalerr.ErrNotFound)
}

// ---- keywords ----

// GetKeyword returns a keyword by id.
func (s *Store) GetKeyword(ctx context.Context, id uuid.UUID) (*models.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kw, ok := s.st.keywords[id]
	if !ok {
		return nil, notFound("keyword", id)
	}
	return &kw, nil
}

// ListKeywords lists keywords ordered by text.
func (s *Store) ListKeywords(ctx context.Context, filter store.KeywordFilter) ([]models.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Keyword
	for _, kw := range s.st.keywords {
		if !filter.IncludeInactive && !kw.Active {
			continue
		}
		if filter.Area != nil && !models.SameArea(kw.Area, filter.Area) {
			continue
		}
		if filter.Source != "" && kw.Source != filter.Source {
			continue
		}
		out = append(out, kw)
	}
	sortKeywords(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// FindByText returns active keywords with the given text and area.
func (s *Store) FindByText(ctx context.Context, text string, area *string) ([]models.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Keyword
	for _, kw := range s.st.keywords {
		if kw.Active && kw.Text == text && models.SameArea(kw.Area, area) {
			out = append(out, kw)
		}
	}
	sortKeywords(out)
	return out, nil
}

// FindActiveByArea returns active keywords scoped to exactly area.
func (s *Store) FindActiveByArea(ctx context.Context, area *string) ([]models.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Keyword
	for _, kw := range s.st.keywords {
		if kw.Active && models.SameArea(kw.Area, area) {
			out = append(out, kw)
		}
	}
	sortKeywords(out)
	return out, nil
}

// ListAreas returns the distinct non-empty areas of active keywords.
func (s *Store) ListAreas(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, kw := range s.st.keywords {
		if !kw.Active || kw.Area == nil || seen[*kw.Area] {
			continue
		}
		seen[*kw.Area] = true
		out = append(out, *kw.Area)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) activeDuplicate(kw *models.Keyword) (models.Keyword, bool) {
	for _, existing := range s.st.keywords {
		if existing.ID == kw.ID || !existing.Active {
			continue
		}
		if existing.Text == kw.Text && existing.Source == kw.Source && models.SameArea(existing.Area, kw.Area) {
			return existing, true
		}
	}
	return models.Keyword{}, false
}

// CreateKeyword inserts a keyword, rejecting duplicates among active records.
func (s *Store) CreateKeyword(ctx context.Context, kw *models.Keyword) error {
	defer s.lock()()
	return s.createKeywordLocked(kw)
}

func (s *Store) createKeywordLocked(kw *models.Keyword) error {
	if kw.Active {
		if _, dup := s.activeDuplicate(kw); dup {
			return fmt.Errorf("keyword %q: %w", kw.Text, internalerr.ErrConflict)
		}
	}
	if kw.ID == uuid.Nil {
		kw.ID = uuid.New()
	}
	now := s.now()
	kw.CreatedAt = now
	kw.UpdatedAt = now
	s.st.keywords[kw.ID] = *kw
	return nil
}

// UpdateKeyword replaces a keyword's editable fields. The hit count only
// changes through IncrementHitCount.
func (s *Store) UpdateKeyword(ctx context.Context, kw *models.Keyword) error {
	defer s.lock()()

	existing, ok := s.st.keywords[kw.ID]
	if !ok {
		return notFound("keyword", kw.ID)
	}
	if kw.Active {
		if _, dup := s.activeDuplicate(kw); dup {
			return fmt.Errorf("keyword %q: %w", kw.Text, internalerr.ErrConflict)
		}
	}
	kw.HitCount = existing.HitCount
	kw.CreatedAt = existing.CreatedAt
	kw.UpdatedAt = s.now()
	s.st.keywords[kw.ID] = *kw
	return nil
}

// DeactivateKeyword soft-deletes a keyword.
func (s *Store) DeactivateKeyword(ctx context.Context, id uuid.UUID) error {
	defer s.lock()()

	kw, ok := s.st.keywords[id]
	if !ok {
		return notFound("keyword", id)
	}
	kw.Active = false
	kw.UpdatedAt = s.now()
	s.st.keywords[id] = kw
	return nil
}

// FindOrCreateKeyword returns the matching active keyword or inserts kw.
func (s *Store) FindOrCreateKeyword(ctx context.Context, kw *models.Keyword) (*models.Keyword, error) {
	defer s.lock()()

	probe := *kw
	probe.ID = uuid.Nil
	if existing, ok := s.activeDuplicate(&probe); ok {
		return &existing, nil
	}
	created := *kw
	created.Active = true
	if err := s.createKeywordLocked(&created); err != nil {
		return nil, err
	}
	return &created, nil
}

// IncrementHitCount adds delta to a keyword's hit count.
func (s *Store) IncrementHitCount(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	defer s.lock()()

	kw, ok := s.st.keywords[id]
	if !ok {
		return 0, notFound("keyword", id)
	}
	kw.HitCount += delta
	kw.UpdatedAt = s.now()
	s.st.keywords[id] = kw
	return kw.HitCount, nil
}

// InsertTriggerLog appends a trigger context entry.
func (s *Store) InsertTriggerLog(ctx context.Context, entry *models.KeywordTriggerLog) error {
	defer s.lock()()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.TriggeredAt.IsZero() {
		entry.TriggeredAt = s.now()
	}
	s.st.triggerLogs = append(s.st.triggerLogs, *entry)
	return nil
}

// TriggerLogs returns a copy of the trigger log for inspection in tests.
func (s *Store) TriggerLogs() []models.KeywordTriggerLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.KeywordTriggerLog(nil), s.st.triggerLogs...)
}

// RepointKeywordReferences moves stats, logs and trigger rules to toID.
func (s *Store) RepointKeywordReferences(ctx context.Context, fromID, toID uuid.UUID) error {
	defer s.lock()()

	if _, ok := s.st.keywords[toID]; !ok {
		return notFound("keyword", toID)
	}

	for i := range s.st.triggerLogs {
		if s.st.triggerLogs[i].KeywordID == fromID {
			s.st.triggerLogs[i].KeywordID = toID
		}
	}
	for id, r := range s.st.triggerRules {
		if r.KeywordID == fromID {
			r.KeywordID = toID
			s.st.triggerRules[id] = r
		}
	}
	for key, row := range s.st.stats {
		if key.keywordID != fromID {
			continue
		}
		delete(s.st.stats, key)
		target := statKey{keywordID: toID, area: key.area, date: key.date}
		merged, ok := s.st.stats[target]
		if !ok {
			merged = statRow{keywordID: toID, area: row.area, date: row.date}
		}
		merged.hits += row.hits
		merged.triggers += row.triggers
		merged.events += row.events
		merged.successes += row.successes
		merged.responseTotal += row.responseTotal
		s.st.stats[target] = merged
	}
	for key := range s.st.statUsers {
		if key.keywordID == fromID {
			delete(s.st.statUsers, key)
			key.keywordID = toID
			s.st.statUsers[key] = struct{}{}
		}
	}

	// Distinct users are recounted since both keywords may share a user.
	counts := make(map[statKey]int)
	for key := range s.st.statUsers {
		if key.keywordID == toID {
			counts[key.statKey]++
		}
	}
	for key, row := range s.st.stats {
		if key.keywordID == toID {
			row.users = max(counts[key], row.users)
			s.st.stats[key] = row
		}
	}
	return nil
}

func sortKeywords(kws []models.Keyword) {
	sort.Slice(kws, func(i, j int) bool {
		if kws[i].Text != kws[j].Text {
			return kws[i].Text < kws[j].Text
		}
		if kws[i].Weight != kws[j].Weight {
			return kws[i].Weight < kws[j].Weight
		}
		return kws[i].CreatedAt.Before(kws[j].CreatedAt)
	})
}

// ---- submissions ----

// GetSubmission returns a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.st.submissions[id]
	if !ok {
		return nil, notFound("submission", id)
	}
	return &sub, nil
}

// PendingSubmission returns the pending submission for text and area.
func (s *Store) PendingSubmission(ctx context.Context, text string, area *string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.pendingLocked(text, area); ok {
		return &sub, nil
	}
	return nil, notFound("pending submission", text)
}

func (s *Store) pendingLocked(text string, area *string) (models.Submission, bool) {
	for _, sub := range s.st.submissions {
		if sub.IsPending() && sub.KeywordText == text && models.SameArea(sub.Area, area) {
			return sub, true
		}
	}
	return models.Submission{}, false
}

// CreateSubmission inserts a pending submission if none is pending.
func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) (bool, error) {
	defer s.lock()()

	if _, exists := s.pendingLocked(sub.KeywordText, sub.Area); exists {
		return false, nil
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.Status = models.StatusPending
	sub.SubmittedAt = s.now()
	s.st.submissions[sub.ID] = *sub
	return true, nil
}

// ListSubmissions lists submissions with the given status, oldest first.
func (s *Store) ListSubmissions(ctx context.Context, status string) ([]models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Submission
	for _, sub := range s.st.submissions {
		if status == "" || sub.Status == status {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// UpdateSubmissionReview stores review fields on a pending submission.
func (s *Store) UpdateSubmissionReview(ctx context.Context, sub *models.Submission) (bool, error) {
	defer s.lock()()

	existing, ok := s.st.submissions[sub.ID]
	if !ok {
		return false, notFound("submission", sub.ID)
	}
	if !existing.IsPending() {
		return false, nil
	}
	existing.Status = sub.Status
	existing.ReviewedBy = sub.ReviewedBy
	existing.ReviewNotes = sub.ReviewNotes
	existing.ReviewedAt = sub.ReviewedAt
	s.st.submissions[sub.ID] = existing
	return true, nil
}

// ---- redundancy ----

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	a, b = models.OrderPair(a, b)
	return [2]uuid.UUID{a, b}
}

// UpsertRedundancyPair records a pair; an existing pair keeps its status and
// detection time and takes the new similarity.
func (s *Store) UpsertRedundancyPair(ctx context.Context, pair *models.RedundancyPair) error {
	defer s.lock()()

	key := pairKey(pair.KeywordIDA, pair.KeywordIDB)
	pair.KeywordIDA, pair.KeywordIDB = key[0], key[1]
	if existing, ok := s.st.pairs[key]; ok {
		existing.Similarity = pair.Similarity
		s.st.pairs[key] = existing
		*pair = existing
		return nil
	}
	if pair.Status == "" {
		pair.Status = models.PairDetected
	}
	pair.DetectedAt = s.now()
	s.st.pairs[key] = *pair
	return nil
}

// GetRedundancyPair returns a pair in either order.
func (s *Store) GetRedundancyPair(ctx context.Context, a, b uuid.UUID) (*models.RedundancyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pair, ok := s.st.pairs[pairKey(a, b)]
	if !ok {
		return nil, notFound("redundancy pair", fmt.Sprintf("%s/%s", a, b))
	}
	return &pair, nil
}

// ListRedundancyPairs lists pairs by descending similarity.
func (s *Store) ListRedundancyPairs(ctx context.Context, status string) ([]models.RedundancyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RedundancyPair
	for _, p := range s.st.pairs {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// SetRedundancyPairStatus marks a pair processed.
func (s *Store) SetRedundancyPairStatus(ctx context.Context, a, b uuid.UUID, status string, at time.Time) error {
	defer s.lock()()

	key := pairKey(a, b)
	pair, ok := s.st.pairs[key]
	if !ok {
		return notFound("redundancy pair", fmt.Sprintf("%s/%s", a, b))
	}
	pair.Status = status
	pair.ProcessedAt = &at
	s.st.pairs[key] = pair
	return nil
}
