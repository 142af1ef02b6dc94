package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
)

func assignRuleIDs(rule *models.BusinessRule) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	conditions := make([]models.RuleCondition, len(rule.Conditions))
	for i, c := range rule.Conditions {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.RuleID = rule.ID
		conditions[i] = c
	}
	rule.Conditions = conditions

	actions := make([]models.RuleAction, len(rule.Actions))
	for i, a := range rule.Actions {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.RuleID = rule.ID
		actions[i] = a
	}
	rule.Actions = actions
}

// ListRules returns every rule ordered by priority then name.
func (s *Store) ListRules(ctx context.Context) ([]models.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.BusinessRule, 0, len(s.st.rules))
	for _, r := range s.st.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetRule returns a rule by id.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*models.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.st.rules[id]
	if !ok {
		return nil, notFound("rule", id)
	}
	return &r, nil
}

// CreateRule inserts a rule with its conditions and actions.
func (s *Store) CreateRule(ctx context.Context, rule *models.BusinessRule) error {
	defer s.lock()()

	for _, existing := range s.st.rules {
		if existing.Name == rule.Name {
			return fmt.Errorf("rule %q: %w", rule.Name, internalerr.ErrConflict)
		}
	}
	assignRuleIDs(rule)
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.st.rules[rule.ID] = *rule
	return nil
}

// UpdateRule replaces a rule including its conditions and actions.
func (s *Store) UpdateRule(ctx context.Context, rule *models.BusinessRule) error {
	defer s.lock()()

	existing, ok := s.st.rules[rule.ID]
	if !ok {
		return notFound("rule", rule.ID)
	}
	assignRuleIDs(rule)
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()
	s.st.rules[rule.ID] = *rule
	return nil
}

// DeleteRule removes a rule and its chain memberships.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	defer s.lock()()

	if _, ok := s.st.rules[id]; !ok {
		return notFound("rule", id)
	}
	delete(s.st.rules, id)
	for cid, chain := range s.st.chains {
		var kept []models.RuleChainRelation
		for _, rel := range chain.Relations {
			if rel.RuleID != id {
				kept = append(kept, rel)
			}
		}
		chain.Relations = kept
		s.st.chains[cid] = chain
	}
	return nil
}

// ListRuleChains returns every chain with relations ordered by execution order.
func (s *Store) ListRuleChains(ctx context.Context) ([]models.RuleChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RuleChain, 0, len(s.st.chains))
	for _, c := range s.st.chains {
		rels := append([]models.RuleChainRelation(nil), c.Relations...)
		sort.SliceStable(rels, func(i, j int) bool { return rels[i].ExecutionOrder < rels[j].ExecutionOrder })
		c.Relations = rels
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateRuleChain inserts a chain; every member rule must exist.
func (s *Store) CreateRuleChain(ctx context.Context, chain *models.RuleChain) error {
	defer s.lock()()

	for _, rel := range chain.Relations {
		if _, ok := s.st.rules[rel.RuleID]; !ok {
			return notFound("rule", rel.RuleID)
		}
	}
	if chain.ID == uuid.Nil {
		chain.ID = uuid.New()
	}
	rels := make([]models.RuleChainRelation, len(chain.Relations))
	for i, rel := range chain.Relations {
		rel.ChainID = chain.ID
		rels[i] = rel
	}
	chain.Relations = rels
	chain.CreatedAt = s.now()
	s.st.chains[chain.ID] = *chain
	return nil
}

// DeleteRuleChain removes a chain.
func (s *Store) DeleteRuleChain(ctx context.Context, id uuid.UUID) error {
	defer s.lock()()

	if _, ok := s.st.chains[id]; !ok {
		return notFound("rule chain", id)
	}
	delete(s.st.chains, id)
	return nil
}

// InsertExecutionLog appends an execution log entry.
func (s *Store) InsertExecutionLog(ctx context.Context, entry *models.RuleExecutionLog) error {
	defer s.lock()()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.st.execLogs = append(s.st.execLogs, *entry)
	return nil
}

// ListExecutionLogs returns the newest logs for a rule first.
func (s *Store) ListExecutionLogs(ctx context.Context, ruleID uuid.UUID, limit int) ([]models.RuleExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RuleExecutionLog
	for i := len(s.st.execLogs) - 1; i >= 0; i-- {
		if s.st.execLogs[i].RuleID != ruleID {
			continue
		}
		out = append(out, s.st.execLogs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ExecutionLogs returns a copy of every execution log for inspection in tests.
func (s *Store) ExecutionLogs() []models.RuleExecutionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RuleExecutionLog(nil), s.st.execLogs...)
}

// ---- trigger rules ----

// ListTriggerRules returns the trigger rules of a keyword, oldest first.
func (s *Store) ListTriggerRules(ctx context.Context, keywordID uuid.UUID) ([]models.KeywordTriggerRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.KeywordTriggerRule
	for _, r := range s.st.triggerRules {
		if r.KeywordID == keywordID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CreateTriggerRule inserts a trigger rule for an existing keyword.
func (s *Store) CreateTriggerRule(ctx context.Context, rule *models.KeywordTriggerRule) error {
	defer s.lock()()

	if _, ok := s.st.keywords[rule.KeywordID]; !ok {
		return notFound("keyword", rule.KeywordID)
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = s.now()
	s.st.triggerRules[rule.ID] = *rule
	return nil
}

// DeleteTriggerRule removes a trigger rule.
func (s *Store) DeleteTriggerRule(ctx context.Context, id uuid.UUID) error {
	defer s.lock()()

	if _, ok := s.st.triggerRules[id]; !ok {
		return notFound("trigger rule", id)
	}
	delete(s.st.triggerRules, id)
	return nil
}
