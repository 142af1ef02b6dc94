package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"keywordhub/internal/models"
)

// The engine owns rule mutations so its compiled rule cache is dropped
// after each one.

// Invalidate drops the compiled rule set.
func (e *Engine) Invalidate() {
	e.set.Invalidate(setKey)
}

// Rules lists every rule.
func (e *Engine) Rules(ctx context.Context) ([]models.BusinessRule, error) {
	return e.store.ListRules(ctx)
}

// Rule returns one rule.
func (e *Engine) Rule(ctx context.Context, id uuid.UUID) (*models.BusinessRule, error) {
	return e.store.GetRule(ctx, id)
}

// CreateRule validates and stores a rule.
func (e *Engine) CreateRule(ctx context.Context, rule *models.BusinessRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := e.store.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("create rule %q: %w", rule.Name, err)
	}
	e.Invalidate()
	return nil
}

// UpdateRule validates and replaces a rule.
func (e *Engine) UpdateRule(ctx context.Context, rule *models.BusinessRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	e.Invalidate()
	return nil
}

// DeleteRule removes a rule.
func (e *Engine) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := e.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	e.Invalidate()
	return nil
}

// Chains lists every rule chain.
func (e *Engine) Chains(ctx context.Context) ([]models.RuleChain, error) {
	return e.store.ListRuleChains(ctx)
}

// CreateChain validates and stores a chain.
func (e *Engine) CreateChain(ctx context.Context, chain *models.RuleChain) error {
	if err := chain.Validate(); err != nil {
		return err
	}
	if err := e.store.CreateRuleChain(ctx, chain); err != nil {
		return fmt.Errorf("create chain %q: %w", chain.Name, err)
	}
	e.Invalidate()
	return nil
}

// DeleteChain removes a chain; its rules become bare rules again.
func (e *Engine) DeleteChain(ctx context.Context, id uuid.UUID) error {
	if err := e.store.DeleteRuleChain(ctx, id); err != nil {
		return fmt.Errorf("delete chain %s: %w", id, err)
	}
	e.Invalidate()
	return nil
}

// Logs returns the newest execution logs of a rule.
func (e *Engine) Logs(ctx context.Context, ruleID uuid.UUID, limit int) ([]models.RuleExecutionLog, error) {
	if _, err := e.store.GetRule(ctx, ruleID); err != nil {
		return nil, err
	}
	return e.store.ListExecutionLogs(ctx, ruleID, limit)
}
