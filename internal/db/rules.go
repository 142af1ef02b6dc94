package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

const ruleColumns = `id, name, type, priority, enabled, effective_start, effective_end, effective_days,
	created_at, updated_at`

func scanRule(row pgx.Row) (*models.BusinessRule, error) {
	var r models.BusinessRule
	var start, end *int16
	var days []int16
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.Priority, &r.Enabled, &start, &end, &days, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if start != nil {
		t := models.TimeOfDay(*start)
		r.EffectiveStart = &t
	}
	if end != nil {
		t := models.TimeOfDay(*end)
		r.EffectiveEnd = &t
	}
	for _, d := range days {
		r.EffectiveDays = append(r.EffectiveDays, time.Weekday(d))
	}
	return &r, nil
}

func timeOfDayArg(t *models.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return int16(*t)
}

func weekdaysArg(days []time.Weekday) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

// decodeStoredConfig decodes a persisted config. Configs that no longer
// decode are kept as UnsupportedConfig so only that action fails.
func decodeStoredConfig(actionType string, raw []byte) models.ActionConfig {
	cfg, err := models.DecodeActionConfig(actionType, raw)
	if err != nil {
		slog.Warn("stored action config does not decode", "type", actionType, "error", err)
		return models.UnsupportedConfig{Type: actionType, Raw: raw}
	}
	return cfg
}

// loadRuleParts attaches conditions and actions to rules.
func (d *DB) loadRuleParts(ctx context.Context, rules []models.BusinessRule) error {
	if len(rules) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]int, len(rules))
	ids := make([]uuid.UUID, len(rules))
	for i, r := range rules {
		index[r.ID] = i
		ids[i] = r.ID
	}

	rows, err := d.q.Query(ctx, `
		SELECT id, rule_id, type, value, match_mode, case_sensitive, weight
		FROM rule_conditions WHERE rule_id = ANY($1)
		ORDER BY rule_id, position
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var c models.RuleCondition
		if err := rows.Scan(&c.ID, &c.RuleID, &c.Type, &c.Value, &c.MatchMode, &c.CaseSensitive, &c.Weight); err != nil {
			rows.Close()
			return err
		}
		i := index[c.RuleID]
		rules[i].Conditions = append(rules[i].Conditions, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = d.q.Query(ctx, `
		SELECT id, rule_id, type, config, execution_order
		FROM rule_actions WHERE rule_id = ANY($1)
		ORDER BY rule_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a models.RuleAction
		var raw []byte
		if err := rows.Scan(&a.ID, &a.RuleID, &a.Type, &raw, &a.ExecutionOrder); err != nil {
			return err
		}
		a.Config = decodeStoredConfig(a.Type, raw)
		i := index[a.RuleID]
		rules[i].Actions = append(rules[i].Actions, a)
	}
	return rows.Err()
}

// ListRules returns every rule ordered by priority then name.
func (d *DB) ListRules(ctx context.Context) ([]models.BusinessRule, error) {
	rows, err := d.q.Query(ctx, `SELECT `+ruleColumns+` FROM business_rules ORDER BY priority, name`)
	if err != nil {
		return nil, wrapErr("list rules", err)
	}
	var rules []models.BusinessRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			rows.Close()
			return nil, wrapErr("list rules", err)
		}
		rules = append(rules, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list rules", err)
	}
	if err := d.loadRuleParts(ctx, rules); err != nil {
		return nil, wrapErr("list rules", err)
	}
	return rules, nil
}

// GetRule retrieves a rule with its conditions and actions.
func (d *DB) GetRule(ctx context.Context, id uuid.UUID) (*models.BusinessRule, error) {
	what := fmt.Sprintf("rule %s", id)
	r, err := scanRule(d.q.QueryRow(ctx, `SELECT `+ruleColumns+` FROM business_rules WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(what, err)
	}
	rules := []models.BusinessRule{*r}
	if err := d.loadRuleParts(ctx, rules); err != nil {
		return nil, wrapErr(what, err)
	}
	return &rules[0], nil
}

// CreateRule inserts a rule with its conditions and actions.
func (d *DB) CreateRule(ctx context.Context, rule *models.BusinessRule) error {
	return d.InTx(ctx, func(s store.Store) error {
		tx := s.(*DB)
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		err := tx.q.QueryRow(ctx, `
			INSERT INTO business_rules (id, name, type, priority, enabled, effective_start, effective_end, effective_days)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`, rule.ID, rule.Name, rule.Type, rule.Priority, rule.Enabled,
			timeOfDayArg(rule.EffectiveStart), timeOfDayArg(rule.EffectiveEnd), weekdaysArg(rule.EffectiveDays),
		).Scan(&rule.CreatedAt, &rule.UpdatedAt)
		if err != nil {
			return wrapErr(fmt.Sprintf("rule %q", rule.Name), err)
		}
		return tx.insertRuleParts(ctx, rule)
	})
}

// UpdateRule replaces a rule including its conditions and actions.
func (d *DB) UpdateRule(ctx context.Context, rule *models.BusinessRule) error {
	return d.InTx(ctx, func(s store.Store) error {
		tx := s.(*DB)
		what := fmt.Sprintf("rule %s", rule.ID)
		err := tx.q.QueryRow(ctx, `
			UPDATE business_rules
			SET name = $2, type = $3, priority = $4, enabled = $5,
				effective_start = $6, effective_end = $7, effective_days = $8, updated_at = NOW()
			WHERE id = $1
			RETURNING created_at, updated_at
		`, rule.ID, rule.Name, rule.Type, rule.Priority, rule.Enabled,
			timeOfDayArg(rule.EffectiveStart), timeOfDayArg(rule.EffectiveEnd), weekdaysArg(rule.EffectiveDays),
		).Scan(&rule.CreatedAt, &rule.UpdatedAt)
		if err != nil {
			return wrapErr(what, err)
		}
		for _, stmt := range []string{
			`DELETE FROM rule_conditions WHERE rule_id = $1`,
			`DELETE FROM rule_actions WHERE rule_id = $1`,
		} {
			if _, err := tx.q.Exec(ctx, stmt, rule.ID); err != nil {
				return wrapErr(what, err)
			}
		}
		return tx.insertRuleParts(ctx, rule)
	})
}

func (d *DB) insertRuleParts(ctx context.Context, rule *models.BusinessRule) error {
	what := fmt.Sprintf("rule %q", rule.Name)
	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.RuleID = rule.ID
		_, err := d.q.Exec(ctx, `
			INSERT INTO rule_conditions (id, rule_id, position, type, value, match_mode, case_sensitive, weight)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, c.ID, c.RuleID, i, c.Type, c.Value, c.MatchMode, c.CaseSensitive, c.EffectiveWeight())
		if err != nil {
			return wrapErr(what, err)
		}
	}
	for i := range rule.Actions {
		a := &rule.Actions[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.RuleID = rule.ID
		raw, err := models.EncodeActionConfig(a.Config)
		if err != nil {
			return fmt.Errorf("%s: encode %s config: %w", what, a.Type, err)
		}
		_, err = d.q.Exec(ctx, `
			INSERT INTO rule_actions (id, rule_id, position, type, config, execution_order)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, a.RuleID, i, a.Type, []byte(raw), a.ExecutionOrder)
		if err != nil {
			return wrapErr(what, err)
		}
	}
	return nil
}

// DeleteRule removes a rule; conditions, actions and chain memberships
// cascade.
func (d *DB) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := d.q.Exec(ctx, `DELETE FROM business_rules WHERE id = $1`, id)
	return mustAffect(fmt.Sprintf("rule %s", id), tag, err)
}

// ListRuleChains returns every chain with relations in execution order.
func (d *DB) ListRuleChains(ctx context.Context) ([]models.RuleChain, error) {
	rows, err := d.q.Query(ctx, `SELECT id, name, enabled, created_at FROM rule_chains ORDER BY name`)
	if err != nil {
		return nil, wrapErr("list rule chains", err)
	}
	chains, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RuleChain, error) {
		var c models.RuleChain
		err := row.Scan(&c.ID, &c.Name, &c.Enabled, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, wrapErr("list rule chains", err)
	}
	if len(chains) == 0 {
		return chains, nil
	}

	index := make(map[uuid.UUID]int, len(chains))
	for i, c := range chains {
		index[c.ID] = i
	}
	rows, err = d.q.Query(ctx, `
		SELECT chain_id, rule_id, execution_order, condition_logic
		FROM rule_chain_relations
		ORDER BY chain_id, execution_order
	`)
	if err != nil {
		return nil, wrapErr("list rule chains", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rel models.RuleChainRelation
		if err := rows.Scan(&rel.ChainID, &rel.RuleID, &rel.ExecutionOrder, &rel.ConditionLogic); err != nil {
			return nil, wrapErr("list rule chains", err)
		}
		if i, ok := index[rel.ChainID]; ok {
			chains[i].Relations = append(chains[i].Relations, rel)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list rule chains", err)
	}
	return chains, nil
}

// CreateRuleChain inserts a chain and its relations. Unknown member rules
// yield ErrNotFound.
func (d *DB) CreateRuleChain(ctx context.Context, chain *models.RuleChain) error {
	return d.InTx(ctx, func(s store.Store) error {
		tx := s.(*DB)
		what := fmt.Sprintf("rule chain %q", chain.Name)
		err := tx.q.QueryRow(ctx, `
			INSERT INTO rule_chains (name, enabled) VALUES ($1, $2)
			RETURNING id, created_at
		`, chain.Name, chain.Enabled).Scan(&chain.ID, &chain.CreatedAt)
		if err != nil {
			return wrapErr(what, err)
		}
		for i := range chain.Relations {
			rel := &chain.Relations[i]
			rel.ChainID = chain.ID
			_, err := tx.q.Exec(ctx, `
				INSERT INTO rule_chain_relations (chain_id, rule_id, execution_order, condition_logic)
				VALUES ($1, $2, $3, $4)
			`, rel.ChainID, rel.RuleID, rel.ExecutionOrder, rel.ConditionLogic)
			if err != nil {
				return wrapErr(what, err)
			}
		}
		return nil
	})
}

// DeleteRuleChain removes a chain and its relations.
func (d *DB) DeleteRuleChain(ctx context.Context, id uuid.UUID) error {
	tag, err := d.q.Exec(ctx, `DELETE FROM rule_chains WHERE id = $1`, id)
	return mustAffect(fmt.Sprintf("rule chain %s", id), tag, err)
}

// InsertExecutionLog appends an execution log entry.
func (d *DB) InsertExecutionLog(ctx context.Context, entry *models.RuleExecutionLog) error {
	actions, err := json.Marshal(entry.ExecutedActions)
	if err != nil {
		return fmt.Errorf("encode executed actions: %w", err)
	}
	matched := entry.MatchedConditions
	if matched == nil {
		matched = []uuid.UUID{}
	}
	err = d.q.QueryRow(ctx, `
		INSERT INTO rule_execution_logs
			(rule_id, chain_id, message_id, trigger_content, matched_conditions, executed_actions,
			 result, error_message, execution_time, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, entry.RuleID, entry.ChainID, entry.MessageID, entry.TriggerContent, matched, actions,
		entry.Result, entry.ErrorMessage, entry.ExecutionTime, entry.DurationMs,
	).Scan(&entry.ID)
	return wrapErr("execution log", err)
}

// ListExecutionLogs returns the newest logs for a rule first.
func (d *DB) ListExecutionLogs(ctx context.Context, ruleID uuid.UUID, limit int) ([]models.RuleExecutionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.q.Query(ctx, `
		SELECT id, rule_id, chain_id, message_id, trigger_content, matched_conditions, executed_actions,
			result, error_message, execution_time, duration_ms
		FROM rule_execution_logs
		WHERE rule_id = $1
		ORDER BY execution_time DESC
		LIMIT $2
	`, ruleID, limit)
	if err != nil {
		return nil, wrapErr("list execution logs", err)
	}
	defer rows.Close()

	var logs []models.RuleExecutionLog
	for rows.Next() {
		var l models.RuleExecutionLog
		var actions []byte
		if err := rows.Scan(&l.ID, &l.RuleID, &l.ChainID, &l.MessageID, &l.TriggerContent, &l.MatchedConditions,
			&actions, &l.Result, &l.ErrorMessage, &l.ExecutionTime, &l.DurationMs); err != nil {
			return nil, wrapErr("list execution logs", err)
		}
		if err := json.Unmarshal(actions, &l.ExecutedActions); err != nil {
			return nil, fmt.Errorf("decode executed actions of log %s: %w", l.ID, err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list execution logs", err)
	}
	return logs, nil
}

// ListTriggerRules returns the trigger rules of a keyword, oldest first.
func (d *DB) ListTriggerRules(ctx context.Context, keywordID uuid.UUID) ([]models.KeywordTriggerRule, error) {
	rows, err := d.q.Query(ctx, `
		SELECT id, keyword_id, type, config, enabled, created_at
		FROM keyword_trigger_rules
		WHERE keyword_id = $1
		ORDER BY created_at
	`, keywordID)
	if err != nil {
		return nil, wrapErr("list trigger rules", err)
	}
	defer rows.Close()

	var out []models.KeywordTriggerRule
	for rows.Next() {
		var r models.KeywordTriggerRule
		var raw []byte
		if err := rows.Scan(&r.ID, &r.KeywordID, &r.Type, &raw, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, wrapErr("list trigger rules", err)
		}
		actionType, _ := models.ActionTypeForTrigger(r.Type)
		r.Config = decodeStoredConfig(actionType, raw)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list trigger rules", err)
	}
	return out, nil
}

// CreateTriggerRule inserts a trigger rule for an existing keyword.
func (d *DB) CreateTriggerRule(ctx context.Context, rule *models.KeywordTriggerRule) error {
	raw, err := models.EncodeActionConfig(rule.Config)
	if err != nil {
		return fmt.Errorf("encode %s trigger config: %w", rule.Type, err)
	}
	err = d.q.QueryRow(ctx, `
		INSERT INTO keyword_trigger_rules (keyword_id, type, config, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, rule.KeywordID, rule.Type, []byte(raw), rule.Enabled).Scan(&rule.ID, &rule.CreatedAt)
	return wrapErr(fmt.Sprintf("trigger rule for keyword %s", rule.KeywordID), err)
}

// DeleteTriggerRule removes a trigger rule.
func (d *DB) DeleteTriggerRule(ctx context.Context, id uuid.UUID) error {
	tag, err := d.q.Exec(ctx, `DELETE FROM keyword_trigger_rules WHERE id = $1`, id)
	return mustAffect(fmt.Sprintf("trigger rule %s", id), tag, err)
}
