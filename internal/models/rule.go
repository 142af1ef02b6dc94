package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
)

// Condition type constants.
const (
	ConditionKeyword = "keyword"
	ConditionPhrase  = "phrase"
	ConditionRegex   = "regex"
	ConditionExact   = "exact"
)

// Match mode constants.
const (
	MatchContains   = "contains"
	MatchEquals     = "equals"
	MatchStartsWith = "starts_with"
	MatchEndsWith   = "ends_with"
)

// Chain condition logic constants.
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Execution result constants.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultPartial = "partial"
)

// BusinessRule matches message text against conditions and runs actions.
type BusinessRule struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Priority       int             `json:"priority"`
	Enabled        bool            `json:"enabled"`
	EffectiveStart *TimeOfDay      `json:"effective_start"`
	EffectiveEnd   *TimeOfDay      `json:"effective_end"`
	EffectiveDays  []time.Weekday  `json:"effective_days"`
	Conditions     []RuleCondition `json:"conditions"`
	Actions        []RuleAction    `json:"actions"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ActiveAt reports whether the rule's time-of-day window and weekday mask
// include t. Unset window bounds and an empty mask do not restrict.
func (r *BusinessRule) ActiveAt(t time.Time) bool {
	if len(r.EffectiveDays) > 0 {
		found := false
		for _, d := range r.EffectiveDays {
			if d == t.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	tod := TimeOfDayOf(t)
	start, end := r.EffectiveStart, r.EffectiveEnd
	switch {
	case start == nil && end == nil:
		return true
	case start != nil && end == nil:
		return tod >= *start
	case start == nil && end != nil:
		return tod < *end
	case *start == *end:
		return true
	case *start < *end:
		return tod >= *start && tod < *end
	default:
		// window wraps past midnight
		return tod >= *start || tod < *end
	}
}

// Validate checks the rule and its conditions and actions.
func (r *BusinessRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required: %w", internalerr.ErrValidation)
	}
	for _, d := range r.EffectiveDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d: %w", d, internalerr.ErrValidation)
		}
	}
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return err
		}
	}
	for i := range r.Actions {
		if r.Actions[i].Config == nil {
			return fmt.Errorf("action %d has no config: %w", i, internalerr.ErrValidation)
		}
		if _, ok := r.Actions[i].Config.(UnsupportedConfig); ok {
			return fmt.Errorf("unknown action type %q: %w", r.Actions[i].Type, internalerr.ErrValidation)
		}
	}
	return nil
}

// RuleCondition is one test applied to the message text.
type RuleCondition struct {
	ID            uuid.UUID `json:"id"`
	RuleID        uuid.UUID `json:"rule_id"`
	Type          string    `json:"type"`
	Value         string    `json:"value"`
	MatchMode     string    `json:"match_mode"`
	CaseSensitive bool      `json:"case_sensitive"`
	Weight        float64   `json:"weight"`
}

// EffectiveWeight returns the weight, defaulting to 1.
func (c *RuleCondition) EffectiveWeight() float64 {
	if c.Weight <= 0 {
		return 1
	}
	return c.Weight
}

// Validate checks required fields and compiles regex patterns.
func (c *RuleCondition) Validate() error {
	if c.Value == "" {
		return fmt.Errorf("condition value is required: %w", internalerr.ErrValidation)
	}
	switch c.Type {
	case ConditionKeyword, ConditionPhrase, ConditionExact:
	case ConditionRegex:
		if _, err := regexp.Compile(c.Value); err != nil {
			return fmt.Errorf("condition regex %q: %v: %w", c.Value, err, internalerr.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown condition type %q: %w", c.Type, internalerr.ErrValidation)
	}
	switch c.MatchMode {
	case "", MatchContains, MatchEquals, MatchStartsWith, MatchEndsWith:
	default:
		return fmt.Errorf("unknown match mode %q: %w", c.MatchMode, internalerr.ErrValidation)
	}
	return nil
}

// RuleAction is one step executed when a rule matches.
type RuleAction struct {
	ID             uuid.UUID    `json:"id"`
	RuleID         uuid.UUID    `json:"rule_id"`
	Type           string       `json:"type"`
	Config         ActionConfig `json:"config"`
	ExecutionOrder int          `json:"execution_order"`
}

type ruleActionJSON struct {
	ID             uuid.UUID       `json:"id"`
	RuleID         uuid.UUID       `json:"rule_id"`
	Type           string          `json:"type"`
	Config         json.RawMessage `json:"config"`
	ExecutionOrder int             `json:"execution_order"`
}

// UnmarshalJSON decodes the config into its typed variant.
func (a *RuleAction) UnmarshalJSON(b []byte) error {
	var aux ruleActionJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	cfg, err := DecodeActionConfig(aux.Type, aux.Config)
	if err != nil {
		return err
	}
	*a = RuleAction{
		ID:             aux.ID,
		RuleID:         aux.RuleID,
		Type:           aux.Type,
		Config:         cfg,
		ExecutionOrder: aux.ExecutionOrder,
	}
	return nil
}

// RuleChain groups rules whose outcomes are combined with AND/OR logic.
type RuleChain struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	Enabled   bool                `json:"enabled"`
	Relations []RuleChainRelation `json:"relations"`
	CreatedAt time.Time           `json:"created_at"`
}

// RuleChainRelation places a rule in a chain. ConditionLogic says how the
// rule's outcome combines with the outcome accumulated so far; it is ignored
// for the first relation.
type RuleChainRelation struct {
	ChainID        uuid.UUID `json:"chain_id"`
	RuleID         uuid.UUID `json:"rule_id"`
	ExecutionOrder int       `json:"execution_order"`
	ConditionLogic string    `json:"condition_logic"`
}

// Validate checks chain structure.
func (c *RuleChain) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("chain name is required: %w", internalerr.ErrValidation)
	}
	if len(c.Relations) == 0 {
		return fmt.Errorf("chain %q has no rules: %w", c.Name, internalerr.ErrValidation)
	}
	seen := make(map[uuid.UUID]bool, len(c.Relations))
	for _, rel := range c.Relations {
		if rel.ConditionLogic != LogicAnd && rel.ConditionLogic != LogicOr {
			return fmt.Errorf("chain %q: condition logic %q: %w", c.Name, rel.ConditionLogic, internalerr.ErrValidation)
		}
		if seen[rel.RuleID] {
			return fmt.Errorf("chain %q lists rule %s twice: %w", c.Name, rel.RuleID, internalerr.ErrValidation)
		}
		seen[rel.RuleID] = true
	}
	return nil
}

// ActionOutcome is the result of executing one action.
type ActionOutcome struct {
	ActionID       uuid.UUID `json:"action_id"`
	Type           string    `json:"type"`
	ExecutionOrder int       `json:"execution_order"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

// RuleExecutionLog is the append-only audit record of one rule match.
type RuleExecutionLog struct {
	ID                uuid.UUID       `json:"id"`
	RuleID            uuid.UUID       `json:"rule_id"`
	ChainID           *uuid.UUID      `json:"chain_id,omitempty"`
	MessageID         string          `json:"message_id"`
	TriggerContent    string          `json:"trigger_content"`
	MatchedConditions []uuid.UUID     `json:"matched_conditions"`
	ExecutedActions   []ActionOutcome `json:"executed_actions"`
	Result            string          `json:"result"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ExecutionTime     time.Time       `json:"execution_time"`
	DurationMs        int64           `json:"duration_ms"`
}

// AggregateResult folds action outcomes into a single result: success when
// every action succeeded (or there were none), failed when all failed, and
// partial otherwise.
func AggregateResult(outcomes []ActionOutcome) string {
	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	switch {
	case failed == 0:
		return ResultSuccess
	case failed == len(outcomes):
		return ResultFailed
	default:
		return ResultPartial
	}
}
