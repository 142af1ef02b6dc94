// Package rules evaluates business rules against inbound messages and
// executes the actions of matching rules.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/cache"
	"keywordhub/internal/metrics"
	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

// DefaultActionTimeout bounds a single action when none is configured.
const DefaultActionTimeout = 5 * time.Second

const setKey = "rules"

// Deliverer is the transport collaborator for actions the engine does not
// handle itself. Implementations return errors wrapping
// internalerr.ErrDelivery.
type Deliverer interface {
	Deliver(ctx context.Context, cfg models.ActionConfig, payload models.ActionPayload) error
}

// Options tunes an Engine.
type Options struct {
	ActionTimeout time.Duration
	// Location is the zone rule windows are evaluated in. Defaults to UTC.
	Location *time.Location
	CacheTTL time.Duration
}

// Engine matches messages against business rules.
type Engine struct {
	store     store.RuleStore
	deliverer Deliverer
	set       *cache.Cache[*ruleSet]
	timeout   time.Duration
	loc       *time.Location
	now       func() time.Time
}

// New creates an Engine.
func New(st store.RuleStore, deliverer Deliverer, opts Options) *Engine {
	e := &Engine{
		store:     st,
		deliverer: deliverer,
		timeout:   opts.ActionTimeout,
		loc:       opts.Location,
		now:       time.Now,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultActionTimeout
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	e.set = cache.New[*ruleSet](1, ttl)
	return e
}

type compiledRule struct {
	rule   models.BusinessRule
	conds  []condition
	stages [][]models.RuleAction
}

type chainMember struct {
	rule  *compiledRule
	logic string
}

type compiledChain struct {
	chain   models.RuleChain
	members []chainMember
}

// ruleSet is the compiled snapshot evaluated per message.
type ruleSet struct {
	bare   []*compiledRule
	chains []compiledChain
}

func (e *Engine) load(ctx context.Context) (*ruleSet, error) {
	return e.set.GetOrLoad(ctx, setKey, func(ctx context.Context) (*ruleSet, error) {
		rules, err := e.store.ListRules(ctx)
		if err != nil {
			return nil, err
		}
		chains, err := e.store.ListRuleChains(ctx)
		if err != nil {
			return nil, err
		}
		return compile(rules, chains), nil
	})
}

func compile(rules []models.BusinessRule, chains []models.RuleChain) *ruleSet {
	byID := make(map[uuid.UUID]*compiledRule, len(rules))
	ordered := make([]*compiledRule, 0, len(rules))
	for _, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			slog.Error("skipping invalid rule", "rule", r.Name, "error", err)
			continue
		}
		byID[r.ID] = cr
		ordered = append(ordered, cr)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].rule.Priority < ordered[j].rule.Priority
	})

	set := &ruleSet{}
	chained := make(map[uuid.UUID]bool)
	for _, ch := range chains {
		if !ch.Enabled {
			continue
		}
		rels := append([]models.RuleChainRelation(nil), ch.Relations...)
		sort.SliceStable(rels, func(i, j int) bool { return rels[i].ExecutionOrder < rels[j].ExecutionOrder })

		cc := compiledChain{chain: ch}
		for _, rel := range rels {
			cr, ok := byID[rel.RuleID]
			if !ok {
				continue
			}
			cc.members = append(cc.members, chainMember{rule: cr, logic: rel.ConditionLogic})
			chained[rel.RuleID] = true
		}
		if len(cc.members) > 0 {
			set.chains = append(set.chains, cc)
		}
	}

	for _, cr := range ordered {
		if !chained[cr.rule.ID] {
			set.bare = append(set.bare, cr)
		}
	}
	return set
}

func compileRule(r models.BusinessRule) (*compiledRule, error) {
	cr := &compiledRule{rule: r}
	for _, c := range r.Conditions {
		cc, err := compileCondition(c)
		if err != nil {
			return nil, err
		}
		cr.conds = append(cr.conds, cc)
	}

	actions := append([]models.RuleAction(nil), r.Actions...)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].ExecutionOrder < actions[j].ExecutionOrder })
	for i, a := range actions {
		if i == 0 || a.ExecutionOrder != actions[i-1].ExecutionOrder {
			cr.stages = append(cr.stages, nil)
		}
		last := len(cr.stages) - 1
		cr.stages[last] = append(cr.stages[last], a)
	}
	return cr, nil
}

// Match is one rule that matched a message and the log written for it.
type Match struct {
	RuleID   uuid.UUID               `json:"rule_id"`
	RuleName string                  `json:"rule_name"`
	ChainID  *uuid.UUID              `json:"chain_id,omitempty"`
	Score    float64                 `json:"score"`
	Log      models.RuleExecutionLog `json:"log"`
}

// Evaluate matches msg against the enabled rules active at its receive
// time and runs the actions of every match. Bare rules are tried in
// ascending priority; rules that belong to an enabled chain only fire
// through their chain.
func (e *Engine) Evaluate(ctx context.Context, msg models.Message) ([]Match, error) {
	set, err := e.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	at := msg.ReceivedAt
	if at.IsZero() {
		at = e.now()
	}
	at = at.In(e.loc)

	var matches []Match
	for _, cr := range set.bare {
		if !e.eligible(cr, at) {
			continue
		}
		ev := evaluate(cr.conds, msg.Text)
		if !ev.matched {
			continue
		}
		matches = append(matches, e.fire(ctx, cr, nil, ev, msg))
	}

	for _, cc := range set.chains {
		matches = append(matches, e.evaluateChain(ctx, cc, msg, at)...)
	}
	return matches, nil
}

func (e *Engine) eligible(cr *compiledRule, at time.Time) bool {
	return cr.rule.Enabled && cr.rule.ActiveAt(at)
}

// evaluateChain folds member outcomes left to right with each relation's
// AND/OR logic. When the chain holds, every member that matched fires.
func (e *Engine) evaluateChain(ctx context.Context, cc compiledChain, msg models.Message, at time.Time) []Match {
	evs := make([]evaluation, len(cc.members))
	var holds bool
	for i, m := range cc.members {
		if e.eligible(m.rule, at) {
			evs[i] = evaluate(m.rule.conds, msg.Text)
		}
		switch {
		case i == 0:
			holds = evs[i].matched
		case m.logic == models.LogicOr:
			holds = holds || evs[i].matched
		default:
			holds = holds && evs[i].matched
		}
	}
	if !holds {
		return nil
	}

	chainID := cc.chain.ID
	var matches []Match
	for i, m := range cc.members {
		if evs[i].matched {
			matches = append(matches, e.fire(ctx, m.rule, &chainID, evs[i], msg))
		}
	}
	return matches
}

// fire runs a matched rule's actions and writes its execution log. Log
// write failures are logged and do not fail the match.
func (e *Engine) fire(ctx context.Context, cr *compiledRule, chainID *uuid.UUID, ev evaluation, msg models.Message) Match {
	start := e.now()
	payload := models.ActionPayload{
		Message: msg,
		Origin:  "rule",
		Rule:    cr.rule.Name,
	}
	outcomes := e.runActions(ctx, cr.stages, payload)

	var errs []string
	for _, o := range outcomes {
		if !o.Success {
			errs = append(errs, fmt.Sprintf("%s: %s", o.Type, o.Error))
		}
	}

	entry := models.RuleExecutionLog{
		RuleID:            cr.rule.ID,
		ChainID:           chainID,
		MessageID:         msg.ID,
		TriggerContent:    msg.Text,
		MatchedConditions: ev.ids,
		ExecutedActions:   outcomes,
		Result:            models.AggregateResult(outcomes),
		ErrorMessage:      strings.Join(errs, "; "),
		ExecutionTime:     start,
		DurationMs:        e.now().Sub(start).Milliseconds(),
	}
	if err := e.store.InsertExecutionLog(ctx, &entry); err != nil {
		slog.Error("failed to write rule execution log", "rule", cr.rule.Name, "message_id", msg.ID, "error", err)
	}
	metrics.RecordRuleExecution(entry.Result)

	return Match{
		RuleID:   cr.rule.ID,
		RuleName: cr.rule.Name,
		ChainID:  chainID,
		Score:    ev.score,
		Log:      entry,
	}
}
