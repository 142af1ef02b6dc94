package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
	"keywordhub/internal/store/memstore"
)

type recordingDeliverer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	block bool
}

func (d *recordingDeliverer) Deliver(ctx context.Context, cfg models.ActionConfig, payload models.ActionPayload) error {
	if d.block {
		<-make(chan struct{})
	}
	d.mu.Lock()
	d.calls = append(d.calls, cfg.ActionType())
	d.mu.Unlock()
	if d.fail[cfg.ActionType()] {
		return fmt.Errorf("gateway down: %w", internalerr.ErrDelivery)
	}
	return nil
}

func newEngine(t *testing.T, d Deliverer) (*Engine, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return New(st, d, Options{ActionTimeout: 100 * time.Millisecond}), st
}

func keywordCond(value string) models.RuleCondition {
	return models.RuleCondition{Type: models.ConditionKeyword, Value: value, MatchMode: models.MatchContains}
}

func logAction(order int) models.RuleAction {
	return models.RuleAction{Type: models.ActionLog, Config: models.LogConfig{Level: "info"}, ExecutionOrder: order}
}

func mustRule(t *testing.T, e *Engine, rule models.BusinessRule) models.BusinessRule {
	t.Helper()
	rule.Enabled = true
	if rule.Name == "" {
		rule.Name = uuid.NewString()
	}
	if err := e.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	return rule
}

func evaluateText(t *testing.T, e *Engine, text string) []Match {
	t.Helper()
	got, err := e.Evaluate(context.Background(), models.Message{ID: "m1", Text: text})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return got
}

func TestEvaluate_LogActionOnMatch(t *testing.T) {
	e, st := newEngine(t, nil)
	rule := mustRule(t, e, models.BusinessRule{
		Name:       "fault report",
		Conditions: []models.RuleCondition{keywordCond("故障")},
		Actions:    []models.RuleAction{logAction(1)},
	})

	got := evaluateText(t, e, "设备故障报修")
	if len(got) != 1 {
		t.Fatalf("Evaluate() matched %d rules, want 1", len(got))
	}
	logs := st.ExecutionLogs()
	if len(logs) != 1 {
		t.Fatalf("execution logs = %d, want 1", len(logs))
	}
	entry := logs[0]
	if entry.RuleID != rule.ID || entry.Result != models.ResultSuccess {
		t.Errorf("log = rule %s result %q, want %s success", entry.RuleID, entry.Result, rule.ID)
	}
	if len(entry.ExecutedActions) != 1 || !entry.ExecutedActions[0].Success {
		t.Errorf("ExecutedActions = %+v, want one successful action", entry.ExecutedActions)
	}
	if len(entry.MatchedConditions) != 1 || entry.MatchedConditions[0] != rule.Conditions[0].ID {
		t.Errorf("MatchedConditions = %v, want [%s]", entry.MatchedConditions, rule.Conditions[0].ID)
	}
	if entry.MessageID != "m1" || entry.TriggerContent != "设备故障报修" {
		t.Errorf("log message = %q/%q", entry.MessageID, entry.TriggerContent)
	}
}

func TestEvaluate_NoConditionsNeverMatches(t *testing.T) {
	e, st := newEngine(t, nil)
	mustRule(t, e, models.BusinessRule{Actions: []models.RuleAction{logAction(1)}})

	for _, text := range []string{"", "anything", "设备故障报修"} {
		if got := evaluateText(t, e, text); len(got) != 0 {
			t.Errorf("Evaluate(%q) matched %d rules, want 0", text, len(got))
		}
	}
	if n := len(st.ExecutionLogs()); n != 0 {
		t.Errorf("execution logs = %d, want 0", n)
	}
}

func TestEvaluate_ConditionsAreANDed(t *testing.T) {
	e, _ := newEngine(t, nil)
	mustRule(t, e, models.BusinessRule{
		Conditions: []models.RuleCondition{keywordCond("停电"), keywordCond("抢修")},
	})

	if got := evaluateText(t, e, "小区停电"); len(got) != 0 {
		t.Errorf("partial match fired %d rules, want 0", len(got))
	}
	if got := evaluateText(t, e, "小区停电需要抢修"); len(got) != 1 {
		t.Errorf("full match fired %d rules, want 1", len(got))
	}
}

func TestConditionMatch(t *testing.T) {
	tests := []struct {
		name string
		cond models.RuleCondition
		text string
		want bool
	}{
		{"contains", models.RuleCondition{Type: models.ConditionKeyword, Value: "fault"}, "Meter FAULT today", true},
		{"contains case sensitive", models.RuleCondition{Type: models.ConditionKeyword, Value: "fault", CaseSensitive: true}, "Meter FAULT", false},
		{"equals", models.RuleCondition{Type: models.ConditionPhrase, Value: "no power", MatchMode: models.MatchEquals}, "No Power", true},
		{"equals rejects longer", models.RuleCondition{Type: models.ConditionPhrase, Value: "no power", MatchMode: models.MatchEquals}, "no power here", false},
		{"starts with", models.RuleCondition{Type: models.ConditionPhrase, Value: "urgent", MatchMode: models.MatchStartsWith}, "URGENT: line down", true},
		{"ends with", models.RuleCondition{Type: models.ConditionKeyword, Value: "报修", MatchMode: models.MatchEndsWith}, "设备故障报修", true},
		{"ends with miss", models.RuleCondition{Type: models.ConditionKeyword, Value: "故障", MatchMode: models.MatchEndsWith}, "设备故障报修", false},
		{"exact", models.RuleCondition{Type: models.ConditionExact, Value: "查询电费"}, " 查询电费 ", true},
		{"exact substring", models.RuleCondition{Type: models.ConditionExact, Value: "电费"}, "查询电费", false},
		{"regex", models.RuleCondition{Type: models.ConditionRegex, Value: `户号\d{6}`}, "我的户号123456", true},
		{"regex case folded", models.RuleCondition{Type: models.ConditionRegex, Value: `^meter \d+`}, "METER 42 broken", true},
		{"regex miss", models.RuleCondition{Type: models.ConditionRegex, Value: `^\d+$`}, "12a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := compileCondition(tt.cond)
			if err != nil {
				t.Fatalf("compileCondition() error = %v", err)
			}
			if got := c.match(tt.text); got != tt.want {
				t.Errorf("match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCreateRule_RejectsBadRegex(t *testing.T) {
	e, _ := newEngine(t, nil)
	rule := models.BusinessRule{
		Name:       "broken",
		Conditions: []models.RuleCondition{{Type: models.ConditionRegex, Value: "(unclosed"}},
	}
	if err := e.CreateRule(context.Background(), &rule); !errors.Is(err, internalerr.ErrValidation) {
		t.Errorf("CreateRule() error = %v, want ErrValidation", err)
	}
}

func TestEvaluate_ResultAggregation(t *testing.T) {
	d := &recordingDeliverer{fail: map[string]bool{models.ActionWebhook: true, models.ActionSms: true}}
	e, st := newEngine(t, d)
	webhook := models.RuleAction{Type: models.ActionWebhook, Config: models.WebhookConfig{URL: "http://example.com/hook"}, ExecutionOrder: 1}
	sms := models.RuleAction{Type: models.ActionSms, Config: models.SmsConfig{Phones: []string{"13800000000"}, Content: "x"}, ExecutionOrder: 2}
	reply := models.RuleAction{Type: models.ActionAutoReply, Config: models.AutoReplyConfig{Content: "received"}, ExecutionOrder: 3}

	mustRule(t, e, models.BusinessRule{Name: "partial", Conditions: []models.RuleCondition{keywordCond("a")}, Actions: []models.RuleAction{webhook, reply}})
	mustRule(t, e, models.BusinessRule{Name: "failed", Conditions: []models.RuleCondition{keywordCond("b")}, Actions: []models.RuleAction{webhook, sms}})

	evaluateText(t, e, "a")
	evaluateText(t, e, "b")

	logs := st.ExecutionLogs()
	if len(logs) != 2 {
		t.Fatalf("execution logs = %d, want 2", len(logs))
	}
	if logs[0].Result != models.ResultPartial {
		t.Errorf("first result = %q, want partial", logs[0].Result)
	}
	if logs[1].Result != models.ResultFailed {
		t.Errorf("second result = %q, want failed", logs[1].Result)
	}
	if len(logs[0].ExecutedActions) != 2 {
		t.Errorf("a failed action should not stop later actions, got %d outcomes", len(logs[0].ExecutedActions))
	}
	if logs[1].ErrorMessage == "" {
		t.Error("ErrorMessage is empty for a failed execution")
	}
}

func TestEvaluate_UnknownActionFailsOnlyItself(t *testing.T) {
	e, st := newEngine(t, nil)
	rule := models.BusinessRule{
		Name:       "legacy",
		Enabled:    true,
		Conditions: []models.RuleCondition{keywordCond("x")},
		Actions: []models.RuleAction{
			{Type: "fax", Config: models.UnsupportedConfig{Type: "fax"}, ExecutionOrder: 1},
			logAction(2),
		},
	}
	// stored directly: the engine refuses to create rules like this
	if err := st.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	evaluateText(t, e, "x")
	logs := st.ExecutionLogs()
	if len(logs) != 1 {
		t.Fatalf("execution logs = %d, want 1", len(logs))
	}
	outcomes := logs[0].ExecutedActions
	if len(outcomes) != 2 || outcomes[0].Success || !outcomes[1].Success {
		t.Errorf("outcomes = %+v, want fax failed and log succeeded", outcomes)
	}
	if logs[0].Result != models.ResultPartial {
		t.Errorf("Result = %q, want partial", logs[0].Result)
	}
}

func TestEvaluate_ActionOrder(t *testing.T) {
	d := &recordingDeliverer{}
	e, st := newEngine(t, d)
	mustRule(t, e, models.BusinessRule{
		Conditions: []models.RuleCondition{keywordCond("x")},
		Actions: []models.RuleAction{
			{Type: models.ActionAutoReply, Config: models.AutoReplyConfig{Content: "c"}, ExecutionOrder: 3},
			{Type: models.ActionForward, Config: models.ForwardConfig{Target: "dispatch"}, ExecutionOrder: 1},
			{Type: models.ActionNotification, Config: models.NotificationConfig{Recipients: []string{"lead"}}, ExecutionOrder: 2},
		},
	})

	evaluateText(t, e, "x")
	want := []string{models.ActionForward, models.ActionNotification, models.ActionAutoReply}
	if fmt.Sprint(d.calls) != fmt.Sprint(want) {
		t.Errorf("delivery order = %v, want %v", d.calls, want)
	}
	outcomes := st.ExecutionLogs()[0].ExecutedActions
	for i, o := range outcomes {
		if o.ExecutionOrder != i+1 {
			t.Errorf("outcome %d has order %d, want %d", i, o.ExecutionOrder, i+1)
		}
	}
}

func TestEvaluate_ActionTimeout(t *testing.T) {
	d := &recordingDeliverer{block: true}
	e, st := newEngine(t, d)
	mustRule(t, e, models.BusinessRule{
		Conditions: []models.RuleCondition{keywordCond("x")},
		Actions: []models.RuleAction{
			{Type: models.ActionWebhook, Config: models.WebhookConfig{URL: "http://example.com"}, ExecutionOrder: 1},
			logAction(1),
		},
	})

	start := time.Now()
	evaluateText(t, e, "x")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Evaluate() took %v, want it bounded by the action timeout", elapsed)
	}
	entry := st.ExecutionLogs()[0]
	if entry.Result != models.ResultPartial {
		t.Errorf("Result = %q, want partial", entry.Result)
	}
}

func TestEvaluate_TimeWindow(t *testing.T) {
	e, _ := newEngine(t, nil)
	start, end := models.TimeOfDay(9*60), models.TimeOfDay(17*60)
	mustRule(t, e, models.BusinessRule{
		EffectiveStart: &start,
		EffectiveEnd:   &end,
		EffectiveDays:  []time.Weekday{time.Monday},
		Conditions:     []models.RuleCondition{keywordCond("x")},
	})

	monday10 := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want int
	}{
		{monday10, 1},
		{monday10.Add(8 * time.Hour), 0},
		{monday10.AddDate(0, 0, 1), 0},
	}
	for _, tt := range tests {
		got, err := e.Evaluate(context.Background(), models.Message{Text: "x", ReceivedAt: tt.at})
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if len(got) != tt.want {
			t.Errorf("Evaluate() at %v matched %d, want %d", tt.at, len(got), tt.want)
		}
	}
}

func TestEvaluate_DisabledRule(t *testing.T) {
	e, st := newEngine(t, nil)
	rule := models.BusinessRule{Name: "off", Conditions: []models.RuleCondition{keywordCond("x")}}
	if err := st.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if got := evaluateText(t, e, "x"); len(got) != 0 {
		t.Errorf("disabled rule matched")
	}
}

func TestEvaluate_Chains(t *testing.T) {
	tests := []struct {
		name  string
		logic string
		text  string
		want  int
	}{
		{"AND both", models.LogicAnd, "停电 抢修", 2},
		{"AND one", models.LogicAnd, "停电", 0},
		{"OR one", models.LogicOr, "停电", 1},
		{"OR none", models.LogicOr, "hello", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, st := newEngine(t, nil)
			r1 := mustRule(t, e, models.BusinessRule{Name: "r1", Conditions: []models.RuleCondition{keywordCond("停电")}})
			r2 := mustRule(t, e, models.BusinessRule{Name: "r2", Conditions: []models.RuleCondition{keywordCond("抢修")}})
			chain := &models.RuleChain{
				Name:    "outage",
				Enabled: true,
				Relations: []models.RuleChainRelation{
					{RuleID: r1.ID, ExecutionOrder: 1, ConditionLogic: models.LogicAnd},
					{RuleID: r2.ID, ExecutionOrder: 2, ConditionLogic: tt.logic},
				},
			}
			if err := e.CreateChain(context.Background(), chain); err != nil {
				t.Fatalf("CreateChain() error = %v", err)
			}

			got := evaluateText(t, e, tt.text)
			if len(got) != tt.want {
				t.Fatalf("Evaluate(%q) matched %d, want %d", tt.text, len(got), tt.want)
			}
			for _, m := range got {
				if m.ChainID == nil || *m.ChainID != chain.ID {
					t.Errorf("match %s ChainID = %v, want %s", m.RuleName, m.ChainID, chain.ID)
				}
			}
			if len(st.ExecutionLogs()) != tt.want {
				t.Errorf("execution logs = %d, want %d", len(st.ExecutionLogs()), tt.want)
			}
		})
	}
}

func TestEvaluate_CacheInvalidatedOnMutation(t *testing.T) {
	e, _ := newEngine(t, nil)
	rule := mustRule(t, e, models.BusinessRule{Conditions: []models.RuleCondition{keywordCond("x")}})
	if got := evaluateText(t, e, "x"); len(got) != 1 {
		t.Fatalf("Evaluate() matched %d, want 1", len(got))
	}

	if err := e.DeleteRule(context.Background(), rule.ID); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if got := evaluateText(t, e, "x"); len(got) != 0 {
		t.Errorf("Evaluate() after delete matched %d, want 0", len(got))
	}
}
