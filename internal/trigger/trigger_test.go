package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
	"keywordhub/internal/promotion"
	"keywordhub/internal/store/memstore"
)

type staticKeywords struct {
	kws []models.Keyword
	err error
}

func (s *staticKeywords) ActiveKeywords(ctx context.Context, area *string) ([]models.Keyword, error) {
	return s.kws, s.err
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (r *recordingRunner) RunAction(ctx context.Context, id uuid.UUID, actionType string, cfg models.ActionConfig, payload models.ActionPayload) models.ActionOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, actionType+":"+payload.Keyword)
	out := models.ActionOutcome{ActionID: id, Type: actionType, Success: !r.fail}
	if r.fail {
		out.Error = "boom"
	}
	return out
}

type recordingPromoter struct {
	mu    sync.Mutex
	texts []string
}

func (p *recordingPromoter) RecordTrigger(ctx context.Context, text string, area *string, userID, triggerContext string) (*promotion.TriggerResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	return &promotion.TriggerResult{}, nil
}

func keyword(t *testing.T, st *memstore.Store, text, source string) models.Keyword {
	t.Helper()
	kw := &models.Keyword{
		Text:     text,
		Source:   source,
		Weight:   models.WeightForSource(source),
		Active:   true,
		Priority: models.PriorityNormal,
	}
	if err := st.CreateKeyword(context.Background(), kw); err != nil {
		t.Fatalf("CreateKeyword(%q) error = %v", text, err)
	}
	return *kw
}

func message(text string) models.Message {
	return models.Message{
		ID:         "m-1",
		Text:       text,
		Area:       "A",
		UserID:     "u-1",
		ReceivedAt: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestDetect_MatchTypes(t *testing.T) {
	st := memstore.New()
	kws := []models.Keyword{
		keyword(t, st, "outage", models.SourceServer),
		keyword(t, st, "transformer", models.SourceServer),
		keyword(t, st, `re:\bACC-\d{4}\b`, models.SourceServer),
		keyword(t, st, "invoice", models.SourceServer),
	}
	p := New(&staticKeywords{kws: kws}, st, &recordingRunner{}, nil, Options{})

	got, err := p.Detect(context.Background(), message("Total OUTAGE near the transfomer, account ACC-1234"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	p.Wait()

	want := map[string]string{
		"outage":             MatchExact,
		"transformer":        MatchFuzzy,
		`re:\bACC-\d{4}\b`: MatchRegex,
	}
	if len(got) != len(want) {
		t.Fatalf("Detect() = %d detections, want %d: %+v", len(got), len(want), got)
	}
	for _, d := range got {
		if want[d.Keyword.Text] != d.MatchType {
			t.Errorf("%q match type = %q, want %q", d.Keyword.Text, d.MatchType, want[d.Keyword.Text])
		}
		switch d.MatchType {
		case MatchExact:
			if d.Confidence != 1.0 {
				t.Errorf("exact confidence = %v, want 1.0", d.Confidence)
			}
		case MatchFuzzy:
			if d.Confidence < 0.8 || d.Confidence >= 1.0 {
				t.Errorf("fuzzy confidence = %v, want [0.8, 1)", d.Confidence)
			}
		case MatchRegex:
			if d.Confidence != 0.9 {
				t.Errorf("regex confidence = %v, want 0.9", d.Confidence)
			}
		}
	}
}

func TestDetect_InvalidPatternNeverMatches(t *testing.T) {
	st := memstore.New()
	kws := []models.Keyword{keyword(t, st, "re:([", models.SourceServer)}
	p := New(&staticKeywords{kws: kws}, st, &recordingRunner{}, nil, Options{})

	got, err := p.Detect(context.Background(), message("re:(["))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Detect() = %+v, want no detections", got)
	}
}

func TestDetect_KeywordLoadError(t *testing.T) {
	st := memstore.New()
	p := New(&staticKeywords{err: internalerr.ErrPersistence}, st, &recordingRunner{}, nil, Options{})

	_, err := p.Detect(context.Background(), message("anything"))
	if !errors.Is(err, internalerr.ErrPersistence) {
		t.Errorf("Detect() error = %v, want ErrPersistence", err)
	}
}

func TestDetect_RecordsUsage(t *testing.T) {
	st := memstore.New()
	server := keyword(t, st, "outage", models.SourceServer)
	client := keyword(t, st, "meter", models.SourceClient)
	promoter := &recordingPromoter{}
	p := New(&staticKeywords{kws: []models.Keyword{server, client}}, st, &recordingRunner{}, promoter, Options{})

	msg := message("outage at the meter")
	for i := 0; i < 2; i++ {
		if _, err := p.Detect(context.Background(), msg); err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
	}
	p.Wait()

	got, err := st.GetKeyword(context.Background(), server.ID)
	if err != nil {
		t.Fatalf("GetKeyword() error = %v", err)
	}
	if got.HitCount != 2 {
		t.Errorf("server HitCount = %d, want 2", got.HitCount)
	}
	if len(promoter.texts) != 2 || promoter.texts[0] != "meter" {
		t.Errorf("promoter triggers = %v, want [meter meter]", promoter.texts)
	}

	day := models.Day(msg.ReceivedAt)
	stats, err := st.DailyStatsBetween(context.Background(), &server.ID, day, day)
	if err != nil {
		t.Fatalf("DailyStatsBetween() error = %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("stats rows = %d, want 1", len(stats))
	}
	if stats[0].HitCount != 2 || stats[0].UniqueUsers != 1 || stats[0].Area != "A" {
		t.Errorf("stat = %+v, want 2 hits from 1 user in A", stats[0])
	}
}

func TestDetect_RunsTriggerRules(t *testing.T) {
	st := memstore.New()
	kw := keyword(t, st, "outage", models.SourceServer)
	runner := &recordingRunner{}
	p := New(&staticKeywords{kws: []models.Keyword{kw}}, st, runner, nil, Options{})
	ctx := context.Background()

	rules := []*models.KeywordTriggerRule{
		{KeywordID: kw.ID, Type: models.TriggerLog, Config: models.LogConfig{Message: "seen"}, Enabled: true},
		{KeywordID: kw.ID, Type: models.TriggerAPICall, Config: models.WebhookConfig{URL: "http://example.com/hook"}, Enabled: true},
		{KeywordID: kw.ID, Type: models.TriggerEmail, Config: models.EmailConfig{To: []string{"a@example.com"}, Subject: "s"}, Enabled: false},
	}
	for _, r := range rules {
		if err := p.CreateTriggerRule(ctx, r); err != nil {
			t.Fatalf("CreateTriggerRule(%s) error = %v", r.Type, err)
		}
	}

	got, err := p.Detect(ctx, message("power outage"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	p.Wait()

	if len(got) != 1 || len(got[0].Outcomes) != 2 {
		t.Fatalf("Detect() = %+v, want one detection with two outcomes", got)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("runner calls = %v, want 2", runner.calls)
	}
	for _, call := range runner.calls {
		if call != models.ActionLog+":outage" && call != models.ActionWebhook+":outage" {
			t.Errorf("unexpected call %q", call)
		}
	}

	day := models.Day(message("").ReceivedAt)
	stats, _ := st.DailyStatsBetween(ctx, &kw.ID, day, day)
	if len(stats) != 1 || stats[0].TriggerCount != 1 {
		t.Errorf("stats = %+v, want one trigger counted", stats)
	}
}

func TestDetect_FailedActionLowersSuccessRate(t *testing.T) {
	st := memstore.New()
	kw := keyword(t, st, "outage", models.SourceServer)
	p := New(&staticKeywords{kws: []models.Keyword{kw}}, st, &recordingRunner{fail: true}, nil, Options{})
	ctx := context.Background()

	if err := p.CreateTriggerRule(ctx, &models.KeywordTriggerRule{
		KeywordID: kw.ID, Type: models.TriggerLog, Config: models.LogConfig{}, Enabled: true,
	}); err != nil {
		t.Fatalf("CreateTriggerRule() error = %v", err)
	}
	if _, err := p.Detect(ctx, message("outage")); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	p.Wait()

	day := models.Day(message("").ReceivedAt)
	stats, _ := st.DailyStatsBetween(ctx, &kw.ID, day, day)
	if len(stats) != 1 || stats[0].SuccessRate != 0 {
		t.Errorf("stats = %+v, want success rate 0", stats)
	}
}

func TestCreateTriggerRule_Validation(t *testing.T) {
	st := memstore.New()
	p := New(&staticKeywords{}, st, &recordingRunner{}, nil, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		rule models.KeywordTriggerRule
	}{
		{"unknown type", models.KeywordTriggerRule{Type: "PAGER", Config: models.LogConfig{}}},
		{"missing config", models.KeywordTriggerRule{Type: models.TriggerLog}},
		{"mismatched config", models.KeywordTriggerRule{Type: models.TriggerEmail, Config: models.LogConfig{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			if err := p.CreateTriggerRule(ctx, &rule); !errors.Is(err, internalerr.ErrValidation) {
				t.Errorf("CreateTriggerRule() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTriggerRules_CacheInvalidatedOnDelete(t *testing.T) {
	st := memstore.New()
	kw := keyword(t, st, "outage", models.SourceServer)
	p := New(&staticKeywords{}, st, &recordingRunner{}, nil, Options{})
	ctx := context.Background()

	rule := &models.KeywordTriggerRule{KeywordID: kw.ID, Type: models.TriggerLog, Config: models.LogConfig{}, Enabled: true}
	if err := p.CreateTriggerRule(ctx, rule); err != nil {
		t.Fatalf("CreateTriggerRule() error = %v", err)
	}
	if got, _ := p.TriggerRules(ctx, kw.ID); len(got) != 1 {
		t.Fatalf("TriggerRules() = %d rules, want 1", len(got))
	}
	if err := p.DeleteTriggerRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeleteTriggerRule() error = %v", err)
	}
	if got, _ := p.TriggerRules(ctx, kw.ID); len(got) != 0 {
		t.Errorf("TriggerRules() after delete = %d rules, want 0", len(got))
	}
}
