// Package trigger scans inbound messages for keywords, runs the trigger
// rules attached to matched keywords and records usage in the background.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/cache"
	"keywordhub/internal/internalerr"
	"keywordhub/internal/metrics"
	"keywordhub/internal/models"
	"keywordhub/internal/promotion"
	"keywordhub/internal/similarity"
	"keywordhub/internal/store"
)

// Match types.
const (
	MatchExact = "exact"
	MatchFuzzy = "fuzzy"
	MatchRegex = "regex"
)

const recordTimeout = 10 * time.Second

// KeywordSource supplies the active keywords for an area ordered by
// descending priority.
type KeywordSource interface {
	ActiveKeywords(ctx context.Context, area *string) ([]models.Keyword, error)
}

// ActionRunner executes one action and reports its outcome.
type ActionRunner interface {
	RunAction(ctx context.Context, id uuid.UUID, actionType string, cfg models.ActionConfig, payload models.ActionPayload) models.ActionOutcome
}

// Promoter counts triggers of client keywords.
type Promoter interface {
	RecordTrigger(ctx context.Context, text string, area *string, userID, triggerContext string) (*promotion.TriggerResult, error)
}

// Options tunes a Pipeline. Zero values take the defaults.
type Options struct {
	FuzzyThreshold  float64
	RegexPrefix     string
	RegexConfidence float64
	CacheSize       int
	CacheTTL        time.Duration
	// Location decides which calendar day usage is counted on.
	Location *time.Location
}

// Pipeline detects keywords in messages.
type Pipeline struct {
	keywords KeywordSource
	store    store.Store
	runner   ActionRunner
	promoter Promoter
	rules    *cache.Cache[[]models.KeywordTriggerRule]
	opts     Options

	patterns sync.Map // pattern string -> *regexp.Regexp, nil when invalid
	wg       sync.WaitGroup
	now      func() time.Time
}

// New creates a Pipeline.
func New(keywords KeywordSource, st store.Store, runner ActionRunner, promoter Promoter, opts Options) *Pipeline {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = 0.8
	}
	if opts.RegexPrefix == "" {
		opts.RegexPrefix = "re:"
	}
	if opts.RegexConfidence <= 0 {
		opts.RegexConfidence = 0.9
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{
		keywords: keywords,
		store:    st,
		runner:   runner,
		promoter: promoter,
		rules:    cache.New[[]models.KeywordTriggerRule](opts.CacheSize, opts.CacheTTL),
		opts:     opts,
		now:      time.Now,
	}
}

// Detection is one keyword found in a message.
type Detection struct {
	Keyword    models.Keyword         `json:"keyword"`
	MatchType  string                 `json:"match_type"`
	Confidence float64                `json:"confidence"`
	Outcomes   []models.ActionOutcome `json:"outcomes"`
}

// Detect matches msg against the active keywords of its area and runs the
// trigger rules of every match. Usage statistics and promotion triggers
// are recorded asynchronously; Detect never waits for them.
func (p *Pipeline) Detect(ctx context.Context, msg models.Message) ([]Detection, error) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = p.now()
	}
	kws, err := p.keywords.ActiveKeywords(ctx, models.AreaPtr(msg.Area))
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	detections := []Detection{}
	for _, kw := range kws {
		start := time.Now()
		matchType, confidence, ok := p.match(kw.Text, msg.Text)
		if !ok {
			continue
		}
		metrics.RecordDetection(matchType)

		outcomes := p.runTriggerRules(ctx, kw, msg)
		detections = append(detections, Detection{
			Keyword:    kw,
			MatchType:  matchType,
			Confidence: confidence,
			Outcomes:   outcomes,
		})
		p.recordAsync(ctx, kw, msg, outcomes, time.Since(start))
	}
	return detections, nil
}

// match tries exact substring, then fuzzy word match, for plain keywords,
// and a regex search for keywords carrying the pattern prefix.
func (p *Pipeline) match(keyword, text string) (string, float64, bool) {
	if pattern, ok := strings.CutPrefix(keyword, p.opts.RegexPrefix); ok {
		re := p.compile(pattern)
		if re != nil && re.MatchString(text) {
			return MatchRegex, p.opts.RegexConfidence, true
		}
		return "", 0, false
	}

	if keyword == "" {
		return "", 0, false
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(keyword)) {
		return MatchExact, 1.0, true
	}
	if sim := similarity.FuzzyContains(text, keyword); sim >= p.opts.FuzzyThreshold {
		return MatchFuzzy, sim, true
	}
	return "", 0, false
}

func (p *Pipeline) compile(pattern string) *regexp.Regexp {
	if v, ok := p.patterns.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		slog.Warn("invalid keyword pattern", "pattern", pattern, "error", err)
		re = nil
	}
	p.patterns.Store(pattern, re)
	return re
}

func (p *Pipeline) runTriggerRules(ctx context.Context, kw models.Keyword, msg models.Message) []models.ActionOutcome {
	rules, err := p.TriggerRules(ctx, kw.ID)
	if err != nil {
		slog.Error("failed to load trigger rules", "keyword", kw.Text, "error", err)
		return nil
	}

	payload := models.ActionPayload{Message: msg, Origin: "keyword", Keyword: kw.Text}
	var outcomes []models.ActionOutcome
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		actionType, _ := models.ActionTypeForTrigger(rule.Type)
		outcomes = append(outcomes, p.runner.RunAction(ctx, rule.ID, actionType, rule.Config, payload))
	}
	return outcomes
}

// recordAsync folds the detection into daily statistics and counts the
// hit: server keywords count directly, client keywords go through
// promotion. Failures are logged.
func (p *Pipeline) recordAsync(ctx context.Context, kw models.Keyword, msg models.Message, outcomes []models.ActionOutcome, elapsed time.Duration) {
	success := true
	for _, o := range outcomes {
		success = success && o.Success
	}
	triggers := 0
	if len(outcomes) > 0 {
		triggers = 1
	}
	delta := models.StatDelta{
		KeywordID:      kw.ID,
		Area:           msg.Area,
		Date:           models.Day(msg.ReceivedAt.In(p.opts.Location)),
		Hits:           1,
		Triggers:       triggers,
		UserID:         msg.UserID,
		ResponseTimeMs: elapsed.Milliseconds(),
		Success:        success,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()

		if err := p.store.UpsertDailyStat(ctx, delta); err != nil {
			slog.Error("failed to record keyword usage", "keyword", kw.Text, "area", msg.Area, "error", err)
		}

		if kw.IsServer() {
			if _, err := p.store.IncrementHitCount(ctx, kw.ID, 1); err != nil {
				slog.Error("failed to count keyword hit", "keyword", kw.Text, "error", err)
			}
			return
		}
		if p.promoter == nil {
			return
		}
		if _, err := p.promoter.RecordTrigger(ctx, kw.Text, kw.Area, msg.UserID, msg.Text); err != nil {
			slog.Error("failed to record keyword trigger", "keyword", kw.Text, "error", err)
		}
	}()
}

// Wait blocks until background recording finishes.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// TriggerRules returns the trigger rules of a keyword, cached.
func (p *Pipeline) TriggerRules(ctx context.Context, keywordID uuid.UUID) ([]models.KeywordTriggerRule, error) {
	return p.rules.GetOrLoad(ctx, keywordID.String(), func(ctx context.Context) ([]models.KeywordTriggerRule, error) {
		return p.store.ListTriggerRules(ctx, keywordID)
	})
}

// CreateTriggerRule validates and stores a trigger rule.
func (p *Pipeline) CreateTriggerRule(ctx context.Context, rule *models.KeywordTriggerRule) error {
	actionType, ok := models.ActionTypeForTrigger(rule.Type)
	if !ok {
		return fmt.Errorf("unknown trigger rule type %q: %w", rule.Type, internalerr.ErrValidation)
	}
	if rule.Config == nil || rule.Config.ActionType() != actionType {
		return fmt.Errorf("%s trigger rule needs a %s config: %w", rule.Type, actionType, internalerr.ErrValidation)
	}
	if err := p.store.CreateTriggerRule(ctx, rule); err != nil {
		return fmt.Errorf("create trigger rule: %w", err)
	}
	p.rules.Invalidate(rule.KeywordID.String())
	return nil
}

// DeleteTriggerRule removes a trigger rule.
func (p *Pipeline) DeleteTriggerRule(ctx context.Context, id uuid.UUID) error {
	if err := p.store.DeleteTriggerRule(ctx, id); err != nil {
		return fmt.Errorf("delete trigger rule %s: %w", id, err)
	}
	p.rules.Purge()
	return nil
}

// InvalidateRules drops cached trigger rules, e.g. after keywords merge.
func (p *Pipeline) InvalidateRules() {
	p.rules.Purge()
}
