package metrics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

var (
	keywordHitsDesc = prometheus.NewDesc(
		"keywordhub_keyword_hits",
		"Current hit count of each active keyword by source",
		[]string{"keyword", "source"},
		nil,
	)

	detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keywordhub_detections_total",
		Help: "Keyword detections by match type",
	}, []string{"match_type"})

	ruleExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keywordhub_rule_executions_total",
		Help: "Business rule executions by aggregate result",
	}, []string{"result"})

	actionDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keywordhub_action_deliveries_total",
		Help: "Action deliveries by action type and outcome",
	}, []string{"type", "outcome"})

	submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keywordhub_submissions_total",
		Help: "Promotion submissions by status transition",
	}, []string{"status"})
)

// KeywordLister is the part of the keyword store the collector reads.
type KeywordLister interface {
	ListKeywords(ctx context.Context, filter store.KeywordFilter) ([]models.Keyword, error)
}

// KeywordCollector is a custom Prometheus collector that reads keyword hit
// counts from storage on each scrape.
type KeywordCollector struct {
	keywords KeywordLister
}

// NewKeywordCollector creates a collector over keywords.
func NewKeywordCollector(keywords KeywordLister) *KeywordCollector {
	return &KeywordCollector{keywords: keywords}
}

// Describe sends the metric descriptor to the channel.
func (c *KeywordCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- keywordHitsDesc
}

// Collect lists active keywords and emits their hit counts as gauges.
func (c *KeywordCollector) Collect(ch chan<- prometheus.Metric) {
	kws, err := c.keywords.ListKeywords(context.Background(), store.KeywordFilter{})
	if err != nil {
		slog.Error("failed to collect keyword hit metrics", "error", err)
		return
	}

	// one series per (text, source); areas are summed
	totals := make(map[[2]string]int)
	for _, kw := range kws {
		totals[[2]string{kw.Text, kw.Source}] += kw.HitCount
	}
	for key, hits := range totals {
		ch <- prometheus.MustNewConstMetric(
			keywordHitsDesc,
			prometheus.GaugeValue,
			float64(hits),
			key[0],
			key[1],
		)
	}
}

var initOnce sync.Once

// Init registers the collector and counters with the default registry.
// Must be called once at startup.
func Init(keywords KeywordLister) {
	initOnce.Do(func() {
		prometheus.MustRegister(
			NewKeywordCollector(keywords),
			detections,
			ruleExecutions,
			actionDeliveries,
			submissions,
		)
	})
}

// RecordDetection counts a keyword detected by matchType.
func RecordDetection(matchType string) {
	detections.WithLabelValues(matchType).Inc()
}

// RecordRuleExecution counts a rule execution by its aggregate result.
func RecordRuleExecution(result string) {
	ruleExecutions.WithLabelValues(result).Inc()
}

// RecordActionDelivery counts one action attempt.
func RecordActionDelivery(actionType string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	actionDeliveries.WithLabelValues(actionType, outcome).Inc()
}

// RecordSubmission counts a submission entering status.
func RecordSubmission(status string) {
	submissions.WithLabelValues(status).Inc()
}
