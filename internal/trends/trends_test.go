package trends

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/models"
	"keywordhub/internal/store/memstore"
)

var today = time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)

func newAnalyzer(t *testing.T) (*Analyzer, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	a := New(st, Options{})
	a.now = func() time.Time { return today }
	return a, st
}

func createKeyword(t *testing.T, st *memstore.Store, text string) uuid.UUID {
	t.Helper()
	kw := &models.Keyword{Text: text, Source: models.SourceServer, Weight: models.WeightServer, Active: true}
	if err := st.CreateKeyword(context.Background(), kw); err != nil {
		t.Fatalf("CreateKeyword(%q) error = %v", text, err)
	}
	return kw.ID
}

// seed writes hits[i] for the day daysAgo[i] days before today.
func seed(st *memstore.Store, id uuid.UUID, daysAgo []int, hits []int) {
	for i, d := range daysAgo {
		st.SeedDailyStat(models.DailyKeywordStat{
			KeywordID:   id,
			Area:        "A",
			Date:        models.Day(today).AddDate(0, 0, -d),
			HitCount:    hits[i],
			UniqueUsers: 1,
			SuccessRate: 1,
		})
	}
}

func TestForecast_InsufficientData(t *testing.T) {
	a, st := newAnalyzer(t)
	id := createKeyword(t, st, "outage")
	seed(st, id, []int{0, 1, 2, 3, 4}, []int{3, 4, 5, 6, 7})

	got, err := a.Forecast(context.Background(), id, 7)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if !got.InsufficientData {
		t.Error("InsufficientData = false, want true")
	}
	if got.HistoryPoints != 5 {
		t.Errorf("HistoryPoints = %d, want 5", got.HistoryPoints)
	}
	if len(got.Predictions) != 0 || got.Confidence != 0 {
		t.Errorf("Forecast() = %+v, want no predictions and zero confidence", got)
	}
}

func TestForecast_LinearTrend(t *testing.T) {
	a, st := newAnalyzer(t)
	id := createKeyword(t, st, "outage")

	// Ten consecutive days ending today with hits 1, 3, ..., 19.
	var daysAgo, hits []int
	for i := 0; i < 10; i++ {
		daysAgo = append(daysAgo, 9-i)
		hits = append(hits, 2*i+1)
	}
	seed(st, id, daysAgo, hits)

	got, err := a.Forecast(context.Background(), id, 3)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if got.InsufficientData {
		t.Fatal("InsufficientData = true, want false")
	}
	if math.Abs(got.Slope-2) > 1e-9 {
		t.Errorf("Slope = %v, want 2", got.Slope)
	}
	want := []float64{21, 23, 25}
	if len(got.Predictions) != len(want) {
		t.Fatalf("Predictions = %d, want %d", len(got.Predictions), len(want))
	}
	for i, p := range got.Predictions {
		if math.Abs(p.Hits-want[i]) > 1e-9 {
			t.Errorf("Predictions[%d] = %v, want %v", i, p.Hits, want[i])
		}
		if wantDay := models.Day(today).AddDate(0, 0, i+1); !p.Date.Equal(wantDay) {
			t.Errorf("Predictions[%d].Date = %v, want %v", i, p.Date, wantDay)
		}
	}
	wantConfidence := 1 - math.Sqrt(33)/10
	if math.Abs(got.Confidence-wantConfidence) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", got.Confidence, wantConfidence)
	}
}

func TestForecast_FlooredAtZero(t *testing.T) {
	a, st := newAnalyzer(t)
	id := createKeyword(t, st, "outage")
	seed(st, id, []int{7, 6, 5, 4, 3, 2, 1, 0}, []int{40, 35, 30, 25, 20, 15, 10, 5})

	got, err := a.Forecast(context.Background(), id, 5)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	for i, p := range got.Predictions {
		if p.Hits < 0 {
			t.Errorf("Predictions[%d] = %v, want >= 0", i, p.Hits)
		}
	}
	if last := got.Predictions[len(got.Predictions)-1]; last.Hits != 0 {
		t.Errorf("last prediction = %v, want 0", last.Hits)
	}
}

func TestForecast_SteadySeriesFullConfidence(t *testing.T) {
	a, st := newAnalyzer(t)
	id := createKeyword(t, st, "outage")
	seed(st, id, []int{20, 15, 10, 8, 5, 3, 1}, []int{4, 4, 4, 4, 4, 4, 4})

	got, err := a.Forecast(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if got.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", got.Confidence)
	}
	if got.Predictions[0].Hits != 4 {
		t.Errorf("prediction = %v, want 4", got.Predictions[0].Hits)
	}
}

func TestForecast_IgnoresOlderHistory(t *testing.T) {
	a, st := newAnalyzer(t)
	id := createKeyword(t, st, "outage")
	seed(st, id, []int{45, 40, 35, 31, 0, 1, 2}, []int{1, 1, 1, 1, 1, 1, 1})

	got, err := a.Forecast(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if !got.InsufficientData || got.HistoryPoints != 3 {
		t.Errorf("Forecast() = %+v, want 3 points and insufficient data", got)
	}
}

func TestEmerging(t *testing.T) {
	a, st := newAnalyzer(t)
	rising := createKeyword(t, st, "rising")
	steady := createKeyword(t, st, "steady")
	small := createKeyword(t, st, "small")

	// A 14 day window splits into days 13..7 ago and 6..0 ago.
	seed(st, rising, []int{10, 3, 0}, []int{2, 4, 6})
	seed(st, steady, []int{12, 2}, []int{5, 8})
	seed(st, small, []int{1}, []int{5})

	got, err := a.Emerging(context.Background(), 14, "")
	if err != nil {
		t.Fatalf("Emerging() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Emerging() = %+v, want only rising", got)
	}
	e := got[0]
	if e.KeywordText != "rising" || e.EarlyHits != 2 || e.RecentHits != 10 || e.Growth != 5 {
		t.Errorf("Emerging()[0] = %+v, want rising 2 -> 10", e)
	}
}

func TestHotKeywords(t *testing.T) {
	a, st := newAnalyzer(t)
	ids := map[string]uuid.UUID{}
	for _, text := range []string{"alpha", "beta", "gamma"} {
		ids[text] = createKeyword(t, st, text)
	}
	seed(st, ids["alpha"], []int{0, 1}, []int{3, 4})
	seed(st, ids["beta"], []int{0}, []int{20})
	seed(st, ids["gamma"], []int{2}, []int{7})

	got, err := a.HotKeywords(context.Background(), a.LastDays(7), 2)
	if err != nil {
		t.Fatalf("HotKeywords() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("HotKeywords() = %d, want 2", len(got))
	}
	if got[0].KeywordText != "beta" || got[0].Hits != 20 {
		t.Errorf("first = %+v, want beta with 20", got[0])
	}
	// alpha and gamma tie on 7 hits; text breaks the tie.
	if got[1].KeywordText != "alpha" || got[1].Hits != 7 {
		t.Errorf("second = %+v, want alpha with 7", got[1])
	}
}

func TestEffectiveness(t *testing.T) {
	a, st := newAnalyzer(t)
	rates := map[string]float64{"good": 0.9, "middling": 0.5, "poor": 0.1}
	for text, rate := range rates {
		id := createKeyword(t, st, text)
		st.SeedDailyStat(models.DailyKeywordStat{
			KeywordID:   id,
			Area:        "A",
			Date:        models.Day(today),
			HitCount:    10,
			SuccessRate: rate,
		})
	}

	got, err := a.Effectiveness(context.Background(), a.LastDays(7))
	if err != nil {
		t.Fatalf("Effectiveness() error = %v", err)
	}
	if len(got.High) != 1 || got.High[0].KeywordText != "good" {
		t.Errorf("High = %+v, want [good]", got.High)
	}
	if len(got.Low) != 1 || got.Low[0].KeywordText != "poor" {
		t.Errorf("Low = %+v, want [poor]", got.Low)
	}
}

func TestBasicStats(t *testing.T) {
	a, st := newAnalyzer(t)
	id := createKeyword(t, st, "outage")
	st.SeedDailyStat(models.DailyKeywordStat{
		KeywordID: id, Area: "A", Date: models.Day(today), HitCount: 4, TriggerCount: 2,
		UniqueUsers: 3, AvgResponseTimeMs: 10, SuccessRate: 1,
	})
	st.SeedDailyStat(models.DailyKeywordStat{
		KeywordID: id, Area: "B", Date: models.Day(today).AddDate(0, 0, -1), HitCount: 2,
		UniqueUsers: 1, AvgResponseTimeMs: 20, SuccessRate: 0.5,
	})

	got, err := a.BasicStats(context.Background(), a.LastDays(7))
	if err != nil {
		t.Fatalf("BasicStats() error = %v", err)
	}
	want := BasicStats{
		TotalHits:         6,
		TotalTriggers:     2,
		TotalUsers:        4,
		Keywords:          1,
		Days:              2,
		AvgHitsPerDay:     3,
		AvgResponseTimeMs: 15,
		AvgSuccessRate:    0.75,
	}
	if *got != want {
		t.Errorf("BasicStats() = %+v, want %+v", *got, want)
	}

	areaOnly := a.LastDays(7)
	areaOnly.Area = "B"
	got, err = a.BasicStats(context.Background(), areaOnly)
	if err != nil {
		t.Fatalf("BasicStats(B) error = %v", err)
	}
	if got.TotalHits != 2 {
		t.Errorf("BasicStats(B).TotalHits = %d, want 2", got.TotalHits)
	}
}

func TestBasicStats_Empty(t *testing.T) {
	a, _ := newAnalyzer(t)
	got, err := a.BasicStats(context.Background(), a.LastDays(7))
	if err != nil {
		t.Fatalf("BasicStats() error = %v", err)
	}
	if *got != (BasicStats{}) {
		t.Errorf("BasicStats() = %+v, want zero", *got)
	}
}
