// Package trends turns daily keyword statistics into reports: totals, hot
// keywords, effectiveness, emerging keywords and hit forecasts.
package trends

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

// Effectiveness bounds on the average success rate.
const (
	HighEffectiveness = 0.8
	LowEffectiveness  = 0.2
)

// Emerging keywords need more than this many recent hits.
const minEmergingHits = 5

// Options tunes an Analyzer. Zero values take the defaults.
type Options struct {
	ForecastHistoryDays int
	MinForecastPoints   int
	Location            *time.Location
}

// Analyzer reads the daily statistics read model.
type Analyzer struct {
	stats store.StatsStore
	opts  Options
	now   func() time.Time
}

// New creates an Analyzer.
func New(stats store.StatsStore, opts Options) *Analyzer {
	if opts.ForecastHistoryDays <= 0 {
		opts.ForecastHistoryDays = 30
	}
	if opts.MinForecastPoints <= 0 {
		opts.MinForecastPoints = 7
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Analyzer{stats: stats, opts: opts, now: time.Now}
}

// Window selects the statistics rows a report covers. Dates are inclusive;
// an empty Area covers every area.
type Window struct {
	From time.Time
	To   time.Time
	Area string
}

// LastDays returns the window of n days ending today.
func (a *Analyzer) LastDays(n int) Window {
	if n <= 0 {
		n = 1
	}
	today := a.today()
	return Window{From: today.AddDate(0, 0, -(n - 1)), To: today}
}

func (a *Analyzer) today() time.Time {
	return models.Day(a.now().In(a.opts.Location))
}

func (a *Analyzer) rows(ctx context.Context, keywordID *uuid.UUID, w Window) ([]models.DailyKeywordStat, error) {
	rows, err := a.stats.DailyStatsBetween(ctx, keywordID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("load daily stats: %w", err)
	}
	if w.Area == "" {
		return rows, nil
	}
	filtered := rows[:0]
	for _, r := range rows {
		if r.Area == w.Area {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// BasicStats summarises a window.
type BasicStats struct {
	TotalHits         int     `json:"total_hits"`
	TotalTriggers     int     `json:"total_triggers"`
	TotalUsers        int     `json:"total_users"`
	Keywords          int     `json:"keywords"`
	Days              int     `json:"days"`
	AvgHitsPerDay     float64 `json:"avg_hits_per_day"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgSuccessRate    float64 `json:"avg_success_rate"`
}

// BasicStats sums hits, triggers and users over the window and averages
// response time and success rate across rows. Users are counted per
// keyword, area and day.
func (a *Analyzer) BasicStats(ctx context.Context, w Window) (*BasicStats, error) {
	rows, err := a.rows(ctx, nil, w)
	if err != nil {
		return nil, err
	}

	out := &BasicStats{}
	keywords := make(map[uuid.UUID]struct{})
	days := make(map[time.Time]struct{})
	var responseSum, successSum float64
	for _, r := range rows {
		out.TotalHits += r.HitCount
		out.TotalTriggers += r.TriggerCount
		out.TotalUsers += r.UniqueUsers
		responseSum += r.AvgResponseTimeMs
		successSum += r.SuccessRate
		keywords[r.KeywordID] = struct{}{}
		days[r.Date] = struct{}{}
	}
	out.Keywords = len(keywords)
	out.Days = len(days)
	if len(rows) > 0 {
		out.AvgResponseTimeMs = responseSum / float64(len(rows))
		out.AvgSuccessRate = successSum / float64(len(rows))
	}
	if out.Days > 0 {
		out.AvgHitsPerDay = float64(out.TotalHits) / float64(out.Days)
	}
	return out, nil
}

// KeywordTotals aggregates one keyword across a window.
type KeywordTotals struct {
	KeywordID      uuid.UUID `json:"keyword_id"`
	KeywordText    string    `json:"keyword_text"`
	Hits           int       `json:"hits"`
	Triggers       int       `json:"triggers"`
	AvgSuccessRate float64   `json:"avg_success_rate"`
}

func totalsByKeyword(rows []models.DailyKeywordStat) []KeywordTotals {
	index := make(map[uuid.UUID]int)
	var out []KeywordTotals
	var successSums []float64
	var counts []int
	for _, r := range rows {
		i, ok := index[r.KeywordID]
		if !ok {
			i = len(out)
			index[r.KeywordID] = i
			out = append(out, KeywordTotals{KeywordID: r.KeywordID, KeywordText: r.KeywordText})
			successSums = append(successSums, 0)
			counts = append(counts, 0)
		}
		out[i].Hits += r.HitCount
		out[i].Triggers += r.TriggerCount
		successSums[i] += r.SuccessRate
		counts[i]++
	}
	for i := range out {
		out[i].AvgSuccessRate = successSums[i] / float64(counts[i])
	}
	return out
}

// HotKeywords returns the limit keywords with the most hits in the window.
// Ties are broken by keyword text.
func (a *Analyzer) HotKeywords(ctx context.Context, w Window, limit int) ([]KeywordTotals, error) {
	rows, err := a.rows(ctx, nil, w)
	if err != nil {
		return nil, err
	}
	totals := totalsByKeyword(rows)
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Hits != totals[j].Hits {
			return totals[i].Hits > totals[j].Hits
		}
		return totals[i].KeywordText < totals[j].KeywordText
	})
	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

// Effectiveness partitions keywords by average success rate.
type Effectiveness struct {
	High []KeywordTotals `json:"high"`
	Low  []KeywordTotals `json:"low"`
}

// Effectiveness returns keywords whose average success rate is above
// HighEffectiveness or below LowEffectiveness. The rest are omitted.
func (a *Analyzer) Effectiveness(ctx context.Context, w Window) (*Effectiveness, error) {
	rows, err := a.rows(ctx, nil, w)
	if err != nil {
		return nil, err
	}
	out := &Effectiveness{High: []KeywordTotals{}, Low: []KeywordTotals{}}
	for _, t := range totalsByKeyword(rows) {
		switch {
		case t.AvgSuccessRate > HighEffectiveness:
			out.High = append(out.High, t)
		case t.AvgSuccessRate < LowEffectiveness:
			out.Low = append(out.Low, t)
		}
	}
	byRate := func(s []KeywordTotals, desc bool) {
		sort.Slice(s, func(i, j int) bool {
			if s[i].AvgSuccessRate != s[j].AvgSuccessRate {
				return (s[i].AvgSuccessRate > s[j].AvgSuccessRate) == desc
			}
			return s[i].KeywordText < s[j].KeywordText
		})
	}
	byRate(out.High, true)
	byRate(out.Low, false)
	return out, nil
}

// EmergingKeyword is a keyword whose hits grew sharply within a window.
type EmergingKeyword struct {
	KeywordID   uuid.UUID `json:"keyword_id"`
	KeywordText string    `json:"keyword_text"`
	EarlyHits   int       `json:"early_hits"`
	RecentHits  int       `json:"recent_hits"`
	// Growth is RecentHits/EarlyHits, or RecentHits when there were none.
	Growth float64 `json:"growth"`
}

// Emerging splits the last windowDays days at the midpoint and flags
// keywords with more than twice the early hits and more than five recent
// hits. Results are ordered by recent hits descending.
func (a *Analyzer) Emerging(ctx context.Context, windowDays int, area string) ([]EmergingKeyword, error) {
	if windowDays < 2 {
		windowDays = 2
	}
	w := a.LastDays(windowDays)
	w.Area = area
	mid := w.From.AddDate(0, 0, windowDays/2)

	rows, err := a.rows(ctx, nil, w)
	if err != nil {
		return nil, err
	}

	index := make(map[uuid.UUID]int)
	var all []EmergingKeyword
	for _, r := range rows {
		i, ok := index[r.KeywordID]
		if !ok {
			i = len(all)
			index[r.KeywordID] = i
			all = append(all, EmergingKeyword{KeywordID: r.KeywordID, KeywordText: r.KeywordText})
		}
		if r.Date.Before(mid) {
			all[i].EarlyHits += r.HitCount
		} else {
			all[i].RecentHits += r.HitCount
		}
	}

	out := []EmergingKeyword{}
	for _, e := range all {
		if e.RecentHits <= 2*e.EarlyHits || e.RecentHits <= minEmergingHits {
			continue
		}
		e.Growth = float64(e.RecentHits)
		if e.EarlyHits > 0 {
			e.Growth = float64(e.RecentHits) / float64(e.EarlyHits)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecentHits != out[j].RecentHits {
			return out[i].RecentHits > out[j].RecentHits
		}
		return out[i].KeywordText < out[j].KeywordText
	})
	return out, nil
}

// Point is a dated hit count.
type Point struct {
	Date time.Time `json:"date"`
	Hits float64   `json:"hits"`
}

// Forecast is a linear projection of a keyword's daily hits.
type Forecast struct {
	KeywordID uuid.UUID `json:"keyword_id"`
	// InsufficientData is set when history has too few days to fit; no
	// predictions are made then.
	InsufficientData bool    `json:"insufficient_data"`
	HistoryPoints    int     `json:"history_points"`
	Slope            float64 `json:"slope"`
	Intercept        float64 `json:"intercept"`
	Confidence       float64 `json:"confidence"`
	History          []Point `json:"history"`
	Predictions      []Point `json:"predictions"`
}

// Forecast fits hits against day offset over the configured history
// window and projects futureDays ahead. Days without statistics are not
// sample points.
func (a *Analyzer) Forecast(ctx context.Context, keywordID uuid.UUID, futureDays int) (*Forecast, error) {
	if futureDays <= 0 {
		futureDays = 7
	}
	w := a.LastDays(a.opts.ForecastHistoryDays)
	rows, err := a.rows(ctx, &keywordID, w)
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]int)
	for _, r := range rows {
		byDay[r.Date] += r.HitCount
	}
	history := make([]Point, 0, len(byDay))
	for day, hits := range byDay {
		history = append(history, Point{Date: day, Hits: float64(hits)})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })

	out := &Forecast{
		KeywordID:     keywordID,
		HistoryPoints: len(history),
		History:       history,
		Predictions:   []Point{},
	}
	if len(history) < a.opts.MinForecastPoints {
		out.InsufficientData = true
		return out, nil
	}

	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, p := range history {
		xs[i] = dayOffset(w.From, p.Date)
		ys[i] = p.Hits
	}
	out.Slope, out.Intercept = leastSquares(xs, ys)
	out.Confidence = confidence(ys)

	last := dayOffset(w.From, w.To)
	for d := 1; d <= futureDays; d++ {
		x := last + float64(d)
		out.Predictions = append(out.Predictions, Point{
			Date: w.To.AddDate(0, 0, d),
			Hits: math.Max(0, out.Slope*x+out.Intercept),
		})
	}
	return out, nil
}

func dayOffset(from, day time.Time) float64 {
	return math.Round(day.Sub(from).Hours() / 24)
}

// leastSquares returns the ordinary least squares slope and intercept.
// When every x is equal the line is flat through the mean of ys.
func leastSquares(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// confidence is 1 - stddev/mean of ys clamped to [0,1].
func confidence(ys []float64) float64 {
	var sum float64
	for _, y := range ys {
		sum += y
	}
	mean := sum / float64(len(ys))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, y := range ys {
		sq += (y - mean) * (y - mean)
	}
	stddev := math.Sqrt(sq / float64(len(ys)))
	return math.Min(1, math.Max(0, 1-stddev/mean))
}
