package api

import (
	"github.com/gofiber/fiber/v3"

	"keywordhub/internal/trends"
)

const (
	defaultTrendDays = 7
	maxTrendDays     = 365
	maxForecastDays  = 90
)

// TrendHandler serves keyword usage reports.
type TrendHandler struct {
	analyzer *trends.Analyzer
}

// NewTrendHandler creates a new API trend handler.
func NewTrendHandler(analyzer *trends.Analyzer) *TrendHandler {
	return &TrendHandler{analyzer: analyzer}
}

// window reads ?days= and ?area=. ok is false when a 400 was written.
func (h *TrendHandler) window(c fiber.Ctx) (trends.Window, bool) {
	days := queryInt(c, "days", defaultTrendDays)
	if days < 1 || days > maxTrendDays {
		_ = jsonError(c, fiber.StatusBadRequest, "days must be between 1 and 365")
		return trends.Window{}, false
	}
	w := h.analyzer.LastDays(days)
	w.Area = c.Query("area")
	return w, true
}

// Basic returns totals and averages over the window.
func (h *TrendHandler) Basic(c fiber.Ctx) error {
	w, ok := h.window(c)
	if !ok {
		return nil
	}

	stats, err := h.analyzer.BasicStats(c.Context(), w)
	if err != nil {
		return jsonFail(c, err, "compute statistics")
	}
	return jsonSuccess(c, stats)
}

// Hot returns the most hit keywords in the window.
func (h *TrendHandler) Hot(c fiber.Ctx) error {
	w, ok := h.window(c)
	if !ok {
		return nil
	}

	hot, err := h.analyzer.HotKeywords(c.Context(), w, queryInt(c, "limit", 10))
	if err != nil {
		return jsonFail(c, err, "compute hot keywords")
	}
	if hot == nil {
		hot = []trends.KeywordTotals{}
	}
	return jsonSuccess(c, hot)
}

// Effectiveness splits keywords into high and low success rates.
func (h *TrendHandler) Effectiveness(c fiber.Ctx) error {
	w, ok := h.window(c)
	if !ok {
		return nil
	}

	eff, err := h.analyzer.Effectiveness(c.Context(), w)
	if err != nil {
		return jsonFail(c, err, "compute effectiveness")
	}
	return jsonSuccess(c, eff)
}

// Emerging returns keywords whose hits grew sharply.
func (h *TrendHandler) Emerging(c fiber.Ctx) error {
	days := queryInt(c, "days", 14)
	if days < 2 || days > maxTrendDays {
		return jsonError(c, fiber.StatusBadRequest, "days must be between 2 and 365")
	}

	emerging, err := h.analyzer.Emerging(c.Context(), days, c.Query("area"))
	if err != nil {
		return jsonFail(c, err, "compute emerging keywords")
	}
	if emerging == nil {
		emerging = []trends.EmergingKeyword{}
	}
	return jsonSuccess(c, emerging)
}

// Forecast projects a keyword's daily hits.
func (h *TrendHandler) Forecast(c fiber.Ctx) error {
	id, ok := paramID(c, "keywordId")
	if !ok {
		return nil
	}
	days := queryInt(c, "days", 7)
	if days < 1 || days > maxForecastDays {
		return jsonError(c, fiber.StatusBadRequest, "days must be between 1 and 90")
	}

	forecast, err := h.analyzer.Forecast(c.Context(), id, days)
	if err != nil {
		return jsonFail(c, err, "forecast keyword")
	}
	return jsonSuccess(c, forecast)
}
