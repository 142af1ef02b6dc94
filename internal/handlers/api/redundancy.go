package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"keywordhub/internal/models"
	"keywordhub/internal/redundancy"
	"keywordhub/internal/store"
)

// RedundancyHandler exposes near-duplicate detection and resolution.
type RedundancyHandler struct {
	detector *redundancy.Detector
	store    store.RedundancyStore
}

// NewRedundancyHandler creates a new API redundancy handler.
func NewRedundancyHandler(detector *redundancy.Detector, st store.RedundancyStore) *RedundancyHandler {
	return &RedundancyHandler{detector: detector, store: st}
}

// Scan compares the active keywords of one area, or of every area when
// none is given.
func (h *RedundancyHandler) Scan(c fiber.Ctx) error {
	var areas []*string
	if area := c.Query("area"); area != "" {
		areas = []*string{models.AreaPtr(area)}
	} else {
		var err error
		areas, err = h.detector.Areas(c.Context())
		if err != nil {
			return jsonFail(c, err, "list areas")
		}
	}

	candidates := []redundancy.Candidate{}
	for _, area := range areas {
		found, err := h.detector.Scan(c.Context(), area)
		if err != nil {
			return jsonFail(c, err, "scan keywords")
		}
		candidates = append(candidates, found...)
	}
	return jsonSuccess(c, candidates)
}

// Pairs lists recorded pairs, optionally filtered by status.
func (h *RedundancyHandler) Pairs(c fiber.Ctx) error {
	status := c.Query("status")
	switch status {
	case "", models.PairDetected, models.PairMerged, models.PairKeptBoth:
	default:
		return jsonError(c, fiber.StatusBadRequest, "invalid status")
	}

	pairs, err := h.store.ListRedundancyPairs(c.Context(), status)
	if err != nil {
		return jsonFail(c, err, "list redundancy pairs")
	}
	if pairs == nil {
		pairs = []models.RedundancyPair{}
	}
	return jsonSuccess(c, pairs)
}

// Merge folds one keyword into another.
func (h *RedundancyHandler) Merge(c fiber.Ctx) error {
	var body struct {
		KeepID uuid.UUID `json:"keep_id"`
		DropID uuid.UUID `json:"drop_id"`
	}
	if !decodeBody(c, &body) {
		return nil
	}
	if body.KeepID == uuid.Nil || body.DropID == uuid.Nil {
		return jsonError(c, fiber.StatusBadRequest, "keep_id and drop_id are required")
	}

	kept, err := h.detector.Merge(c.Context(), body.KeepID, body.DropID)
	if err != nil {
		return jsonFail(c, err, "merge keywords")
	}
	return jsonSuccess(c, kept)
}

// Keep marks a pair as intentionally distinct.
func (h *RedundancyHandler) Keep(c fiber.Ctx) error {
	var body struct {
		KeywordIDA uuid.UUID `json:"keyword_id_a"`
		KeywordIDB uuid.UUID `json:"keyword_id_b"`
	}
	if !decodeBody(c, &body) {
		return nil
	}
	if body.KeywordIDA == uuid.Nil || body.KeywordIDB == uuid.Nil {
		return jsonError(c, fiber.StatusBadRequest, "keyword_id_a and keyword_id_b are required")
	}

	if err := h.detector.Keep(c.Context(), body.KeywordIDA, body.KeywordIDB); err != nil {
		return jsonFail(c, err, "keep pair")
	}
	return jsonSuccess(c, fiber.Map{"message": "pair kept"})
}
