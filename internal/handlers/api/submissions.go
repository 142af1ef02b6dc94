package api

import (
	"github.com/gofiber/fiber/v3"

	"keywordhub/internal/middleware"
	"keywordhub/internal/models"
	"keywordhub/internal/promotion"
	"keywordhub/internal/store"
)

// SubmissionHandler handles promotion review via JSON API.
type SubmissionHandler struct {
	store     store.SubmissionStore
	promotion *promotion.Pipeline
}

// NewSubmissionHandler creates a new API submission handler.
func NewSubmissionHandler(st store.SubmissionStore, promotion *promotion.Pipeline) *SubmissionHandler {
	return &SubmissionHandler{store: st, promotion: promotion}
}

// List returns submissions, optionally filtered by status.
func (h *SubmissionHandler) List(c fiber.Ctx) error {
	status := c.Query("status")
	switch status {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected:
	default:
		return jsonError(c, fiber.StatusBadRequest, "invalid status")
	}

	subs, err := h.store.ListSubmissions(c.Context(), status)
	if err != nil {
		return jsonFail(c, err, "list submissions")
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	return jsonSuccess(c, subs)
}

// Get returns one submission.
func (h *SubmissionHandler) Get(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	sub, err := h.store.GetSubmission(c.Context(), id)
	if err != nil {
		return jsonFail(c, err, "fetch submission")
	}
	return jsonSuccess(c, sub)
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

// Approve promotes a pending submission into a server keyword. The request
// actor is recorded as the reviewer.
func (h *SubmissionHandler) Approve(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	var body reviewRequest
	if len(c.Body()) > 0 && !decodeBody(c, &body) {
		return nil
	}

	res, err := h.promotion.Approve(c.Context(), id, middleware.Actor(c), body.Notes)
	if err != nil {
		return jsonFail(c, err, "approve submission")
	}
	return jsonSuccess(c, res)
}

// Reject closes a pending submission. The client keyword keeps counting.
func (h *SubmissionHandler) Reject(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	var body reviewRequest
	if len(c.Body()) > 0 && !decodeBody(c, &body) {
		return nil
	}

	res, err := h.promotion.Reject(c.Context(), id, middleware.Actor(c), body.Notes)
	if err != nil {
		return jsonFail(c, err, "reject submission")
	}
	return jsonSuccess(c, res)
}
