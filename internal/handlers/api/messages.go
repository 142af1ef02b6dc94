package api

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"keywordhub/internal/models"
	"keywordhub/internal/rules"
	"keywordhub/internal/trigger"
	"keywordhub/internal/validation"
)

// MessageHandler runs inbound messages through detection and the rule
// engine.
type MessageHandler struct {
	pipeline *trigger.Pipeline
	engine   *rules.Engine
}

// NewMessageHandler creates a new API message handler.
func NewMessageHandler(pipeline *trigger.Pipeline, engine *rules.Engine) *MessageHandler {
	return &MessageHandler{pipeline: pipeline, engine: engine}
}

type messageRequest struct {
	ID         string    `json:"message_id" validate:"max=200"`
	Text       string    `json:"text" validate:"required,max=10000"`
	Area       string    `json:"area" validate:"max=100"`
	UserID     string    `json:"user_id" validate:"max=200"`
	ReceivedAt time.Time `json:"received_at"`
}

func (h *MessageHandler) message(c fiber.Ctx) (models.Message, bool) {
	var body messageRequest
	if !decodeBody(c, &body) {
		return models.Message{}, false
	}
	if err := validation.Struct(body); err != nil {
		_ = jsonFail(c, err, "read message")
		return models.Message{}, false
	}
	return models.Message{
		ID:         body.ID,
		Text:       body.Text,
		Area:       body.Area,
		UserID:     body.UserID,
		ReceivedAt: body.ReceivedAt,
	}, true
}

// Detect finds the keywords of the message's area in its text and runs
// their trigger rules.
func (h *MessageHandler) Detect(c fiber.Ctx) error {
	msg, ok := h.message(c)
	if !ok {
		return nil
	}

	detections, err := h.pipeline.Detect(c.Context(), msg)
	if err != nil {
		return jsonFail(c, err, "detect keywords")
	}
	return jsonSuccess(c, detections)
}

// Evaluate matches the message against the business rules.
func (h *MessageHandler) Evaluate(c fiber.Ctx) error {
	msg, ok := h.message(c)
	if !ok {
		return nil
	}

	matches, err := h.engine.Evaluate(c.Context(), msg)
	if err != nil {
		return jsonFail(c, err, "evaluate rules")
	}
	if matches == nil {
		matches = []rules.Match{}
	}
	return jsonSuccess(c, matches)
}
