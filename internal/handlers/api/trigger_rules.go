package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
	"keywordhub/internal/trigger"
	"keywordhub/internal/validation"
)

// TriggerRuleHandler manages actions attached directly to keywords.
type TriggerRuleHandler struct {
	pipeline *trigger.Pipeline
}

// NewTriggerRuleHandler creates a new API trigger rule handler.
func NewTriggerRuleHandler(pipeline *trigger.Pipeline) *TriggerRuleHandler {
	return &TriggerRuleHandler{pipeline: pipeline}
}

// List returns the trigger rules of a keyword.
func (h *TriggerRuleHandler) List(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	rules, err := h.pipeline.TriggerRules(c.Context(), id)
	if err != nil {
		return jsonFail(c, err, "list trigger rules")
	}
	if rules == nil {
		rules = []models.KeywordTriggerRule{}
	}
	return jsonSuccess(c, rules)
}

// Create attaches a trigger rule to a keyword. Rules are enabled unless the
// body says otherwise.
func (h *TriggerRuleHandler) Create(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	var body struct {
		Type    string          `json:"type"`
		Config  json.RawMessage `json:"config"`
		Enabled *bool           `json:"enabled"`
	}
	if !decodeBody(c, &body) {
		return nil
	}

	cfg, err := models.DecodeTriggerConfig(body.Type, body.Config)
	if err != nil {
		return jsonFail(c, err, "create trigger rule")
	}
	if err := checkActionURL(cfg); err != nil {
		return jsonFail(c, err, "create trigger rule")
	}

	rule := &models.KeywordTriggerRule{
		KeywordID: id,
		Type:      body.Type,
		Config:    cfg,
		Enabled:   body.Enabled == nil || *body.Enabled,
	}
	if err := h.pipeline.CreateTriggerRule(c.Context(), rule); err != nil {
		return jsonFail(c, err, "create trigger rule")
	}
	return jsonCreated(c, rule)
}

// Delete removes a trigger rule.
func (h *TriggerRuleHandler) Delete(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	if err := h.pipeline.DeleteTriggerRule(c.Context(), id); err != nil {
		return jsonFail(c, err, "delete trigger rule")
	}
	return jsonSuccess(c, fiber.Map{
		"message": "trigger rule deleted",
		"id":      id,
	})
}

// checkActionURL rejects webhook configs whose URL is not plain http(s).
func checkActionURL(cfg models.ActionConfig) error {
	webhook, ok := cfg.(models.WebhookConfig)
	if !ok {
		return nil
	}
	if valid, msg := validation.ValidateURL(webhook.URL); !valid {
		return errors.Join(errors.New(msg), internalerr.ErrValidation)
	}
	return nil
}
