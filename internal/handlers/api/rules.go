package api

import (
	"github.com/gofiber/fiber/v3"

	"keywordhub/internal/models"
	"keywordhub/internal/rules"
)

// RuleHandler manages business rules and chains via JSON API.
type RuleHandler struct {
	engine *rules.Engine
}

// NewRuleHandler creates a new API rule handler.
func NewRuleHandler(engine *rules.Engine) *RuleHandler {
	return &RuleHandler{engine: engine}
}

// List returns every rule with its conditions and actions.
func (h *RuleHandler) List(c fiber.Ctx) error {
	list, err := h.engine.Rules(c.Context())
	if err != nil {
		return jsonFail(c, err, "list rules")
	}
	if list == nil {
		list = []models.BusinessRule{}
	}
	return jsonSuccess(c, list)
}

// Get returns one rule.
func (h *RuleHandler) Get(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	rule, err := h.engine.Rule(c.Context(), id)
	if err != nil {
		return jsonFail(c, err, "fetch rule")
	}
	return jsonSuccess(c, rule)
}

// Create stores a rule. Action configs are checked when the body is decoded.
func (h *RuleHandler) Create(c fiber.Ctx) error {
	var rule models.BusinessRule
	if !decodeBody(c, &rule) {
		return nil
	}
	if err := checkRuleActions(&rule); err != nil {
		return jsonFail(c, err, "create rule")
	}

	if err := h.engine.CreateRule(c.Context(), &rule); err != nil {
		return jsonFail(c, err, "create rule")
	}
	return jsonCreated(c, rule)
}

// Update replaces a rule, including its conditions and actions.
func (h *RuleHandler) Update(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	var rule models.BusinessRule
	if !decodeBody(c, &rule) {
		return nil
	}
	rule.ID = id
	if err := checkRuleActions(&rule); err != nil {
		return jsonFail(c, err, "update rule")
	}

	if err := h.engine.UpdateRule(c.Context(), &rule); err != nil {
		return jsonFail(c, err, "update rule")
	}
	return jsonSuccess(c, rule)
}

// Delete removes a rule. Its execution logs are kept.
func (h *RuleHandler) Delete(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	if err := h.engine.DeleteRule(c.Context(), id); err != nil {
		return jsonFail(c, err, "delete rule")
	}
	return jsonSuccess(c, fiber.Map{
		"message": "rule deleted",
		"id":      id,
	})
}

// Logs returns the newest execution logs of a rule.
func (h *RuleHandler) Logs(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	logs, err := h.engine.Logs(c.Context(), id, queryInt(c, "limit", 100))
	if err != nil {
		return jsonFail(c, err, "list execution logs")
	}
	if logs == nil {
		logs = []models.RuleExecutionLog{}
	}
	return jsonSuccess(c, logs)
}

// Chains returns every rule chain.
func (h *RuleHandler) Chains(c fiber.Ctx) error {
	chains, err := h.engine.Chains(c.Context())
	if err != nil {
		return jsonFail(c, err, "list rule chains")
	}
	if chains == nil {
		chains = []models.RuleChain{}
	}
	return jsonSuccess(c, chains)
}

// CreateChain stores a rule chain.
func (h *RuleHandler) CreateChain(c fiber.Ctx) error {
	var chain models.RuleChain
	if !decodeBody(c, &chain) {
		return nil
	}

	if err := h.engine.CreateChain(c.Context(), &chain); err != nil {
		return jsonFail(c, err, "create rule chain")
	}
	return jsonCreated(c, chain)
}

// DeleteChain removes a chain. Its rules fire on their own again.
func (h *RuleHandler) DeleteChain(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	if err := h.engine.DeleteChain(c.Context(), id); err != nil {
		return jsonFail(c, err, "delete rule chain")
	}
	return jsonSuccess(c, fiber.Map{
		"message": "rule chain deleted",
		"id":      id,
	})
}

func checkRuleActions(rule *models.BusinessRule) error {
	for _, action := range rule.Actions {
		if err := checkActionURL(action.Config); err != nil {
			return err
		}
	}
	return nil
}
