package api

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
	"keywordhub/internal/promotion"
	"keywordhub/internal/store"
	"keywordhub/internal/validation"
)

// KeywordResolver answers resolution queries and drops cached keyword sets.
type KeywordResolver interface {
	Resolve(ctx context.Context, text string, area *string) ([]models.Keyword, error)
	Invalidate(area *string)
}

// TriggerRecorder counts a client keyword hit.
type TriggerRecorder interface {
	RecordTrigger(ctx context.Context, text string, area *string, userID, triggerContext string) (*promotion.TriggerResult, error)
}

// KeywordHandler manages keywords via JSON API.
type KeywordHandler struct {
	store       store.KeywordStore
	resolver    KeywordResolver
	promotion   TriggerRecorder
	regexPrefix string
}

// NewKeywordHandler creates a new API keyword handler. Keyword texts
// starting with regexPrefix must be valid patterns.
func NewKeywordHandler(st store.KeywordStore, resolver KeywordResolver, promotion TriggerRecorder, regexPrefix string) *KeywordHandler {
	return &KeywordHandler{store: st, resolver: resolver, promotion: promotion, regexPrefix: regexPrefix}
}

type keywordRequest struct {
	Text             string  `json:"text" validate:"required"`
	Description      string  `json:"description" validate:"max=500"`
	Kind             string  `json:"kind" validate:"omitempty,oneof=global local custom"`
	Priority         string  `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Area             *string `json:"area"`
	Source           string  `json:"source" validate:"omitempty,oneof=server client"`
	TriggerThreshold int     `json:"trigger_threshold" validate:"gte=0"`
}

// List returns keywords, optionally narrowed by area and source.
func (h *KeywordHandler) List(c fiber.Ctx) error {
	filter := store.KeywordFilter{
		Area:            models.AreaPtr(c.Query("area")),
		Source:          c.Query("source"),
		IncludeInactive: c.Query("include_inactive") == "true",
		Limit:           queryInt(c, "limit", 0),
	}

	keywords, err := h.store.ListKeywords(c.Context(), filter)
	if err != nil {
		return jsonFail(c, err, "list keywords")
	}
	if keywords == nil {
		keywords = []models.Keyword{}
	}
	return jsonSuccess(c, keywords)
}

// Get returns one keyword by ID.
func (h *KeywordHandler) Get(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	kw, err := h.store.GetKeyword(c.Context(), id)
	if err != nil {
		return jsonFail(c, err, "fetch keyword")
	}
	return jsonSuccess(c, kw)
}

// Create adds a keyword. Keywords default to the server source.
func (h *KeywordHandler) Create(c fiber.Ctx) error {
	var body keywordRequest
	if !decodeBody(c, &body) {
		return nil
	}
	body.Text = validation.NormalizeKeyword(body.Text)
	if err := h.validate(&body); err != nil {
		return jsonFail(c, err, "create keyword")
	}

	source := body.Source
	if source == "" {
		source = models.SourceServer
	}
	kind := body.Kind
	if kind == "" {
		kind = models.KindGlobal
		if body.Area != nil {
			kind = models.KindLocal
		}
	}
	priority, _ := models.ParsePriority(body.Priority)

	kw := &models.Keyword{
		Text:             body.Text,
		Description:      body.Description,
		Kind:             kind,
		Priority:         priority,
		Area:             models.AreaPtr(models.AreaKey(body.Area)),
		Active:           true,
		Source:           source,
		Weight:           models.WeightForSource(source),
		TriggerThreshold: body.TriggerThreshold,
	}
	if err := h.store.CreateKeyword(c.Context(), kw); err != nil {
		return jsonFail(c, err, "create keyword")
	}
	h.resolver.Invalidate(kw.Area)

	return jsonCreated(c, kw)
}

// Update edits a keyword's text, description, kind, priority, area and
// threshold. The source and hit count cannot be changed here.
func (h *KeywordHandler) Update(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	var body keywordRequest
	if !decodeBody(c, &body) {
		return nil
	}
	body.Text = validation.NormalizeKeyword(body.Text)
	if err := h.validate(&body); err != nil {
		return jsonFail(c, err, "update keyword")
	}

	kw, err := h.store.GetKeyword(c.Context(), id)
	if err != nil {
		return jsonFail(c, err, "fetch keyword")
	}
	oldArea := kw.Area

	kw.Text = body.Text
	kw.Description = body.Description
	if body.Kind != "" {
		kw.Kind = body.Kind
	}
	if body.Priority != "" {
		kw.Priority, _ = models.ParsePriority(body.Priority)
	}
	kw.Area = models.AreaPtr(models.AreaKey(body.Area))
	kw.TriggerThreshold = body.TriggerThreshold

	if err := h.store.UpdateKeyword(c.Context(), kw); err != nil {
		return jsonFail(c, err, "update keyword")
	}
	h.resolver.Invalidate(oldArea)
	h.resolver.Invalidate(kw.Area)

	return jsonSuccess(c, kw)
}

// Delete deactivates a keyword. History and statistics are kept.
func (h *KeywordHandler) Delete(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}

	kw, err := h.store.GetKeyword(c.Context(), id)
	if err != nil {
		return jsonFail(c, err, "fetch keyword")
	}
	if err := h.store.DeactivateKeyword(c.Context(), id); err != nil {
		return jsonFail(c, err, "deactivate keyword")
	}
	h.resolver.Invalidate(kw.Area)

	return jsonSuccess(c, fiber.Map{
		"message": "keyword deactivated",
		"id":      id,
	})
}

// Resolve returns the records that apply to a keyword text in an area,
// server record first.
func (h *KeywordHandler) Resolve(c fiber.Ctx) error {
	text := validation.NormalizeKeyword(c.Query("text"))
	if text == "" {
		return jsonError(c, fiber.StatusBadRequest, "text is required")
	}

	keywords, err := h.resolver.Resolve(c.Context(), text, models.AreaPtr(c.Query("area")))
	if err != nil {
		return jsonFail(c, err, "resolve keyword")
	}
	return jsonSuccess(c, fiber.Map{
		"text":     text,
		"keywords": keywords,
	})
}

type triggerRequest struct {
	Text    string `json:"text" validate:"required"`
	Area    string `json:"area"`
	UserID  string `json:"user_id" validate:"required"`
	Context string `json:"context" validate:"max=2000"`
}

// RecordTrigger counts a hit reported by a client for a locally learned
// keyword. Crossing the keyword's threshold opens a submission.
func (h *KeywordHandler) RecordTrigger(c fiber.Ctx) error {
	var body triggerRequest
	if !decodeBody(c, &body) {
		return nil
	}
	body.Text = validation.NormalizeKeyword(body.Text)
	if err := validation.Struct(body); err != nil {
		return jsonFail(c, err, "record trigger")
	}
	if ok, msg := validation.ValidateKeyword(body.Text, h.regexPrefix); !ok {
		return jsonError(c, fiber.StatusBadRequest, msg)
	}

	res, err := h.promotion.RecordTrigger(c.Context(), body.Text, models.AreaPtr(body.Area), body.UserID, body.Context)
	if err != nil {
		return jsonFail(c, err, "record trigger")
	}
	return jsonSuccess(c, res)
}

func (h *KeywordHandler) validate(body *keywordRequest) error {
	if err := validation.Struct(body); err != nil {
		return err
	}
	if ok, msg := validation.ValidateKeyword(body.Text, h.regexPrefix); !ok {
		return fmt.Errorf("%s: %w", msg, internalerr.ErrValidation)
	}
	return nil
}
