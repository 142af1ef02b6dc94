package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
)

// Keyword trigger rule types.
const (
	TriggerLog          = "LOG"
	TriggerNotification = "NOTIFICATION"
	TriggerAPICall      = "API_CALL"
	TriggerScript       = "SCRIPT"
	TriggerEmail        = "EMAIL"
)

var triggerActionTypes = map[string]string{
	TriggerLog:          ActionLog,
	TriggerNotification: ActionNotification,
	TriggerAPICall:      ActionWebhook,
	TriggerScript:       ActionScript,
	TriggerEmail:        ActionEmail,
}

// ActionTypeForTrigger maps a trigger rule type onto the action type whose
// config and transport it uses.
func ActionTypeForTrigger(triggerType string) (string, bool) {
	t, ok := triggerActionTypes[triggerType]
	return t, ok
}

// KeywordTriggerRule is an action attached directly to a keyword and run
// whenever the keyword is detected.
type KeywordTriggerRule struct {
	ID        uuid.UUID    `json:"id"`
	KeywordID uuid.UUID    `json:"keyword_id"`
	Type      string       `json:"type"`
	Config    ActionConfig `json:"config"`
	Enabled   bool         `json:"enabled"`
	CreatedAt time.Time    `json:"created_at"`
}

type keywordTriggerRuleJSON struct {
	ID        uuid.UUID       `json:"id"`
	KeywordID uuid.UUID       `json:"keyword_id"`
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
}

// DecodeTriggerConfig decodes a trigger rule config by trigger type.
func DecodeTriggerConfig(triggerType string, raw json.RawMessage) (ActionConfig, error) {
	actionType, ok := ActionTypeForTrigger(triggerType)
	if !ok {
		return nil, fmt.Errorf("unknown trigger rule type %q: %w", triggerType, internalerr.ErrValidation)
	}
	return DecodeActionConfig(actionType, raw)
}

// UnmarshalJSON decodes the config into its typed variant.
func (r *KeywordTriggerRule) UnmarshalJSON(b []byte) error {
	var aux keywordTriggerRuleJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	cfg, err := DecodeTriggerConfig(aux.Type, aux.Config)
	if err != nil {
		return err
	}
	*r = KeywordTriggerRule{
		ID:        aux.ID,
		KeywordID: aux.KeywordID,
		Type:      aux.Type,
		Config:    cfg,
		Enabled:   aux.Enabled,
		CreatedAt: aux.CreatedAt,
	}
	return nil
}
