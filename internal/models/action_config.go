package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"keywordhub/internal/internalerr"
)

// Action type constants.
const (
	ActionForward      = "forward"
	ActionAutoReply    = "auto_reply"
	ActionNotification = "notification"
	ActionLog          = "log"
	ActionWebhook      = "webhook"
	ActionEmail        = "email"
	ActionSms          = "sms"
	ActionScript       = "script"
)

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// ActionConfig is the decoded, type-specific configuration of an action.
// Each action type has exactly one config variant.
type ActionConfig interface {
	ActionType() string
}

// ForwardConfig forwards the message to another operator queue or channel.
type ForwardConfig struct {
	Target  string `json:"target" validate:"required"`
	Channel string `json:"channel,omitempty"`
	Note    string `json:"note,omitempty"`
}

// AutoReplyConfig answers the sender with canned content.
type AutoReplyConfig struct {
	Content string `json:"content" validate:"required"`
	DelayMs int    `json:"delay_ms,omitempty" validate:"gte=0"`
}

// NotificationConfig notifies staff members through the message gateway.
type NotificationConfig struct {
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	Title      string   `json:"title,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// LogConfig writes a structured log line.
type LogConfig struct {
	Level   string `json:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Message string `json:"message,omitempty"`
}

// WebhookConfig calls an external HTTP endpoint.
type WebhookConfig struct {
	URL       string            `json:"url" validate:"required,http_url"`
	Method    string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers   map[string]string `json:"headers,omitempty"`
	TimeoutMs int               `json:"timeout_ms,omitempty" validate:"gte=0"`
}

// EmailConfig sends an email.
type EmailConfig struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required"`
	Body    string   `json:"body,omitempty"`
}

// SmsConfig sends an SMS through the SMS gateway.
type SmsConfig struct {
	Phones  []string `json:"phones" validate:"required,min=1,dive,required"`
	Content string   `json:"content" validate:"required"`
}

// ScriptConfig names a server-side script. Stored for completeness; the
// delivery layer refuses to execute scripts.
type ScriptConfig struct {
	Name string   `json:"name" validate:"required"`
	Args []string `json:"args,omitempty"`
}

// UnsupportedConfig keeps an action whose type is not known to this build.
// It never executes successfully.
type UnsupportedConfig struct {
	Type string          `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (ForwardConfig) ActionType() string       { return ActionForward }
func (AutoReplyConfig) ActionType() string     { return ActionAutoReply }
func (NotificationConfig) ActionType() string  { return ActionNotification }
func (LogConfig) ActionType() string           { return ActionLog }
func (WebhookConfig) ActionType() string       { return ActionWebhook }
func (EmailConfig) ActionType() string         { return ActionEmail }
func (SmsConfig) ActionType() string           { return ActionSms }
func (ScriptConfig) ActionType() string        { return ActionScript }
func (c UnsupportedConfig) ActionType() string { return c.Type }

// MarshalJSON emits the raw config unchanged.
func (c UnsupportedConfig) MarshalJSON() ([]byte, error) {
	if len(c.Raw) == 0 {
		return []byte("{}"), nil
	}
	return c.Raw, nil
}

// EffectiveMethod returns the HTTP method, defaulting to POST.
func (c WebhookConfig) EffectiveMethod() string {
	if c.Method == "" {
		return "POST"
	}
	return strings.ToUpper(c.Method)
}

// KnownActionType reports whether the action type has a config variant.
func KnownActionType(actionType string) bool {
	switch actionType {
	case ActionForward, ActionAutoReply, ActionNotification, ActionLog,
		ActionWebhook, ActionEmail, ActionSms, ActionScript:
		return true
	}
	return false
}

// DecodeActionConfig decodes and validates the config for an action type.
// Unknown types decode into UnsupportedConfig without error; malformed
// configs of known types are rejected with internalerr.ErrValidation.
func DecodeActionConfig(actionType string, raw json.RawMessage) (ActionConfig, error) {
	var cfg ActionConfig
	switch actionType {
	case ActionForward:
		cfg = &ForwardConfig{}
	case ActionAutoReply:
		cfg = &AutoReplyConfig{}
	case ActionNotification:
		cfg = &NotificationConfig{}
	case ActionLog:
		cfg = &LogConfig{}
	case ActionWebhook:
		cfg = &WebhookConfig{}
	case ActionEmail:
		cfg = &EmailConfig{}
	case ActionSms:
		cfg = &SmsConfig{}
	case ActionScript:
		cfg = &ScriptConfig{}
	default:
		return UnsupportedConfig{Type: actionType, Raw: raw}, nil
	}

	if len(raw) > 0 && string(raw) != "null" {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%s config: %v: %w", actionType, err, internalerr.ErrValidation)
		}
	}
	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%s config: %v: %w", actionType, err, internalerr.ErrValidation)
	}
	return deref(cfg), nil
}

// deref returns config variants by value.
func deref(cfg ActionConfig) ActionConfig {
	switch c := cfg.(type) {
	case *ForwardConfig:
		return *c
	case *AutoReplyConfig:
		return *c
	case *NotificationConfig:
		return *c
	case *LogConfig:
		return *c
	case *WebhookConfig:
		return *c
	case *EmailConfig:
		return *c
	case *SmsConfig:
		return *c
	case *ScriptConfig:
		return *c
	}
	return cfg
}

// EncodeActionConfig serializes a config for storage.
func EncodeActionConfig(cfg ActionConfig) (json.RawMessage, error) {
	if cfg == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(cfg)
}
