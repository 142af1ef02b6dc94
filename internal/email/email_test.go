package email

import (
	"strings"
	"testing"

	"keywordhub/internal/config"
)

func enabledConfig() *config.Config {
	return &config.Config{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPFrom:     "noreply@example.com",
		SMTPFromName: "Keyword Hub",
		SMTPTLS:      "starttls",
	}
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *config.Config
		wantEnabled bool
	}{
		{
			name:        "enabled when host and sender configured",
			cfg:         enabledConfig(),
			wantEnabled: true,
		},
		{
			name:        "disabled when SMTPHost is empty",
			cfg:         &config.Config{SMTPFrom: "noreply@example.com"},
			wantEnabled: false,
		},
		{
			name:        "disabled when SMTPFrom is empty",
			cfg:         &config.Config{SMTPHost: "smtp.example.com"},
			wantEnabled: false,
		},
		{
			name:        "disabled with empty config",
			cfg:         &config.Config{},
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.cfg)
			if svc.IsEnabled() != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", svc.IsEnabled(), tt.wantEnabled)
			}
		})
	}
}

func TestService_SendEmail_Disabled(t *testing.T) {
	svc := NewService(&config.Config{})
	if err := svc.SendEmail([]string{"test@example.com"}, "Test", "<p>HTML</p>", "Text"); err != nil {
		t.Errorf("SendEmail() with disabled service should return nil, got %v", err)
	}
}

func TestService_SendEmail_NoRecipients(t *testing.T) {
	svc := NewService(enabledConfig())
	if err := svc.SendEmail(nil, "Test", "<p>HTML</p>", "Text"); err != nil {
		t.Errorf("SendEmail() with no recipients should return nil, got %v", err)
	}
}

func TestService_BuildMessage(t *testing.T) {
	svc := NewService(enabledConfig())

	tests := []struct {
		name          string
		htmlBody      string
		textBody      string
		wantMultipart bool
		wantParts     []string
	}{
		{
			name:          "text only",
			textBody:      "plain body",
			wantMultipart: false,
			wantParts:     []string{"Content-Type: text/plain", "plain body"},
		},
		{
			name:          "html and text",
			htmlBody:      "<p>html body</p>",
			textBody:      "plain body",
			wantMultipart: true,
			wantParts:     []string{"text/plain", "text/html", "<p>html body</p>", "--" + boundary + "--"},
		},
		{
			name:          "html only",
			htmlBody:      "<p>html body</p>",
			wantMultipart: true,
			wantParts:     []string{"text/html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := svc.buildMessage([]string{"a@example.com", "b@example.com"}, "Subject line", tt.htmlBody, tt.textBody)

			if !strings.Contains(msg, "From: Keyword Hub <noreply@example.com>\r\n") {
				t.Error("message missing From header with display name")
			}
			if !strings.Contains(msg, "To: a@example.com, b@example.com\r\n") {
				t.Error("message missing To header")
			}
			if !strings.Contains(msg, "Subject: Subject line\r\n") {
				t.Error("message missing Subject header")
			}
			if got := strings.Contains(msg, "multipart/alternative"); got != tt.wantMultipart {
				t.Errorf("multipart = %v, want %v", got, tt.wantMultipart)
			}
			for _, part := range tt.wantParts {
				if !strings.Contains(msg, part) {
					t.Errorf("message missing %q", part)
				}
			}
		})
	}
}
