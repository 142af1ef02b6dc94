package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
)

var payload = models.ActionPayload{
	Message: models.Message{ID: "m1", Text: "设备故障报修", Area: "A", UserID: "op-7"},
	Origin:  "rule",
	Rule:    "fault report",
}

func TestDeliver_Webhook(t *testing.T) {
	var got models.ActionPayload
	var method, header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		header = r.Header.Get("X-Token")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := New(Options{}, nil)
	cfg := models.WebhookConfig{URL: srv.URL + "/hook", Method: "put", Headers: map[string]string{"X-Token": "abc"}}
	if err := d.Deliver(context.Background(), cfg, payload); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %q, want PUT", method)
	}
	if header != "abc" {
		t.Errorf("X-Token = %q, want abc", header)
	}
	if got.Message.Text != payload.Message.Text || got.Rule != payload.Rule {
		t.Errorf("body = %+v, want %+v", got, payload)
	}
}

func TestDeliver_WebhookFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(Options{}, nil).Deliver(context.Background(), models.WebhookConfig{URL: srv.URL}, payload)
	if !errors.Is(err, internalerr.ErrDelivery) {
		t.Errorf("Deliver() error = %v, want ErrDelivery", err)
	}
}

func TestDeliver_WebhookTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	err := New(Options{}, nil).Deliver(context.Background(), models.WebhookConfig{URL: srv.URL, TimeoutMs: 50}, payload)
	if !errors.Is(err, internalerr.ErrDelivery) {
		t.Errorf("Deliver() error = %v, want ErrDelivery", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Deliver() ignored the webhook timeout")
	}
}

func TestDeliver_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(Options{}, nil)
	cfg := models.WebhookConfig{URL: srv.URL}
	for i := 0; i < 5; i++ {
		_ = d.Deliver(context.Background(), cfg, payload)
	}
	err := d.Deliver(context.Background(), cfg, payload)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Deliver() error = %v, want open breaker", err)
	}
	if !errors.Is(err, internalerr.ErrDelivery) {
		t.Errorf("Deliver() error = %v, want ErrDelivery", err)
	}
	if n := hits.Load(); n != 5 {
		t.Errorf("server hits = %d, want 5", n)
	}
}

func TestDeliver_Gateway(t *testing.T) {
	var path string
	var body gatewayRequestProbe
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	d := New(Options{GatewayURL: srv.URL + "/"}, nil)
	if err := d.Deliver(context.Background(), models.ForwardConfig{Target: "dispatch"}, payload); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if path != "/forward" {
		t.Errorf("path = %q, want /forward", path)
	}
	if body.Type != models.ActionForward || body.Config["target"] != "dispatch" {
		t.Errorf("body = %+v", body)
	}
}

type gatewayRequestProbe struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

func TestDeliver_AutoReplyDelayHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := New(Options{GatewayURL: srv.URL}, nil).Deliver(ctx, models.AutoReplyConfig{Content: "ok", DelayMs: 5000}, payload)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, internalerr.ErrDelivery) {
		t.Errorf("Deliver() error = %v, want deadline exceeded delivery error", err)
	}
}

func TestDeliver_Unconfigured(t *testing.T) {
	d := New(Options{}, nil)
	tests := []struct {
		name string
		cfg  models.ActionConfig
		want string
	}{
		{"gateway", models.NotificationConfig{Recipients: []string{"lead"}}, "message gateway not configured"},
		{"sms", models.SmsConfig{Phones: []string{"1"}, Content: "x"}, "sms gateway not configured"},
		{"email", models.EmailConfig{To: []string{"a@example.com"}}, "email not configured"},
		{"script", models.ScriptConfig{Name: "restart.sh"}, "script execution disabled"},
		{"unknown", models.UnsupportedConfig{Type: "fax"}, "unsupported action type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Deliver(context.Background(), tt.cfg, payload)
			if !errors.Is(err, internalerr.ErrDelivery) {
				t.Fatalf("Deliver() error = %v, want ErrDelivery", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Deliver() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestDeliver_SMS(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	d := New(Options{SMSURL: srv.URL, SMSRate: 100}, nil)
	if err := d.Deliver(context.Background(), models.SmsConfig{Phones: []string{"13800000000"}, Content: "停电通知"}, payload); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got["content"] != "停电通知" || got["message_id"] != "m1" {
		t.Errorf("sms body = %v", got)
	}
}

type fakeMailer struct {
	to      []string
	subject string
	text    string
}

func (m *fakeMailer) IsEnabled() bool { return true }

func (m *fakeMailer) SendEmail(to []string, subject, htmlBody, textBody string) error {
	m.to, m.subject, m.text = to, subject, textBody
	return nil
}

func TestDeliver_Email(t *testing.T) {
	m := &fakeMailer{}
	d := New(Options{}, m)
	cfg := models.EmailConfig{To: []string{"lead@example.com"}, Subject: "Fault", Body: "Please check."}
	if err := d.Deliver(context.Background(), cfg, payload); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if m.subject != "Fault" || len(m.to) != 1 {
		t.Errorf("mail = %v %q", m.to, m.subject)
	}
	if !strings.HasPrefix(m.text, "Please check.") || !strings.Contains(m.text, "设备故障报修") {
		t.Errorf("text = %q", m.text)
	}
}
