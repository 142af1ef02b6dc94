// Package delivery sends triggered actions to their external transports:
// webhooks, the message gateway, the SMS gateway and email.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
)

// Mailer sends email.
type Mailer interface {
	IsEnabled() bool
	SendEmail(to []string, subject, htmlBody, textBody string) error
}

// Options configures a Dispatcher.
type Options struct {
	// GatewayURL receives forward, auto-reply and notification actions.
	GatewayURL string
	SMSURL     string
	SMSRate    float64
	HTTPClient *http.Client
}

// Dispatcher delivers actions. It is safe for concurrent use.
type Dispatcher struct {
	client     *http.Client
	gatewayURL string
	smsURL     string
	smsLimiter *rate.Limiter
	mailer     Mailer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Dispatcher. mailer may be nil.
func New(opts Options, mailer Mailer) *Dispatcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	smsRate := opts.SMSRate
	if smsRate <= 0 {
		smsRate = 5
	}
	return &Dispatcher{
		client:     client,
		gatewayURL: strings.TrimRight(opts.GatewayURL, "/"),
		smsURL:     opts.SMSURL,
		smsLimiter: rate.NewLimiter(rate.Limit(smsRate), int(smsRate)+1),
		mailer:     mailer,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Deliver sends one action. Every failure wraps internalerr.ErrDelivery.
func (d *Dispatcher) Deliver(ctx context.Context, cfg models.ActionConfig, payload models.ActionPayload) error {
	var err error
	switch c := cfg.(type) {
	case models.WebhookConfig:
		err = d.webhook(ctx, c, payload)
	case models.ForwardConfig, models.NotificationConfig:
		err = d.gateway(ctx, cfg, payload)
	case models.AutoReplyConfig:
		err = d.autoReply(ctx, c, payload)
	case models.SmsConfig:
		err = d.sms(ctx, c, payload)
	case models.EmailConfig:
		err = d.email(c, payload)
	case models.LogConfig:
		slog.Info("log action delivered", "rule", payload.Rule, "keyword", payload.Keyword, "message", c.Message)
		return nil
	case models.ScriptConfig:
		err = fmt.Errorf("script %q: script execution disabled", c.Name)
	default:
		err = fmt.Errorf("unsupported action type %q", cfg.ActionType())
	}
	if err != nil && !errors.Is(err, internalerr.ErrDelivery) {
		err = fmt.Errorf("%w: %w", internalerr.ErrDelivery, err)
	}
	return err
}

func (d *Dispatcher) webhook(ctx context.Context, cfg models.WebhookConfig, payload models.ActionPayload) error {
	if cfg.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return d.send(ctx, cfg.EffectiveMethod(), cfg.URL, cfg.Headers, body)
}

// gatewayRequest is the body posted to the message gateway.
type gatewayRequest struct {
	Type    string               `json:"type"`
	Config  models.ActionConfig  `json:"config"`
	Payload models.ActionPayload `json:"payload"`
}

func (d *Dispatcher) gateway(ctx context.Context, cfg models.ActionConfig, payload models.ActionPayload) error {
	if d.gatewayURL == "" {
		return errors.New("message gateway not configured")
	}
	body, err := json.Marshal(gatewayRequest{Type: cfg.ActionType(), Config: cfg, Payload: payload})
	if err != nil {
		return err
	}
	return d.send(ctx, http.MethodPost, d.gatewayURL+"/"+cfg.ActionType(), nil, body)
}

func (d *Dispatcher) autoReply(ctx context.Context, cfg models.AutoReplyConfig, payload models.ActionPayload) error {
	if cfg.DelayMs > 0 {
		t := time.NewTimer(time.Duration(cfg.DelayMs) * time.Millisecond)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return d.gateway(ctx, cfg, payload)
}

func (d *Dispatcher) sms(ctx context.Context, cfg models.SmsConfig, payload models.ActionPayload) error {
	if d.smsURL == "" {
		return errors.New("sms gateway not configured")
	}
	if err := d.smsLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms rate limit: %w", err)
	}
	body, err := json.Marshal(map[string]any{
		"phones":     cfg.Phones,
		"content":    cfg.Content,
		"message_id": payload.Message.ID,
	})
	if err != nil {
		return err
	}
	return d.send(ctx, http.MethodPost, d.smsURL, nil, body)
}

func (d *Dispatcher) email(cfg models.EmailConfig, payload models.ActionPayload) error {
	if d.mailer == nil || !d.mailer.IsEnabled() {
		return errors.New("email not configured")
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "Keyword alert: " + payload.Keyword + payload.Rule
	}
	text := cfg.Body
	if text != "" {
		text += "\n\n"
	}
	text += fmt.Sprintf("Message %s from %s (area %s):\n%s", payload.Message.ID, payload.Message.UserID, payload.Message.Area, payload.Message.Text)
	return d.mailer.SendEmail(cfg.To, subject, "", text)
}

// send performs an HTTP call through the breaker for the target host.
// Non-2xx responses are failures.
func (d *Dispatcher) send(ctx context.Context, method, target string, headers map[string]string, body []byte) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", target, err)
	}

	_, err = d.breaker(u.Host).Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "keywordhub/1.0")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%s %s: status %d", method, u.Host, resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

func (d *Dispatcher) breaker(host string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("delivery circuit breaker changed state", "host", name, "from", from.String(), "to", to.String())
		},
	})
	d.breakers[host] = cb
	return cb
}
