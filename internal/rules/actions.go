package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/metrics"
	"keywordhub/internal/models"
)

// runActions executes stages in order. Actions sharing an execution order
// run concurrently; a failed action never stops the others.
func (e *Engine) runActions(ctx context.Context, stages [][]models.RuleAction, payload models.ActionPayload) []models.ActionOutcome {
	var outcomes []models.ActionOutcome
	for _, stage := range stages {
		results := make([]models.ActionOutcome, len(stage))
		var g errgroup.Group
		for i, action := range stage {
			g.Go(func() error {
				results[i] = e.RunAction(ctx, action.ID, action.Type, action.Config, payload)
				results[i].ExecutionOrder = action.ExecutionOrder
				return nil
			})
		}
		_ = g.Wait()
		outcomes = append(outcomes, results...)
	}
	return outcomes
}

// RunAction executes a single action under the engine's per-action timeout
// and reports its outcome. Log actions are written locally; everything else
// goes to the Deliverer.
func (e *Engine) RunAction(ctx context.Context, id uuid.UUID, actionType string, cfg models.ActionConfig, payload models.ActionPayload) models.ActionOutcome {
	start := time.Now()
	err := e.perform(ctx, actionType, cfg, payload)

	out := models.ActionOutcome{
		ActionID:   id,
		Type:       actionType,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		out.Error = err.Error()
		slog.Warn("action failed", "type", actionType, "rule", payload.Rule, "keyword", payload.Keyword, "error", err)
	}
	metrics.RecordActionDelivery(actionType, out.Success)
	return out
}

func (e *Engine) perform(ctx context.Context, actionType string, cfg models.ActionConfig, payload models.ActionPayload) error {
	switch c := cfg.(type) {
	case nil:
		return fmt.Errorf("%s action has no config: %w", actionType, internalerr.ErrValidation)
	case models.UnsupportedConfig:
		return fmt.Errorf("unknown action type %q: %w", c.Type, internalerr.ErrValidation)
	case models.LogConfig:
		writeLog(ctx, c, payload)
		return nil
	}

	if e.deliverer == nil {
		return fmt.Errorf("no transport for %s action: %w", actionType, internalerr.ErrDelivery)
	}

	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.deliverer.Deliver(actx, cfg, payload)
	}()

	select {
	case err := <-done:
		return err
	case <-actx.Done():
		return fmt.Errorf("%s action: %w: %w", actionType, actx.Err(), internalerr.ErrDelivery)
	}
}

func writeLog(ctx context.Context, cfg models.LogConfig, payload models.ActionPayload) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	msg := cfg.Message
	if msg == "" {
		msg = "keyword rule matched"
	}
	slog.Log(ctx, level, msg,
		"origin", payload.Origin,
		"rule", payload.Rule,
		"keyword", payload.Keyword,
		"message_id", payload.Message.ID,
		"area", payload.Message.Area,
		"user_id", payload.Message.UserID,
	)
}
