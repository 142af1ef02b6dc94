package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeHandler handles Kubernetes health probe endpoints.
type ProbeHandler struct {
	db Pinger
}

// NewProbeHandler creates a probe handler. db may be nil when storage is in
// memory.
func NewProbeHandler(db Pinger) *ProbeHandler {
	return &ProbeHandler{db: db}
}

// Liveness handles /healthz. Returns 200 OK while the process runs.
func (h *ProbeHandler) Liveness(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// Readiness handles /readyz. Returns 200 OK when storage answers.
func (h *ProbeHandler) Readiness(c fiber.Ctx) error {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			return jsonError(c, fiber.StatusServiceUnavailable, "database unavailable")
		}
	}
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
