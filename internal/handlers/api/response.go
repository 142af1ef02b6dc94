package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
)

// jsonSuccess returns a 200 response with data wrapped in the standard envelope.
func jsonSuccess(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonCreated returns a 201 response with data wrapped in the standard envelope.
func jsonCreated(c fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonError returns an error response with the given HTTP status code.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}

// errorStatus maps an error kind onto an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, internalerr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, internalerr.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, internalerr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, internalerr.ErrDelivery):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// jsonFail writes err with the status of its kind. Client errors carry the
// error text; server errors are logged and reported as "failed to <action>".
func jsonFail(c fiber.Ctx, err error, action string) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("api request failed", "action", action, "path", c.Path(), "error", err)
		return jsonError(c, status, "failed to "+action)
	}
	return jsonError(c, status, err.Error())
}

// decodeBody unmarshals the request body into v. ok is false when a 400
// was written.
func decodeBody(c fiber.Ctx, v any) bool {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		msg := "invalid request body"
		if errors.Is(err, internalerr.ErrValidation) {
			msg = err.Error()
		}
		_ = jsonError(c, fiber.StatusBadRequest, msg)
		return false
	}
	return true
}

// paramID parses a UUID path parameter. ok is false when a 400 was written.
func paramID(c fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		_ = jsonError(c, fiber.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an integer query parameter, returning fallback when it is
// absent or malformed.
func queryInt(c fiber.Ctx, key string, fallback int) int {
	if n, err := strconv.Atoi(c.Query(key)); err == nil {
		return n
	}
	return fallback
}
