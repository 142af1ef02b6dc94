package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// ActorHeader optionally names the operator behind an admin request. It is
// recorded as the reviewer on submission decisions.
const ActorHeader = "X-Actor"

// DefaultActor is used when a request does not name its operator.
const DefaultActor = "admin"

// AdminAuth guards the admin API with a shared bearer token.
type AdminAuth struct {
	token string
}

// NewAdminAuth creates the guard. An empty token rejects every request.
func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: token}
}

// RequireAdmin ensures the request carries "Authorization: Bearer <token>".
func (m *AdminAuth) RequireAdmin(c fiber.Ctx) error {
	got, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok || m.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(m.token)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status": "error",
			"error":  "Unauthorized",
		})
	}

	actor := strings.TrimSpace(c.Get(ActorHeader))
	if actor == "" {
		actor = DefaultActor
	}
	c.Locals("actor", actor)
	return c.Next()
}

// Actor returns the operator recorded by RequireAdmin.
func Actor(c fiber.Ctx) string {
	if actor, ok := c.Locals("actor").(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
