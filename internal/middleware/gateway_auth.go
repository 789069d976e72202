package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/daddykev/stardust-distro-sub000/internal/auth"
	"github.com/daddykev/stardust-distro-sub000/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by Traefik ForwardAuth and populates Fiber context locals.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, &auth.Identity{
			UserID: userID,
			Email:  c.Get("X-User-Email"),
			Name:   c.Get("X-User-Name"),
			Roles:  auth.ParseRoles(c.Get("X-User-Roles")),
		})
		return c.Next()
	}
}
