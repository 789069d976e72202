package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/daddykev/stardust-distro-sub000/internal/auth"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthHandler creates a new auth handler for ForwardAuth verification
func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Verify handles GET /auth/verify, called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	tokenString, ok := auth.BearerToken(c.Get("Authorization"))
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	identity, err := auth.Resolve(tokenString, h.verifier, h.jwtSecret)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", identity.UserID)
	c.Set("X-User-Email", identity.Email)
	if identity.Name != "" {
		c.Set("X-User-Name", identity.Name)
	}
	if len(identity.Roles) > 0 {
		c.Set("X-User-Roles", strings.Join(identity.Roles, ","))
	}
	return c.SendStatus(fiber.StatusOK)
}
