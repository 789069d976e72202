package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/daddykev/stardust-distro-sub000/internal/auth"
	"github.com/daddykev/stardust-distro-sub000/pkg/response"
)

// TokenIssuer is the issuer of HMAC service tokens minted by this API.
const TokenIssuer = "stardust-distro"

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // fallback for HMAC service tokens
}

// NewAuthMiddleware creates a new auth middleware with JWKS verification
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// NewAuthMiddlewareWithFallback creates auth middleware with both JWKS and HMAC support
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

// Authenticate validates JWT token from Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		tokenString, ok := auth.BearerToken(authHeader)
		if !ok {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		identity, err := auth.Resolve(tokenString, m.verifier, m.jwtSecret)
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}

		setIdentity(c, identity)
		return c.Next()
	}
}

// RequireRole rejects callers whose identity lacks role
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := c.Locals("identity").(*auth.Identity)
		if !ok || !identity.HasRole(role) {
			return response.Forbidden(c, "Missing role "+role)
		}
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, identity *auth.Identity) {
	c.Locals("userId", identity.UserID)
	c.Locals("email", identity.Email)
	c.Locals("name", identity.Name)
	c.Locals("identity", identity)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// GenerateToken creates a new HMAC service token (useful for testing and
// machine callers)
func (m *AuthMiddleware) GenerateToken(userID, email string, roles ...string) (string, error) {
	if m.jwtSecret == "" {
		return "", jwt.ErrTokenNotValidYet
	}

	claims := auth.LegacyClaims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: TokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.jwtSecret))
}
