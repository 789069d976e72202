package auth

import (
	"errors"
	"strings"
)

// RoleAdmin may manage delivery targets.
const RoleAdmin = "distro:admin"

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrNotConfigured = errors.New("authentication not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Identity is the caller resolved from a bearer token or gateway headers.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	return contains(i.Roles, role)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Resolve validates a token against the JWKS verifier first and falls back to
// HMAC validation when a secret is configured.
func Resolve(tokenString string, verifier TokenVerifier, secret string) (*Identity, error) {
	if verifier != nil {
		claims, err := verifier.Validate(tokenString)
		if err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name, Roles: claims.Roles}, nil
		}
		if secret == "" {
			return nil, ErrInvalidToken
		}
	}

	if secret == "" {
		return nil, ErrNotConfigured
	}
	claims, err := ValidateLegacyToken(tokenString, secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email, Roles: claims.Roles}, nil
}

// ParseRoles splits a comma separated role header.
func ParseRoles(header string) []string {
	var roles []string
	for _, r := range strings.Split(header, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
