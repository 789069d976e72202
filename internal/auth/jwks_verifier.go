package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/daddykev/stardust-distro-sub000/internal/config"
)

// TokenVerifier defines the interface for JWT token verification
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
	Close() error
}

// Claims are the identity claims the API cares about
type Claims struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
}

// JWKSVerifier implements TokenVerifier against an OIDC provider's key set
type JWKSVerifier struct {
	keyfunc    jwt.Keyfunc
	issuer     string
	audience   string
	rolesClaim string
}

// NewJWKSVerifier discovers the provider's JWKS endpoint and creates a verifier
func NewJWKSVerifier(cfg *config.OIDCConfig) (*JWKSVerifier, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("oidc issuer is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jwksURL, err := discoverJWKSURL(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}

	return newVerifier(jwks.Keyfunc, cfg.Issuer, cfg.Audience, cfg.RolesClaim), nil
}

func newVerifier(kf jwt.Keyfunc, issuer, audience, rolesClaim string) *JWKSVerifier {
	if rolesClaim == "" {
		rolesClaim = "roles"
	}
	return &JWKSVerifier{
		keyfunc:    kf,
		issuer:     issuer,
		audience:   audience,
		rolesClaim: rolesClaim,
	}
}

// discoverJWKSURL fetches the OIDC discovery document and extracts the jwks_uri.
func discoverJWKSURL(ctx context.Context, issuer string) (string, error) {
	discoveryURL := fmt.Sprintf("%s/.well-known/openid-configuration", issuer)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create discovery request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if doc.JWKSURI == "" {
		return "", fmt.Errorf("jwks_uri not found in discovery document")
	}

	return doc.JWKSURI, nil
}

// Validate validates a JWT token and returns the claims
func (v *JWKSVerifier) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	mc := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, mc, v.keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := mc.GetSubject()
	email, _ := mc["email"].(string)
	name, _ := mc["name"].(string)
	return &Claims{
		UserID: sub,
		Email:  email,
		Name:   name,
		Roles:  rolesFrom(mc[v.rolesClaim]),
	}, nil
}

// rolesFrom accepts a list of role names or an object keyed by role name.
func rolesFrom(raw interface{}) []string {
	var roles []string
	switch r := raw.(type) {
	case []interface{}:
		for _, item := range r {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
	case map[string]interface{}:
		for k := range r {
			roles = append(roles, k)
		}
		sort.Strings(roles)
	case string:
		roles = ParseRoles(r)
	}
	return roles
}

// Close releases resources used by the verifier
func (v *JWKSVerifier) Close() error {
	// keyfunc.Keyfunc is managed internally; no explicit cleanup needed
	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
