package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuer = "https://id.example.com"

func rsaVerifier(t *testing.T, audience, rolesClaim string) (*JWKSVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	kf := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return &key.PublicKey, nil
	}
	return newVerifier(kf, issuer, audience, rolesClaim), key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSVerifier_ValidToken(t *testing.T) {
	v, key := rsaVerifier(t, "distro-api", "")
	token := sign(t, key, jwt.MapClaims{
		"iss":   issuer,
		"sub":   "user-1",
		"aud":   "distro-api",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"email": "ops@example.com",
		"roles": []string{RoleAdmin, "viewer"},
	})

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, []string{RoleAdmin, "viewer"}, claims.Roles)
}

func TestJWKSVerifier_RolesObjectClaim(t *testing.T) {
	v, key := rsaVerifier(t, "", "urn:idp:roles")
	token := sign(t, key, jwt.MapClaims{
		"iss": issuer,
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"urn:idp:roles": map[string]interface{}{
			"viewer":  map[string]interface{}{"org": "a"},
			RoleAdmin: map[string]interface{}{"org": "a"},
		},
	})

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleAdmin, "viewer"}, claims.Roles)
}

func TestJWKSVerifier_Rejects(t *testing.T) {
	v, key := rsaVerifier(t, "distro-api", "")
	base := func() jwt.MapClaims {
		return jwt.MapClaims{"iss": issuer, "sub": "u", "aud": "distro-api", "exp": time.Now().Add(time.Hour).Unix()}
	}

	wrongIssuer := base()
	wrongIssuer["iss"] = "https://evil.example.com"
	wrongAudience := base()
	wrongAudience["aud"] = "other"
	expired := base()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noExpiry := base()
	delete(noExpiry, "exp")

	for name, claims := range map[string]jwt.MapClaims{
		"issuer": wrongIssuer, "audience": wrongAudience, "expired": expired, "no expiry": noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(sign(t, key, claims))
			assert.Error(t, err)
		})
	}
}

func TestResolve_LegacyFallback(t *testing.T) {
	secret := "test-secret"
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, LegacyClaims{
		UserID: "svc-1",
		Email:  "svc@example.com",
		Roles:  []string{RoleAdmin},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	v, _ := rsaVerifier(t, "", "")
	id, err := Resolve(token, v, secret)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", id.UserID)
	assert.True(t, id.HasRole(RoleAdmin))

	_, err = Resolve(token, v, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Resolve(token, nil, "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = Resolve(token, nil, "wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerTokenAndRoles(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, ParseRoles(" a, ,b "))
	assert.Nil(t, ParseRoles(""))
}
