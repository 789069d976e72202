package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// authorize sets the Authorization header described by auth. OAuth2 targets
// fetch a client-credentials token first.
func authorize(ctx context.Context, client *http.Client, req *http.Request, auth *model.APIAuth) error {
	if auth == nil {
		return nil
	}

	creds := auth.Credentials
	switch auth.Type {
	case model.AuthTypeNone, "":
		return nil
	case model.AuthTypeBearer:
		if creds.Token == "" {
			return model.NewValidationError("auth.credentials.token", "bearer token is required")
		}
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	case model.AuthTypeBasic:
		raw := creds.Username + ":" + creds.Password
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	case model.AuthTypeOAuth2:
		token, err := fetchClientCredentialsToken(ctx, client, creds)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	default:
		return model.NewValidationError("auth.type", "unsupported auth type %q", auth.Type)
	}
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func fetchClientCredentialsToken(ctx context.Context, client *http.Client, creds model.AuthCredentials) (string, error) {
	if creds.TokenURL == "" {
		return "", model.NewValidationError("auth.credentials.tokenUrl", "token url is required for OAuth2")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	if creds.Scope != "" {
		form.Set("scope", creds.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}
	return tok.AccessToken, nil
}
