package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/daddykev/stardust-distro-sub000/internal/config"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// CatalogClient reads releases from the external catalog service and
// downloads their assets.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewCatalogClient creates a catalog client
func NewCatalogClient(cfg *config.CatalogConfig) *CatalogClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CatalogClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// GetRelease fetches a release by id. A 404 maps to model.ErrReleaseNotFound.
func (c *CatalogClient) GetRelease(ctx context.Context, releaseID string) (*model.Release, error) {
	var release model.Release
	status, err := c.get(ctx, "/releases/"+url.PathEscape(releaseID), &release)
	if status == http.StatusNotFound {
		return nil, model.ErrReleaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if release.ID == "" {
		release.ID = releaseID
	}
	return &release, nil
}

// Download fetches asset bytes. Only GET requests are issued.
func (c *CatalogClient) Download(ctx context.Context, assetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset download failed (status %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}

// HealthCheck checks if the catalog service is available
func (c *CatalogClient) HealthCheck(ctx context.Context) error {
	status, err := c.get(ctx, "/health", nil)
	if err != nil {
		return fmt.Errorf("catalog unhealthy: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("catalog unhealthy: status %d", status)
	}
	return nil
}

// get sends a GET request and parses the JSON response into result
func (c *CatalogClient) get(ctx context.Context, endpoint string, result interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("catalog error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return resp.StatusCode, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *CatalogClient) IsConfigured() bool {
	return c.baseURL != ""
}
