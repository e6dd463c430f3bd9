// Package feedproxy wraps the FetchRSS API, which converts arbitrary
// web pages into canonical RSS feeds. Sources that are not already
// feeds are provisioned here before any fetching happens.
package feedproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/pkg/httpretry"
	"github.com/infocapsule/digest/internal/pkg/logger"
)

// Config holds FetchRSS API credentials and endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ProvisionedFeed is the result of a successful feed creation.
type ProvisionedFeed struct {
	FeedURL string
	FeedID  string
}

// Client is the FetchRSS API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new FetchRSS API client.
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://fetchrss.com/api/v2"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  config.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: timeout,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type feedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Feed    struct {
		ID     string `json:"id"`
		RSSURL string `json:"rss_url"`
	} `json:"feed"`
}

// CreateFeed registers originURL with the proxy and returns the canonical
// feed URL plus the proxy's feed ID. Selectors are optional; when nil the
// proxy auto-detects article boundaries.
func (c *Client) CreateFeed(ctx context.Context, originURL string, selectors *domain.Selectors) (*ProvisionedFeed, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("url", originURL); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if selectors != nil {
		if selectors.Container != "" {
			form.WriteField("news_selector", selectors.Container)
		}
		if selectors.Headline != "" {
			form.WriteField("title_selector", selectors.Headline)
		}
		if selectors.Summary != "" {
			form.WriteField("content_selector", selectors.Summary)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/feeds", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed proxy error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed feedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse feed proxy response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("feed proxy rejected %s: %s", originURL, parsed.Message)
	}
	if parsed.Feed.RSSURL == "" {
		return nil, fmt.Errorf("feed proxy returned no feed URL for %s", originURL)
	}

	return &ProvisionedFeed{
		FeedURL: parsed.Feed.RSSURL,
		FeedID:  parsed.Feed.ID,
	}, nil
}

// DeleteFeed removes a provisioned feed from the proxy. Deletion is
// best-effort: failures are logged, never returned, so source removal
// always succeeds locally. The proxy treats repeated deletes of the same
// ID as a no-op.
func (c *Client) DeleteFeed(ctx context.Context, feedID string) {
	if feedID == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/feeds/%s", c.baseURL, feedID), nil)
	if err != nil {
		logger.Error("Failed to create feed proxy delete request", "feed_id", feedID, "error", err.Error())
		return
	}
	req.Header.Set("API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("Failed to delete proxy feed", "feed_id", feedID, "error", err.Error())
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var parsed feedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || !parsed.Success {
		logger.Warn("Proxy feed delete not confirmed", "feed_id", feedID, "status", resp.StatusCode)
		return
	}

	logger.Info("Deleted proxy feed", "feed_id", feedID)
}
