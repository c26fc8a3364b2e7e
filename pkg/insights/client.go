package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize is the upstream's default rows-per-page.
const DefaultPageSize = 25

// ClientConfig holds configuration for the insights API client.
type ClientConfig struct {
	ServiceURL  string `mapstructure:"service_url"`
	AccessToken string `mapstructure:"access_token"`
	Timeout     int    `mapstructure:"timeout"`
	PageSize    int    `mapstructure:"page_size"`
}

// Client is the HTTP client for the upstream insights API.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	token      string
	pageSize   int
}

// NewClient creates a new insights API client instance.
func NewClient(cfg *ClientConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL:  strings.TrimSuffix(cfg.ServiceURL, "/"),
		token:    cfg.AccessToken,
		pageSize: pageSize,
	}
}

// PageSize returns the configured rows-per-page for cost estimation.
func (c *Client) PageSize() int {
	return c.pageSize
}

// FetchPage retrieves one page of per-ad-per-day insight rows.
func (c *Client) FetchPage(ctx context.Context, req *PageRequest) (*InsightsPage, error) {
	path := fmt.Sprintf("/v1/accounts/%s/insights", url.PathEscape(req.AccountID))

	params := url.Values{}
	params.Set("since", req.Since.Format("2006-01-02"))
	params.Set("until", req.Until.Format("2006-01-02"))
	params.Set("limit", strconv.Itoa(c.pageSize))
	if req.AdID != "" {
		params.Set("ad_id", req.AdID)
	}
	if len(req.Fields) > 0 {
		params.Set("fields", strings.Join(req.Fields, ","))
	}
	if req.Cursor != "" {
		params.Set("after", req.Cursor)
	} else if req.Page > 0 {
		params.Set("page", strconv.Itoa(req.Page))
	}
	path += "?" + params.Encode()

	var page InsightsPage
	if err := c.makeRequest(ctx, http.MethodGet, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// HealthCheck checks whether the insights API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.makeRequest(ctx, http.MethodGet, "/v1/health", nil)
}

func (c *Client) makeRequest(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "AdPulse-Go/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60 * time.Second
		if header := resp.Header.Get("Retry-After"); header != "" {
			if secs, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
