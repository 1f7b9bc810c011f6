package ipintel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to an ipintel server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// Configuration
	AdminKey string // X-Admin-Key for admin endpoints (seeding)

	// Hooks
	OnResult func(*ScreeningResult) // Called after each successful screening
}

// NewClient creates a client for the given base URL, e.g.
// "http://localhost:8080". The API key may be empty when the server runs
// with auth disabled.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Screen submits one transaction for screening and returns the verdict.
func (c *Client) Screen(ctx context.Context, req ScreeningRequest) (*ScreeningResult, error) {
	var res ScreeningResult
	if err := c.do(ctx, http.MethodPost, "/v1/screenings", req, &res, false); err != nil {
		return nil, err
	}
	if c.OnResult != nil {
		c.OnResult(&res)
	}
	return &res, nil
}

// Reputation returns the cached classification for an IP. A miss across
// every tier surfaces as an *Error with status 404; use IsNotFound.
func (c *Client) Reputation(ctx context.Context, ip string) (*ReputationResult, error) {
	var res ReputationResult
	if err := c.do(ctx, http.MethodGet, "/v1/reputation/"+url.PathEscape(ip), nil, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

// SeedReputation writes a record into the tier matching the seed's flags.
// Requires AdminKey to be set when the server enforces one.
func (c *Client) SeedReputation(ctx context.Context, ip string, seed ReputationSeed) (*ReputationResult, error) {
	var res ReputationResult
	if err := c.do(ctx, http.MethodPut, "/v1/admin/reputation/"+url.PathEscape(ip), seed, &res, true); err != nil {
		return nil, err
	}
	return &res, nil
}

// CheckCountry returns reference metadata and the sanctions flag for a
// two-letter country code.
func (c *Client) CheckCountry(ctx context.Context, code string) (*Country, error) {
	var res Country
	if err := c.do(ctx, http.MethodGet, "/v1/countries/"+url.PathEscape(code), nil, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

// do performs one API request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any, admin bool) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if admin && c.AdminKey != "" {
		req.Header.Set("X-Admin-Key", c.AdminKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
