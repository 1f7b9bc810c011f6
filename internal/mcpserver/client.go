package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for connecting to the screening API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "sk_..."
}

// IPIntelClient is a pure HTTP client for the screening API.
type IPIntelClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewIPIntelClient creates a new client for the screening API.
func NewIPIntelClient(cfg Config) *IPIntelClient {
	return &IPIntelClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *IPIntelClient) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ScreenIP screens a transaction's originating IP address.
func (c *IPIntelClient) ScreenIP(ctx context.Context, transactionID, userID, userCountry, ipAddress string) (json.RawMessage, error) {
	body := map[string]string{
		"transaction_id": transactionID,
		"user_id":        userID,
		"user_country":   userCountry,
		"ip_address":     ipAddress,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/screenings", body)
}

// GetReputation returns the cached reputation record for an IP.
func (c *IPIntelClient) GetReputation(ctx context.Context, ip string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/reputation/"+ip, nil)
}

// GetCountry returns reference metadata and the sanctions flag for a country.
func (c *IPIntelClient) GetCountry(ctx context.Context, code string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/countries/"+code, nil)
}
