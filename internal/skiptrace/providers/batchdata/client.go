package batchdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient is the production transport for the BatchData API.
type HTTPClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPClient builds the transport from adapter configuration.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// SkipTrace posts the batch request and returns BatchData's native response.
// Non-2xx replies are surfaced through the response's Status field so the
// adapter owns the failure taxonomy.
func (c *HTTPClient) SkipTrace(ctx context.Context, req *APIRequest) (*APIResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal skip-trace request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/property/skip-trace", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build skip-trace request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("skip-trace call: %w", err)
	}
	defer httpResp.Body.Close()

	var apiResp APIResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 10<<20)).Decode(&apiResp); err != nil {
		if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
			return nil, fmt.Errorf("decode skip-trace response: %w", err)
		}
		apiResp = APIResponse{Message: http.StatusText(httpResp.StatusCode)}
	}
	if apiResp.Status == 0 {
		apiResp.Status = httpResp.StatusCode
	}
	return &apiResp, nil
}

// Ping verifies the API is reachable with the configured credentials.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health call: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
