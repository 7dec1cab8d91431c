package skipengine

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

// HTTPClient is the production transport for the SkipEngine API.
type HTTPClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPClient builds the transport from adapter configuration.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	return &HTTPClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// Trace posts one property query and returns SkipEngine's native result.
// Non-2xx replies are surfaced through the result's Status field so the
// adapter owns the failure taxonomy.
func (c *HTTPClient) Trace(ctx context.Context, q *Query) (*Result, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal trace request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trace", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build trace request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("trace call: %w", err)
	}
	defer httpResp.Body.Close()

	var result Result
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 10<<20)).Decode(&result); err != nil {
		if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
			return nil, fmt.Errorf("decode trace response: %w", err)
		}
		result = Result{Message: http.StatusText(httpResp.StatusCode)}
	}
	if result.Status == 0 {
		result.Status = httpResp.StatusCode
	}
	return &result, nil
}

// Ping verifies the API is reachable with the configured credentials.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("status call: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status check returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
