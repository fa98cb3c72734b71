// Package docanalyzer calls the backend document/identity analysis
// service over HTTP.
package docanalyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// maxResponseBytes bounds how much of an analysis response is read.
const maxResponseBytes = 1 << 20

// Client implements verify.DocumentAnalyzer against the backend API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the analysis service at baseURL. The api key is
// optional; when set it is sent as a bearer token.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Analyze submits the session artifacts for backend evaluation.
func (c *Client) Analyze(ctx context.Context, req verify.AnalyzeRequest) (*verify.BackendAnalysis, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("analyzer base url is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("analyzer error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded verify.BackendAnalysis
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &decoded, nil
}
