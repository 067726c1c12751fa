// Package anthropic provides a client for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	requestTimeout = 120 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
	maxAttempts    = 3
)

var (
	// ErrUnauthorized indicates the API key is missing, expired, or invalid.
	ErrUnauthorized = errors.New("anthropic: unauthorized (check API key)")
	// ErrRateLimited indicates the API rate limit was hit after retries.
	ErrRateLimited = errors.New("anthropic: rate limited")
)

// Client talks to the Messages API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given API key. An empty baseURL uses
// the production endpoint.
func NewClient(apiKey, baseURL string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: API key is empty")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}, nil
}

// CreateMessage sends one Messages API request and returns the reply.
// Retries transient failures (rate limits, 5xx) with backoff.
func (c *Client) CreateMessage(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
		}

		resp, retryable, err := c.post(ctx, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, payload []byte) (*MessagesResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("anthropic: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("anthropic: sending request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("anthropic: reading response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, true, ErrRateLimited
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, false, ErrUnauthorized
	case httpResp.StatusCode >= 500:
		return nil, true, fmt.Errorf("anthropic: server error (status %d)", httpResp.StatusCode)
	case httpResp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("anthropic: API error (status %d): %s", httpResp.StatusCode, apiErrorMessage(body))
	}

	var result MessagesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, fmt.Errorf("anthropic: parsing response: %w", err)
	}
	return &result, false, nil
}

// apiErrorMessage pulls the error message out of an API error body,
// falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return string(body)
}
