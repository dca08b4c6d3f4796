// Package mediabroker is the HTTP client for the media-request broker (an
// Overseerr-compatible API). Business handlers call it exclusively through
// the resilience layer and fall back to cached or explicit degraded results.
package mediabroker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"medianest/backend/internal/resilience"
)

// MediaRequest is one submitted media request.
type MediaRequest struct {
	ID        int64  `json:"id"`
	MediaType string `json:"mediaType"` // "movie" or "tv"
	MediaID   int64  `json:"mediaId"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// SearchResult is one title from the broker's search index.
type SearchResult struct {
	ID        int64  `json:"id"`
	MediaType string `json:"mediaType"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	Overview  string `json:"overview"`
}

// Client talks to the broker's v1 API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a broker client authenticated with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, http: &http.Client{}}
}

// do runs the request and classifies the failure mode the same way the other
// dependency clients do: network errors and 5xx are transient, 4xx are not.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, resilience.Transient(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.Transient(err)
	}
	if resp.StatusCode >= 500 {
		return nil, resilience.Transient(fmt.Errorf("broker returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("broker returned %d", resp.StatusCode)
	}
	return body, nil
}

// ListRequests returns the recent media requests.
func (c *Client) ListRequests(ctx context.Context, take int) ([]MediaRequest, error) {
	q := url.Values{"take": {strconv.Itoa(take)}, "sort": {"added"}}
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/v1/request?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out struct {
		Results []MediaRequest `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return out.Results, nil
}

// SubmitRequest submits a new media request for the given title.
func (c *Client) SubmitRequest(ctx context.Context, mediaType string, mediaID int64) (*MediaRequest, error) {
	payload, err := json.Marshal(map[string]any{"mediaType": mediaType, "mediaId": mediaID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/request", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out MediaRequest
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &out, nil
}

// Search queries the broker's search index.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{"query": {query}}
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	return out.Results, nil
}
