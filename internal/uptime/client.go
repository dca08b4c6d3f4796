// Package uptime is the HTTP client for the uptime monitor. A background
// poller in cmd/server probes it through the resilience layer on a fixed
// interval, which keeps the per-service status snapshots fresh for both
// delivery paths of the status broadcaster.
package uptime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"medianest/backend/internal/resilience"
)

// Monitor is one monitored target as reported by the uptime monitor.
type Monitor struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Client talks to the uptime monitor's metrics API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns an uptime monitor client.
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

// ListMonitors returns the monitor list with current status. Network errors
// and 5xx responses are transient.
func (c *Client) ListMonitors(ctx context.Context) ([]Monitor, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/status-page/heartbeat", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
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
		return nil, resilience.Transient(fmt.Errorf("uptime monitor returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("uptime monitor returned %d", resp.StatusCode)
	}
	var out struct {
		Monitors []Monitor `json:"monitors"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode monitors: %w", err)
	}
	return out.Monitors, nil
}
