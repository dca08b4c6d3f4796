// Package loki pushes security-event log lines to Grafana Loki's push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const defaultJob = "medianest"

// Loki label values stay within a conservative character set; anything else
// is replaced before pushing.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes log entries to one Loki instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the Loki instance at baseURL
// (e.g. http://localhost:3100).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// pushRequest is Loki's push API request body (v1). Each value entry is a
// [timestamp_ns, line] pair.
type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// eventLabels picks the security-event fields that become stream labels and
// the entry timestamp.
type eventLabels struct {
	IdentityID string    `json:"identityId"`
	EventType  string    `json:"eventType"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PushEventJSON pushes one security-event JSON line (a Kafka message value),
// labeled by its event fields. A line that does not parse is still pushed,
// with the current time and the job label only.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var ev eventLabels
	if err := json.Unmarshal(rawJSON, &ev); err == nil {
		if ev.IdentityID != "" {
			labels["identity_id"] = ev.IdentityID
		}
		if ev.EventType != "" {
			labels["event_type"] = ev.EventType
		}
		if ev.Source != "" {
			labels["source"] = ev.Source
		}
		if !ev.CreatedAt.IsZero() {
			ts = ev.CreatedAt
		}
	}
	return c.Push(ctx, ts, string(rawJSON), labels)
}

// Push sends a single log line with the given labels. The job label is
// always set.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = defaultJob
	for k, v := range labels {
		if clean := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); clean != "" {
			streamLabels[k] = clean
		}
	}
	body := pushRequest{
		Streams: []stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
