// Package plex is the HTTP client for the external media-server identity
// provider: PIN creation, PIN polling, and profile fetch. All calls are made
// through the resilience layer by the PIN service; the client itself only
// shapes requests and classifies failures.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"medianest/backend/internal/resilience"
)

// Pin is one provider-side device-linking code.
type Pin struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	// AuthToken is set by the provider once the user has entered the code.
	AuthToken string `json:"authToken"`
}

// Profile is the provider's view of the linked user.
type Profile struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Title    string `json:"title"`
	Thumb    string `json:"thumb"`
	// Raw is the verbatim response body, stored on the identity for display.
	Raw string `json:"-"`
}

// ExternalID returns the provider user id as a string key.
func (p *Profile) ExternalID() string { return strconv.FormatInt(p.ID, 10) }

// Client talks to the provider's v2 API.
type Client struct {
	baseURL  string
	clientID string
	product  string
	http     *http.Client
}

// New returns a provider client. clientID is this installation's
// X-Plex-Client-Identifier; product is shown on the provider's link page.
// Timeouts are enforced per-call by the resilience layer's context, not here.
func New(baseURL, clientID, product string) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		product:  product,
		http:     &http.Client{},
	}
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", c.product)
}

// do runs the request and classifies the failure mode: network errors and
// 5xx responses are transient (retryable), everything else propagates as-is.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
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
		return nil, resilience.Transient(fmt.Errorf("provider returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	return body, nil
}

// CreatePin requests a new strong linking PIN from the provider.
func (c *Client) CreatePin(ctx context.Context) (*Pin, error) {
	form := url.Values{"strong": {"true"}}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v2/pins?"+form.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.headers(req)
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var pin Pin
	if err := json.Unmarshal(body, &pin); err != nil {
		return nil, fmt.Errorf("decode pin: %w", err)
	}
	return &pin, nil
}

// CheckPin fetches the current state of the PIN. AuthToken is non-empty once
// the user has authorized the code on the provider's site.
func (c *Client) CheckPin(ctx context.Context, id int64) (*Pin, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v2/pins/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	c.headers(req)
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var pin Pin
	if err := json.Unmarshal(body, &pin); err != nil {
		return nil, fmt.Errorf("decode pin: %w", err)
	}
	return &pin, nil
}

// GetProfile fetches the user profile for the given provider auth token.
func (c *Client) GetProfile(ctx context.Context, authToken string) (*Profile, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/v2/user", nil)
	if err != nil {
		return nil, err
	}
	c.headers(req)
	req.Header.Set("X-Plex-Token", authToken)
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	profile.Raw = string(body)
	return &profile, nil
}
