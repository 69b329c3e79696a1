package metriport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIResponse carries a raw Metriport API reply so handlers can pass the
// upstream body and status through unchanged.
type APIResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream replied with a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client calls the Metriport aggregator API, authenticating every request
// with the shared API secret header.
type Client struct {
	baseURL   string
	keyHeader string
	secret    string
	http      *http.Client
}

func NewClient(baseURL, keyHeader, secret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyHeader: keyHeader,
		secret:    secret,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*APIResponse, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build metriport request: %w", err)
	}
	req.Header.Set(c.keyHeader, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read metriport response: %w", err)
	}
	return &APIResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// CreateUser registers an application user with Metriport and returns the
// raw reply; on 2xx the body carries the assigned userId.
func (c *Client) CreateUser(ctx context.Context, appUserID string) (*APIResponse, error) {
	query := url.Values{"appUserId": {appUserID}}
	return c.do(ctx, http.MethodPost, "/user", query)
}

// ConnectToken fetches a one-time widget connect token for a Metriport user.
func (c *Client) ConnectToken(ctx context.Context, userID string) (*APIResponse, error) {
	query := url.Values{"userId": {userID}}
	return c.do(ctx, http.MethodGet, "/user/connect/token", query)
}

// UserID extracts the userId field from a CreateUser reply.
func (r *APIResponse) UserID() (string, error) {
	var data struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(r.Body, &data); err != nil {
		return "", fmt.Errorf("decode metriport user response: %w", err)
	}
	if data.UserID == "" {
		return "", fmt.Errorf("metriport user response has no userId")
	}
	return data.UserID, nil
}
