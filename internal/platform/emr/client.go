// Package emr talks to the external FHIR EMR service that owns patient
// resources and consent grants. The EMR is a black box reached over HTTP;
// this package only reads from it.
package emr

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

// UpstreamError carries a non-2xx EMR response so handlers can pass the
// upstream status through.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("EMR returned status %d", e.StatusCode)
}

// Client is a thin FHIR REST client. Every call forwards the caller's own
// Authorization header, so the EMR applies its own access control.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, authorization string, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build EMR request: %w", err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode EMR response for %s: %w", path, err)
	}
	return nil
}

// UserInfo resolves the bearer credential to the requesting actor resource
// via the EMR userinfo endpoint.
func (c *Client) UserInfo(ctx context.Context, authorization string) (*Actor, error) {
	var actor Actor
	if err := c.get(ctx, "/auth/userinfo", nil, authorization, &actor); err != nil {
		return nil, err
	}
	if actor.ID == "" {
		return nil, nil
	}
	return &actor, nil
}

// Patient fetches a patient resource by id.
func (c *Client) Patient(ctx context.Context, id string, authorization string) (*Patient, error) {
	var patient Patient
	if err := c.get(ctx, "/Patient/"+url.PathEscape(id), nil, authorization, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// FirstConsent searches Consent resources with the given parameters and
// returns the first match, or nil when the search is empty.
func (c *Client) FirstConsent(ctx context.Context, params url.Values, authorization string) (*Consent, error) {
	var bundle consentBundle
	if err := c.get(ctx, "/Consent", params, authorization, &bundle); err != nil {
		return nil, err
	}
	if len(bundle.Entry) == 0 {
		return nil, nil
	}
	return &bundle.Entry[0].Resource, nil
}

// Actor is the resource behind the EMR userinfo endpoint.
type Actor struct {
	ID   string      `json:"id"`
	Role []ActorRole `json:"role"`
}

// ActorRole links a user to the resources it acts as.
type ActorRole struct {
	Name  string `json:"name"`
	Links struct {
		Practitioner *ResourceRef `json:"practitioner"`
	} `json:"links"`
}

// ResourceRef is a minimal FHIR resource reference.
type ResourceRef struct {
	ID           string `json:"id"`
	ResourceType string `json:"resourceType"`
}

// Patient is the subset of the FHIR Patient resource this service reads.
type Patient struct {
	ID         string       `json:"id"`
	Identifier []Identifier `json:"identifier"`
}

// Identifier is a FHIR identifier (system + value pair).
type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// Consent is the subset of the FHIR Consent resource this service evaluates.
type Consent struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Provision struct {
		Type string `json:"type"`
	} `json:"provision"`
}

type consentBundle struct {
	Entry []struct {
		Resource Consent `json:"resource"`
	} `json:"entry"`
}
