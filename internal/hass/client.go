// Package hass is the Home Assistant REST collaborator: it supplies the
// entity catalog and executes resolved service calls. It is the only
// package that talks to the host system.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hanashi-ai/hanashi/internal/model"
)

const requestTimeout = 10 * time.Second

// Client calls a Home Assistant instance over its REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client for the instance at baseURL, authenticating with a
// long-lived access token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout + 5*time.Second,
		},
	}
}

// stateEntry is one element of GET /api/states.
type stateEntry struct {
	EntityID   string `json:"entity_id"`
	Attributes struct {
		FriendlyName string   `json:"friendly_name"`
		Aliases      []string `json:"aliases"`
	} `json:"attributes"`
}

// ListEntities fetches all states and converts them to catalog entities.
// Every domain is returned; the catalog applies its domain allowlist when it
// builds a snapshot. Entities with no friendly name fall back to the object
// id with underscores spaced, so "light.office_light" still matches
// "office light".
func (c *Client) ListEntities(ctx context.Context) ([]model.Entity, error) {
	var states []stateEntry
	if err := c.get(ctx, "/api/states", &states); err != nil {
		return nil, fmt.Errorf("hass: list states: %w", err)
	}

	out := make([]model.Entity, 0, len(states))
	for _, st := range states {
		domain, objectID, ok := strings.Cut(st.EntityID, ".")
		if !ok {
			continue
		}
		name := st.Attributes.FriendlyName
		if name == "" {
			name = strings.ReplaceAll(objectID, "_", " ")
		}
		out = append(out, model.Entity{
			ID:      st.EntityID,
			Domain:  domain,
			Name:    name,
			Aliases: st.Attributes.Aliases,
		})
	}
	return out, nil
}

// CallService executes one resolved service call.
func (c *Client) CallService(ctx context.Context, call model.ServiceCall) error {
	payload := map[string]any{"entity_id": call.EntityID}
	for k, v := range call.Data {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hass: marshal service data: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/services/%s/%s", call.Domain, call.Service)
	req, err := c.newRequest(callCtx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hass: call %s/%s: %w", call.Domain, call.Service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("hass: call %s/%s: status %d: %s", call.Domain, call.Service, resp.StatusCode, string(respBody))
	}
	return nil
}

// Healthy checks the API is reachable and the token is accepted.
func (c *Client) Healthy(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
	}
	return c.get(ctx, "/api/", &out)
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := c.newRequest(callCtx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("hass: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}
