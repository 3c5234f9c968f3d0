package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mothershiphq/mothership/pkg/protocol"
	"github.com/mothershiphq/mothership/pkg/types"
)

// Client is a thin wrapper around the mothership HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client pointed at baseURL, authenticating every
// request with token as a bearer credential.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("failed to build request URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	var envelope protocol.APIResponse
	if out != nil {
		envelope.Data = out
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	if !envelope.Success {
		if envelope.Error != "" {
			return fmt.Errorf("%s: %s", path, envelope.Error)
		}
		return fmt.Errorf("%s: request failed with status %d", path, resp.StatusCode)
	}

	return nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Gateway lists projects the caller can access.
func (c *Client) Gateway(ctx context.Context, includeInactive bool) ([]*types.Project, error) {
	var out []*types.Project
	path := "/gateway"
	if includeInactive {
		path += "?include_inactive=true"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProject registers a new tracked project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*types.Project, error) {
	var out types.Project
	body := map[string]string{"name": name, "description": description}
	if err := c.do(ctx, http.MethodPost, "/gateway/create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProject fetches a project by ID.
func (c *Client) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var out types.Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProjectByName fetches a project by name.
func (c *Client) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	var out types.Project
	if err := c.do(ctx, http.MethodGet, "/projects/by-name/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Beam joins riftName within projectID (creating the caller's default
// rift if riftName is empty) and returns the WebSocket endpoint to
// sync through.
func (c *Client) Beam(ctx context.Context, projectID, riftName string, forceSync bool) (*protocol.BeamResponse, error) {
	var out protocol.BeamResponse
	req := protocol.BeamRequest{ProjectID: projectID, RiftName: riftName, ForceSync: forceSync}
	if err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/beam", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject removes a project and all its rifts.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+id, nil, nil)
}
