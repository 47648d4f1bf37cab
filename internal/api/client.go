// Package api is the REST collaborator client for a spreads server:
// workflow CRUD under /api/workflow and global configuration under
// /api/config.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/spreads/client/internal/errors"
)

// DefaultTimeout bounds each request when the caller does not configure one.
const DefaultTimeout = 10 * time.Second

// Client talks to one spreads server.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the server at origin, e.g.
// "http://127.0.0.1:5000". A zero timeout selects DefaultTimeout.
func NewClient(origin string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.ConfigInvalid("server URL must be http(s)://host[:port]: " + origin)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: u.Scheme + "://" + u.Host,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// UseTLS makes requests verify the server with cfg, e.g. a pinned
// self-signed certificate.
func (c *Client) UseTLS(cfg *tls.Config) {
	c.http.Transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: cfg,
	}
}

// Origin returns the server origin requests are sent to.
func (c *Client) Origin() string {
	return c.base
}

// ListWorkflows returns every workflow.
func (c *Client) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	if err := c.do(ctx, http.MethodGet, "/api/workflow", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWorkflow fetches one workflow by id. A missing workflow yields
// api.not_found.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodGet, workflowPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateWorkflow validates w and posts it. Submission is blocked when
// validation fails. The slug is derived from the name when empty.
func (c *Client) CreateWorkflow(ctx context.Context, w Workflow) (*Workflow, error) {
	if err := ValidateWorkflow(w); err != nil {
		return nil, err
	}
	if w.Slug == "" {
		w.Slug = Slugify(w.Name)
	}
	var out Workflow
	if err := c.do(ctx, http.MethodPost, "/api/workflow", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateWorkflow applies a partial update and returns the stored workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, u WorkflowUpdate) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodPut, workflowPath(id), u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWorkflow removes one workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, workflowPath(id), nil, nil)
}

// DeleteMany deletes each id in turn and keeps going past failures. The
// returned slice lists the ids that were deleted; the error joins one
// failure per id that was not.
func (c *Client) DeleteMany(ctx context.Context, ids []string) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	var errs []error
	for _, id := range ids {
		if err := c.DeleteWorkflow(ctx, id); err != nil {
			log.Printf("api: delete %s failed: %v", id, err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, errors.Join(errs...)
}

// GetConfig returns the server's global configuration.
func (c *Client) GetConfig(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveConfig replaces the global configuration and returns the stored copy.
func (c *Client) SaveConfig(ctx context.Context, cfg map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	if err := c.do(ctx, http.MethodPost, "/api/config", cfg, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func workflowPath(id string) string {
	return "/api/workflow/" + url.PathEscape(id)
}

// do sends one JSON request. Non-2xx responses become api.status (or
// api.not_found) errors carrying the server's "error" text when present.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeAPIRequestFailed, "failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeAPIRequestFailed, fmt.Sprintf("%s %s", method, path), err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeAPIRequestFailed, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeAPIRequestFailed, fmt.Sprintf("%s %s: read body", method, path), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return apperrors.APIStatus(method, path, resp.StatusCode, errResp.Error)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperrors.Wrap(apperrors.CodeAPIDecodeFailed, fmt.Sprintf("%s %s: decode response", method, path), err)
	}
	return nil
}
