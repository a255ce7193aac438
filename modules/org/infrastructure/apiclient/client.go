// Package apiclient talks to the hierarchy HTTP API and satisfies
// services.EntityStore, so the canvas controller can run against a remote
// server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/presentation/controllers/dtos"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultPrefix   = "/org/api/hierarchy"
	requestIDHeader = "X-Request-ID"
)

type Options struct {
	BaseURL      string
	TenantID     uuid.UUID
	TenantHeader string
	HTTPClient   *http.Client
}

type Client struct {
	baseURL      *url.URL
	tenantID     uuid.UUID
	tenantHeader string
	httpClient   *http.Client
}

var _ services.EntityStore = (*Client)(nil)

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", raw)
	}
	c := &Client{
		baseURL:      u,
		tenantID:     opts.TenantID,
		tenantHeader: opts.TenantHeader,
		httpClient:   opts.HTTPClient,
	}
	if c.tenantHeader == "" {
		c.tenantHeader = "X-Tenant-ID"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c, nil
}

func kindPath(kind hierarchy.Kind) (string, error) {
	switch kind {
	case hierarchy.KindSector:
		return defaultPrefix + "/sectors", nil
	case hierarchy.KindPosition:
		return defaultPrefix + "/positions", nil
	default:
		return "", fmt.Errorf("unsupported hierarchy kind %d", int(kind))
	}
}

func (c *Client) ListNodes(ctx context.Context, kind hierarchy.Kind, scope services.Scope) ([]hierarchy.Node, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if scope.SectorID != nil && kind.Grouped() {
		q.Set("sector_id", scope.SectorID.String())
	}
	var resp dtos.NodeListResponse
	if err := c.doJSON(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ToNodes(kind), nil
}

func (c *Client) UpdateHierarchy(ctx context.Context, kind hierarchy.Kind, updates []hierarchy.ParentUpdate) error {
	_, err := c.ApplyHierarchy(ctx, kind, updates)
	return err
}

// ApplyHierarchy posts one batch and returns the server's counts.
func (c *Client) ApplyHierarchy(ctx context.Context, kind hierarchy.Kind, updates []hierarchy.ParentUpdate) (dtos.BatchResponse, error) {
	path, err := kindPath(kind)
	if err != nil {
		return dtos.BatchResponse{}, err
	}
	var resp dtos.BatchResponse
	err = c.doJSON(ctx, http.MethodPost, path+":batch", nil, services.NewUpdateHierarchyRequest(updates), &resp)
	return resp, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return gerrors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return gerrors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	if c.tenantID != uuid.Nil {
		req.Header.Set(c.tenantHeader, c.tenantID.String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gerrors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gerrors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: requestID}
		var envelope dtos.APIError
		if err := json.Unmarshal(respBody, &envelope); err == nil && strings.TrimSpace(envelope.Code) != "" {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
			if id := envelope.Meta["request_id"]; id != "" {
				apiErr.RequestID = id
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return gerrors.Wrap(err, "unmarshal response")
	}
	return nil
}
