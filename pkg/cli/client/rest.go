// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-objbackup.
//
// go-objbackup is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
)

// RESTClient submits restores and reads job status over the REST API.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRESTClient creates a new REST client
func NewRESTClient(config *Config) (*RESTClient, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.ServerURL == "" {
		return nil, ErrServerURLRequired
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RESTClient{
		baseURL:    strings.TrimSuffix(config.ServerURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any, accept ...int) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(adapters.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	for _, code := range accept {
		if resp.StatusCode == code {
			if out != nil {
				if err := json.Unmarshal(data, out); err != nil {
					return resp.StatusCode, fmt.Errorf("decode response: %w", err)
				}
			}
			return resp.StatusCode, nil
		}
	}
	if len(data) > 0 {
		return resp.StatusCode, fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp.StatusCode, fmt.Errorf("%w %d", ErrServerError, resp.StatusCode)
}

// SubmitRestore posts req. A failed synchronous run is returned as a
// response with Status Exception, not as an error.
func (c *RESTClient) SubmitRestore(ctx context.Context, req restore.Request) (*service.Response, error) {
	var resp service.Response
	_, err := c.do(ctx, http.MethodPost, "/api/restore/blobs", req, &resp,
		http.StatusOK, http.StatusAccepted, http.StatusInternalServerError)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RestoreStatus fetches the status of job pk/id.
func (c *RESTClient) RestoreStatus(ctx context.Context, pk, id string) (*service.Response, error) {
	var resp service.Response
	path := service.StatusPath + "/" + url.PathEscape(pk) + "/" + url.PathEscape(id)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the /health endpoint.
func (c *RESTClient) Health(ctx context.Context) error {
	var health struct {
		Status string `json:"status"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &health, http.StatusOK); err != nil {
		return err
	}
	if health.Status != "healthy" {
		return fmt.Errorf("%w: %s", ErrServerNotServing, health.Status)
	}
	return nil
}

// Close releases idle connections.
func (c *RESTClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
