// Package client calls a codexec server over HTTP and offers an Executor
// that tries the in-process ECMAScript runner before the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/storage"
	"github.com/rhuss/codexec/pkg/transport"
)

// Client calls the codexec REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	bearer     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBearerToken sends token in the Authorization header.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearer = token }
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Execution time is bounded by the server.
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute submits code for execution. Errors reported by the server are
// returned as *api.APIError.
func (c *Client) Execute(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var res api.ExecutionResult
	if err := c.do(ctx, http.MethodPost, "/api/code/execute", bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Execution returns the audit record of one execution.
func (c *Client) Execution(ctx context.Context, id string) (*storage.Record, error) {
	var rec storage.Record
	if err := c.do(ctx, http.MethodGet, "/api/code/executions/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Executions returns up to limit recent audit records, newest first.
func (c *Client) Executions(ctx context.Context, limit int) ([]*storage.Record, error) {
	path := "/api/code/executions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list transport.RecordList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// Languages returns the server's language registry.
func (c *Client) Languages(ctx context.Context) ([]transport.LanguageInfo, error) {
	var list struct {
		Data []transport.LanguageInfo `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/code/languages", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if id := transport.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("codexec request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into an *api.APIError. Bodies that
// are not in the API error format are wrapped by status.
func decodeError(status int, body []byte) error {
	var er api.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != nil && er.Error.Type != "" {
		return er.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return api.NewTooManyRequestsError(msg)
	case status == http.StatusNotFound:
		return api.NewNotFoundError(msg)
	case status >= 500:
		return api.NewServerError(fmt.Sprintf("HTTP %d: %s", status, msg))
	default:
		return api.NewInvalidRequestError("", fmt.Sprintf("HTTP %d: %s", status, msg))
	}
}
