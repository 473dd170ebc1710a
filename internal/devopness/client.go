// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package devopness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 4 << 20

// ErrAuthentication is returned when the platform rejects the login.
var ErrAuthentication = errors.New("platform authentication failed")

// StatusError reports a response whose status differs from the one the
// operation requires.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, strings.TrimSpace(e.Body))
}

// Client talks to the deployment platform REST API.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     uint64
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithToken sets a bearer token obtained earlier, skipping Login.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithRetry configures retries for network errors and 429/5xx responses.
func WithRetry(maxRetries uint64, initial, maxInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initial
		c.maxBackoff = maxInterval
	}
}

// WithRateLimit throttles outgoing requests to rps requests per second.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("api base url is empty")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}

	c := &Client{
		baseURL:        strings.TrimRight(trimmed, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		limiter:        rate.NewLimiter(rate.Limit(5), 1),
		maxRetries:     3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login authenticates with email and password and keeps the access token for
// subsequent calls. The token is also returned.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	err := c.do(ctx, "login", http.MethodPost, "/users/login", loginRequest{Email: email, Password: password}, http.StatusOK, &out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: response carried no access token", ErrAuthentication)
	}
	c.token = out.AccessToken
	return out.AccessToken, nil
}

// GetVariable fetches a variable by id.
func (c *Client) GetVariable(ctx context.Context, id int) (*Variable, error) {
	var v Variable
	if err := c.do(ctx, "get variable", http.MethodGet, fmt.Sprintf("/variables/%d", id), nil, http.StatusOK, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateVariable replaces a variable's fields.
func (c *Client) UpdateVariable(ctx context.Context, id int, v *Variable) error {
	return c.do(ctx, "update variable", http.MethodPut, fmt.Sprintf("/variables/%d", id), v, http.StatusNoContent, nil)
}

// CreateApplication registers an application in an environment.
func (c *Client) CreateApplication(ctx context.Context, environmentID int, req *ApplicationRequest) (*Application, error) {
	var app Application
	path := fmt.Sprintf("/environments/%d/applications", environmentID)
	if err := c.do(ctx, "create application", http.MethodPost, path, req, http.StatusCreated, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// DeleteApplication removes an application.
func (c *Client) DeleteApplication(ctx context.Context, id int) error {
	return c.do(ctx, "delete application", http.MethodDelete, fmt.Sprintf("/applications/%d", id), nil, http.StatusNoContent, nil)
}

// CreateVirtualHost registers a virtual host in an environment.
func (c *Client) CreateVirtualHost(ctx context.Context, environmentID int, req *VirtualHostRequest) (*VirtualHost, error) {
	var vh VirtualHost
	path := fmt.Sprintf("/environments/%d/virtual-hosts", environmentID)
	if err := c.do(ctx, "create virtual host", http.MethodPost, path, req, http.StatusCreated, &vh); err != nil {
		return nil, err
	}
	return &vh, nil
}

// DeleteVirtualHost removes a virtual host.
func (c *Client) DeleteVirtualHost(ctx context.Context, id int) error {
	return c.do(ctx, "delete virtual host", http.MethodDelete, fmt.Sprintf("/virtual-hosts/%d", id), nil, http.StatusNoContent, nil)
}

// GetServer fetches server metadata.
func (c *Client) GetServer(ctx context.Context, id int) (*Server, error) {
	var s Server
	if err := c.do(ctx, "get server", http.MethodGet, fmt.Sprintf("/servers/%d", id), nil, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListPipelines lists the pipelines configured on a resource.
func (c *Client) ListPipelines(ctx context.Context, resourceType string, resourceID int) ([]Pipeline, error) {
	pipelines := []Pipeline{}
	path := fmt.Sprintf("/pipelines/%s/%d", url.PathEscape(resourceType), resourceID)
	if err := c.do(ctx, "list pipelines", http.MethodGet, path, nil, http.StatusOK, &pipelines); err != nil {
		return nil, err
	}
	return pipelines, nil
}

// AddPipelineAction triggers a pipeline and returns the created action.
func (c *Client) AddPipelineAction(ctx context.Context, pipelineID int, req *PipelineActionRequest) (*Action, error) {
	var a Action
	path := fmt.Sprintf("/pipelines/%d/actions", pipelineID)
	if err := c.do(ctx, "add pipeline action", http.MethodPost, path, req, http.StatusCreated, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAction fetches an action together with its parent and children.
func (c *Client) GetAction(ctx context.Context, id int) (*Action, error) {
	var a Action
	if err := c.do(ctx, "get action", http.MethodGet, fmt.Sprintf("/actions/%d", id), nil, http.StatusOK, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// do performs one API call, retrying transient failures with exponential
// backoff. want is the status accepted as success; a DELETE also accepts any
// other 2xx. A POST may already have taken effect when the connection drops
// or a gateway fails, so it is only retried on 429.
func (c *Client) do(ctx context.Context, op, method, path string, body any, want int, out any) error {
	idempotent := method != http.MethodPost
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request body: %w", op, err)
		}
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: create request: %w", op, err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			err = fmt.Errorf("%s: perform request: %w", op, err)
			if !idempotent {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			err = fmt.Errorf("%s: read response: %w", op, err)
			if !idempotent {
				return backoff.Permanent(err)
			}
			return err
		}

		if !isSuccess(method, want, resp.StatusCode) {
			statusErr := &StatusError{Op: op, Code: resp.StatusCode, Body: string(data)}
			if resp.StatusCode == http.StatusTooManyRequests || (idempotent && isRetryableStatus(resp.StatusCode)) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode response: %w", op, err))
		}
		return nil
	}

	logger := log.FromContext(ctx)
	notify := func(err error, wait time.Duration) {
		logger.V(1).Info("Retrying platform request", "op", op, "error", err.Error(), "backoff", wait)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx), notify)
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0
	return b
}

func isSuccess(method string, want, code int) bool {
	if code == want {
		return true
	}
	return method == http.MethodDelete && code >= 200 && code < 300
}

// isRetryableStatus reports whether a status indicates a transient failure.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
