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

package github

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// githubClient implements the Client interface using go-github
type githubClient struct {
	client      *github.Client
	retryConfig *RetryConfig
}

// Option configures the client returned by NewClient
type Option func(*githubClient) error

// WithBaseURL points the client at a GitHub Enterprise or test server
func WithBaseURL(base string) Option {
	return func(c *githubClient) error {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("invalid base URL %q: %w", base, err)
		}
		c.client.BaseURL = u
		return nil
	}
}

// WithRetryConfig overrides the default retry policy
func WithRetryConfig(rc *RetryConfig) Option {
	return func(c *githubClient) error {
		c.retryConfig = rc
		return nil
	}
}

// NewClient creates a new GitHub client with the provided token
func NewClient(token string, opts ...Option) (Client, error) {
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}

	c := &githubClient{
		client:      gh,
		retryConfig: DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateComment posts a new comment on an issue or pull request
func (c *githubClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	var comment *github.IssueComment
	var err error

	err = c.executeWithRetry(ctx, func() error {
		comment, _, err = c.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
			Body: github.String(body),
		})
		return err
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create comment on %s/%s#%d: %w", owner, repo, number, err)
	}

	return c.convertComment(comment), nil
}

// UpdateComment replaces the body of an existing issue comment
func (c *githubClient) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	err := c.executeWithRetry(ctx, func() error {
		_, _, err := c.client.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{
			Body: github.String(body),
		})
		return err
	})

	if err != nil {
		return fmt.Errorf("failed to update comment %d on %s/%s: %w", commentID, owner, repo, err)
	}

	return nil
}

// executeWithRetry executes an operation with exponential backoff retry
func (c *githubClient) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		// Check if context is cancelled before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()

		if lastErr == nil {
			return nil
		}

		if !c.isRetryableError(lastErr) {
			return lastErr
		}

		if attempt == c.retryConfig.MaxRetries {
			break
		}

		wait, ok := c.retryDelay(lastErr, attempt)
		if !ok {
			return lastErr
		}
		log.FromContext(ctx).V(1).Info("Retrying GitHub API call", "attempt", attempt+1, "wait", wait, "reason", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", c.retryConfig.MaxRetries, lastErr)
}

// isRetryableError determines if an error should trigger a retry
func (c *githubClient) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		case http.StatusForbidden:
			// Check if it's a rate limit error
			if strings.HasPrefix(ghErr.Message, "API rate limit exceeded") {
				return true
			}
		}
	}

	return false
}

// retryDelay returns how long to wait before the next attempt. Rate limit
// errors wait for the window GitHub reports; a window longer than MaxBackoff
// is not worth waiting for and stops the retries.
func (c *githubClient) retryDelay(err error, attempt int) (time.Duration, bool) {
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return c.capWait(*abuseErr.RetryAfter)
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return c.capWait(time.Until(rateErr.Rate.Reset.Time))
	}

	return c.calculateBackoff(attempt), true
}

func (c *githubClient) capWait(wait time.Duration) (time.Duration, bool) {
	if wait > c.retryConfig.MaxBackoff {
		return 0, false
	}
	if wait < c.retryConfig.InitialBackoff {
		wait = c.retryConfig.InitialBackoff
	}
	return wait, true
}

// calculateBackoff calculates the backoff duration for a retry attempt
func (c *githubClient) calculateBackoff(attempt int) time.Duration {
	factor := c.retryConfig.BackoffFactor
	if factor < 1 {
		factor = 2.0
	}
	base := float64(c.retryConfig.InitialBackoff) * math.Pow(factor, float64(attempt))

	// Add jitter (±20%)
	jitter := (rand.Float64() * 0.4) - 0.2 // -0.2 to +0.2
	backoff := time.Duration(base * (1 + jitter))

	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	return backoff
}

// convertComment converts a GitHub issue comment to our domain model
func (c *githubClient) convertComment(comment *github.IssueComment) *Comment {
	if comment == nil {
		return nil
	}

	return &Comment{
		ID:   comment.GetID(),
		Body: comment.GetBody(),
	}
}
