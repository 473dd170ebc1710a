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

// Package github provides GitHub API integration for pr-preview.
//
// This package implements a client for the one piece of GitHub the preview
// lifecycle needs: the tracking comment posted on each pull request and
// edited as the preview progresses.
//
// Key features:
//   - Create an issue comment and return its ID
//   - Edit an existing comment in place
//   - Retry logic with exponential backoff and jitter
//   - Rate limit handling
//
// Authentication:
//
// The client requires a token able to write issue comments, such as the
// GITHUB_TOKEN of a workflow run with the pull-requests: write permission.
//
// Example usage:
//
//	client, err := github.NewClient(token)
//	if err != nil {
//	    return err
//	}
//
//	comment, err := client.CreateComment(ctx, "owner", "repo", 42, "Preparing...")
//	if err != nil {
//	    return err
//	}
//	err = client.UpdateComment(ctx, "owner", "repo", comment.ID, "Ready")
//
// Retry Logic:
//
// Failed requests are retried with exponential backoff:
//   - Initial backoff: 100 milliseconds
//   - Maximum backoff: 30 seconds
//   - Maximum retries: 3
//   - Backoff factor: 2.0
//
// 429, 502, 503 and 504 responses are retried, as are rate limit errors.
// When GitHub reports when the rate limit resets, the client waits until then
// unless that is longer than the maximum backoff. Other client errors are not
// retried.
package github
