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

// Package devopness is a small REST client for the Devopness deployment
// platform.
//
// Only the endpoints pr-preview needs are covered: login, variables,
// applications, virtual hosts, servers, pipelines and actions. Every request
// waits on a shared rate limiter. Reads, updates and deletes are retried with
// exponential backoff on transport errors and on 429, 502, 503 or 504
// responses. Creates are only retried on 429, since a failed gateway may
// already have committed them. Any other unexpected status is returned as a
// *StatusError.
//
// Typical usage:
//
//	c, err := devopness.New("https://api.devopness.com", devopness.WithRateLimit(5))
//	if err != nil {
//		return err
//	}
//	if _, err := c.Login(ctx, email, password); err != nil {
//		return err
//	}
//	action, err := c.GetAction(ctx, id)
package devopness
