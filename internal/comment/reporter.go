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

package comment

import (
	"context"
	"fmt"

	"github.com/mikelane/prpreview/internal/database"
	"github.com/mikelane/prpreview/internal/github"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Reporter posts and edits the tracking comment of one repository.
type Reporter struct {
	forge github.Client
	owner string
	repo  string
}

// NewReporter returns a Reporter writing to owner/repo.
func NewReporter(forge github.Client, owner, repo string) *Reporter {
	return &Reporter{forge: forge, owner: owner, repo: repo}
}

// Create posts the initial "preparing" comment on a pull request.
func (r *Reporter) Create(ctx context.Context, pr int) (database.Comment, error) {
	body, err := Render(PhasePreparing, Details{})
	if err != nil {
		return database.Comment{}, err
	}
	c, err := r.forge.CreateComment(ctx, r.owner, r.repo, pr, body)
	if err != nil {
		return database.Comment{}, fmt.Errorf("create tracking comment: %w", err)
	}
	log.FromContext(ctx).V(1).Info("Created tracking comment", "comment", c.ID)
	return database.Comment{ID: c.ID, Content: c.Body}, nil
}

// Update renders a phase into an existing comment and returns the new body.
func (r *Reporter) Update(ctx context.Context, commentID int64, p Phase, d Details) (string, error) {
	body, err := Render(p, d)
	if err != nil {
		return "", err
	}
	if err := r.forge.UpdateComment(ctx, r.owner, r.repo, commentID, body); err != nil {
		return "", fmt.Errorf("update tracking comment to %s: %w", p, err)
	}
	log.FromContext(ctx).V(1).Info("Updated tracking comment", "comment", commentID, "phase", p.String())
	return body, nil
}
