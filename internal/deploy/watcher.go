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

package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikelane/prpreview/internal/database"
	"github.com/mikelane/prpreview/internal/devopness"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	pipelineOperationDeploy = "deploy"
	sourceTypeBranch        = "branch"
)

// Platform is the subset of the deployment platform API the watcher uses.
type Platform interface {
	ListPipelines(ctx context.Context, resourceType string, resourceID int) ([]devopness.Pipeline, error)
	AddPipelineAction(ctx context.Context, pipelineID int, req *devopness.PipelineActionRequest) (*devopness.Action, error)
	GetAction(ctx context.Context, id int) (*devopness.Action, error)
}

// Options tune how actions are polled.
type Options struct {
	// Interval between two status fetches of the same action.
	Interval time.Duration
	// Timeout is the budget of each action in the tree, not of the whole walk.
	Timeout time.Duration
	// MaxDepth bounds how many levels of children are walked below the root.
	MaxDepth int
	// MaxParallel bounds how many sibling actions are polled at once.
	MaxParallel int
}

// DefaultOptions polls every 30 seconds for up to 30 minutes per action.
func DefaultOptions() Options {
	return Options{
		Interval:    30 * time.Second,
		Timeout:     30 * time.Minute,
		MaxDepth:    8,
		MaxParallel: 4,
	}
}

// Watcher triggers deployments and waits for them to finish.
type Watcher struct {
	platform Platform
	opts     Options
}

// NewWatcher returns a Watcher. Zero fields of opts take their defaults.
func NewWatcher(p Platform, opts Options) *Watcher {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = def.MaxParallel
	}
	return &Watcher{platform: p, opts: opts}
}

// Interval returns the poll interval in use.
func (w *Watcher) Interval() time.Duration {
	return w.opts.Interval
}

// Deploy starts the deploy pipeline of an application for branch on server.
func (w *Watcher) Deploy(ctx context.Context, applicationID int, branch string, serverID int) (database.Deploy, error) {
	logger := log.FromContext(ctx).WithValues("application", applicationID, "branch", branch)

	pipelines, err := w.platform.ListPipelines(ctx, devopness.ResourceTypeApplication, applicationID)
	if err != nil {
		return database.Deploy{}, fmt.Errorf("%w: list pipelines of application %d: %w", ErrPipelineNotFound, applicationID, err)
	}

	pipelineID := 0
	for _, p := range pipelines {
		if p.Operation == pipelineOperationDeploy {
			pipelineID = p.ID
			break
		}
	}
	if pipelineID == 0 {
		return database.Deploy{}, fmt.Errorf("%w: application %d", ErrPipelineNotFound, applicationID)
	}

	action, err := w.platform.AddPipelineAction(ctx, pipelineID, &devopness.PipelineActionRequest{
		SourceType: sourceTypeBranch,
		SourceRef:  branch,
		Servers:    []int{serverID},
	})
	if err != nil {
		return database.Deploy{}, fmt.Errorf("%w: pipeline %d: %w", ErrTriggerFailed, pipelineID, err)
	}

	logger.Info("Deployment started", "action", action.ID, "url", action.URLWebPermalink)
	return database.Deploy{ID: action.ID, URL: action.URLWebPermalink}, nil
}

// Watch waits for an action and then for its whole tree of children to
// complete. The tree is walked level by level, each action polled with its
// own timeout. A failed or timed out root is returned as is. Failed children
// do not stop their siblings; their subtrees are skipped and all child
// failures are returned together.
func (w *Watcher) Watch(ctx context.Context, actionID int) error {
	logger := log.FromContext(ctx).WithValues("action", actionID)
	logger.Info("Watching action", "interval", w.opts.Interval, "timeout", w.opts.Timeout)

	root, err := w.watchOne(ctx, actionID)
	if err != nil {
		return err
	}

	var errs []error
	level := childIDs(root)
	for depth := 1; len(level) > 0; depth++ {
		if depth > w.opts.MaxDepth {
			errs = append(errs, fmt.Errorf("%w: action %d has children below depth %d", ErrTreeTooDeep, actionID, w.opts.MaxDepth))
			break
		}
		logger.V(1).Info("Watching child actions", "depth", depth, "children", level)

		actions, levelErrs := w.watchLevel(ctx, level)
		errs = append(errs, levelErrs...)

		level = nil
		for _, a := range actions {
			level = append(level, childIDs(a)...)
		}
	}

	if err := newChildErrors(errs); err != nil {
		return err
	}
	logger.Info("Action tree completed")
	return nil
}

// watchLevel polls every action of one tree level concurrently and returns
// the completed ones and the errors of the rest.
func (w *Watcher) watchLevel(ctx context.Context, ids []int) ([]*devopness.Action, []error) {
	logger := log.FromContext(ctx)
	actions := make([]*devopness.Action, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(w.opts.MaxParallel)
	for i, id := range ids {
		g.Go(func() error {
			actions[i], errs[i] = w.watchOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var done []*devopness.Action
	var failed []error
	for i, err := range errs {
		if err != nil {
			logger.Error(err, "Child action did not complete", "child", ids[i])
			failed = append(failed, err)
			continue
		}
		done = append(done, actions[i])
	}
	return done, failed
}

// watchOne polls a single action until it is terminal or its timeout expires.
func (w *Watcher) watchOne(ctx context.Context, id int) (*devopness.Action, error) {
	logger := log.FromContext(ctx).WithValues("action", id)
	var last *devopness.Action

	err := wait.PollUntilContextTimeout(ctx, w.opts.Interval, w.opts.Timeout, true, func(ctx context.Context) (bool, error) {
		a, err := w.platform.GetAction(ctx, id)
		if err != nil {
			logger.Error(err, "Failed to fetch action status, retrying", "in", w.opts.Interval)
			return false, nil
		}
		last = a

		switch a.Status {
		case devopness.ActionStatusCompleted:
			logger.Info("Action completed")
			return true, nil
		case devopness.ActionStatusFailed, devopness.ActionStatusSkipped:
			return false, &FailedError{ActionID: id, Status: a.Status}
		default:
			logger.Info("Action not finished, waiting", "status", a.Status, "in", w.opts.Interval)
			return false, nil
		}
	})
	if err == nil {
		return last, nil
	}

	var failed *FailedError
	if errors.As(err, &failed) {
		return nil, failed
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("watch action %d: %w", id, ctx.Err())
	}
	if wait.Interrupted(err) {
		status := ""
		if last != nil {
			status = last.Status
		}
		return nil, &TimedOutError{ActionID: id, Status: status, Timeout: w.opts.Timeout}
	}
	return nil, fmt.Errorf("watch action %d: %w", id, err)
}

func childIDs(a *devopness.Action) []int {
	if a == nil {
		return nil
	}
	ids := make([]int, 0, len(a.Children))
	for _, c := range a.Children {
		ids = append(ids, c.ID)
	}
	return ids
}
