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

package preview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikelane/prpreview/internal/comment"
	"github.com/mikelane/prpreview/internal/database"
	"github.com/mikelane/prpreview/internal/deploy"
	"github.com/mikelane/prpreview/internal/metrics"
	"github.com/mikelane/prpreview/internal/provision"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrIncompleteRecord is returned when a recorded preview lacks a resource
// needed to redeploy it.
var ErrIncompleteRecord = errors.New("preview record incomplete")

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Store       database.Store
	Provisioner *provision.Provisioner
	Watcher     *deploy.Watcher
	Reporter    *comment.Reporter
	// ServerID is the server previews are deployed to.
	ServerID int
	// Metrics may be nil.
	Metrics *metrics.Recorder
}

// Orchestrator drives the preview of a pull request through its lifecycle.
type Orchestrator struct {
	store       database.Store
	provisioner *provision.Provisioner
	watcher     *deploy.Watcher
	reporter    *comment.Reporter
	serverID    int
	metrics     *metrics.Recorder
}

// New returns an Orchestrator. It holds no per-event state.
func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		store:       deps.Store,
		provisioner: deps.Provisioner,
		watcher:     deps.Watcher,
		reporter:    deps.Reporter,
		serverID:    deps.ServerID,
		metrics:     deps.Metrics,
	}
}

// Handle loads the database and runs the handler for the event's action.
// Actions without a handler are logged and ignored.
func (o *Orchestrator) Handle(ctx context.Context, ev *Event) error {
	logger := log.FromContext(ctx).WithValues("pr", ev.Number, "action", ev.Action)
	ctx = log.IntoContext(ctx, logger)

	db, err := o.store.Load(ctx)
	if err != nil {
		o.metrics.Event(ev.Action, metrics.ResultFailure)
		return fmt.Errorf("load preview database: %w", err)
	}
	o.metrics.PortsInUse(database.UsedPorts(db).Len())

	result := metrics.ResultSuccess
	switch ev.Action {
	case ActionOpened, ActionReopened:
		err = o.HandleOpened(ctx, db, ev)
	case ActionSynchronize:
		if !hasPreview(db, ev.Number) {
			result = metrics.ResultSkipped
		}
		err = o.HandleSynchronize(ctx, db, ev)
	case ActionClosed:
		err = o.HandleClosed(ctx, db, ev)
	default:
		logger.Info("No handler configured for pull request action, skipping")
		o.metrics.Event(ev.Action, metrics.ResultSkipped)
		return nil
	}

	if err != nil {
		result = metrics.ResultFailure
	}
	o.metrics.Event(ev.Action, result)
	o.metrics.PortsInUse(database.UsedPorts(db).Len())
	return err
}

func hasPreview(db database.Database, pr int) bool {
	rec, ok := db.Get(pr)
	return ok && rec.Comment.ID != 0
}

// HandleOpened provisions and deploys a new preview. A redelivered event for
// a preview that already exists redeploys it instead. Resources left by an
// earlier attempt that never got a comment are reused, not created again.
func (o *Orchestrator) HandleOpened(ctx context.Context, db database.Database, ev *Event) error {
	logger := log.FromContext(ctx)

	if hasPreview(db, ev.Number) {
		logger.Info("Preview environment already exists, redeploying it")
		return o.HandleSynchronize(ctx, db, ev)
	}
	logger.Info("Creating preview environment", "branch", ev.Branch)

	rec := database.NewRecord(ev.Branch)
	prev, hadPrev := db.Get(ev.Number)
	if hadPrev {
		rec.Application = prev.Application
		rec.VirtualHost = prev.VirtualHost
		logger.Info("Reusing resources of an incomplete preview",
			"application", rec.Application.ID, "virtualHost", rec.VirtualHost.ID)
	}
	db[ev.Number] = rec

	c, err := o.reporter.Create(ctx, ev.Number)
	if err != nil {
		if hadPrev {
			db[ev.Number] = prev
		} else {
			delete(db, ev.Number)
		}
		return err
	}
	rec.Comment = c
	if err := o.persist(ctx, db, ev.Number); err != nil {
		return o.fail(ctx, rec, err)
	}

	if rec.Application.ID == 0 {
		app, err := o.provisioner.CreateApplication(ctx, ev.Number, ev.Branch)
		if err != nil {
			return o.fail(ctx, rec, err)
		}
		rec.Application = app
		if err := o.persist(ctx, db, ev.Number); err != nil {
			return o.fail(ctx, rec, err)
		}
	}

	if rec.VirtualHost.ID == 0 {
		vh, err := o.provisioner.CreateVirtualHost(ctx, db, rec.Application.ID)
		if err != nil {
			return o.fail(ctx, rec, err)
		}
		rec.VirtualHost = vh
		if err := o.persist(ctx, db, ev.Number); err != nil {
			return o.fail(ctx, rec, err)
		}
	}

	o.report(ctx, rec, comment.PhaseInitialized, comment.DetailsFor(rec))
	return o.deployAndWatch(ctx, db, ev.Number, rec)
}

// HandleSynchronize redeploys an existing preview. Without a recorded
// preview it does nothing.
func (o *Orchestrator) HandleSynchronize(ctx context.Context, db database.Database, ev *Event) error {
	logger := log.FromContext(ctx)

	if !hasPreview(db, ev.Number) {
		logger.Info("No preview environment found to synchronize, skipping; the opened event may have been missed")
		return nil
	}
	rec, _ := db.Get(ev.Number)
	logger.Info("Synchronizing preview environment", "branch", ev.Branch)

	o.report(ctx, rec, comment.PhaseSynchronizing, comment.Details{})

	if rec.Application.ID == 0 {
		return o.fail(ctx, rec, fmt.Errorf("%w: no application recorded for PR %d", ErrIncompleteRecord, ev.Number))
	}
	if rec.VirtualHost.ID == 0 {
		return o.fail(ctx, rec, fmt.Errorf("%w: no virtual host recorded for PR %d", ErrIncompleteRecord, ev.Number))
	}
	if ev.Branch != "" {
		rec.BranchName = ev.Branch
	}

	return o.deployAndWatch(ctx, db, ev.Number, rec)
}

// HandleClosed removes the resources of a preview and forgets it. Deletion
// failures are logged and do not keep the record alive.
func (o *Orchestrator) HandleClosed(ctx context.Context, db database.Database, ev *Event) error {
	logger := log.FromContext(ctx)

	rec, ok := db.Get(ev.Number)
	if !ok {
		logger.Info("No preview environment recorded, nothing to clean up")
		return nil
	}
	logger.Info("Cleaning up preview environment")

	commentID := rec.Comment.ID
	if commentID == 0 {
		logger.Info("No tracking comment recorded, skipping comment updates")
	} else {
		o.report(ctx, rec, comment.PhaseCleaningUp, comment.Details{})
	}

	if rec.Application.ID != 0 {
		if err := o.provisioner.DeleteApplication(ctx, rec.Application.ID); err != nil {
			logger.Error(err, "Failed to delete application, continuing cleanup", "application", rec.Application.ID)
		}
	} else {
		logger.Info("No application to delete")
	}

	if rec.VirtualHost.ID != 0 {
		if err := o.provisioner.DeleteVirtualHost(ctx, rec.VirtualHost.ID); err != nil {
			logger.Error(err, "Failed to delete virtual host, continuing cleanup", "virtualHost", rec.VirtualHost.ID)
		}
	} else {
		logger.Info("No virtual host to delete")
	}

	delete(db, ev.Number)
	if err := o.persist(ctx, db, ev.Number); err != nil {
		return err
	}

	if commentID != 0 {
		o.report(ctx, rec, comment.PhaseCleanedUp, comment.Details{})
	}
	logger.Info("Preview environment cleaned up")
	return nil
}

// deployAndWatch triggers a deployment of rec, waits for it and publishes
// the preview URL.
func (o *Orchestrator) deployAndWatch(ctx context.Context, db database.Database, pr int, rec *database.Record) error {
	logger := log.FromContext(ctx)

	dep, err := o.watcher.Deploy(ctx, rec.Application.ID, rec.BranchName, o.serverID)
	if err != nil {
		return o.fail(ctx, rec, err)
	}
	rec.Deploy = dep
	if err := o.persist(ctx, db, pr); err != nil {
		return o.fail(ctx, rec, err)
	}

	details := comment.DetailsFor(rec)
	details.Interval = o.watcher.Interval()
	o.report(ctx, rec, comment.PhaseDeploying, details)

	start := time.Now()
	if err := o.watcher.Watch(ctx, dep.ID); err != nil {
		o.metrics.Deployment(deployResult(err), time.Since(start))
		return o.fail(ctx, rec, fmt.Errorf("deployment watch failed: %w", err))
	}
	o.metrics.Deployment(metrics.DeployCompleted, time.Since(start))

	if rec.PreviewURL == "" {
		ip, err := o.provisioner.ServerIP(ctx)
		if err != nil {
			return o.fail(ctx, rec, err)
		}
		rec.PreviewURL = provision.PreviewURL(ip, rec.VirtualHost.Port)
		if err := o.persist(ctx, db, pr); err != nil {
			return o.fail(ctx, rec, err)
		}
	}

	o.report(ctx, rec, comment.PhaseReady, comment.DetailsFor(rec))
	logger.Info("Preview environment ready", "url", rec.PreviewURL)
	return nil
}

func deployResult(err error) string {
	switch {
	case errors.Is(err, deploy.ErrDeploymentFailed):
		return metrics.DeployFailed
	case errors.Is(err, deploy.ErrDeploymentTimedOut):
		return metrics.DeployTimedOut
	default:
		return metrics.DeployError
	}
}

func (o *Orchestrator) persist(ctx context.Context, db database.Database, pr int) error {
	if err := o.store.Persist(ctx, db, pr); err != nil {
		return fmt.Errorf("persist preview database: %w", err)
	}
	return nil
}

// report updates the tracking comment. Failures are logged only.
func (o *Orchestrator) report(ctx context.Context, rec *database.Record, p comment.Phase, d comment.Details) {
	if rec.Comment.ID == 0 {
		return
	}
	body, err := o.reporter.Update(ctx, rec.Comment.ID, p, d)
	if err != nil {
		log.FromContext(ctx).Error(err, "Failed to update tracking comment", "comment", rec.Comment.ID, "phase", p.String())
		return
	}
	rec.Comment.Content = body
}

// fail shows err in the tracking comment and returns it.
func (o *Orchestrator) fail(ctx context.Context, rec *database.Record, err error) error {
	log.FromContext(ctx).Error(err, "Preview environment step failed")
	d := comment.DetailsFor(rec)
	d.Error = err.Error()
	o.report(ctx, rec, comment.PhaseFailed, d)
	return err
}
