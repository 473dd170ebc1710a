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

package main

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/mikelane/prpreview/internal/comment"
	"github.com/mikelane/prpreview/internal/config"
	"github.com/mikelane/prpreview/internal/database"
	"github.com/mikelane/prpreview/internal/deploy"
	"github.com/mikelane/prpreview/internal/devopness"
	"github.com/mikelane/prpreview/internal/github"
	"github.com/mikelane/prpreview/internal/metrics"
	"github.com/mikelane/prpreview/internal/preview"
	"github.com/mikelane/prpreview/internal/provision"
)

// services are the long-lived clients shared by every handled event.
type services struct {
	cfg      *config.Config
	platform *devopness.Client
	forge    github.Client
	store    database.Store
	metrics  *metrics.Recorder
}

// login authenticates against the platform.
func login(ctx context.Context, cfg *config.Config) (*devopness.Client, string, error) {
	platform, err := devopness.New(cfg.APIURL, devopness.WithRateLimit(cfg.Platform.RequestsPerSecond))
	if err != nil {
		return nil, "", err
	}
	token, err := platform.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return nil, "", err
	}
	return platform, token, nil
}

func newServices(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*services, error) {
	platform, _, err := login(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg, platform)
	if err != nil {
		return nil, err
	}
	forge, err := github.NewClient(cfg.Token)
	if err != nil {
		return nil, err
	}
	return &services{cfg: cfg, platform: platform, forge: forge, store: store, metrics: rec}, nil
}

func newStore(cfg *config.Config, platform *devopness.Client) (database.Store, error) {
	switch cfg.Database.Backend {
	case config.BackendConfigMap:
		restConfig, err := ctrlconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
		scheme := runtime.NewScheme()
		if err := corev1.AddToScheme(scheme); err != nil {
			return nil, err
		}
		c, err := client.New(restConfig, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("create kubernetes client: %w", err)
		}
		return database.NewConfigMapStore(c, cfg.Database.Namespace, cfg.Database.Name, cfg.Database.Key), nil
	default:
		return database.NewVariableStore(platform, cfg.DatabaseFileID), nil
	}
}

// orchestrator returns the orchestrator commenting on owner/repo.
func (s *services) orchestrator(owner, repo string) *preview.Orchestrator {
	cfg := s.cfg
	return preview.New(preview.Dependencies{
		Store: s.store,
		Provisioner: provision.New(s.platform, provision.Environment{
			AppURL:        cfg.AppURL,
			ProjectID:     cfg.ProjectID,
			EnvironmentID: cfg.EnvironmentID,
			ServerID:      cfg.ServerID,
			CredentialID:  cfg.CredentialID,
			Repository:    cfg.Repository,
		}),
		Watcher: deploy.NewWatcher(s.platform, deploy.Options{
			Interval:    cfg.Watch.Interval.Duration,
			Timeout:     cfg.Watch.Timeout.Duration,
			MaxDepth:    cfg.Watch.MaxDepth,
			MaxParallel: cfg.Watch.MaxParallel,
		}),
		Reporter: comment.NewReporter(s.forge, owner, repo),
		ServerID: cfg.ServerID,
		Metrics:  s.metrics,
	})
}
