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
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/prpreview/internal/metrics"
	"github.com/mikelane/prpreview/internal/preview"
	"github.com/mikelane/prpreview/internal/webhook"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive pull_request webhooks and handle them one at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := log.Log.WithName("pr-preview")
			ctx = log.IntoContext(ctx, logger)

			rec := metrics.NewRecorder()
			svc, err := newServices(ctx, cfg, rec)
			if err != nil {
				return err
			}

			handle := webhook.HandlerFunc(func(ctx context.Context, ev *preview.Event) error {
				ctx = log.IntoContext(ctx, log.FromContext(ctx).WithValues("run", uuid.NewString()))
				return svc.orchestrator(ev.Owner, ev.Repo).Handle(ctx, ev)
			})
			srv, err := webhook.NewServer(webhook.Options{
				Addr:      cfg.Webhook.Addr,
				Secret:    cfg.Webhook.Secret,
				QueueSize: cfg.Webhook.QueueSize,
				Metrics:   rec.Handler(),
			}, handle)
			if err != nil {
				return err
			}
			return srv.Start(ctx)
		},
	}
}
