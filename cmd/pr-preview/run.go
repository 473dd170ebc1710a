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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/prpreview/internal/preview"
)

var errNoEvent = errors.New("GITHUB_EVENT_NAME or GITHUB_EVENT_PATH is not set")

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Handle the pull_request event of the current GitHub Actions run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runEvent(cmd.Context(), root, cmd)
			if err != nil {
				annotateError(cmd.OutOrStdout(), err)
			}
			return err
		},
	}
}

func runEvent(ctx context.Context, root *rootOptions, cmd *cobra.Command) error {
	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ev, err := readEvent(root.lookupEnv)
	if err != nil {
		return err
	}

	logger := log.Log.WithName("pr-preview").WithValues("run", uuid.NewString(), "repository", ev.Owner+"/"+ev.Repo)
	ctx = log.IntoContext(ctx, logger)

	svc, err := newServices(ctx, cfg, nil)
	if err != nil {
		return err
	}
	return svc.orchestrator(ev.Owner, ev.Repo).Handle(ctx, ev)
}

// readEvent parses the event file of the current workflow run.
func readEvent(lookup func(string) (string, bool)) (*preview.Event, error) {
	name, _ := lookup("GITHUB_EVENT_NAME")
	path, _ := lookup("GITHUB_EVENT_PATH")
	if name == "" || path == "" {
		return nil, errNoEvent
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	return preview.ParseEvent(name, payload)
}

// annotateError prints err as a workflow error command so the step fails
// with a visible message.
func annotateError(w io.Writer, err error) {
	msg := strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(err.Error())
	fmt.Fprintf(w, "::error::%s\n", msg)
}
