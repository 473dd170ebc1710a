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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const tokenOutput = "devopness_token"

func newLoginCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to Devopness and expose the access token as a step output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateLogin(); err != nil {
				annotateError(cmd.OutOrStdout(), err)
				return err
			}

			ctx := log.IntoContext(cmd.Context(), log.Log.WithName("pr-preview"))
			_, token, err := login(ctx, cfg)
			if err != nil {
				annotateError(cmd.OutOrStdout(), err)
				return err
			}

			path, _ := root.lookupEnv("GITHUB_OUTPUT")
			return writeOutput(path, cmd.OutOrStdout(), tokenOutput, token)
		},
	}
}

// writeOutput appends name=value to the step output file at path, or prints
// it to w when there is none.
func writeOutput(path string, w io.Writer, name, value string) error {
	if path == "" {
		_, err := fmt.Fprintf(w, "%s=%s\n", name, value)
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open step output file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s=%s\n", name, value); err != nil {
		_ = f.Close()
		return fmt.Errorf("write step output: %w", err)
	}
	return f.Close()
}
