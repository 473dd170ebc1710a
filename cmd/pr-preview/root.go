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
	"flag"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/mikelane/prpreview/internal/config"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	flags      *config.Config
	zapOpts    zap.Options
	lookupEnv  func(string) (string, bool)
}

func newRootCommand() *cobra.Command {
	return newCommand(os.LookupEnv)
}

// newCommand builds the command tree reading the environment through lookup.
func newCommand(lookup func(string) (string, bool)) *cobra.Command {
	opts := &rootOptions{
		flags:     &config.Config{},
		zapOpts:   zap.Options{Development: false},
		lookupEnv: lookup,
	}

	cmd := &cobra.Command{
		Use:           "pr-preview",
		Short:         "Ephemeral Devopness preview environments for pull requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			log.SetLogger(zap.New(zap.UseFlagOptions(&opts.zapOpts)))
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	opts.flags.BindFlags(pfs)

	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.zapOpts.BindFlags(zapFlags)
	pfs.AddGoFlagSet(zapFlags)

	cmd.AddCommand(
		newRunCommand(opts),
		newServeCommand(opts),
		newLoginCommand(opts),
	)
	return cmd
}

// load resolves the configuration of cmd: file, environment, then flags.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(o.configPath, o.lookupEnv, cmd.Flags(), o.flags)
}
