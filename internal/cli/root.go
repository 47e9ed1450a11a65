// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/sidekick/internal/commands/shared"
)

// Command groups shown in help output.
const (
	GroupService = "service"
	GroupSetup   = "setup"
)

// SetVersion sets the version information
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with global flags.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sidekick",
		Short: "sidekick - run a local helper service on demand",
		Long: `sidekick starts, stops and checks a local HTTP service that your tools
depend on, such as a translation server running from a source checkout.

It keeps a pid record so the service can be found again by later
invocations, and only ever starts services on 127.0.0.1 or localhost.

Run 'sidekick config init' to create a config file.
Run 'sidekick status' to see whether the service is up.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	cmd.AddGroup(
		&cobra.Group{ID: GroupService, Title: "Service Commands:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup Commands:"},
	)

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/sidekick/config.yaml)")

	return cmd
}

// AddCommands registers commands under group on root.
func AddCommands(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		root.AddCommand(c)
	}
}

// GetVersion returns the version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError reports err and exits with the matching code.
func HandleExitError(cmd *cobra.Command, err error) {
	name := "sidekick"
	if cmd != nil {
		name = cmd.Name()
	}
	shared.HandleExitError(name, err)
}
