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

/*
Package cli provides the root command and shared wiring for sidekick's CLI.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	sidekick
	├── status     Probe the service and show the process record
	├── start      Start the service and wait until it answers
	├── stop       Stop the recorded process
	├── restart    Stop then start
	├── ensure     Start only if the service does not answer
	├── logs       Show or follow the service output
	├── watch      Supervise until interrupted, optionally serving metrics
	├── config     show, path, init, validate
	├── version    Show version
	└── help       Show help (supports --json)

# Global Flags

	--verbose, -v    Enable debug logging
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

	0  success
	1  general failure
	2  invalid configuration or non-local endpoint
	3  service unreachable (status --check)
	4  service exited during startup or never answered
	5  service down and management disabled

Use HandleExitError so every command maps errors the same way:

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err != nil {
	    cli.HandleExitError(cmd, err)
	}
*/
package cli
