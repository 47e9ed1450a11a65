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

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/sidekick/internal/commands/shared"
	"github.com/tombee/sidekick/internal/config"
)

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the service and wait until it answers",
		Long: `Start the service in the background and wait for its endpoint to answer.

The service is launched from management.source_dir with
management.launch_command, detached from this terminal. Its output goes to
management.log_file and its pid to management.pid_file.

Start is idempotent: if the recorded process is alive nothing is launched.
Only loopback endpoints (127.0.0.1, localhost) can be started.`,
		Example: `  # Start the service
  sidekick start

  # Allow a slow first build more time
  sidekick start --timeout 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkTimeoutFlag("timeout", timeout); err != nil {
				return err
			}
			e, err := loadEnv(cmd, withStartupTimeout(timeout))
			if err != nil {
				return err
			}
			defer e.Close()
			return runStart(cmd.Context(), e)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Startup timeout (default: management.startup_timeout)")

	return cmd
}

func withStartupTimeout(timeout time.Duration) func(*config.Config) {
	return func(cfg *config.Config) {
		if timeout > 0 {
			cfg.Management.StartupTimeout = timeout
		}
	}
}

func runStart(ctx context.Context, e *env) error {
	spinner := shared.NewSpinner(e.errOut)
	spinner.Start(fmt.Sprintf("Starting service at %s", e.endpoint()))
	err := e.manager.Start(ctx, e.endpoint())
	elapsed := spinner.Stop()
	if err != nil {
		return err
	}

	return e.report("start", fmt.Sprintf("Service is running at %s %s",
		e.endpoint(), shared.Muted.Render("("+shared.FormatElapsed(elapsed)+")")))
}
