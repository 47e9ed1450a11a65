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
	"github.com/tombee/sidekick/internal/lifecycle"
)

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the service",
		Long: `Stop the recorded service process.

Sends SIGTERM and waits for the process to exit. If it is still running
after the timeout, SIGKILL is sent. The process record is removed either
way.

Stop is idempotent: with no record, or a record whose process is gone, it
only cleans up and exits successfully.`,
		Example: `  # Stop the service
  sidekick stop

  # Give it longer to shut down before SIGKILL
  sidekick stop --timeout 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkTimeoutFlag("timeout", timeout); err != nil {
				return err
			}
			e, err := loadEnv(cmd, withStopTimeout(timeout))
			if err != nil {
				return err
			}
			defer e.Close()
			return runStop(cmd.Context(), e)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Grace period before SIGKILL (default: management.stop_timeout)")

	return cmd
}

func withStopTimeout(timeout time.Duration) func(*config.Config) {
	return func(cfg *config.Config) {
		if timeout > 0 {
			cfg.Management.StopTimeout = timeout
		}
	}
}

func runStop(ctx context.Context, e *env) error {
	pid := e.recordedPID()
	alive := pid > 0 && lifecycle.ProcessTable{}.IsAlive(pid)

	spinner := shared.NewSpinner(e.errOut)
	if alive {
		spinner.Start(fmt.Sprintf("Stopping service (pid %d)", pid))
	}
	err := e.manager.Stop(ctx)
	spinner.Stop()
	if err != nil {
		return err
	}

	switch {
	case pid == 0:
		return e.report("stop", "Service is not running")
	case !alive:
		return e.report("stop", fmt.Sprintf("Service was not running (removed stale record for pid %d)", pid))
	default:
		return e.report("stop", fmt.Sprintf("Service stopped (pid %d)", pid))
	}
}
