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
)

// NewEnsureCommand creates the ensure command.
func NewEnsureCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Start the service only if it does not answer",
		Long: `Probe the service and start it if it does not answer.

This is what a caller runs before sending work to the service. If the
service is down and management.enabled is false, ensure fails with exit
code 5 instead of starting anything.`,
		Example: `  # Make sure the service is up before a batch job
  sidekick ensure && ./translate-batch.sh`,
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
			return runEnsure(cmd.Context(), e)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Startup timeout if a start is needed (default: management.startup_timeout)")

	return cmd
}

func runEnsure(ctx context.Context, e *env) error {
	spinner := shared.NewSpinner(e.errOut)
	spinner.Start(fmt.Sprintf("Checking service at %s", e.endpoint()))
	err := e.manager.EnsureRunning(ctx, e.endpoint(), e.cfg.Service.RequestTimeout)
	spinner.Stop()
	if err != nil {
		return err
	}
	return e.report("ensure", fmt.Sprintf("Service is reachable at %s", e.endpoint()))
}
