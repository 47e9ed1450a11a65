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

// NewRestartCommand creates the restart command.
func NewRestartCommand() *cobra.Command {
	var (
		startTimeout time.Duration
		stopTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the service and start it again",
		Long: `Restart the service: stop the recorded process, if any, then start a new one
and wait until it answers. Use this after updating the service checkout.`,
		Example: `  sidekick restart`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkTimeoutFlag("timeout", startTimeout); err != nil {
				return err
			}
			if err := checkTimeoutFlag("stop-timeout", stopTimeout); err != nil {
				return err
			}
			e, err := loadEnv(cmd, withStartupTimeout(startTimeout), withStopTimeout(stopTimeout))
			if err != nil {
				return err
			}
			defer e.Close()
			return runRestart(cmd.Context(), e)
		},
	}

	cmd.Flags().DurationVar(&startTimeout, "timeout", 0, "Startup timeout (default: management.startup_timeout)")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 0, "Grace period before SIGKILL (default: management.stop_timeout)")

	return cmd
}

func runRestart(ctx context.Context, e *env) error {
	spinner := shared.NewSpinner(e.errOut)
	spinner.Start(fmt.Sprintf("Restarting service at %s", e.endpoint()))
	err := e.manager.Restart(ctx, e.endpoint())
	spinner.Stop()
	if err != nil {
		return err
	}
	return e.report("restart", fmt.Sprintf("Service restarted at %s", e.endpoint()))
}
