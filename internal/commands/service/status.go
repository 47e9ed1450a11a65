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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/sidekick/internal/commands/shared"
	"github.com/tombee/sidekick/internal/lifecycle"
	sidekicklog "github.com/tombee/sidekick/internal/log"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var (
		detailed bool
		check    bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the service is reachable and running",
		Long: `Probe the service endpoint and inspect the process record.

The probe waits at most 3 seconds. Process is one of:
  running  the recorded process is alive
  stopped  a record exists but its process is gone
  missing  there is no record

Status never changes anything. Use --check to exit non-zero when the
service does not answer.`,
		Example: `  # Show status
  sidekick status

  # Include command line, uptime and memory of the service process
  sidekick status --detailed

  # Use in scripts
  sidekick status --check && echo up

  # Machine readable
  sidekick status --json | jq .reachable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkTimeoutFlag("timeout", timeout); err != nil {
				return err
			}
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			return runStatus(cmd.Context(), e, statusOptions{
				detailed: detailed,
				check:    check,
				timeout:  timeout,
			})
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Include process details (command, uptime, memory)")
	cmd.Flags().BoolVar(&check, "check", false, "Exit with code 3 if the service is unreachable")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Probe timeout, capped at 3s (default: service.request_timeout)")

	return cmd
}

type statusOptions struct {
	detailed bool
	check    bool
	timeout  time.Duration
}

// statusResult is the --json shape of status.
type statusResult struct {
	shared.JSONResponse
	Endpoint string                    `json:"endpoint"`
	Status   *lifecycle.Status         `json:"status"`
	Details  *lifecycle.ProcessDetails `json:"details,omitempty"`
}

func runStatus(ctx context.Context, e *env, opts statusOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = e.cfg.Service.RequestTimeout
	}

	status, err := e.manager.Status(ctx, e.endpoint(), timeout)
	if err != nil {
		return err
	}

	var details *lifecycle.ProcessDetails
	if opts.detailed && status.Process == lifecycle.ProcessRunning {
		details, err = e.manager.Describe(ctx)
		if err != nil {
			e.logger.Debug("process details unavailable", sidekicklog.Error(err))
		}
	}

	if shared.GetJSON() {
		if err := shared.WriteJSON(e.out, statusResult{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "status", Success: true},
			Endpoint:     e.endpoint(),
			Status:       status,
			Details:      details,
		}); err != nil {
			return err
		}
	} else if !shared.GetQuiet() {
		printStatus(e, status, details)
	}

	if opts.check && !status.Reachable {
		return shared.NewUnreachableError(fmt.Sprintf("service at %s is not reachable", e.endpoint()))
	}
	return nil
}

func printStatus(e *env, status *lifecycle.Status, details *lifecycle.ProcessDetails) {
	out := e.out
	fmt.Fprintln(out, shared.Header.Render("Service Status"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.RenderRow("Endpoint", e.endpoint()))
	fmt.Fprintln(out, shared.RenderRow("Service", shared.RenderReachable(status.Reachable)))
	fmt.Fprintln(out, shared.RenderRow("Process", shared.RenderState(status.Process)))

	pid := "-"
	if status.PID != nil {
		pid = strconv.Itoa(*status.PID)
	}
	fmt.Fprintln(out, shared.RenderRow("PID", pid))
	fmt.Fprintln(out, shared.RenderRow("Record", shared.Muted.Render(e.manager.Records().Path())))

	if !e.cfg.Management.Enabled {
		fmt.Fprintln(out, shared.RenderRow("Managed", shared.StatusWarn.Render("no")))
	}

	if details != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.Bold.Render("Process"))
		if details.Command != "" {
			fmt.Fprintln(out, shared.RenderRow("Command", details.Command))
		}
		fmt.Fprintln(out, shared.RenderRow("Started", shared.FormatSince(details.StartedAt)))
		if details.RSSBytes > 0 {
			fmt.Fprintln(out, shared.RenderRow("Memory", shared.FormatBytes(details.RSSBytes)))
		}
		fmt.Fprintln(out, shared.RenderRow("CPU", fmt.Sprintf("%.1f%%", details.CPUPercent)))
		if details.Children > 0 {
			fmt.Fprintln(out, shared.RenderRow("Children", strconv.Itoa(details.Children)))
		}
	}

	if status.Process == lifecycle.ProcessStopped {
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.RenderWarn("The recorded process is gone; 'sidekick start' will clear the record."))
	}
}
