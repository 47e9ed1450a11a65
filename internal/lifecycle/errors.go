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

package lifecycle

import (
	"fmt"
	"time"

	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

var (
	// ErrManagementDisabled is matched by ManagementDisabledError.
	ErrManagementDisabled = sidekickerrors.New("service management is disabled")

	// ErrServiceUnreachable is returned by EnsureAvailable when the service is
	// down and auto start is off.
	ErrServiceUnreachable = sidekickerrors.New("service is not reachable")
)

// ProcessExitedEarlyError is returned by Start when the launched process dies
// before the service became reachable. The process record has been cleared.
type ProcessExitedEarlyError struct {
	PID     int
	LogPath string
}

func (e *ProcessExitedEarlyError) Error() string {
	return fmt.Sprintf("service process %d exited before becoming reachable (see %s)", e.PID, e.LogPath)
}

func (e *ProcessExitedEarlyError) IsUserVisible() bool { return true }
func (e *ProcessExitedEarlyError) UserMessage() string {
	return fmt.Sprintf("The service exited during startup (pid %d)", e.PID)
}
func (e *ProcessExitedEarlyError) Suggestion() string {
	return fmt.Sprintf("Inspect the service log: %s", e.LogPath)
}
func (e *ProcessExitedEarlyError) ErrorType() string { return "exited_early" }
func (e *ProcessExitedEarlyError) IsRetryable() bool { return false }

// StartupTimeoutError is returned by Start when the process is still alive
// but the endpoint never became reachable before the deadline.
// The process record is kept.
type StartupTimeoutError struct {
	PID      int
	Endpoint string
	Timeout  time.Duration
	LogPath  string
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("service process %d did not become reachable at %s within %v (see %s)",
		e.PID, e.Endpoint, e.Timeout, e.LogPath)
}

func (e *StartupTimeoutError) IsUserVisible() bool { return true }
func (e *StartupTimeoutError) UserMessage() string {
	return fmt.Sprintf("The service did not answer within %v", e.Timeout)
}
func (e *StartupTimeoutError) Suggestion() string {
	return fmt.Sprintf("Process %d is still tracked; check %s or raise management.startup_timeout", e.PID, e.LogPath)
}
func (e *StartupTimeoutError) ErrorType() string { return "startup_timeout" }
func (e *StartupTimeoutError) IsRetryable() bool { return true }

// ManagementDisabledError is returned by EnsureRunning when the service is
// unreachable and the configuration forbids starting it.
type ManagementDisabledError struct {
	Endpoint string
}

func (e *ManagementDisabledError) Error() string {
	return fmt.Sprintf("service at %s is not reachable and management is disabled", e.Endpoint)
}

// Is lets errors.Is(err, ErrManagementDisabled) match.
func (e *ManagementDisabledError) Is(target error) bool {
	return target == ErrManagementDisabled
}

func (e *ManagementDisabledError) IsUserVisible() bool { return true }
func (e *ManagementDisabledError) UserMessage() string {
	return fmt.Sprintf("The service at %s is not running", e.Endpoint)
}
func (e *ManagementDisabledError) Suggestion() string {
	return "Start it yourself, or set management.enabled: true (SIDEKICK_MANAGE=1)"
}
func (e *ManagementDisabledError) ErrorType() string { return "configuration" }
func (e *ManagementDisabledError) IsRetryable() bool { return false }
