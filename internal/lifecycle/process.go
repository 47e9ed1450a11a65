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
	"context"
	"fmt"
	"math"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// ErrShutdownTimeout is returned when a process outlives its grace period.
var ErrShutdownTimeout = sidekickerrors.New("shutdown timeout exceeded")

// LivenessChecker reports whether a pid names a live process.
// A process that exists but cannot be signalled by the caller is not alive.
type LivenessChecker interface {
	IsAlive(pid int) bool
}

// Signaler delivers termination signals.
type Signaler interface {
	// Terminate sends the graceful, ignorable termination signal.
	Terminate(pid int) error

	// Kill sends the forceful, non-ignorable termination signal.
	Kill(pid int) error
}

// validPID reports whether pid names exactly one process. Zero, negative
// and out-of-range values address process groups or every process.
func validPID(pid int) bool {
	return pid > 0 && pid <= math.MaxInt32
}

// ProcessTable is the OS-backed LivenessChecker and Signaler.
type ProcessTable struct{}

// IsAlive probes pid with signal 0. Zombies (exited but not yet reaped)
// are reported as not alive.
func (ProcessTable) IsAlive(pid int) bool {
	if !validPID(pid) {
		return false
	}
	if !signalZero(pid) {
		return false
	}
	return !isZombie(pid)
}

// Terminate sends SIGTERM (or the platform equivalent).
func (ProcessTable) Terminate(pid int) error {
	if !validPID(pid) {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return terminate(pid)
}

// Kill sends SIGKILL (or the platform equivalent).
func (ProcessTable) Kill(pid int) error {
	if !validPID(pid) {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return kill(pid)
}

// isZombie consults the process table via gopsutil. Lookup failures are
// treated as "not a zombie" so the signal-0 answer stands.
func isZombie(pid int) bool {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	states, err := p.Status()
	if err != nil {
		return false
	}
	for _, s := range states {
		if s == gopsproc.Zombie {
			return true
		}
	}
	return false
}

// WaitForExit polls checker every interval until pid is gone.
// If pid is still alive after timeout it returns a *errors.TimeoutError
// wrapping ErrShutdownTimeout.
func WaitForExit(ctx context.Context, checker LivenessChecker, pid int, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if !checker.IsAlive(pid) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &sidekickerrors.TimeoutError{
				Operation: fmt.Sprintf("graceful stop of pid %d", pid),
				Duration:  timeout,
				Cause:     ErrShutdownTimeout,
			}
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
