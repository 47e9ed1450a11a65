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
	"time"
)

const (
	// StatusProbeCap bounds the probe used by Status and EnsureRunning so
	// status checks stay fast regardless of the caller's request budget.
	StatusProbeCap = 3 * time.Second

	// StartupProbeTimeout is the per-iteration probe timeout of the start poll loop.
	StartupProbeTimeout = 1500 * time.Millisecond

	// StopPollInterval is how often liveness is checked after SIGTERM.
	StopPollInterval = 150 * time.Millisecond

	// DefaultStopTimeout is the grace period between SIGTERM and SIGKILL.
	DefaultStopTimeout = 5 * time.Second

	// DefaultStartupTimeout bounds the start poll loop when Config leaves it unset.
	DefaultStartupTimeout = 30 * time.Second

	// DefaultPollInterval is the start poll loop sleep when Config leaves it unset.
	DefaultPollInterval = 250 * time.Millisecond

	// DefaultEntryArtifact is the file that must exist under SourceDir before launch.
	DefaultEntryArtifact = "src/server.js"

	// DefaultLaunchCommand starts the service from its source checkout.
	DefaultLaunchCommand = "npm start"
)

// Config describes how the dependent service is managed.
// The Manager treats it as read-only.
type Config struct {
	// Enabled permits the manager to start the service at all.
	Enabled bool

	// AutoStart asks EnsureAvailable to start the service opportunistically.
	AutoStart bool

	// SourceDir is the service checkout; the child runs with it as working directory.
	SourceDir string

	// EntryArtifact is a path relative to SourceDir that must exist before launch.
	EntryArtifact string

	// LaunchCommand is split shell-style into argv. Commands containing shell
	// operators are run through /bin/sh -c.
	LaunchCommand string

	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string

	// PIDFile is the process record location.
	PIDFile string

	// LogFile receives the child's stdout and stderr.
	LogFile string

	StartupTimeout time.Duration
	PollInterval   time.Duration

	// StopTimeout is the SIGTERM grace period. Zero means DefaultStopTimeout.
	StopTimeout time.Duration
}

func (c Config) startupTimeout() time.Duration {
	if c.StartupTimeout > 0 {
		return c.StartupTimeout
	}
	return DefaultStartupTimeout
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

func (c Config) stopTimeout() time.Duration {
	if c.StopTimeout > 0 {
		return c.StopTimeout
	}
	return DefaultStopTimeout
}

func (c Config) entryArtifact() string {
	if c.EntryArtifact != "" {
		return c.EntryArtifact
	}
	return DefaultEntryArtifact
}

func (c Config) launchCommand() string {
	if c.LaunchCommand != "" {
		return c.LaunchCommand
	}
	return DefaultLaunchCommand
}

func capTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 || timeout > StatusProbeCap {
		return StatusProbeCap
	}
	return timeout
}
