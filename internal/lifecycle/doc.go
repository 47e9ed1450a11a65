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
Package lifecycle manages the local service that sidekick depends on.

It combines three independent signals: network reachability of the service
endpoint, the pid recorded in a process record file, and OS liveness of that
pid. No service manager or process group APIs are involved.

# Process Record

The record file holds the pid of the most recently launched process as a
single decimal line. A missing file and unparsable content both mean "no
record"; any other read failure is an *errors.IOError:

	store := lifecycle.NewRecordStore("/path/to/service.pid")
	pid, ok, err := store.Read()

# Liveness

ProcessTable probes pids with signal 0. A pid that exists but belongs to
another user, or that has exited but not been reaped, is not alive.

# Health Probing

A probe is a single GET. Any status below 500 counts as reachable:

	prober := lifecycle.NewHTTPProber()
	if prober.Probe(ctx, "http://127.0.0.1:1969", 3*time.Second) {
	    // service is answering
	}

# Managing the Service

Manager composes the pieces above:

	m := lifecycle.NewManager(cfg, lifecycle.WithEventLog(events))
	status, err := m.Status(ctx, endpoint, requestTimeout)
	err = m.Start(ctx, endpoint)
	err = m.Stop(ctx)
	err = m.EnsureRunning(ctx, endpoint, requestTimeout)

Start only accepts loopback endpoints, returns immediately when the recorded
process is alive, and otherwise launches a detached child and polls until the
endpoint answers, the child dies (ProcessExitedEarlyError) or the startup
deadline passes (StartupTimeoutError).

A single Manager is assumed to own the record file. Two managers starting
the service at the same moment can both spawn a process.

# Lifecycle Logging

Start and stop decisions are appended to a size-rotated JSON-lines log:

	events := lifecycle.NewEventLog(lifecycle.EventLogConfig{Path: "/path/to/lifecycle.log"})
	defer events.Close()
*/
package lifecycle
