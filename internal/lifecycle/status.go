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

// ProcessState classifies the recorded process.
type ProcessState string

const (
	// ProcessRunning means a record exists and its pid is alive.
	ProcessRunning ProcessState = "running"

	// ProcessStopped means a record exists but its pid is dead.
	ProcessStopped ProcessState = "stopped"

	// ProcessMissing means there is no record.
	ProcessMissing ProcessState = "missing"
)

// Status is the composite view returned by Manager.Status.
//
// The axes are independent: the endpoint may be reachable because some other
// process is bound to it, so Reachable says nothing about the recorded pid.
type Status struct {
	Reachable bool         `json:"reachable"`
	PID       *int         `json:"pid"`
	Process   ProcessState `json:"process"`
}

// classify builds a Status from the three observed signals.
func classify(reachable bool, pid int, hasRecord, alive bool) *Status {
	s := &Status{Reachable: reachable, Process: ProcessMissing}
	if !hasRecord {
		return s
	}
	p := pid
	s.PID = &p
	if alive {
		s.Process = ProcessRunning
	} else {
		s.Process = ProcessStopped
	}
	return s
}
