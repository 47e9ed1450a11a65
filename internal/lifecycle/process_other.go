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

//go:build !unix

package lifecycle

import (
	"os"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func signalZero(pid int) bool {
	exists, err := gopsproc.PidExists(int32(pid))
	return err == nil && exists
}

// terminate has no graceful equivalent off unix; the process is killed.
func terminate(pid int) error {
	return kill(pid)
}

func kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
