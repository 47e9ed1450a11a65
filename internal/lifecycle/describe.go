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
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessDetails is best-effort information about a live process.
// Fields the platform cannot provide are left zero.
type ProcessDetails struct {
	PID        int       `json:"pid"`
	Command    string    `json:"command,omitempty"`
	Executable string    `json:"executable,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
	Children   int       `json:"children,omitempty"`
}

// DescribeProcess gathers details about pid from the process table.
func DescribeProcess(ctx context.Context, pid int) (*ProcessDetails, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}

	d := &ProcessDetails{PID: pid}
	if cmd, err := p.CmdlineWithContext(ctx); err == nil {
		d.Command = cmd
	}
	if exe, err := p.ExeWithContext(ctx); err == nil {
		d.Executable = exe
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		d.StartedAt = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		d.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		d.CPUPercent = cpu
	}
	if children, err := p.ChildrenWithContext(ctx); err == nil {
		d.Children = len(children)
	}
	return d, nil
}
