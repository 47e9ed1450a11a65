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

package shared

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/sidekick/internal/lifecycle"
)

var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// Muted styles secondary/less important text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text
	Bold = lipgloss.NewStyle().Bold(true)

	// Header styles section headers
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")) // blue bold

	// labelWidth aligns "key: value" rows in status output.
	labelWidth = lipgloss.NewStyle().Width(12)
)

const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
)

func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderReachable renders the reachability column of status output.
func RenderReachable(reachable bool) string {
	if reachable {
		return StatusOK.Render(SymbolOK + " reachable")
	}
	return StatusError.Render(SymbolError + " unreachable")
}

// RenderState renders a process state with its colour.
func RenderState(state lifecycle.ProcessState) string {
	switch state {
	case lifecycle.ProcessRunning:
		return StatusOK.Render(string(state))
	case lifecycle.ProcessStopped:
		return StatusWarn.Render(string(state))
	default:
		return Muted.Render(string(state))
	}
}

// RenderRow renders an aligned "label value" line.
func RenderRow(label, value string) string {
	return "  " + labelWidth.Render(Muted.Render(label)) + value
}
