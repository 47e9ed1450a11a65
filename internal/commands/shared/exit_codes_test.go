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
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/sidekick/internal/lifecycle"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"config error", &sidekickerrors.ConfigError{Key: "service.endpoint", Reason: "not local"}, ExitConfig},
		{"wrapped config error", fmt.Errorf("start: %w", &sidekickerrors.ConfigError{Key: "management.source_dir"}), ExitConfig},
		{"io error", &sidekickerrors.IOError{Op: "read", Path: "/tmp/pid"}, ExitFailure},
		{"exited early", &lifecycle.ProcessExitedEarlyError{PID: 42, LogPath: "/tmp/log"}, ExitStartupFailed},
		{"startup timeout", &lifecycle.StartupTimeoutError{PID: 42, Timeout: time.Second}, ExitStartupFailed},
		{"management disabled", &lifecycle.ManagementDisabledError{Endpoint: "http://127.0.0.1:1969"}, ExitDisabled},
		{"unreachable sentinel", fmt.Errorf("ensure: %w", lifecycle.ErrServiceUnreachable), ExitUnreachable},
		{"explicit exit error", &ExitError{Code: 9, Message: "custom"}, 9},
		{"exit error wrapping config", &ExitError{Code: ExitConfig, Message: "failed", Cause: &sidekickerrors.ConfigError{}}, ExitConfig},
		{"flag validation error", fmt.Errorf("watch: %w", &sidekickerrors.ValidationError{Field: "--interval"}), ExitConfig},
		{"unreachable helper", NewUnreachableError("down"), ExitUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ExitError{Code: ExitFailure, Message: "probe failed", Cause: cause}

	assert.Equal(t, "probe failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "bare", (&ExitError{Message: "bare"}).Error())
}

func TestPrintErrorIncludesSuggestion(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	err := fmt.Errorf("start: %w", &lifecycle.ProcessExitedEarlyError{PID: 7, LogPath: "/var/log/svc.log"})
	printError(&buf, err)

	out := buf.String()
	assert.Contains(t, out, "exited before becoming reachable")
	assert.Contains(t, out, "Suggestion: Inspect the service log: /var/log/svc.log")
}

func TestPrintErrorWithoutSuggestion(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	printError(&buf, errors.New("plain failure"))

	assert.Contains(t, buf.String(), "plain failure")
	assert.NotContains(t, buf.String(), "Suggestion")
}
