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
	"fmt"
	"io"
	"os"

	"github.com/tombee/sidekick/internal/lifecycle"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// Exit codes for sidekick commands.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitConfig        = 2 // Invalid configuration, flag value or disallowed endpoint
	ExitUnreachable   = 3 // Service did not answer and was not started
	ExitStartupFailed = 4 // Service exited early or never became healthy
	ExitDisabled      = 5 // Service is down and management is disabled
)

// ExitError carries an explicit exit code through cobra's RunE.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUnreachableError reports a service that is down.
func NewUnreachableError(msg string) *ExitError {
	return &ExitError{Code: ExitUnreachable, Message: msg}
}

// ExitCodeFor maps an error chain to an exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if sidekickerrors.As(err, &exitErr) {
		return exitErr.Code
	}

	var (
		cfgErr      *sidekickerrors.ConfigError
		validateErr *sidekickerrors.ValidationError
		exitedErr   *lifecycle.ProcessExitedEarlyError
		timeoutErr  *lifecycle.StartupTimeoutError
	)
	switch {
	case sidekickerrors.Is(err, lifecycle.ErrManagementDisabled):
		return ExitDisabled
	case sidekickerrors.Is(err, lifecycle.ErrServiceUnreachable):
		return ExitUnreachable
	case sidekickerrors.As(err, &cfgErr), sidekickerrors.As(err, &validateErr):
		return ExitConfig
	case sidekickerrors.As(err, &exitedErr), sidekickerrors.As(err, &timeoutErr):
		return ExitStartupFailed
	default:
		return ExitFailure
	}
}

// HandleExitError reports err for the named command and exits with its code.
// In --json mode the report is a JSON envelope on stdout.
func HandleExitError(command string, err error) {
	if err == nil {
		return
	}
	if GetJSON() {
		_ = WriteJSONError(os.Stdout, command, err)
	} else {
		printError(os.Stderr, err)
	}
	os.Exit(ExitCodeFor(err))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, RenderError(err.Error()))
	if suggestion := suggestionFor(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}

// suggestionFor walks the chain for the first UserVisibleError.
func suggestionFor(err error) string {
	for err != nil {
		if userErr, ok := err.(sidekickerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				return userErr.Suggestion()
			}
			return ""
		}
		err = sidekickerrors.Unwrap(err)
	}
	return ""
}
