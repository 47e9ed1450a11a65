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
package errors

// UserVisibleError is implemented by errors the CLI prints verbatim, with
// a hint on what to do next.
type UserVisibleError interface {
	error

	// IsUserVisible reports whether the message is fit for a terminal.
	IsUserVisible() bool

	// UserMessage is the short message shown instead of Error().
	UserMessage() string

	// Suggestion is the next step to try, or "".
	Suggestion() string
}

// ErrorClassifier is implemented by errors that carry a stable category,
// used for the "type" field of --json error output.
type ErrorClassifier interface {
	error

	// ErrorType names the category, e.g. "configuration", "io",
	// "startup_timeout" or "exited_early".
	ErrorType() string

	// IsRetryable reports whether running the same command again may
	// succeed without any change by the user.
	IsRetryable() bool
}
