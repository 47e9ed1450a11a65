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
	"encoding/json"
	"io"

	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// JSONResponse is the envelope every --json response starts with.
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError describes a failed command in --json mode.
type JSONError struct {
	Code       string `json:"code"`
	Type       string `json:"type"`
	ExitCode   int    `json:"exit_code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// WriteJSON writes response as indented JSON to w.
func WriteJSON(w io.Writer, response interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// WriteJSONError writes a failure envelope describing err to w.
func WriteJSONError(w io.Writer, command string, err error) error {
	type errorResponse struct {
		JSONResponse
		Error JSONError `json:"error"`
	}

	return WriteJSON(w, errorResponse{
		JSONResponse: JSONResponse{
			Version: "1.0",
			Command: command,
			Success: false,
		},
		Error: NewJSONError(err),
	})
}

// NewJSONError classifies err for JSON output.
func NewJSONError(err error) JSONError {
	code := ExitCodeFor(err)
	return JSONError{
		Code:       errorCodes[code],
		Type:       sidekickerrors.Classify(err),
		ExitCode:   code,
		Message:    err.Error(),
		Suggestion: suggestionFor(err),
	}
}

// Stable error codes for structured JSON output, keyed by exit code.
var errorCodes = map[int]string{
	ExitFailure:       "E001",
	ExitConfig:        "E002",
	ExitUnreachable:   "E003",
	ExitStartupFailed: "E004",
	ExitDisabled:      "E005",
}
