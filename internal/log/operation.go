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

package log

import (
	"context"
	"log/slog"
	"time"
)

// Operation wraps one lifecycle operation with begin/end logging.
// The begin line is logged at debug, the outcome at info or error.
type Operation struct {
	logger *slog.Logger
	name   string
}

// NewOperation creates an operation logger. logger should already carry the
// op id (see WithOperation).
func NewOperation(logger *slog.Logger, name string) *Operation {
	return &Operation{logger: logger, name: name}
}

// Run calls fn and logs how it finished.
func (o *Operation) Run(ctx context.Context, fn func() error) error {
	start := time.Now()
	o.logger.DebugContext(ctx, "operation started", EventKey, o.name+"_begin")

	err := fn()

	attrs := []any{
		EventKey, o.name + "_end",
		"success", err == nil,
		DurationKey, time.Since(start).Milliseconds(),
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		o.logger.ErrorContext(ctx, "operation failed", attrs...)
		return err
	}
	o.logger.InfoContext(ctx, "operation completed", attrs...)
	return nil
}
