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
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	lj "gopkg.in/natefinch/lumberjack.v2"

	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// Rotation defaults for the event log, in lumberjack units.
const (
	DefaultEventLogMaxSizeMB  = 5
	DefaultEventLogMaxBackups = 3
	DefaultEventLogMaxAgeDays = 30
)

// Event names written to the lifecycle event log.
const (
	EventStart          = "start"
	EventStartSuccess   = "start_success"
	EventStartFailure   = "start_failure"
	EventAlreadyRunning = "already_running"
	EventExitedEarly    = "exited_early"
	EventStartupTimeout = "startup_timeout"
	EventStop           = "stop"
	EventStopSuccess    = "stop_success"
	EventStopForced     = "stop_forced"
	EventStaleRecord    = "stale_record"
)

// LifecycleEvent is one line of the lifecycle event log.
type LifecycleEvent struct {
	Timestamp time.Time `json:"timestamp"`
	OpID      string    `json:"op_id,omitempty"`
	Event     string    `json:"event"`
	PID       int       `json:"pid,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventLogConfig configures the rotated event log.
type EventLogConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// EventLog appends lifecycle events as JSON lines. A nil *EventLog discards
// everything, so callers never need to check whether auditing is configured.
type EventLog struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEventLog opens a size-rotated event log. The file is created lazily on
// the first event.
func NewEventLog(cfg EventLogConfig) *EventLog {
	if cfg.Path == "" {
		return nil
	}
	return NewEventLogWriter(&lj.Logger{
		Filename:   cfg.Path,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultEventLogMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultEventLogMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultEventLogMaxAgeDays),
		Compress:   cfg.Compress,
	})
}

// NewEventLogWriter writes events to w.
func NewEventLogWriter(w io.Writer) *EventLog {
	return &EventLog{w: w}
}

// NewOpID returns an identifier correlating the events of one operation.
func NewOpID() string {
	return uuid.NewString()
}

// Record appends event, stamping the time if unset.
func (l *EventLog) Record(event LifecycleEvent) error {
	if l == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return sidekickerrors.Wrap(err, "failed to marshal event")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return sidekickerrors.Wrap(err, "failed to write event")
	}
	return nil
}

// Close releases the underlying file if the writer holds one.
func (l *EventLog) Close() error {
	if l == nil {
		return nil
	}
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func valOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
