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
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	sidekicklog "github.com/tombee/sidekick/internal/log"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// Manager detects, starts and stops the dependent service.
//
// It is the only type callers use directly. Operations are not safe to run
// concurrently against the same record file, from this or any other Manager.
type Manager struct {
	cfg      Config
	prober   Prober
	records  *RecordStore
	liveness LivenessChecker
	signals  Signaler
	launcher Launcher
	events   *EventLog
	logger   *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithProber replaces the HTTP prober.
func WithProber(p Prober) Option {
	return func(m *Manager) { m.prober = p }
}

// WithLivenessChecker replaces the OS process table for liveness checks.
func WithLivenessChecker(c LivenessChecker) Option {
	return func(m *Manager) { m.liveness = c }
}

// WithSignaler replaces the OS process table for termination signals.
func WithSignaler(s Signaler) Option {
	return func(m *Manager) { m.signals = s }
}

// WithLauncher replaces the process spawner.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// WithEventLog enables the lifecycle event log.
func WithEventLog(l *EventLog) Option {
	return func(m *Manager) { m.events = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager for cfg backed by the OS process table.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		prober:   NewHTTPProber(),
		records:  NewRecordStore(cfg.PIDFile),
		liveness: ProcessTable{},
		signals:  ProcessTable{},
		launcher: NewSpawner(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = sidekicklog.WithComponent(m.logger, "lifecycle")
	return m
}

// Config returns the management configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Records returns the process record store.
func (m *Manager) Records() *RecordStore {
	return m.records
}

// Status probes the endpoint and inspects the process record.
// The probe timeout is min(3s, timeout). Nothing is modified.
func (m *Manager) Status(ctx context.Context, endpoint string, timeout time.Duration) (*Status, error) {
	reachable := m.prober.Probe(ctx, endpoint, capTimeout(timeout))

	pid, ok, err := m.records.Read()
	if err != nil {
		return nil, err
	}

	alive := ok && m.liveness.IsAlive(pid)
	s := classify(reachable, pid, ok, alive)
	recordStatus(s)

	m.logger.Debug("status",
		sidekicklog.EndpointKey, endpoint,
		"reachable", s.Reachable,
		"process", string(s.Process))
	return s, nil
}

// Start launches the service unless the recorded process is already alive,
// then waits for the endpoint to answer.
//
// The record is written right after the spawn, before readiness. It is
// cleared if the process dies during startup (ProcessExitedEarlyError) and
// kept if the deadline passes with the process still alive
// (StartupTimeoutError).
func (m *Manager) Start(ctx context.Context, endpoint string) error {
	opID := NewOpID()
	logger := sidekicklog.WithEndpoint(sidekicklog.WithOperation(m.logger, "start", opID), endpoint)

	err := sidekicklog.NewOperation(logger, "start").Run(ctx, func() error {
		return m.start(ctx, logger, opID, endpoint)
	})
	if err != nil {
		metricStarts.WithLabelValues(startOutcome(err)).Inc()
	}
	return err
}

func (m *Manager) start(ctx context.Context, logger *slog.Logger, opID, endpoint string) error {
	if err := ValidateLoopback(endpoint); err != nil {
		return err
	}

	pid, ok, err := m.records.Read()
	if err != nil {
		return err
	}
	if ok {
		if m.liveness.IsAlive(pid) {
			logger.Info("service already running", sidekicklog.PIDKey, pid)
			m.record(logger, LifecycleEvent{OpID: opID, Event: EventAlreadyRunning, PID: pid, Endpoint: endpoint, Success: true})
			metricStarts.WithLabelValues("already_running").Inc()
			return nil
		}
		if err := m.clearStale(logger.With(sidekicklog.PIDKey, pid), opID, pid); err != nil {
			return err
		}
	}

	if err := ValidateSource(m.cfg); err != nil {
		return err
	}
	if err := ensureParentDirs(m.cfg.PIDFile, m.cfg.LogFile); err != nil {
		return err
	}

	m.record(logger, LifecycleEvent{OpID: opID, Event: EventStart, Endpoint: endpoint, Success: true,
		Message: fmt.Sprintf("launching %q in %s", m.cfg.launchCommand(), m.cfg.SourceDir)})

	launchedAt := time.Now()
	pid, err = m.launcher.Launch(m.cfg)
	if err != nil {
		m.record(logger, LifecycleEvent{OpID: opID, Event: EventStartFailure, Endpoint: endpoint, Error: err.Error()})
		return err
	}
	logger = logger.With(sidekicklog.PIDKey, pid)
	logger.Info("service process launched", "log_file", m.cfg.LogFile)

	if err := m.records.Write(pid); err != nil {
		logger.Error("launched process is not tracked", sidekicklog.Error(err))
		m.record(logger, LifecycleEvent{OpID: opID, Event: EventStartFailure, PID: pid, Endpoint: endpoint, Error: err.Error()})
		return err
	}

	timeout := m.cfg.startupTimeout()
	interval := m.cfg.pollInterval()
	deadline := launchedAt.Add(timeout)

	for attempt := 1; ; attempt++ {
		if m.prober.Probe(ctx, endpoint, StartupProbeTimeout) {
			elapsed := time.Since(launchedAt)
			metricStartupSeconds.Observe(elapsed.Seconds())
			metricStarts.WithLabelValues("started").Inc()
			m.record(logger, LifecycleEvent{OpID: opID, Event: EventStartSuccess, PID: pid, Endpoint: endpoint, Success: true,
				Message: fmt.Sprintf("reachable after %d probes in %v", attempt, elapsed.Round(time.Millisecond))})
			return nil
		}
		sidekicklog.Trace(logger, "service not reachable yet", sidekicklog.Int("attempt", attempt))

		if !m.liveness.IsAlive(pid) {
			if err := m.records.Clear(); err != nil {
				logger.Warn("failed to clear record of exited process", sidekicklog.Error(err))
			}
			exitErr := &ProcessExitedEarlyError{PID: pid, LogPath: m.cfg.LogFile}
			m.record(logger, LifecycleEvent{OpID: opID, Event: EventExitedEarly, PID: pid, Endpoint: endpoint, Error: exitErr.Error()})
			return exitErr
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sleepCtx(ctx, min(interval, remaining)); err != nil {
			return err
		}
	}

	timeoutErr := &StartupTimeoutError{PID: pid, Endpoint: endpoint, Timeout: timeout, LogPath: m.cfg.LogFile}
	m.record(logger, LifecycleEvent{OpID: opID, Event: EventStartupTimeout, PID: pid, Endpoint: endpoint, Error: timeoutErr.Error()})
	return timeoutErr
}

// Stop terminates the recorded process. SIGTERM is sent first; if the
// process is still alive after the grace period it is sent SIGKILL and the
// record is cleared without re-checking.
func (m *Manager) Stop(ctx context.Context) error {
	opID := NewOpID()
	logger := sidekicklog.WithOperation(m.logger, "stop", opID)
	return sidekicklog.NewOperation(logger, "stop").Run(ctx, func() error {
		return m.stop(ctx, logger, opID)
	})
}

func (m *Manager) stop(ctx context.Context, logger *slog.Logger, opID string) error {
	pid, ok, err := m.records.Read()
	if err != nil {
		return err
	}
	if !ok {
		logger.Debug("no process record, nothing to stop")
		metricStops.WithLabelValues("noop").Inc()
		return nil
	}

	logger = logger.With(sidekicklog.PIDKey, pid)
	if !m.liveness.IsAlive(pid) {
		metricStops.WithLabelValues("stale").Inc()
		return m.clearStale(logger, opID, pid)
	}

	m.record(logger, LifecycleEvent{OpID: opID, Event: EventStop, PID: pid, Success: true})
	if err := m.signals.Terminate(pid); err != nil {
		if !m.liveness.IsAlive(pid) {
			metricStops.WithLabelValues("graceful").Inc()
			return m.clearRecord(logger, opID, pid, EventStopSuccess)
		}
		return sidekickerrors.Wrapf(err, "failed to send SIGTERM to %d", pid)
	}

	grace := m.cfg.stopTimeout()
	err = WaitForExit(ctx, m.liveness, pid, grace, StopPollInterval)
	switch {
	case err == nil:
		metricStops.WithLabelValues("graceful").Inc()
		return m.clearRecord(logger, opID, pid, EventStopSuccess)
	case sidekickerrors.Is(err, ErrShutdownTimeout):
	default:
		return err
	}

	logger.Warn("process ignored SIGTERM, sending SIGKILL", sidekicklog.Error(err))
	if err := m.signals.Kill(pid); err != nil {
		logger.Warn("SIGKILL failed", sidekicklog.Error(err))
	}
	metricStops.WithLabelValues("forced").Inc()
	return m.clearRecord(logger, opID, pid, EventStopForced)
}

// Restart stops the recorded process, if any, and starts a new one.
// The endpoint is checked before anything is stopped.
func (m *Manager) Restart(ctx context.Context, endpoint string) error {
	if err := ValidateLoopback(endpoint); err != nil {
		return err
	}
	if err := m.Stop(ctx); err != nil {
		return err
	}
	return m.Start(ctx, endpoint)
}

// EnsureRunning starts the service only if it does not answer. The probe
// timeout is min(3s, requestTimeout).
func (m *Manager) EnsureRunning(ctx context.Context, endpoint string, requestTimeout time.Duration) error {
	if m.prober.Probe(ctx, endpoint, capTimeout(requestTimeout)) {
		return nil
	}
	if !m.cfg.Enabled {
		return &ManagementDisabledError{Endpoint: endpoint}
	}
	return m.Start(ctx, endpoint)
}

// EnsureAvailable is what consumers call before talking to the service.
// With AutoStart it behaves like EnsureRunning; otherwise an unreachable
// service yields ErrServiceUnreachable.
func (m *Manager) EnsureAvailable(ctx context.Context, endpoint string, requestTimeout time.Duration) error {
	if m.cfg.AutoStart {
		return m.EnsureRunning(ctx, endpoint, requestTimeout)
	}
	if m.prober.Probe(ctx, endpoint, capTimeout(requestTimeout)) {
		return nil
	}
	return fmt.Errorf("%w at %s", ErrServiceUnreachable, endpoint)
}

// Describe returns process-table details for the recorded pid.
// It fails with NotFoundError when there is no live recorded process.
func (m *Manager) Describe(ctx context.Context) (*ProcessDetails, error) {
	pid, ok, err := m.records.Read()
	if err != nil {
		return nil, err
	}
	if !ok || !m.liveness.IsAlive(pid) {
		return nil, &sidekickerrors.NotFoundError{Resource: "service process", ID: m.records.Path()}
	}
	return DescribeProcess(ctx, pid)
}

// ValidateLoopback accepts only endpoints on 127.0.0.1 or localhost.
// The launcher only starts local processes, so a remote endpoint can never
// be brought up by it.
func ValidateLoopback(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return &sidekickerrors.ConfigError{
			Key:    "service.endpoint",
			Reason: fmt.Sprintf("invalid endpoint %q", endpoint),
			Cause:  err,
		}
	}
	host := u.Hostname()
	if host == "127.0.0.1" || strings.EqualFold(host, "localhost") {
		return nil
	}
	return &sidekickerrors.ConfigError{
		Key:    "service.endpoint",
		Reason: fmt.Sprintf("refusing to manage non-local endpoint %s", endpoint),
		Hint:   "Only http://127.0.0.1:<port> or http://localhost:<port> can be started by sidekick",
	}
}

func (m *Manager) clearStale(logger *slog.Logger, opID string, pid int) error {
	logger.Info("removing stale process record")
	return m.clearRecord(logger, opID, pid, EventStaleRecord)
}

func (m *Manager) clearRecord(logger *slog.Logger, opID string, pid int, event string) error {
	if err := m.records.Clear(); err != nil {
		return err
	}
	m.record(logger, LifecycleEvent{OpID: opID, Event: event, PID: pid, Success: true})
	return nil
}

// record writes to the event log. Failures are logged and otherwise ignored.
func (m *Manager) record(logger *slog.Logger, event LifecycleEvent) {
	if err := m.events.Record(event); err != nil {
		logger.Warn("failed to write lifecycle event", sidekicklog.EventKey, event.Event, sidekicklog.Error(err))
	}
}

func startOutcome(err error) string {
	var (
		exited  *ProcessExitedEarlyError
		timeout *StartupTimeoutError
	)
	switch {
	case sidekickerrors.As(err, &exited):
		return "exited_early"
	case sidekickerrors.As(err, &timeout):
		return "timeout"
	default:
		return sidekickerrors.Classify(err)
	}
}
