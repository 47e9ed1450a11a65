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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sidekicklog "github.com/tombee/sidekick/internal/log"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

const testEndpoint = "http://127.0.0.1:1969"

type fakeProber struct {
	results  []bool
	def      bool
	timeouts []time.Duration
	onProbe  func()
}

func (p *fakeProber) Probe(_ context.Context, _ string, timeout time.Duration) bool {
	p.timeouts = append(p.timeouts, timeout)
	if p.onProbe != nil {
		p.onProbe()
	}
	if len(p.results) > 0 {
		r := p.results[0]
		p.results = p.results[1:]
		return r
	}
	return p.def
}

type fakeProcesses struct {
	alive      map[int]bool
	ignoreTerm bool
	terms      []int
	kills      []int
}

func newFakeProcesses(alive ...int) *fakeProcesses {
	f := &fakeProcesses{alive: map[int]bool{}}
	for _, pid := range alive {
		f.alive[pid] = true
	}
	return f
}

func (f *fakeProcesses) IsAlive(pid int) bool { return f.alive[pid] }

func (f *fakeProcesses) Terminate(pid int) error {
	f.terms = append(f.terms, pid)
	if !f.ignoreTerm {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeProcesses) Kill(pid int) error {
	f.kills = append(f.kills, pid)
	f.alive[pid] = false
	return nil
}

type fakeLauncher struct {
	procs       *fakeProcesses
	pid         int
	exitOnStart bool
	err         error
	calls       int
}

func (l *fakeLauncher) Launch(cfg Config) (int, error) {
	l.calls++
	if l.err != nil {
		return 0, l.err
	}
	pid := l.pid + l.calls - 1
	l.procs.alive[pid] = !l.exitOnStart
	return pid, nil
}

type harness struct {
	cfg      Config
	prober   *fakeProber
	procs    *fakeProcesses
	launcher *fakeLauncher
	events   *bytes.Buffer
	manager  *Manager
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	stateDir := t.TempDir()
	cfg := Config{
		Enabled:        true,
		SourceDir:      newSourceDir(t),
		PIDFile:        filepath.Join(stateDir, "service.pid"),
		LogFile:        filepath.Join(stateDir, "service.log"),
		StartupTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		StopTimeout:    100 * time.Millisecond,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	h := &harness{
		cfg:    cfg,
		prober: &fakeProber{},
		procs:  newFakeProcesses(),
		events: &bytes.Buffer{},
	}
	h.launcher = &fakeLauncher{procs: h.procs, pid: 4242}
	h.manager = NewManager(cfg,
		WithProber(h.prober),
		WithLivenessChecker(h.procs),
		WithSignaler(h.procs),
		WithLauncher(h.launcher),
		WithEventLog(NewEventLogWriter(h.events)),
		WithLogger(sidekicklog.Discard()),
	)
	return h
}

func (h *harness) writeRecord(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.cfg.PIDFile, []byte(content), 0600))
}

func (h *harness) recordedPID(t *testing.T) (int, bool) {
	t.Helper()
	pid, ok, err := h.manager.Records().Read()
	require.NoError(t, err)
	return pid, ok
}

func (h *harness) eventNames(t *testing.T) []string {
	t.Helper()
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(h.events.Bytes()))
	for scanner.Scan() {
		var ev LifecycleEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		names = append(names, ev.Event)
	}
	return names
}

func TestManager_Status(t *testing.T) {
	ctx := context.Background()
	livePID := os.Getpid()
	const deadPID = 9999999

	tests := []struct {
		name        string
		record      string
		reachable   bool
		wantPID     *int
		wantProcess ProcessState
	}{
		{name: "missing and reachable", reachable: true, wantProcess: ProcessMissing},
		{name: "missing and unreachable", reachable: false, wantProcess: ProcessMissing},
		{name: "running and reachable", record: "live", reachable: true, wantPID: &livePID, wantProcess: ProcessRunning},
		{name: "running and unreachable", record: "live", reachable: false, wantPID: &livePID, wantProcess: ProcessRunning},
		{name: "stopped and reachable", record: "9999999\n", reachable: true, wantPID: intPtr(deadPID), wantProcess: ProcessStopped},
		{name: "stopped and unreachable", record: "9999999\n", reachable: false, wantPID: intPtr(deadPID), wantProcess: ProcessStopped},
		{name: "non-numeric record is missing", record: "abc", reachable: false, wantProcess: ProcessMissing},
		{name: "pid wrapping to -1 is missing", record: "4294967295\n", reachable: false, wantProcess: ProcessMissing},
		{name: "pid wrapping to 0 is missing", record: "4294967296\n", reachable: false, wantProcess: ProcessMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.prober.def = tt.reachable
			h.procs.alive[livePID] = true

			switch tt.record {
			case "":
			case "live":
				require.NoError(t, h.manager.Records().Write(livePID))
			default:
				h.writeRecord(t, tt.record)
			}

			got, err := h.manager.Status(ctx, testEndpoint, 30*time.Second)
			require.NoError(t, err)

			assert.Equal(t, tt.reachable, got.Reachable)
			assert.Equal(t, tt.wantProcess, got.Process)
			if tt.wantPID == nil {
				assert.Nil(t, got.PID)
			} else {
				require.NotNil(t, got.PID)
				assert.Equal(t, *tt.wantPID, *got.PID)
			}
		})
	}

	t.Run("uses the real process table", func(t *testing.T) {
		h := newHarness(t)
		m := NewManager(h.cfg, WithProber(h.prober), WithLogger(sidekicklog.Discard()))
		h.writeRecord(t, "9999999\n")

		got, err := m.Status(ctx, testEndpoint, time.Second)
		require.NoError(t, err)
		assert.Equal(t, ProcessStopped, got.Process)
	})

	t.Run("out-of-range records with the real process table", func(t *testing.T) {
		for _, record := range []string{"4294967295\n", "4294967296\n", "2147483648\n"} {
			h := newHarness(t)
			m := NewManager(h.cfg, WithProber(h.prober), WithLogger(sidekicklog.Discard()))
			h.writeRecord(t, record)

			got, err := m.Status(ctx, testEndpoint, time.Second)
			require.NoError(t, err)
			assert.Equal(t, ProcessMissing, got.Process, "record %q", record)
			assert.Nil(t, got.PID, "record %q", record)
		}
	})

	t.Run("JSON shape", func(t *testing.T) {
		h := newHarness(t)
		h.prober.def = true

		got, err := h.manager.Status(ctx, testEndpoint, time.Second)
		require.NoError(t, err)

		data, err := json.Marshal(got)
		require.NoError(t, err)
		assert.JSONEq(t, `{"reachable":true,"pid":null,"process":"missing"}`, string(data))
	})

	t.Run("caps probe timeout at three seconds", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.manager.Status(ctx, testEndpoint, 30*time.Second)
		require.NoError(t, err)
		_, err = h.manager.Status(ctx, testEndpoint, 500*time.Millisecond)
		require.NoError(t, err)

		assert.Equal(t, []time.Duration{3 * time.Second, 500 * time.Millisecond}, h.prober.timeouts)
	})

	t.Run("does not modify a stale record", func(t *testing.T) {
		h := newHarness(t)
		h.writeRecord(t, "777\n")

		_, err := h.manager.Status(ctx, testEndpoint, time.Second)
		require.NoError(t, err)

		pid, ok := h.recordedPID(t)
		assert.True(t, ok)
		assert.Equal(t, 777, pid)
	})

	t.Run("surfaces record read failures", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, os.Mkdir(h.cfg.PIDFile, 0700))

		_, err := h.manager.Status(ctx, testEndpoint, time.Second)
		var ioErr *sidekickerrors.IOError
		assert.ErrorAs(t, err, &ioErr)
	})
}

func intPtr(v int) *int { return &v }

func TestManager_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("launches and records pid before readiness", func(t *testing.T) {
		h := newHarness(t)
		h.prober.results = []bool{false, false, true}
		var recordedDuringPoll []int
		h.prober.onProbe = func() {
			if pid, ok, _ := h.manager.Records().Read(); ok {
				recordedDuringPoll = append(recordedDuringPoll, pid)
			}
		}

		require.NoError(t, h.manager.Start(ctx, testEndpoint))

		assert.Equal(t, 1, h.launcher.calls)
		assert.Equal(t, []int{4242, 4242, 4242}, recordedDuringPoll)
		pid, ok := h.recordedPID(t)
		assert.True(t, ok)
		assert.Equal(t, 4242, pid)
		for _, timeout := range h.prober.timeouts {
			assert.Equal(t, StartupProbeTimeout, timeout)
		}
		assert.Equal(t, []string{EventStart, EventStartSuccess}, h.eventNames(t))
	})

	t.Run("is idempotent", func(t *testing.T) {
		h := newHarness(t)
		h.prober.def = true

		require.NoError(t, h.manager.Start(ctx, testEndpoint))
		first, _ := h.recordedPID(t)
		require.NoError(t, h.manager.Start(ctx, testEndpoint))
		second, _ := h.recordedPID(t)

		assert.Equal(t, 1, h.launcher.calls)
		assert.Equal(t, first, second)
		assert.Contains(t, h.eventNames(t), EventAlreadyRunning)
	})

	t.Run("rejects non-loopback endpoint without side effects", func(t *testing.T) {
		for _, endpoint := range []string{"http://example.com:1969", "http://10.0.0.5:1969", "not a url"} {
			h := newHarness(t)

			err := h.manager.Start(ctx, endpoint)

			var cfgErr *sidekickerrors.ConfigError
			require.ErrorAs(t, err, &cfgErr, endpoint)
			assert.Equal(t, "service.endpoint", cfgErr.Key)
			assert.Zero(t, h.launcher.calls)
			assert.Empty(t, h.prober.timeouts)
			_, statErr := os.Stat(h.cfg.PIDFile)
			assert.True(t, os.IsNotExist(statErr), "record file must not exist")
		}
	})

	t.Run("accepts localhost", func(t *testing.T) {
		h := newHarness(t)
		h.prober.def = true
		require.NoError(t, h.manager.Start(ctx, "http://localhost:1969/"))
	})

	t.Run("missing entry artifact is a config error", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.SourceDir = t.TempDir() })

		err := h.manager.Start(ctx, testEndpoint)

		var cfgErr *sidekickerrors.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "management.entry_artifact", cfgErr.Key)
		assert.Zero(t, h.launcher.calls)
		_, ok := h.recordedPID(t)
		assert.False(t, ok)
	})

	t.Run("empty source dir is a config error", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.SourceDir = "" })

		err := h.manager.Start(ctx, testEndpoint)

		var cfgErr *sidekickerrors.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Zero(t, h.launcher.calls)
	})

	t.Run("early exit clears record", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.StartupTimeout = 5 * time.Second })
		h.launcher.exitOnStart = true

		started := time.Now()
		err := h.manager.Start(ctx, testEndpoint)

		var exitErr *ProcessExitedEarlyError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 4242, exitErr.PID)
		assert.Equal(t, h.cfg.LogFile, exitErr.LogPath)
		assert.Less(t, time.Since(started), time.Second, "early exit must not wait for the deadline")
		_, ok := h.recordedPID(t)
		assert.False(t, ok)
		assert.Contains(t, h.eventNames(t), EventExitedEarly)
	})

	t.Run("timeout keeps record", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.StartupTimeout = 50 * time.Millisecond })

		err := h.manager.Start(ctx, testEndpoint)

		var timeoutErr *StartupTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, 4242, timeoutErr.PID)
		assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
		assert.Equal(t, h.cfg.LogFile, timeoutErr.LogPath)
		pid, ok := h.recordedPID(t)
		assert.True(t, ok)
		assert.Equal(t, 4242, pid)
		assert.Greater(t, len(h.prober.timeouts), 1)
	})

	t.Run("replaces stale record", func(t *testing.T) {
		h := newHarness(t)
		h.prober.def = true
		h.writeRecord(t, "777\n")

		require.NoError(t, h.manager.Start(ctx, testEndpoint))

		pid, _ := h.recordedPID(t)
		assert.Equal(t, 4242, pid)
		assert.Equal(t, []string{EventStaleRecord, EventStart, EventStartSuccess}, h.eventNames(t))
	})

	t.Run("launch failure leaves no record", func(t *testing.T) {
		h := newHarness(t)
		h.launcher.err = errors.New("exec: npm: not found")

		err := h.manager.Start(ctx, testEndpoint)

		require.Error(t, err)
		_, ok := h.recordedPID(t)
		assert.False(t, ok)
		assert.Contains(t, h.eventNames(t), EventStartFailure)
	})

	t.Run("stops polling when context is cancelled", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.StartupTimeout = time.Minute })
		cctx, cancel := context.WithCancel(ctx)
		h.prober.onProbe = cancel

		err := h.manager.Start(cctx, testEndpoint)

		assert.ErrorIs(t, err, context.Canceled)
		_, ok := h.recordedPID(t)
		assert.True(t, ok, "record is kept for a process that may still come up")
	})

	t.Run("event log write failure is not fatal", func(t *testing.T) {
		h := newHarness(t)
		h.prober.def = true
		m := NewManager(h.cfg,
			WithProber(h.prober),
			WithLivenessChecker(h.procs),
			WithLauncher(h.launcher),
			WithEventLog(NewEventLogWriter(failingWriter{})),
			WithLogger(sidekicklog.Discard()),
		)

		assert.NoError(t, m.Start(ctx, testEndpoint))
	})
}

func TestManager_Stop(t *testing.T) {
	ctx := context.Background()

	t.Run("no record is a no-op", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.manager.Stop(ctx))
		require.NoError(t, h.manager.Stop(ctx))

		assert.Empty(t, h.procs.terms)
		assert.Empty(t, h.procs.kills)
		assert.Empty(t, h.eventNames(t))
		_, err := os.Stat(h.cfg.PIDFile)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("dead pid clears stale record", func(t *testing.T) {
		h := newHarness(t)
		h.writeRecord(t, "777\n")

		require.NoError(t, h.manager.Stop(ctx))

		assert.Empty(t, h.procs.terms)
		_, ok := h.recordedPID(t)
		assert.False(t, ok)
		assert.Equal(t, []string{EventStaleRecord}, h.eventNames(t))
	})

	t.Run("out-of-range record is never signalled", func(t *testing.T) {
		h := newHarness(t)
		h.procs.alive[4294967295] = true
		h.writeRecord(t, "4294967295\n")

		require.NoError(t, h.manager.Stop(ctx))

		assert.Empty(t, h.procs.terms)
		assert.Empty(t, h.procs.kills)
	})

	t.Run("graceful termination", func(t *testing.T) {
		h := newHarness(t)
		h.procs.alive[555] = true
		h.writeRecord(t, "555\n")

		require.NoError(t, h.manager.Stop(ctx))

		assert.Equal(t, []int{555}, h.procs.terms)
		assert.Empty(t, h.procs.kills)
		_, ok := h.recordedPID(t)
		assert.False(t, ok)
		assert.Equal(t, []string{EventStop, EventStopSuccess}, h.eventNames(t))
	})

	t.Run("forceful kill after grace period", func(t *testing.T) {
		h := newHarness(t)
		h.procs.alive[555] = true
		h.procs.ignoreTerm = true
		h.writeRecord(t, "555\n")

		started := time.Now()
		require.NoError(t, h.manager.Stop(ctx))

		assert.GreaterOrEqual(t, time.Since(started), h.cfg.StopTimeout)
		assert.Equal(t, []int{555}, h.procs.terms)
		assert.Equal(t, []int{555}, h.procs.kills)
		_, ok := h.recordedPID(t)
		assert.False(t, ok)
		assert.Equal(t, []string{EventStop, EventStopForced}, h.eventNames(t))
	})
}

func TestManager_EnsureRunning(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable is a no-op", func(t *testing.T) {
		h := newHarness(t)
		h.prober.def = true

		require.NoError(t, h.manager.EnsureRunning(ctx, testEndpoint, 30*time.Second))
		assert.Zero(t, h.launcher.calls)
		assert.Equal(t, []time.Duration{StatusProbeCap}, h.prober.timeouts)
	})

	t.Run("disabled management fails without spawning", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Enabled = false })

		err := h.manager.EnsureRunning(ctx, testEndpoint, time.Second)

		var disabled *ManagementDisabledError
		require.ErrorAs(t, err, &disabled)
		assert.Equal(t, testEndpoint, disabled.Endpoint)
		assert.ErrorIs(t, err, ErrManagementDisabled)
		assert.Zero(t, h.launcher.calls)
		assert.Equal(t, []time.Duration{time.Second}, h.prober.timeouts)
	})

	t.Run("starts when unreachable", func(t *testing.T) {
		h := newHarness(t)
		h.prober.results = []bool{false, true}

		require.NoError(t, h.manager.EnsureRunning(ctx, testEndpoint, time.Second))
		assert.Equal(t, 1, h.launcher.calls)
	})
}

func TestManager_EnsureAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable without auto start", func(t *testing.T) {
		h := newHarness(t)

		err := h.manager.EnsureAvailable(ctx, testEndpoint, time.Second)

		assert.ErrorIs(t, err, ErrServiceUnreachable)
		assert.Zero(t, h.launcher.calls)
	})

	t.Run("auto start launches", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.AutoStart = true })
		h.prober.results = []bool{false, true}

		require.NoError(t, h.manager.EnsureAvailable(ctx, testEndpoint, time.Second))
		assert.Equal(t, 1, h.launcher.calls)
	})

	t.Run("auto start still honours disabled management", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.AutoStart = true; c.Enabled = false })

		err := h.manager.EnsureAvailable(ctx, testEndpoint, time.Second)
		assert.ErrorIs(t, err, ErrManagementDisabled)
	})
}

func TestManager_Restart(t *testing.T) {
	ctx := context.Background()

	t.Run("stops then starts", func(t *testing.T) {
		h := newHarness(t)
		h.prober.def = true
		h.procs.alive[555] = true
		h.writeRecord(t, "555\n")

		require.NoError(t, h.manager.Restart(ctx, testEndpoint))

		assert.Equal(t, []int{555}, h.procs.terms)
		assert.Equal(t, 1, h.launcher.calls)
		pid, _ := h.recordedPID(t)
		assert.Equal(t, 4242, pid)
	})

	t.Run("non-loopback endpoint stops nothing", func(t *testing.T) {
		h := newHarness(t)
		h.procs.alive[555] = true
		h.writeRecord(t, "555\n")

		err := h.manager.Restart(ctx, "http://example.com:1969")

		var cfgErr *sidekickerrors.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Empty(t, h.procs.terms)
	})
}

func TestManager_Describe(t *testing.T) {
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.manager.Describe(ctx)

		var nf *sidekickerrors.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("live recorded process", func(t *testing.T) {
		h := newHarness(t)
		pid := os.Getpid()
		h.procs.alive[pid] = true
		require.NoError(t, h.manager.Records().Write(pid))

		details, err := h.manager.Describe(ctx)
		require.NoError(t, err)
		assert.Equal(t, pid, details.PID)
	})
}

// TestManager_RealProcess drives the manager against real child processes.
func TestManager_RealProcess(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}
	ctx := context.Background()

	newReal := func(t *testing.T, command string) (*Manager, Config) {
		stateDir := t.TempDir()
		cfg := Config{
			Enabled:        true,
			SourceDir:      newSourceDir(t),
			LaunchCommand:  command,
			PIDFile:        filepath.Join(stateDir, "service.pid"),
			LogFile:        filepath.Join(stateDir, "service.log"),
			StartupTimeout: 3 * time.Second,
			PollInterval:   20 * time.Millisecond,
			StopTimeout:    2 * time.Second,
		}
		return NewManager(cfg, WithProber(&fakeProber{}), WithLogger(sidekicklog.Discard())), cfg
	}

	t.Run("process exiting within 100ms is detected", func(t *testing.T) {
		m, cfg := newReal(t, "sh -c 'sleep 0.05; exit 3'")

		err := m.Start(ctx, testEndpoint)
		skipOnSpawnError(t, err)

		var exitErr *ProcessExitedEarlyError
		require.ErrorAs(t, err, &exitErr)
		_, ok, readErr := NewRecordStore(cfg.PIDFile).Read()
		require.NoError(t, readErr)
		assert.False(t, ok)
	})

	t.Run("stop terminates a running process", func(t *testing.T) {
		m, cfg := newReal(t, "sleep 30")
		m.cfg.StartupTimeout = 100 * time.Millisecond

		err := m.Start(ctx, testEndpoint)
		skipOnSpawnError(t, err)
		var timeoutErr *StartupTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		pid := timeoutErr.PID
		defer syscall.Kill(pid, syscall.SIGKILL)

		require.NoError(t, m.Stop(ctx))

		assert.False(t, ProcessTable{}.IsAlive(pid))
		_, ok, _ := NewRecordStore(cfg.PIDFile).Read()
		assert.False(t, ok)
	})
}
