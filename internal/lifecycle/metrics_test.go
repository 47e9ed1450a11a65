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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	sidekicklog "github.com/tombee/sidekick/internal/log"
)

func TestProbeMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	before := testutil.ToFloat64(metricProbes.WithLabelValues(probeResultServerError))
	NewHTTPProber().Probe(context.Background(), server.URL, time.Second)
	after := testutil.ToFloat64(metricProbes.WithLabelValues(probeResultServerError))

	if after != before+1 {
		t.Errorf("expected server_error probes to increment by 1, got before=%f, after=%f", before, after)
	}
}

func TestStartMetrics(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		outcome string
		run     func(h *harness) error
	}{
		{
			name:    "already running",
			outcome: "already_running",
			run: func(h *harness) error {
				h.procs.alive[555] = true
				if err := h.manager.Records().Write(555); err != nil {
					return err
				}
				return h.manager.Start(ctx, testEndpoint)
			},
		},
		{
			name:    "config error",
			outcome: "configuration",
			run: func(h *harness) error {
				_ = h.manager.Start(ctx, "http://example.com")
				return nil
			},
		},
		{
			name:    "exited early",
			outcome: "exited_early",
			run: func(h *harness) error {
				h.launcher.exitOnStart = true
				_ = h.manager.Start(ctx, testEndpoint)
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			before := testutil.ToFloat64(metricStarts.WithLabelValues(tt.outcome))

			if err := tt.run(h); err != nil {
				t.Fatal(err)
			}

			after := testutil.ToFloat64(metricStarts.WithLabelValues(tt.outcome))
			if after != before+1 {
				t.Errorf("expected %s starts to increment by 1, got before=%f, after=%f", tt.outcome, before, after)
			}
		})
	}
}

func TestStatusGauges(t *testing.T) {
	h := newHarness(t)
	h.prober.def = true
	h.writeRecord(t, "777\n")

	m := NewManager(h.cfg, WithProber(h.prober), WithLivenessChecker(h.procs), WithLogger(sidekicklog.Discard()))
	if _, err := m.Status(context.Background(), testEndpoint, time.Second); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(metricReachable); got != 1 {
		t.Errorf("reachable gauge = %f, want 1", got)
	}
	if got := testutil.ToFloat64(metricProcessState.WithLabelValues(string(ProcessStopped))); got != 1 {
		t.Errorf("stopped gauge = %f, want 1", got)
	}
	if got := testutil.ToFloat64(metricProcessState.WithLabelValues(string(ProcessRunning))); got != 0 {
		t.Errorf("running gauge = %f, want 0", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		hasRecord bool
		alive     bool
		want      ProcessState
	}{
		{"no record ignores liveness", false, true, ProcessMissing},
		{"record alive", true, true, ProcessRunning},
		{"record dead", true, false, ProcessStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := classify(false, 12, tt.hasRecord, tt.alive)
			if s.Process != tt.want {
				t.Errorf("classify() process = %s, want %s", s.Process, tt.want)
			}
			if tt.hasRecord && (s.PID == nil || *s.PID != 12) {
				t.Errorf("classify() pid = %v, want 12", s.PID)
			}
			if !tt.hasRecord && s.PID != nil {
				t.Errorf("classify() pid = %v, want nil", *s.PID)
			}
		})
	}
}
