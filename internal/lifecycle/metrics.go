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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	probeResultReachable   = "reachable"
	probeResultServerError = "server_error"
	probeResultUnreachable = "unreachable"
)

var (
	metricProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_probes_total",
			Help: "Total health probes by result",
		},
		[]string{"result"},
	)

	metricStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_starts_total",
			Help: "Total start operations by outcome",
		},
		[]string{"outcome"},
	)

	metricStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_stops_total",
			Help: "Total stop operations by mode",
		},
		[]string{"mode"},
	)

	metricStartupSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sidekick_startup_seconds",
			Help:    "Time from launch until the service became reachable",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	metricReachable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sidekick_service_reachable",
			Help: "1 if the last status check reached the service, 0 otherwise",
		},
	)

	metricProcessState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sidekick_service_process_state",
			Help: "1 for the process state observed by the last status check",
		},
		[]string{"state"},
	)
)

// recordStatus publishes the observed composite status.
func recordStatus(s *Status) {
	if s.Reachable {
		metricReachable.Set(1)
	} else {
		metricReachable.Set(0)
	}
	for _, state := range []ProcessState{ProcessRunning, ProcessStopped, ProcessMissing} {
		v := 0.0
		if s.Process == state {
			v = 1
		}
		metricProcessState.WithLabelValues(string(state)).Set(v)
	}
}
