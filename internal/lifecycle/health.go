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
	"io"
	"net/http"
	"time"
)

// HTTPDoer is the transport the probe consumes. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prober reports whether the service endpoint answers.
type Prober interface {
	Probe(ctx context.Context, endpoint string, timeout time.Duration) bool
}

// ProbeResult contains the outcome of a single probe.
type ProbeResult struct {
	Reachable    bool
	StatusCode   int
	ResponseTime time.Duration
	Error        error
}

// HTTPProber issues one GET per probe. Any response below 500 counts as
// reachable: a 4xx still proves the process is up and answering.
type HTTPProber struct {
	client HTTPDoer
}

// NewHTTPProber creates a prober using a dedicated http.Client.
// Timeouts come from the per-call context, not the client.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{client: &http.Client{}}
}

// WithHTTPClient sets a custom transport.
func (p *HTTPProber) WithHTTPClient(client HTTPDoer) *HTTPProber {
	p.client = client
	return p
}

// Probe performs a single check bounded by timeout. It never retries.
func (p *HTTPProber) Probe(ctx context.Context, endpoint string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx, endpoint).Reachable
}

// Check performs a single GET against endpoint using ctx for cancellation.
func (p *HTTPProber) Check(ctx context.Context, endpoint string) *ProbeResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ProbeResult{
			Error: fmt.Errorf("failed to create request: %w", err),
		}
	}

	resp, err := p.client.Do(req)
	responseTime := time.Since(start)

	if err != nil {
		metricProbes.WithLabelValues(probeResultUnreachable).Inc()
		return &ProbeResult{
			ResponseTime: responseTime,
			Error:        fmt.Errorf("request failed: %w", err),
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	reachable := resp.StatusCode < http.StatusInternalServerError
	if reachable {
		metricProbes.WithLabelValues(probeResultReachable).Inc()
	} else {
		metricProbes.WithLabelValues(probeResultServerError).Inc()
	}

	return &ProbeResult{
		Reachable:    reachable,
		StatusCode:   resp.StatusCode,
		ResponseTime: responseTime,
	}
}
