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
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type errDoer struct{}

func (errDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestHTTPProber_Check(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantReachable bool
	}{
		{"200 is reachable", http.StatusOK, true},
		{"404 is reachable", http.StatusNotFound, true},
		{"499 is reachable", 499, true},
		{"500 is unreachable", http.StatusInternalServerError, false},
		{"503 is unreachable", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("probe method = %s, want GET", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			result := NewHTTPProber().Check(context.Background(), server.URL)

			if result.Reachable != tt.wantReachable {
				t.Errorf("Check() reachable = %v, want %v (error: %v)", result.Reachable, tt.wantReachable, result.Error)
			}
			if result.StatusCode != tt.status {
				t.Errorf("Check() status = %d, want %d", result.StatusCode, tt.status)
			}
			if result.ResponseTime <= 0 {
				t.Error("Check() response time should be positive")
			}
		})
	}

	t.Run("returns error for transport failure", func(t *testing.T) {
		result := NewHTTPProber().WithHTTPClient(errDoer{}).Check(context.Background(), "http://127.0.0.1:1969")

		if result.Reachable {
			t.Error("Check() reachable = true, want false")
		}
		if result.Error == nil {
			t.Error("Check() error = nil, want transport error")
		}
	})

	t.Run("returns error for malformed endpoint", func(t *testing.T) {
		result := NewHTTPProber().Check(context.Background(), "http://[::1")
		if result.Reachable || result.Error == nil {
			t.Errorf("Check() = %+v, want unreachable with error", result)
		}
	})
}

func TestHTTPProber_Probe(t *testing.T) {
	t.Run("reachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		defer server.Close()

		if !NewHTTPProber().Probe(context.Background(), server.URL, time.Second) {
			t.Error("Probe() = false, want true")
		}
	})

	t.Run("closed port", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		if NewHTTPProber().Probe(context.Background(), url, time.Second) {
			t.Error("Probe() = true for closed server, want false")
		}
	})

	t.Run("cancels at timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		start := time.Now()
		reachable := NewHTTPProber().Probe(context.Background(), server.URL, 100*time.Millisecond)
		elapsed := time.Since(start)

		if reachable {
			t.Error("Probe() = true for hanging server, want false")
		}
		if elapsed > 2*time.Second {
			t.Errorf("Probe() took %v, want about 100ms", elapsed)
		}
	})
}
