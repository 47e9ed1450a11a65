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
package httpclient

import (
	"fmt"
	"log/slog"
	"time"
)

// Config controls the client returned by New.
type Config struct {
	// Timeout bounds a whole request. Callers may set a shorter deadline
	// on the request context. Must be > 0.
	Timeout time.Duration

	// UserAgent is sent on every request that does not set its own.
	// Required.
	UserAgent string

	// Logger receives one debug record per request. Nil uses slog.Default().
	Logger *slog.Logger

	// KeepAlive enables connection reuse. Probes issued minutes apart gain
	// nothing from an idle pool, so it is off by default.
	KeepAlive bool
}

// DefaultConfig returns the configuration used for health probes.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "sidekick",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}
	return nil
}
