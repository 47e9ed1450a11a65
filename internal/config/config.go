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

package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/sidekick/internal/lifecycle"
	sidekicklog "github.com/tombee/sidekick/internal/log"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete sidekick configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Management   ManagementConfig   `yaml:"management"`
	Log          LogConfig          `yaml:"log"`
	LifecycleLog LifecycleLogConfig `yaml:"lifecycle_log"`
}

// ServiceConfig describes how to reach the dependent service.
type ServiceConfig struct {
	// Endpoint is the service base URL. Only loopback endpoints can be started.
	// Environment: SIDEKICK_ENDPOINT
	// Default: http://127.0.0.1:1969
	Endpoint string `yaml:"endpoint"`

	// RequestTimeout is the budget consumers give each request. Status and
	// ensure checks probe with at most 3s of it.
	// Environment: SIDEKICK_REQUEST_TIMEOUT
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ManagementConfig controls whether and how sidekick runs the service.
type ManagementConfig struct {
	// Enabled permits starting the service.
	// Environment: SIDEKICK_MANAGE
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AutoStart starts the service on demand when consumers need it.
	// Environment: SIDEKICK_AUTO_START
	// Default: false
	AutoStart bool `yaml:"auto_start"`

	// SourceDir is the service checkout.
	// Environment: SIDEKICK_SOURCE_DIR
	SourceDir string `yaml:"source_dir,omitempty"`

	// EntryArtifact must exist under SourceDir before a launch.
	// Default: src/server.js
	EntryArtifact string `yaml:"entry_artifact"`

	// LaunchCommand runs with SourceDir as working directory.
	// Environment: SIDEKICK_LAUNCH_COMMAND
	// Default: npm start
	LaunchCommand string `yaml:"launch_command"`

	// Env adds KEY=VALUE pairs to the service environment.
	Env map[string]string `yaml:"env,omitempty"`

	// PIDFile is the process record.
	// Environment: SIDEKICK_PID_FILE
	// Default: $XDG_STATE_HOME/sidekick/service.pid
	PIDFile string `yaml:"pid_file"`

	// LogFile receives service stdout and stderr.
	// Environment: SIDEKICK_LOG_FILE
	// Default: $XDG_STATE_HOME/sidekick/service.log
	LogFile string `yaml:"log_file"`

	// Environment: SIDEKICK_STARTUP_TIMEOUT
	// Default: 30s
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// Environment: SIDEKICK_POLL_INTERVAL
	// Default: 250ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// StopTimeout is the grace period between SIGTERM and SIGKILL.
	// Default: 5s
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// LogConfig configures sidekick's own diagnostic logging.
type LogConfig struct {
	// Environment: LOG_LEVEL
	// Default: warn
	Level string `yaml:"level"`

	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source,omitempty"`
}

// LifecycleLogConfig configures the rotated lifecycle event log.
type LifecycleLogConfig struct {
	// Path of the JSON-lines event log. Empty disables it.
	// Default: $XDG_STATE_HOME/sidekick/lifecycle.log
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	stateDir := StateDir()

	return &Config{
		Service: ServiceConfig{
			Endpoint:       "http://127.0.0.1:1969",
			RequestTimeout: 30 * time.Second,
		},
		Management: ManagementConfig{
			Enabled:        true,
			AutoStart:      false,
			EntryArtifact:  lifecycle.DefaultEntryArtifact,
			LaunchCommand:  lifecycle.DefaultLaunchCommand,
			PIDFile:        filepath.Join(stateDir, "service.pid"),
			LogFile:        filepath.Join(stateDir, "service.log"),
			StartupTimeout: lifecycle.DefaultStartupTimeout,
			PollInterval:   lifecycle.DefaultPollInterval,
			StopTimeout:    lifecycle.DefaultStopTimeout,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		LifecycleLog: LifecycleLogConfig{
			Path:       filepath.Join(stateDir, "lifecycle.log"),
			MaxSizeMB:  lifecycle.DefaultEventLogMaxSizeMB,
			MaxBackups: lifecycle.DefaultEventLogMaxBackups,
			MaxAgeDays: lifecycle.DefaultEventLogMaxAgeDays,
		},
	}
}

// Load loads configuration from environment variables and optionally from a YAML file.
// Environment variables take precedence over file-based configuration.
// If configPath is empty, only environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &sidekickerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Hint:   "Fix the file or point --config at another one",
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &sidekickerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults.
// Durations and paths written as empty values in the file fall back here.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Service.Endpoint == "" {
		c.Service.Endpoint = d.Service.Endpoint
	}
	if c.Service.RequestTimeout == 0 {
		c.Service.RequestTimeout = d.Service.RequestTimeout
	}

	m := &c.Management
	if m.EntryArtifact == "" {
		m.EntryArtifact = d.Management.EntryArtifact
	}
	if m.LaunchCommand == "" {
		m.LaunchCommand = d.Management.LaunchCommand
	}
	if m.PIDFile == "" {
		m.PIDFile = d.Management.PIDFile
	}
	if m.LogFile == "" {
		m.LogFile = d.Management.LogFile
	}
	if m.StartupTimeout == 0 {
		m.StartupTimeout = d.Management.StartupTimeout
	}
	if m.PollInterval == 0 {
		m.PollInterval = d.Management.PollInterval
	}
	if m.StopTimeout == 0 {
		m.StopTimeout = d.Management.StopTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
// Values that fail to parse are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("SIDEKICK_ENDPOINT"); val != "" {
		c.Service.Endpoint = val
	}
	if val := os.Getenv("SIDEKICK_REQUEST_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Service.RequestTimeout = duration
		}
	}

	if val := os.Getenv("SIDEKICK_MANAGE"); val != "" {
		c.Management.Enabled = parseBool(val)
	}
	if val := os.Getenv("SIDEKICK_AUTO_START"); val != "" {
		c.Management.AutoStart = parseBool(val)
	}
	if val := os.Getenv("SIDEKICK_SOURCE_DIR"); val != "" {
		c.Management.SourceDir = val
	}
	if val := os.Getenv("SIDEKICK_LAUNCH_COMMAND"); val != "" {
		c.Management.LaunchCommand = val
	}
	if val := os.Getenv("SIDEKICK_PID_FILE"); val != "" {
		c.Management.PIDFile = val
	}
	if val := os.Getenv("SIDEKICK_LOG_FILE"); val != "" {
		c.Management.LogFile = val
	}
	if val := os.Getenv("SIDEKICK_STARTUP_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Management.StartupTimeout = duration
		}
	}
	if val := os.Getenv("SIDEKICK_POLL_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Management.PollInterval = duration
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = parseBool(val)
	}
}

func parseBool(val string) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
		return b
	}
	return strings.EqualFold(val, "yes") || strings.EqualFold(val, "on")
}

// Validate checks that the configuration is valid.
// It does not check that the endpoint is local or that the source
// directory exists; starting the service does that.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.Service.Endpoint); err != nil {
		errs = append(errs, fmt.Sprintf("service.endpoint %q is not a valid URL: %v", c.Service.Endpoint, err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("service.endpoint must be an http(s) URL with a host, got %q", c.Service.Endpoint))
	}
	if c.Service.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("service.request_timeout must be positive, got %v", c.Service.RequestTimeout))
	}

	m := c.Management
	if m.StartupTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("management.startup_timeout must be positive, got %v", m.StartupTimeout))
	}
	if m.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("management.poll_interval must be positive, got %v", m.PollInterval))
	} else if m.StartupTimeout > 0 && m.PollInterval >= m.StartupTimeout {
		errs = append(errs, fmt.Sprintf("management.poll_interval (%v) must be shorter than management.startup_timeout (%v)", m.PollInterval, m.StartupTimeout))
	}
	if m.StopTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("management.stop_timeout must be positive, got %v", m.StopTimeout))
	}
	for k := range m.Env {
		if k == "" || strings.Contains(k, "=") {
			errs = append(errs, fmt.Sprintf("management.env has invalid variable name %q", k))
		}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	ll := c.LifecycleLog
	if ll.MaxSizeMB < 0 || ll.MaxBackups < 0 || ll.MaxAgeDays < 0 {
		errs = append(errs, "lifecycle_log rotation settings must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// Lifecycle converts the management settings for the lifecycle package.
func (c *Config) Lifecycle() lifecycle.Config {
	m := c.Management

	env := make([]string, 0, len(m.Env))
	for k, v := range m.Env {
		env = append(env, k+"="+v)
	}

	sourceDir := m.SourceDir
	if sourceDir != "" {
		sourceDir = expandHome(sourceDir)
	}

	return lifecycle.Config{
		Enabled:        m.Enabled,
		AutoStart:      m.AutoStart,
		SourceDir:      sourceDir,
		EntryArtifact:  m.EntryArtifact,
		LaunchCommand:  m.LaunchCommand,
		Env:            env,
		PIDFile:        expandHome(m.PIDFile),
		LogFile:        expandHome(m.LogFile),
		StartupTimeout: m.StartupTimeout,
		PollInterval:   m.PollInterval,
		StopTimeout:    m.StopTimeout,
	}
}

// EventLog converts the lifecycle log settings.
func (c *Config) EventLog() lifecycle.EventLogConfig {
	return lifecycle.EventLogConfig{
		Path:       expandHome(c.LifecycleLog.Path),
		MaxSizeMB:  c.LifecycleLog.MaxSizeMB,
		MaxBackups: c.LifecycleLog.MaxBackups,
		MaxAgeDays: c.LifecycleLog.MaxAgeDays,
		Compress:   c.LifecycleLog.Compress,
	}
}

// Logging builds the diagnostic logger configuration. SIDEKICK_DEBUG and
// SIDEKICK_LOG_LEVEL still override the file.
func (c *Config) Logging(output io.Writer) *sidekicklog.Config {
	return sidekicklog.ApplyEnv(&sidekicklog.Config{
		Level:     c.Log.Level,
		Format:    sidekicklog.Format(c.Log.Format),
		Output:    output,
		AddSource: c.Log.AddSource,
	})
}
