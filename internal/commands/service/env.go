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

// Package service implements the commands that inspect and control the
// managed service: status, start, stop, restart, ensure, logs and watch.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/sidekick/internal/commands/shared"
	"github.com/tombee/sidekick/internal/config"
	"github.com/tombee/sidekick/internal/lifecycle"
	sidekicklog "github.com/tombee/sidekick/internal/log"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
	"github.com/tombee/sidekick/pkg/httpclient"
)

// env is what every service command needs: the effective configuration
// and a manager wired to it.
type env struct {
	cfg     *config.Config
	manager *lifecycle.Manager
	events  *lifecycle.EventLog
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
}

// loadEnv loads configuration, applies flag overrides and builds the
// manager for cmd.
func loadEnv(cmd *cobra.Command, overrides ...func(*config.Config)) (*env, error) {
	cfg, err := config.Load(config.ResolvePath(shared.GetConfigPath()))
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	return newEnv(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr()), nil
}

func newEnv(cfg *config.Config, out, errOut io.Writer) *env {
	logCfg := cfg.Logging(errOut)
	if shared.GetVerbose() {
		logCfg.Level = "debug"
	}
	logger := sidekicklog.New(logCfg)

	events := lifecycle.NewEventLog(cfg.EventLog())

	opts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithEventLog(events),
	}
	version, _, _ := shared.GetVersion()
	if version == "" {
		version = "dev"
	}
	client, err := httpclient.New(httpclient.Config{
		Timeout:   cfg.Service.RequestTimeout,
		UserAgent: "sidekick/" + version,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("using default probe client", sidekicklog.Error(err))
	} else {
		opts = append(opts, lifecycle.WithProber(lifecycle.NewHTTPProber().WithHTTPClient(client)))
	}
	manager := lifecycle.NewManager(cfg.Lifecycle(), opts...)

	return &env{
		cfg:     cfg,
		manager: manager,
		events:  events,
		logger:  logger,
		out:     out,
		errOut:  errOut,
	}
}

// flagError reports an invalid value for the named flag.
func flagError(name, message, hint string) error {
	return &sidekickerrors.ValidationError{Field: "--" + name, Message: message, Hint: hint}
}

// checkTimeoutFlag rejects negative durations. Zero means the configured value.
func checkTimeoutFlag(name string, d time.Duration) error {
	if d < 0 {
		return flagError(name, fmt.Sprintf("must not be negative, got %v", d),
			"Omit --"+name+" to use the configured default")
	}
	return nil
}

// Close releases the event log.
func (e *env) Close() {
	if err := e.events.Close(); err != nil {
		e.logger.Warn("failed to close lifecycle log", sidekicklog.Error(err))
	}
}

func (e *env) endpoint() string {
	return e.cfg.Service.Endpoint
}

// println writes a line unless --quiet is set.
func (e *env) println(a ...interface{}) {
	if shared.GetQuiet() {
		return
	}
	fmt.Fprintln(e.out, a...)
}

// recordedPID returns the pid in the process record, or 0.
func (e *env) recordedPID() int {
	pid, ok, err := e.manager.Records().Read()
	if err != nil || !ok {
		return 0
	}
	return pid
}

// commandResult is the --json envelope for commands that change state.
type commandResult struct {
	shared.JSONResponse
	Endpoint string `json:"endpoint"`
	PID      int    `json:"pid,omitempty"`
	Message  string `json:"message"`
}

func (e *env) report(command, message string) error {
	if shared.GetJSON() {
		return shared.WriteJSON(e.out, commandResult{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: command, Success: true},
			Endpoint:     e.endpoint(),
			PID:          e.recordedPID(),
			Message:      message,
		})
	}
	e.println(shared.RenderOK(message))
	return nil
}
