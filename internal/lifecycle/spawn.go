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
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// shellOperators are characters quoting alone cannot express; commands that
// contain them are handed to /bin/sh.
const shellOperators = "|&;<>*?`$(){}[]~"

// Launcher starts the service and hands back only its pid.
type Launcher interface {
	Launch(cfg Config) (int, error)
}

// Spawner launches the service as a detached child process.
type Spawner struct {
	// Environ returns the base environment. Defaults to os.Environ.
	Environ func() []string
}

// NewSpawner creates a spawner that inherits the caller's environment.
func NewSpawner() *Spawner {
	return &Spawner{Environ: os.Environ}
}

// Launch starts cfg.LaunchCommand in cfg.SourceDir.
// The child:
// - Runs in its own session (it outlives the caller)
// - Has stdin closed, stdout and stderr appended to cfg.LogFile
// - Inherits the environment plus cfg.Env, with NODE_ENV=production if unset
//
// Launch does not wait for readiness. A background goroutine reaps the child
// when it exits so it never lingers as a zombie of the caller.
func (s *Spawner) Launch(cfg Config) (int, error) {
	if err := ValidateSource(cfg); err != nil {
		return 0, err
	}

	argv, err := BuildArgv(cfg.launchCommand())
	if err != nil {
		return 0, err
	}

	if err := ensureParentDirs(cfg.PIDFile, cfg.LogFile); err != nil {
		return 0, err
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return 0, &sidekickerrors.IOError{Op: "open", Path: cfg.LogFile, Cause: err}
	}
	defer logFile.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.SourceDir
	cmd.Env = s.environment(cfg.Env)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		return 0, sidekickerrors.Wrapf(err, "failed to start %q", cfg.launchCommand())
	}

	pid := cmd.Process.Pid
	go func() {
		_ = cmd.Wait()
	}()

	return pid, nil
}

// ValidateSource checks that SourceDir is set and contains the entry artifact.
func ValidateSource(cfg Config) error {
	if strings.TrimSpace(cfg.SourceDir) == "" {
		return &sidekickerrors.ConfigError{
			Key:    "management.source_dir",
			Reason: "service source directory is not set",
			Hint:   "Set management.source_dir or SIDEKICK_SOURCE_DIR to the service checkout",
		}
	}

	entry := filepath.Join(cfg.SourceDir, cfg.entryArtifact())
	if _, err := os.Stat(entry); err != nil {
		reason := fmt.Sprintf("entry artifact %s is not accessible", entry)
		if sidekickerrors.Is(err, fs.ErrNotExist) {
			reason = fmt.Sprintf("entry artifact %s does not exist", entry)
		}
		return &sidekickerrors.ConfigError{
			Key:    "management.entry_artifact",
			Reason: reason,
			Hint:   "Check that management.source_dir points at a complete checkout (run npm install first)",
			Cause:  err,
		}
	}
	return nil
}

// BuildArgv splits a launch command into argv. Commands that use shell
// operators run under /bin/sh -c; everything else is split with shell
// quoting rules and executed directly.
func BuildArgv(command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, &sidekickerrors.ConfigError{
			Key:    "management.launch_command",
			Reason: "launch command is empty",
		}
	}

	if strings.ContainsAny(command, shellOperators) {
		return []string{"/bin/sh", "-c", command}, nil
	}

	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, &sidekickerrors.ConfigError{
			Key:    "management.launch_command",
			Reason: fmt.Sprintf("cannot parse %q", command),
			Cause:  err,
		}
	}
	if len(argv) == 0 {
		return nil, &sidekickerrors.ConfigError{
			Key:    "management.launch_command",
			Reason: "launch command is empty",
		}
	}
	return argv, nil
}

func (s *Spawner) environment(extra []string) []string {
	environ := os.Environ
	if s.Environ != nil {
		environ = s.Environ
	}
	env := append(environ(), extra...)
	return withDefaultEnv(env, "NODE_ENV", "production")
}

// withDefaultEnv appends key=value unless key is already present.
func withDefaultEnv(env []string, key, value string) []string {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return env
		}
	}
	return append(env, prefix+value)
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return &sidekickerrors.IOError{Op: "create directory", Path: dir, Cause: err}
		}
	}
	return nil
}
