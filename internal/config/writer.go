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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

const (
	// maxBackups is how many previous config files WriteConfig keeps.
	maxBackups = 3

	configHeader = `# Sidekick Configuration
#
# Environment variables (SIDEKICK_*, LOG_LEVEL, LOG_FORMAT) override
# values in this file.

`
)

// WriteConfig writes cfg to path as YAML with mode 0600. An existing file
// is first copied to path.bak.<timestamp>; only the newest backups are kept.
func WriteConfig(cfg *Config, path string) error {
	path = expandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return sidekickerrors.Wrap(err, "failed to create config directory")
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return sidekickerrors.Wrap(err, "failed to marshal config")
	}
	if err := enc.Close(); err != nil {
		return sidekickerrors.Wrap(err, "failed to marshal config")
	}

	if _, err := os.Stat(path); err == nil {
		if err := backup(path); err != nil {
			return err
		}
	}

	return writeAtomic(path, buf.Bytes(), 0600)
}

func backup(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sidekickerrors.Wrap(err, "failed to read existing config")
	}

	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return sidekickerrors.Wrap(err, "failed to back up config")
	}

	return rotateBackups(path)
}

// rotateBackups removes all but the newest maxBackups backups of path.
func rotateBackups(path string) error {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + ".bak."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return sidekickerrors.Wrap(err, "failed to list backups")
	}

	var backups []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, entry.Name())
		}
	}
	if len(backups) <= maxBackups {
		return nil
	}

	// Suffixes are fixed-width nanosecond timestamps, so lexical order is age order.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-maxBackups] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return sidekickerrors.Wrap(err, "failed to remove old backup")
		}
	}
	return nil
}

// writeAtomic writes data to a temp file beside path and renames it into place.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return sidekickerrors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return sidekickerrors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return sidekickerrors.Wrap(err, "failed to set permissions")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return sidekickerrors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return sidekickerrors.Wrap(err, "failed to close temp file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return sidekickerrors.Wrap(err, "failed to rename config file")
	}
	return nil
}
