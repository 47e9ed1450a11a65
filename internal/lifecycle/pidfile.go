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
	"path/filepath"
	"strconv"
	"strings"

	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// RecordStore persists the pid of the most recently launched service process.
//
// The file holds a single decimal pid followed by a newline. Missing files and
// contents that do not parse as a positive integer both read as "no record".
// No lock is taken: a single manager is assumed to own the file.
type RecordStore struct {
	path string
}

// NewRecordStore creates a store backed by path.
func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

// Path returns the record file location.
func (s *RecordStore) Path() string {
	return s.path
}

// Read returns the recorded pid. ok is false when there is no usable record.
// Failures other than absence are returned as *errors.IOError.
func (s *RecordStore) Read() (pid int, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if sidekickerrors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, &sidekickerrors.IOError{Op: "read", Path: s.path, Cause: err}
	}

	// pid_t is 32 bits. Wider values would be truncated by kill(2) into -1
	// or 0, which address many processes at once.
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil || !validPID(int(n)) {
		return 0, false, nil
	}
	return int(n), true, nil
}

// Write replaces the record with pid. Parent directories are created as needed.
// The content is written with a single short write and an immediate close.
func (s *RecordStore) Write(pid int) error {
	if !validPID(pid) {
		return fmt.Errorf("refusing to record invalid pid %d", pid)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return &sidekickerrors.IOError{Op: "create directory for", Path: s.path, Cause: err}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return &sidekickerrors.IOError{Op: "write", Path: s.path, Cause: err}
	}

	_, werr := f.WriteString(strconv.Itoa(pid) + "\n")
	cerr := f.Close()
	if werr != nil {
		return &sidekickerrors.IOError{Op: "write", Path: s.path, Cause: werr}
	}
	if cerr != nil {
		return &sidekickerrors.IOError{Op: "write", Path: s.path, Cause: cerr}
	}
	return nil
}

// Clear removes the record. A record that is already gone is not an error.
func (s *RecordStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !sidekickerrors.Is(err, fs.ErrNotExist) {
		return &sidekickerrors.IOError{Op: "remove", Path: s.path, Cause: err}
	}
	return nil
}
