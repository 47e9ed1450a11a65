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

package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	sidekicklog "github.com/tombee/sidekick/internal/log"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// followPollInterval re-checks the file when no events arrive, covering
// filesystems where fsnotify is silent.
const followPollInterval = time.Second

// NewLogsCommand creates the logs command.
func NewLogsCommand() *cobra.Command {
	var (
		follow bool
		lines  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the service output log",
		Long: `Print the end of the service log (management.log_file), which holds
everything the service wrote to stdout and stderr.

With --follow, keep printing new output until interrupted. Truncation and
re-creation of the file are handled.`,
		Example: `  # Last 50 lines
  sidekick logs

  # Follow output while starting in another terminal
  sidekick logs -f -n 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			path := e.cfg.Lifecycle().LogFile
			return runLogs(cmd.Context(), e.logger, path, e.out, logsOptions{
				follow: follow,
				lines:  lines,
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show from the end (0 for none)")

	return cmd
}

type logsOptions struct {
	follow bool
	lines  int
}

func runLogs(ctx context.Context, logger *slog.Logger, path string, out io.Writer, opts logsOptions) error {
	if opts.lines < 0 {
		return flagError("lines", "must not be negative", "Pass -n 0 to show no history")
	}

	f, err := os.Open(path)
	if err != nil {
		if sidekickerrors.Is(err, os.ErrNotExist) && opts.follow {
			return followFile(ctx, logger, path, 0, out)
		}
		if sidekickerrors.Is(err, os.ErrNotExist) {
			return &sidekickerrors.NotFoundError{Resource: "service log", ID: path}
		}
		return &sidekickerrors.IOError{Op: "open", Path: path, Cause: err}
	}
	defer f.Close()

	tail, size, err := lastLines(f, opts.lines)
	if err != nil {
		return &sidekickerrors.IOError{Op: "read", Path: path, Cause: err}
	}
	if _, err := out.Write(tail); err != nil {
		return err
	}

	if !opts.follow {
		return nil
	}
	return followFile(ctx, logger, path, size, out)
}

// lastLines returns the last n lines of f and the file size it read up to.
func lastLines(f *os.File, n int) ([]byte, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	size := info.Size()
	if n <= 0 || size == 0 {
		return nil, size, nil
	}

	const chunk = 4096
	var buf []byte
	offset := size

	for offset > 0 {
		readSize := int64(chunk)
		if offset < readSize {
			readSize = offset
		}
		offset -= readSize

		part := make([]byte, readSize)
		if _, err := f.ReadAt(part, offset); err != nil && err != io.EOF {
			return nil, 0, err
		}
		buf = append(part, buf...)

		// A trailing newline terminates the last line rather than starting a new one.
		if bytes.Count(bytes.TrimSuffix(buf, []byte("\n")), []byte("\n")) >= n {
			break
		}
	}

	trimmed := bytes.TrimSuffix(buf, []byte("\n"))
	for i := 0; i < n; i++ {
		idx := bytes.LastIndexByte(trimmed, '\n')
		if idx < 0 {
			return buf, size, nil
		}
		if i == n-1 {
			return buf[idx+1:], size, nil
		}
		trimmed = trimmed[:idx]
	}
	return buf, size, nil
}

// followFile copies data appended to path after offset until ctx is done.
func followFile(ctx context.Context, logger *slog.Logger, path string, offset int64, out io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sidekickerrors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	// Watch the directory so re-creation of the file is seen.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return sidekickerrors.Wrapf(err, "failed to watch %s", dir)
	}
	logger.Debug("following service log", sidekicklog.String("path", path))

	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		offset, err = copyFrom(path, offset, out)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				offset = 0
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", sidekicklog.Error(err))
		case <-ticker.C:
		}
	}
}

// copyFrom writes path's bytes past offset to out and returns the new offset.
// A file shorter than offset was truncated and is read from the start.
func copyFrom(path string, offset int64, out io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if sidekickerrors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, &sidekickerrors.IOError{Op: "open", Path: path, Cause: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return offset, &sidekickerrors.IOError{Op: "stat", Path: path, Cause: err}
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, &sidekickerrors.IOError{Op: "seek", Path: path, Cause: err}
	}
	n, err := io.Copy(out, f)
	offset += n
	if err != nil {
		return offset, err
	}
	return offset, nil
}
