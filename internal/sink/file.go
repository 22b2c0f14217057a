// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package sink provides output stream factories for shard files: plain
// buffered files and gzip or zstd compressed files layered on top of them.
package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

// DefaultBufferSize is the write buffer placed in front of every file.
const DefaultBufferSize = 64 * 1024

// Factory opens a writable stream for a destination path.
type Factory func(ctx context.Context, destination string) (io.WriteCloser, error)

type fileConfig struct {
	bufferSize int
	dirMode    os.FileMode
	fileMode   os.FileMode
	sync       bool
}

// FileOption configures File.
type FileOption func(*fileConfig)

// WithBufferSize sets the write buffer size.
func WithBufferSize(n int) FileOption {
	return func(c *fileConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithFileMode sets the permissions of created files.
func WithFileMode(mode os.FileMode) FileOption {
	return func(c *fileConfig) {
		c.fileMode = mode
	}
}

// WithSync fsyncs each file before it is closed.
func WithSync() FileOption {
	return func(c *fileConfig) {
		c.sync = true
	}
}

// File returns a factory that creates (or truncates) a local file, creating
// parent directories as needed. The stream is buffered; Close flushes the
// buffer and then closes the file.
func File(opts ...FileOption) Factory {
	cfg := fileConfig{
		bufferSize: DefaultBufferSize,
		dirMode:    0o755,
		fileMode:   0o644,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(_ context.Context, destination string) (io.WriteCloser, error) {
		if dir := filepath.Dir(destination); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, cfg.dirMode); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, cfg.fileMode)
		if err != nil {
			return nil, fmt.Errorf("create file %s: %w", destination, err)
		}
		return &bufferedFile{
			w:    bufio.NewWriterSize(f, cfg.bufferSize),
			f:    f,
			sync: cfg.sync,
		}, nil
	}
}

type bufferedFile struct {
	w      *bufio.Writer
	f      *os.File
	sync   bool
	closed bool
}

func (b *bufferedFile) Write(p []byte) (int, error) {
	return b.w.Write(p)
}

func (b *bufferedFile) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var errs *multierror.Error
	if err := b.w.Flush(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("flush %s: %w", b.f.Name(), err))
	}
	if b.sync {
		if err := b.f.Sync(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("sync %s: %w", b.f.Name(), err))
		}
	}
	if err := b.f.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close %s: %w", b.f.Name(), err))
	}
	return errs.ErrorOrNil()
}
