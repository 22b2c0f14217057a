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

package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Gzip returns a factory that gzip-compresses into files created by inner.
// inner defaults to File() when nil.
func Gzip(level int, inner Factory) Factory {
	if inner == nil {
		inner = File()
	}
	return func(ctx context.Context, destination string) (io.WriteCloser, error) {
		base, err := inner(ctx, destination)
		if err != nil {
			return nil, err
		}
		gz, err := gzip.NewWriterLevel(base, level)
		if err != nil {
			_ = base.Close()
			return nil, fmt.Errorf("gzip writer for %s: %w", destination, err)
		}
		return &layeredWriter{top: gz, base: base}, nil
	}
}

// Zstd returns a factory that zstd-compresses into files created by inner.
// Encoders are pooled per level and returned when the stream is closed.
// inner defaults to File() when nil.
func Zstd(level zstd.EncoderLevel, inner Factory) Factory {
	if inner == nil {
		inner = File()
	}
	return func(ctx context.Context, destination string) (io.WriteCloser, error) {
		base, err := inner(ctx, destination)
		if err != nil {
			return nil, err
		}
		enc := encoders.get(level)
		enc.Reset(base)
		return &layeredWriter{
			top:  &pooledZstdWriter{enc: enc, level: level},
			base: base,
		}, nil
	}
}

// ByExtension picks plain, gzip or zstd output from the destination suffix
// (".gz", ".zst" or ".zstd"), using default compression levels.
func ByExtension(inner Factory) Factory {
	if inner == nil {
		inner = File()
	}
	gz := Gzip(gzip.DefaultCompression, inner)
	zs := Zstd(zstd.SpeedDefault, inner)
	return func(ctx context.Context, destination string) (io.WriteCloser, error) {
		switch {
		case strings.HasSuffix(destination, ".gz"):
			return gz(ctx, destination)
		case strings.HasSuffix(destination, ".zst"), strings.HasSuffix(destination, ".zstd"):
			return zs(ctx, destination)
		default:
			return inner(ctx, destination)
		}
	}
}

// ForCompression maps a configured compression name to a factory.
func ForCompression(name string, inner Factory) (Factory, error) {
	switch strings.ToLower(name) {
	case "", "none":
		if inner == nil {
			return File(), nil
		}
		return inner, nil
	case "gzip", "gz":
		return Gzip(gzip.DefaultCompression, inner), nil
	case "zstd", "zst":
		return Zstd(zstd.SpeedDefault, inner), nil
	case "auto":
		return ByExtension(inner), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", name)
	}
}

// Extension returns the conventional file suffix for a compression name.
func Extension(name string) string {
	switch strings.ToLower(name) {
	case "gzip", "gz":
		return ".gz"
	case "zstd", "zst":
		return ".zst"
	default:
		return ""
	}
}

// layeredWriter closes the encoder before the stream beneath it so that the
// trailer reaches the file.
type layeredWriter struct {
	top    io.WriteCloser
	base   io.WriteCloser
	closed bool
}

func (l *layeredWriter) Write(p []byte) (int, error) {
	return l.top.Write(p)
}

func (l *layeredWriter) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var errs *multierror.Error
	if err := l.top.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := l.base.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// encoderPool keeps zstd encoders per level. Creating an encoder allocates
// large history buffers, so they are reused across shard files.
type encoderPool struct {
	pools sync.Map // map[zstd.EncoderLevel]*sync.Pool
}

var encoders = &encoderPool{}

func (p *encoderPool) pool(level zstd.EncoderLevel) *sync.Pool {
	if pool, ok := p.pools.Load(level); ok {
		return pool.(*sync.Pool)
	}
	newPool := &sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil,
				zstd.WithZeroFrames(true),
				zstd.WithEncoderLevel(level),
			)
			return enc
		},
	}
	actual, _ := p.pools.LoadOrStore(level, newPool)
	return actual.(*sync.Pool)
}

func (p *encoderPool) get(level zstd.EncoderLevel) *zstd.Encoder {
	return p.pool(level).Get().(*zstd.Encoder)
}

func (p *encoderPool) put(level zstd.EncoderLevel, enc *zstd.Encoder) {
	p.pool(level).Put(enc)
}

// pooledZstdWriter returns its encoder to the pool on Close.
type pooledZstdWriter struct {
	enc   *zstd.Encoder
	level zstd.EncoderLevel
}

func (w *pooledZstdWriter) Write(p []byte) (int, error) {
	return w.enc.Write(p)
}

func (w *pooledZstdWriter) Close() error {
	err := w.enc.Close()
	w.enc.Reset(nil)
	encoders.put(w.level, w.enc)
	return err
}
