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

package filereader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression identifies how an input stream is encoded.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// DetectCompression peeks at the start of br without consuming it.
func DetectCompression(br *bufio.Reader) (Compression, error) {
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return CompressionNone, err
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd, nil
	default:
		return CompressionNone, nil
	}
}

// multiCloser closes the decoder before the file underneath it.
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var errs *multierror.Error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

type zstdCloser struct {
	dec *zstd.Decoder
}

func (z zstdCloser) Close() error {
	z.dec.Close()
	return nil
}

// NewDecompressingReader wraps rc so that gzip or zstd input is decoded
// transparently. Closing the result closes rc.
func NewDecompressingReader(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	kind, err := DetectCompression(br)
	if err != nil {
		return nil, fmt.Errorf("detect compression: %w", err)
	}

	switch kind {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return &multiCloser{Reader: gz, closers: []io.Closer{gz, rc}}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return &multiCloser{Reader: dec, closers: []io.Closer{zstdCloser{dec}, rc}}, nil
	default:
		return &multiCloser{Reader: br, closers: []io.Closer{rc}}, nil
	}
}

// OpenFile opens a local delimited-text file, decompressing it if needed.
// The returned reader owns the file and closes it on Close.
func OpenFile(path string, opts CSVOptions) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}

	rc, err := NewDecompressingReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("input %s: %w", path, err)
	}

	r, err := NewCSVReader(rc, opts)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", path, err)
	}
	return r, nil
}
