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

// Package shard routes delimited-text records into per-key output files,
// rolling each key's file over when a row or byte threshold is reached and
// reporting every finished file exactly once.
//
// A Writer is single threaded. To shard independent inputs in parallel, give
// each its own Writer with a naming scheme that keeps their outputs apart.
package shard

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/shardcsv/internal/filereader"
	"github.com/cardinalhq/shardcsv/internal/logctx"
	"github.com/cardinalhq/shardcsv/internal/sink"
)

// Stats summarizes what a writer has done so far.
type Stats struct {
	Records        int64
	Shards         int
	FilesOpened    int64
	FilesCompleted int64
}

// Writer is the shard router. Build one with NewWriter, feed it records with
// Write or Process, and call Close (Process does this) to flush every shard.
type Writer struct {
	keySelector KeySelector
	naming      NamingFunc
	splitting   Splitting
	factory     StreamFactory
	onComplete  CompletionFunc

	header       []string
	headerData   []byte
	sourceHeader bool
	comma        rune
	useCRLF      bool

	registry *Registry
	buf      bytes.Buffer
	enc      *csv.Writer

	stats  Stats
	closed bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithHeader writes header as the first row of every output file.
func WithHeader(header []string) Option {
	return func(w *Writer) {
		w.header = slices.Clone(header)
	}
}

// WithSourceHeader copies the header of the first source processed into
// every output file. Later sources must carry the same header.
func WithSourceHeader() Option {
	return func(w *Writer) {
		w.sourceHeader = true
	}
}

// WithDelimiter sets the output field delimiter; the default is ','.
// ProcessReader and ProcessFile parse their input with the same delimiter.
func WithDelimiter(comma rune) Option {
	return func(w *Writer) {
		w.comma = comma
	}
}

// WithCRLF terminates output rows with \r\n.
func WithCRLF() Option {
	return func(w *Writer) {
		w.useCRLF = true
	}
}

// WithSplitting sets when shard files roll over. The default is NoSplit.
func WithSplitting(s Splitting) Option {
	return func(w *Writer) {
		w.splitting = s
	}
}

// WithStreamFactory replaces the default buffered file sink.
func WithStreamFactory(f StreamFactory) Option {
	return func(w *Writer) {
		w.factory = f
	}
}

// WithCompletion sets the hook invoked once per finished file.
func WithCompletion(fn CompletionFunc) Option {
	return func(w *Writer) {
		w.onComplete = fn
	}
}

// NewWriter assembles a writer. The configuration is fixed from here on.
func NewWriter(keySelector KeySelector, naming NamingFunc, opts ...Option) (*Writer, error) {
	w := &Writer{
		keySelector: keySelector,
		naming:      naming,
		comma:       ',',
		factory:     sink.File(),
		onComplete:  NopCompletion,
		registry:    NewRegistry(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.keySelector == nil {
		return nil, &ConfigError{Field: "KeySelector", Message: "is required"}
	}
	if w.naming == nil {
		return nil, &ConfigError{Field: "Naming", Message: "is required"}
	}
	if w.factory == nil {
		return nil, &ConfigError{Field: "StreamFactory", Message: "cannot be nil"}
	}
	if w.onComplete == nil {
		w.onComplete = NopCompletion
	}
	if err := w.splitting.Validate(); err != nil {
		return nil, err
	}

	w.enc = csv.NewWriter(&w.buf)
	w.enc.Comma = w.comma
	w.enc.UseCRLF = w.useCRLF
	if _, err := w.encode([]string{"x"}); err != nil {
		return nil, &ConfigError{Field: "Delimiter", Message: err.Error()}
	}
	if w.header != nil {
		if err := w.setHeader(w.header); err != nil {
			return nil, &ConfigError{Field: "Header", Message: err.Error()}
		}
	}

	return w, nil
}

// Write routes one record to its shard, splitting first if the shard's
// current file has reached a threshold.
func (w *Writer) Write(ctx context.Context, rec filereader.Record) error {
	if w.closed {
		return ErrWriterClosed
	}

	key := w.keySelector(rec)
	state := w.registry.GetOrCreate(key)

	data, err := w.encode(rec.Fields)
	if err != nil {
		return &ProcessingError{Kind: KindWrite, Key: key, Destination: state.destination, Err: err}
	}

	switch {
	case !state.IsOpen():
		if err := w.openNext(ctx, state); err != nil {
			return err
		}
	case w.splitting.ShouldSplit(state.Rows, state.Bytes):
		c, ok, err := w.registry.CloseCurrent(key)
		if err != nil {
			if ok {
				if nerr := w.complete(ctx, c); nerr != nil {
					return multierror.Append(err, nerr)
				}
			}
			return err
		}
		if ok {
			if err := w.complete(ctx, c); err != nil {
				return err
			}
		}
		splitsCounter.Add(ctx, 1)
		state.Sequence++
		if err := w.openNext(ctx, state); err != nil {
			return err
		}
	}

	n, err := state.stream.Write(data)
	state.Bytes += int64(n)
	bytesWrittenCounter.Add(ctx, int64(n))
	if err != nil {
		return &ProcessingError{Kind: KindWrite, Key: key, Destination: state.destination, Err: err}
	}
	state.Rows++
	w.stats.Records++
	rowsWrittenCounter.Add(ctx, 1)

	return nil
}

// Consume writes every record from src without closing the writer, so that
// several inputs with the same layout can share one set of shard files.
// It returns the number of records written.
func (w *Writer) Consume(ctx context.Context, src filereader.Source) (int64, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	if err := w.adoptHeader(src.Header()); err != nil {
		return 0, err
	}

	var n int64
	for {
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, &ProcessingError{Kind: KindSourceRead, Err: err}
		}
		if err := w.Write(ctx, rec); err != nil {
			return n, err
		}
		n++
	}
}

// Process consumes src to exhaustion and then closes the writer. If anything
// fails, every open file is still closed and reported (with Aborted set)
// before the error is returned.
func (w *Writer) Process(ctx context.Context, src filereader.Source) (int64, error) {
	return w.ProcessAll(ctx, src)
}

// ProcessAll consumes each source in turn and then closes the writer.
func (w *Writer) ProcessAll(ctx context.Context, sources ...filereader.Source) (int64, error) {
	var total int64
	for _, src := range sources {
		n, err := w.Consume(ctx, src)
		total += n
		if err != nil {
			return total, w.abort(ctx, err)
		}
	}
	return total, w.Close(ctx)
}

// ProcessReader parses r with the writer's delimiter, treating the first row
// as a header when the writer has one configured, and processes it.
func (w *Writer) ProcessReader(ctx context.Context, r io.Reader) (int64, error) {
	src, err := filereader.NewCSVReader(r, w.sourceOptions())
	if err != nil {
		return 0, w.abort(ctx, &ProcessingError{Kind: KindSourceRead, Err: err})
	}
	return w.Process(ctx, src)
}

// ProcessFile opens path (gzip and zstd input is detected) and processes it.
func (w *Writer) ProcessFile(ctx context.Context, path string) (int64, error) {
	src, err := filereader.OpenFile(path, w.sourceOptions())
	if err != nil {
		return 0, w.abort(ctx, &ProcessingError{Kind: KindSourceRead, Err: err})
	}
	defer func() { _ = src.Close() }()
	return w.Process(ctx, src)
}

// Close closes every open shard file and reports each one. It is safe to
// call more than once.
func (w *Writer) Close(ctx context.Context) error {
	return w.closeAll(ctx, false)
}

// HasSeenShardKey reports whether any record has been routed to key.
func (w *Writer) HasSeenShardKey(key string) bool {
	return w.registry.Has(key)
}

// ShardKeys returns the keys seen so far, sorted.
func (w *Writer) ShardKeys() []string {
	return w.registry.Keys()
}

// Stats returns counters for the writer's lifetime.
func (w *Writer) Stats() Stats {
	s := w.stats
	s.Shards = w.registry.Len()
	return s
}

func (w *Writer) sourceOptions() filereader.CSVOptions {
	opts := filereader.DefaultCSVOptions()
	opts.Comma = w.comma
	opts.HasHeader = w.header != nil || w.sourceHeader
	return opts
}

func (w *Writer) adoptHeader(header []string) error {
	if !w.sourceHeader || header == nil {
		return nil
	}
	if w.header == nil {
		return w.setHeader(header)
	}
	if !slices.Equal(w.header, header) {
		return fmt.Errorf("%w: have %v, got %v", ErrHeaderMismatch, w.header, header)
	}
	return nil
}

// setHeader encodes the header once. The record buffer is reused for every
// row, so the header bytes must not alias it.
func (w *Writer) setHeader(header []string) error {
	data, err := w.encode(header)
	if err != nil {
		return err
	}
	w.header = slices.Clone(header)
	w.headerData = bytes.Clone(data)
	return nil
}

// encode returns a view of the shared buffer, valid until the next call.
func (w *Writer) encode(fields []string) ([]byte, error) {
	w.buf.Reset()
	if err := w.enc.Write(fields); err != nil {
		return nil, err
	}
	w.enc.Flush()
	if err := w.enc.Error(); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// openNext opens the file for state's current sequence number and writes the
// header into it.
func (w *Writer) openNext(ctx context.Context, state *State) error {
	destination := w.naming(state.Key, state.Sequence)

	stream, err := w.factory(ctx, destination)
	if err != nil {
		return &ProcessingError{Kind: KindStreamOpen, Key: state.Key, Destination: destination, Err: err}
	}
	state.attach(destination, stream)
	w.stats.FilesOpened++
	filesOpenedCounter.Add(ctx, 1)

	logctx.FromContext(ctx).Debug("Opened shard file",
		slog.String("shard", state.Key),
		slog.Int("sequence", state.Sequence),
		slog.String("destination", destination))

	if w.headerData == nil {
		return nil
	}
	n, err := stream.Write(w.headerData)
	state.Bytes += int64(n)
	bytesWrittenCounter.Add(ctx, int64(n))
	if err != nil {
		return &ProcessingError{Kind: KindWrite, Key: state.Key, Destination: destination, Err: err}
	}
	return nil
}

func (w *Writer) complete(ctx context.Context, c Completion) error {
	w.stats.FilesCompleted++
	filesCompletedCounter.Add(ctx, 1)

	logctx.FromContext(ctx).Debug("Shard file complete",
		slog.String("shard", c.Key),
		slog.Int("sequence", c.Sequence),
		slog.String("destination", c.Destination),
		slog.Int64("rows", c.Rows),
		slog.Int64("bytes", c.Bytes),
		slog.Bool("aborted", c.Aborted))

	return w.onComplete(ctx, c)
}

// closeAll is the final flush. Every completion is delivered even if an
// earlier one fails; a single failure is returned as is.
func (w *Writer) closeAll(ctx context.Context, aborted bool) error {
	if w.closed {
		return nil
	}
	w.closed = true

	done, closeErr := w.registry.CloseAll()

	var errs []error
	if closeErr != nil {
		errs = append(errs, closeErr)
	}
	for _, c := range done {
		c.Aborted = c.Aborted || aborted
		if err := w.complete(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return multierror.Append(nil, errs...)
	}
}

// abort closes everything after cause and returns cause, with any close or
// completion failures appended.
func (w *Writer) abort(ctx context.Context, cause error) error {
	logctx.FromContext(ctx).Warn("Aborting shard processing", slog.Any("error", cause))

	if err := w.closeAll(ctx, true); err != nil {
		return multierror.Append(cause, err)
	}
	return cause
}
