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
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// CSVOptions controls how delimited input is parsed.
type CSVOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// Comment, if non-zero, marks lines to be skipped.
	Comment rune

	// HasHeader reads the first row as column names instead of a record.
	HasHeader bool

	LazyQuotes       bool
	TrimLeadingSpace bool

	// FieldsPerRecord follows encoding/csv: 0 locks the count to the first
	// row, a positive value requires exactly that many, negative allows any.
	FieldsPerRecord int
}

// DefaultCSVOptions returns comma-delimited input with a header row and
// variable field counts.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Comma:           ',',
		HasHeader:       true,
		FieldsPerRecord: -1,
	}
}

// CSVReader reads records from a delimited-text stream.
type CSVReader struct {
	reader    *csv.Reader
	header    []string
	closer    io.Closer
	exhausted bool
	closed    bool
	totalRows int64
}

var _ Source = (*CSVReader)(nil)

// NewCSVReader creates a CSVReader over r. When opts.HasHeader is set the
// header row is consumed here; an input with no rows at all yields a reader
// with a nil header that is immediately exhausted.
// If r implements io.Closer, the reader takes ownership of it and will close
// it when Close is called.
func NewCSVReader(r io.Reader, opts CSVOptions) (*CSVReader, error) {
	csvReader := csv.NewReader(r)
	if opts.Comma != 0 {
		csvReader.Comma = opts.Comma
	}
	csvReader.Comment = opts.Comment
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace
	csvReader.FieldsPerRecord = opts.FieldsPerRecord

	cr := &CSVReader{reader: csvReader}
	if c, ok := r.(io.Closer); ok {
		cr.closer = c
	}

	if opts.HasHeader {
		header, err := csvReader.Read()
		switch {
		case errors.Is(err, io.EOF):
			cr.exhausted = true
		case err != nil:
			_ = cr.Close()
			return nil, fmt.Errorf("failed to read CSV header: %w", err)
		default:
			cr.header = header
		}
	}

	return cr, nil
}

// Header returns the header row, or nil when there is none.
func (r *CSVReader) Header() []string {
	return r.header
}

// Next returns the next record, or io.EOF once the input is exhausted.
func (r *CSVReader) Next(ctx context.Context) (Record, error) {
	if r.closed || r.exhausted {
		return Record{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	fields, err := r.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.exhausted = true
			return Record{}, io.EOF
		}
		readErrorsCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("reader", "CSVReader"),
		))
		return Record{}, fmt.Errorf("CSV read error after record %d: %w", r.totalRows, err)
	}

	r.totalRows++
	rowsInCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("reader", "CSVReader"),
	))

	return Record{Header: r.header, Fields: fields}, nil
}

// TotalRowsReturned returns the number of records successfully returned by Next.
func (r *CSVReader) TotalRowsReturned() int64 {
	return r.totalRows
}

// Close releases the underlying input if the reader owns it.
func (r *CSVReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.closer != nil {
		err = r.closer.Close()
		r.closer = nil
	}
	return err
}
