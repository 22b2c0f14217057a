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

// Package filereader provides forward-only sources of delimited-text records.
// Callers construct sources directly and hand them to a shard writer.
package filereader

import (
	"context"
)

// Record is a single row of input. Fields are positional; Header, when
// present, names them. Records are never mutated after they are read.
type Record struct {
	Header []string
	Fields []string
}

// Len returns the number of fields in the record.
func (r Record) Len() int {
	return len(r.Fields)
}

// Get returns the field at index i.
func (r Record) Get(i int) (string, bool) {
	if i < 0 || i >= len(r.Fields) {
		return "", false
	}
	return r.Fields[i], true
}

// Field returns the value of the column with the given header name.
// Records without a header never match.
func (r Record) Field(name string) (string, bool) {
	for i, h := range r.Header {
		if h == name {
			return r.Get(i)
		}
	}
	return "", false
}

// Source is a lazy, finite, single-pass sequence of records.
type Source interface {
	// Header returns the column names, or nil when the input has no header.
	// It is available before the first call to Next.
	Header() []string

	// Next returns the next record.
	// Returns io.EOF when there are no more records.
	// Returns error for any read failures.
	Next(ctx context.Context) (Record, error)
}
