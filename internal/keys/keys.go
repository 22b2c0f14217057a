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

// Package keys provides ready-made key selectors for the shard writer.
package keys

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cardinalhq/shardcsv/internal/filereader"
)

// Unknown is returned by selectors when the record lacks the field.
const Unknown = "unknown"

// Selector maps a record to a shard key.
type Selector = func(rec filereader.Record) string

// Column keys on the field at index i, returning fallback when the record is
// too short.
func Column(i int, fallback string) Selector {
	return func(rec filereader.Record) string {
		if v, ok := rec.Get(i); ok {
			return v
		}
		return fallback
	}
}

// Named keys on the column called name in header. It fails when the header
// does not contain name.
func Named(header []string, name, fallback string) (Selector, error) {
	i := slices.Index(header, name)
	if i < 0 {
		return nil, fmt.Errorf("column %q not found in header %v", name, header)
	}
	return Column(i, fallback), nil
}

// Composite joins several columns with sep. Missing fields use fallback.
func Composite(sep, fallback string, idx ...int) Selector {
	return func(rec filereader.Record) string {
		parts := make([]string, len(idx))
		for n, i := range idx {
			v, ok := rec.Get(i)
			if !ok {
				v = fallback
			}
			parts[n] = v
		}
		return strings.Join(parts, sep)
	}
}

// HashBucket spreads the values of column i across n shards named "0" to
// "n-1" using xxhash, for inputs whose natural key has too many values to
// give each its own file. Records missing the column go to bucket 0.
func HashBucket(i, n int) (Selector, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bucket count must be positive, got %d", n)
	}
	width := len(strconv.Itoa(n - 1))
	return func(rec filereader.Record) string {
		v, _ := rec.Get(i)
		b := xxhash.Sum64String(v) % uint64(n)
		return fmt.Sprintf("%0*d", width, b)
	}, nil
}

// Lowercase normalizes the key produced by sel.
func Lowercase(sel Selector) Selector {
	return func(rec filereader.Record) string {
		return strings.ToLower(sel(rec))
	}
}

// Spec describes a selector in configuration terms: a column given either by
// zero-based index or by header name, optionally hashed into buckets.
type Spec struct {
	Column    string
	Fallback  string
	Buckets   int
	Lowercase bool
}

// Build resolves spec against header. A Column that parses as an integer is
// an index; anything else is looked up by name.
func (s Spec) Build(header []string) (Selector, error) {
	if s.Column == "" {
		return nil, fmt.Errorf("key column is required")
	}
	fallback := s.Fallback
	if fallback == "" {
		fallback = Unknown
	}

	idx, err := strconv.Atoi(s.Column)
	if err != nil {
		idx = slices.Index(header, s.Column)
		if idx < 0 {
			return nil, fmt.Errorf("column %q not found in header %v", s.Column, header)
		}
	} else if idx < 0 {
		return nil, fmt.Errorf("column index %d cannot be negative", idx)
	}

	var sel Selector
	if s.Buckets > 0 {
		if sel, err = HashBucket(idx, s.Buckets); err != nil {
			return nil, err
		}
	} else {
		sel = Column(idx, fallback)
	}
	if s.Lowercase {
		sel = Lowercase(sel)
	}
	return sel, nil
}
