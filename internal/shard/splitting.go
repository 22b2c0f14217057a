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

package shard

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Splitting decides when a shard's current file is closed and a new one
// started. A zero threshold is disabled; when both are set a file is split
// as soon as either is reached.
type Splitting struct {
	MaxRows  int64
	MaxBytes int64
}

// NoSplit keeps one file per shard for the life of the writer.
func NoSplit() Splitting {
	return Splitting{}
}

// SplitAfterRows starts a new file once the current one holds n rows.
func SplitAfterRows(n int64) Splitting {
	return Splitting{MaxRows: n}
}

// SplitAfterBytes starts a new file once at least n bytes have been written
// to the current one.
func SplitAfterBytes(n int64) Splitting {
	return Splitting{MaxBytes: n}
}

// SplitAfterRowsOrBytes splits on whichever threshold is reached first.
func SplitAfterRowsOrBytes(rows, bytes int64) Splitting {
	return Splitting{MaxRows: rows, MaxBytes: bytes}
}

// Enabled reports whether any threshold is set.
func (s Splitting) Enabled() bool {
	return s.MaxRows > 0 || s.MaxBytes > 0
}

// ShouldSplit is evaluated before the pending record is written, against the
// counters of the file that is currently open. A file that holds no rows is
// never split, so a record larger than MaxBytes still lands whole in one file
// and the next record moves on.
func (s Splitting) ShouldSplit(rows, bytes int64) bool {
	if rows == 0 {
		return false
	}
	if s.MaxRows > 0 && rows >= s.MaxRows {
		return true
	}
	if s.MaxBytes > 0 && bytes >= s.MaxBytes {
		return true
	}
	return false
}

// Validate rejects negative thresholds.
func (s Splitting) Validate() error {
	if s.MaxRows < 0 {
		return &ConfigError{Field: "Splitting.MaxRows", Message: "cannot be negative"}
	}
	if s.MaxBytes < 0 {
		return &ConfigError{Field: "Splitting.MaxBytes", Message: "cannot be negative"}
	}
	return nil
}

func (s Splitting) String() string {
	switch {
	case s.MaxRows > 0 && s.MaxBytes > 0:
		return fmt.Sprintf("split after %d rows or %s", s.MaxRows, humanize.IBytes(uint64(s.MaxBytes)))
	case s.MaxRows > 0:
		return fmt.Sprintf("split after %d rows", s.MaxRows)
	case s.MaxBytes > 0:
		return fmt.Sprintf("split after %s", humanize.IBytes(uint64(s.MaxBytes)))
	default:
		return "no split"
	}
}

// ParseSplitting builds a Splitting from a row count and a human readable
// byte size such as "64MiB" or "1.5GB". An empty size disables byte splitting.
func ParseSplitting(rows int64, size string) (Splitting, error) {
	s := Splitting{MaxRows: rows}
	if size = strings.TrimSpace(size); size != "" && size != "0" {
		n, err := humanize.ParseBytes(size)
		if err != nil {
			return Splitting{}, fmt.Errorf("parse split size %q: %w", size, err)
		}
		s.MaxBytes = int64(n)
	}
	if err := s.Validate(); err != nil {
		return Splitting{}, err
	}
	return s, nil
}
