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
	"io"
)

// SliceReader serves records that are already in memory.
type SliceReader struct {
	header []string
	rows   [][]string
	pos    int
}

var _ Source = (*SliceReader)(nil)

// NewSliceReader returns a source over rows. header may be nil.
func NewSliceReader(header []string, rows [][]string) *SliceReader {
	return &SliceReader{header: header, rows: rows}
}

func (s *SliceReader) Header() []string {
	return s.header
}

func (s *SliceReader) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.pos >= len(s.rows) {
		return Record{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return Record{Header: s.header, Fields: row}, nil
}
