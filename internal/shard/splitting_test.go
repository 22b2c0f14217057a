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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplittingShouldSplit(t *testing.T) {
	tests := []struct {
		name      string
		splitting Splitting
		rows      int64
		bytes     int64
		want      bool
	}{
		{"no split ever", NoSplit(), 1_000_000, 1 << 40, false},
		{"rows below", SplitAfterRows(3), 2, 100, false},
		{"rows reached", SplitAfterRows(3), 3, 100, true},
		{"rows exceeded", SplitAfterRows(3), 4, 100, true},
		{"bytes below", SplitAfterBytes(10), 1, 9, false},
		{"bytes reached", SplitAfterBytes(10), 1, 10, true},
		{"oversized single record", SplitAfterBytes(10), 1, 500, true},
		{"empty file never splits", SplitAfterBytes(10), 0, 500, false},
		{"combined rows first", SplitAfterRowsOrBytes(2, 100), 2, 10, true},
		{"combined bytes first", SplitAfterRowsOrBytes(100, 10), 1, 12, true},
		{"combined neither", SplitAfterRowsOrBytes(100, 100), 5, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.splitting.ShouldSplit(tt.rows, tt.bytes))
		})
	}
}

func TestSplittingValidate(t *testing.T) {
	require.NoError(t, NoSplit().Validate())
	require.NoError(t, SplitAfterRowsOrBytes(1, 1).Validate())

	var cfgErr *ConfigError
	require.ErrorAs(t, SplitAfterRows(-1).Validate(), &cfgErr)
	assert.Equal(t, "Splitting.MaxRows", cfgErr.Field)
	require.ErrorAs(t, SplitAfterBytes(-5).Validate(), &cfgErr)
	assert.Equal(t, "Splitting.MaxBytes", cfgErr.Field)
}

func TestParseSplitting(t *testing.T) {
	s, err := ParseSplitting(0, "1MiB")
	require.NoError(t, err)
	assert.Equal(t, Splitting{MaxBytes: 1 << 20}, s)

	s, err = ParseSplitting(500, "")
	require.NoError(t, err)
	assert.Equal(t, SplitAfterRows(500), s)
	assert.True(t, s.Enabled())

	s, err = ParseSplitting(0, "0")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	s, err = ParseSplitting(10, "2kB")
	require.NoError(t, err)
	assert.Equal(t, SplitAfterRowsOrBytes(10, 2000), s)

	_, err = ParseSplitting(0, "lots")
	require.Error(t, err)

	_, err = ParseSplitting(-2, "")
	require.Error(t, err)
}

func TestSplittingString(t *testing.T) {
	assert.Equal(t, "no split", NoSplit().String())
	assert.Equal(t, "split after 5 rows", SplitAfterRows(5).String())
	assert.Equal(t, "split after 1.0 KiB", SplitAfterBytes(1024).String())
	assert.Equal(t, "split after 5 rows or 1.0 KiB", SplitAfterRowsOrBytes(5, 1024).String())
}
