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

package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/shardcsv/internal/filereader"
)

var header = []string{"name", "city", "language"}

func rec(fields ...string) filereader.Record {
	return filereader.Record{Header: header, Fields: fields}
}

func TestColumn(t *testing.T) {
	sel := Column(2, "language_unknown")
	assert.Equal(t, "go", sel(rec("alice", "nyc", "go")))
	assert.Equal(t, "language_unknown", sel(rec("bob", "la")))
}

func TestNamed(t *testing.T) {
	sel, err := Named(header, "city", Unknown)
	require.NoError(t, err)
	assert.Equal(t, "nyc", sel(rec("alice", "nyc", "go")))

	_, err = Named(header, "zip", Unknown)
	require.Error(t, err)
}

func TestComposite(t *testing.T) {
	sel := Composite("/", "none", 1, 2)
	assert.Equal(t, "nyc/go", sel(rec("alice", "nyc", "go")))
	assert.Equal(t, "la/none", sel(rec("bob", "la")))
}

func TestHashBucketIsStableAndBounded(t *testing.T) {
	sel, err := HashBucket(0, 16)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		k := sel(rec(name))
		assert.Len(t, k, 2)
		assert.Equal(t, k, sel(rec(name)))
		seen[k] = true
	}
	assert.Greater(t, len(seen), 1)

	_, err = HashBucket(0, 0)
	require.Error(t, err)
}

func TestLowercase(t *testing.T) {
	sel := Lowercase(Column(0, Unknown))
	assert.Equal(t, "alice", sel(rec("ALICE")))
}

func TestSpecBuild(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		record  filereader.Record
		want    string
		wantErr bool
	}{
		{name: "by index", spec: Spec{Column: "1"}, record: rec("a", "nyc", "go"), want: "nyc"},
		{name: "by name", spec: Spec{Column: "language"}, record: rec("a", "nyc", "go"), want: "go"},
		{name: "default fallback", spec: Spec{Column: "2"}, record: rec("a"), want: Unknown},
		{name: "custom fallback", spec: Spec{Column: "2", Fallback: "none"}, record: rec("a"), want: "none"},
		{name: "lowercase", spec: Spec{Column: "0", Lowercase: true}, record: rec("ALICE"), want: "alice"},
		{name: "missing name", spec: Spec{Column: "zip"}, wantErr: true},
		{name: "negative index", spec: Spec{Column: "-1"}, wantErr: true},
		{name: "empty column", spec: Spec{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := tt.spec.Build(header)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel(tt.record))
		})
	}
}

func TestSpecBuildBuckets(t *testing.T) {
	sel, err := Spec{Column: "name", Buckets: 4}.Build(header)
	require.NoError(t, err)
	k := sel(rec("alice"))
	assert.Contains(t, []string{"0", "1", "2", "3"}, k)
}
