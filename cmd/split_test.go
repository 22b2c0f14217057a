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

package cmd

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/shardcsv/config"
	"github.com/cardinalhq/shardcsv/internal/filereader"
)

const peopleCSV = `name,city,language
john,boston,english
juan,madrid,spanish
jane,london,english
jean,paris,french
jill,denver,english
`

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readRows(t *testing.T, path string) (header []string, firsts []string) {
	t.Helper()
	r, err := filereader.OpenFile(path, filereader.DefaultCSVOptions())
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	for {
		rec, err := r.Next(context.Background())
		if err == io.EOF {
			return r.Header(), firsts
		}
		require.NoError(t, err)
		firsts = append(firsts, rec.Fields[0])
	}
}

func TestRunSplitFlatLayout(t *testing.T) {
	out := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Shard.Column = "language"
	cfg.Shard.SplitRows = 2
	cfg.Output.Dir = out

	res, err := runSplit(context.Background(), &cfg, []string{writeInput(t, "people.csv", peopleCSV)}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(5), res.Stats.Records)
	assert.Equal(t, 3, res.Stats.Shards)
	assert.Len(t, res.Files, 4)

	got, err := os.ReadFile(filepath.Join(out, "english-0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "name,city,language\njohn,boston,english\njane,london,english\n", string(got))

	got, err = os.ReadFile(filepath.Join(out, "english-1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "name,city,language\njill,denver,english\n", string(got))

	var total int64
	for _, f := range res.Files {
		total += f.Bytes
	}
	assert.Equal(t, total, res.Bytes)
}

func TestRunSplitBySizeWithHeader(t *testing.T) {
	out := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Shard.Column = "language"
	cfg.Shard.SplitSize = "40"
	cfg.Output.Dir = out

	res, err := runSplit(context.Background(), &cfg, []string{writeInput(t, "people.csv", peopleCSV)}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(out, "english-0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "name,city,language\njohn,boston,english\njane,london,english\n", string(got))

	got, err = os.ReadFile(filepath.Join(out, "english-1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "name,city,language\njill,denver,english\n", string(got))

	require.Len(t, res.Files, 4)
	for _, f := range res.Files {
		if f.Destination == filepath.Join(out, "english-0.csv") {
			assert.Equal(t, int64(len("name,city,language\njohn,boston,english\njane,london,english\n")), f.Bytes)
		}
	}
}

func TestRunSplitStdinHiveZstd(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(peopleCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Shard.Column = "2"
	cfg.Output.Dir = out
	cfg.Output.Layout = "hive"
	cfg.Output.Compression = "zstd"

	res, err := runSplit(context.Background(), &cfg, nil, &gz)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Stats.Records)

	header, names := readRows(t, filepath.Join(out, "language=english", "part-0000.csv.zst"))
	assert.Equal(t, []string{"name", "city", "language"}, header)
	assert.Equal(t, []string{"john", "jane", "jill"}, names)

	_, names = readRows(t, filepath.Join(out, "language=french", "part-0000.csv.zst"))
	assert.Equal(t, []string{"jean"}, names)
}

func TestRunSplitMultipleInputsTemplate(t *testing.T) {
	out := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Input.Delimiter = "|"
	cfg.Output.Delimiter = ","
	cfg.Shard.Column = "k"
	cfg.Output.Dir = out
	cfg.Output.Template = "by-key/{key}.{seq:2}.csv"

	a := writeInput(t, "a.psv", "k|v\nx|1\ny|2\n")
	b := writeInput(t, "b.psv", "k|v\nx|3\n")

	res, err := runSplit(context.Background(), &cfg, []string{a, b}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Stats.Records)

	got, err := os.ReadFile(filepath.Join(out, "by-key", "x.00.csv"))
	require.NoError(t, err)
	assert.Equal(t, "k,v\nx,1\nx,3\n", string(got))
}

func TestRunSplitHeaderMismatch(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Dir = t.TempDir()

	a := writeInput(t, "a.csv", "k,v\nx,1\n")
	b := writeInput(t, "b.csv", "other,v\nx,3\n")

	_, err := runSplit(context.Background(), &cfg, []string{a, b}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestRunSplitUploadsToFileTarget(t *testing.T) {
	out := t.TempDir()
	remote := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Shard.Column = "language"
	cfg.Output.Dir = out
	cfg.Upload.Target = "file://" + remote
	cfg.Upload.DeleteLocal = true

	res, err := runSplit(context.Background(), &cfg, []string{writeInput(t, "people.csv", peopleCSV)}, nil)
	require.NoError(t, err)
	require.Len(t, res.Uploaded, 3)

	var keys []string
	for _, u := range res.Uploaded {
		keys = append(keys, u.Key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"english-0.csv", "french-0.csv", "spanish-0.csv"}, keys)

	got, err := os.ReadFile(filepath.Join(remote, "spanish-0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "name,city,language\njuan,madrid,spanish\n", string(got))

	left, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRunSplitMissingInput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Dir = t.TempDir()

	_, err := runSplit(context.Background(), &cfg, []string{filepath.Join(t.TempDir(), "missing.csv")}, nil)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunSplitUnknownColumn(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Shard.Column = "country"
	cfg.Output.Dir = t.TempDir()

	_, err := runSplit(context.Background(), &cfg, []string{writeInput(t, "people.csv", peopleCSV)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "country")
}

func TestPartitionColumn(t *testing.T) {
	header := []string{"name", "city"}
	assert.Equal(t, "city", partitionColumn("1", header))
	assert.Equal(t, "region", partitionColumn("region", header))
	assert.Equal(t, "key", partitionColumn("7", header))
	assert.Equal(t, "key", partitionColumn("0", nil))
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(buf.String(), "shardcsv "), buf.String())
}

func TestWriteManifest(t *testing.T) {
	out := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Shard.Column = "language"
	cfg.Output.Dir = out

	res, err := runSplit(context.Background(), &cfg, []string{writeInput(t, "people.csv", peopleCSV)}, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, writeManifest(path, res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var m manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, int64(5), m.Records)
	assert.Equal(t, 3, m.Shards)
	require.Len(t, m.Files, 3)
	assert.Equal(t, "english", m.Files[0].Key)
	assert.Equal(t, filepath.Join(out, "english-0.csv"), m.Files[0].Path)
	assert.Equal(t, int64(3), m.Files[0].Rows)
	assert.Empty(t, m.Files[0].Object)
}
