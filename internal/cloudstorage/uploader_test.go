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

package cloudstorage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/shardcsv/internal/filereader"
	"github.com/cardinalhq/shardcsv/internal/naming"
	"github.com/cardinalhq/shardcsv/internal/shard"
)

type failingClient struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *failingClient) UploadObject(_ context.Context, _, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return f.err
}

func (f *failingClient) DeleteObject(context.Context, string, string) error {
	return nil
}

func TestUploaderObjectKey(t *testing.T) {
	u := NewUploader(NewFileClient(t.TempDir()), "b", WithPrefix("/runs/1/"), WithBaseDir("/data/out"))
	assert.Equal(t, "runs/1/lang=en/part-0000.csv", u.ObjectKey("/data/out/lang=en/part-0000.csv"))
	assert.Equal(t, "runs/1/x.csv", u.ObjectKey("/elsewhere/x.csv"))

	bare := NewUploader(NewFileClient(t.TempDir()), "b")
	assert.Equal(t, "x.csv", bare.ObjectKey("/data/out/x.csv"))
}

func TestUploaderPublishesShardFiles(t *testing.T) {
	outDir := t.TempDir()
	remote := t.TempDir()

	u := NewUploader(NewFileClient(remote), "bucket",
		WithPrefix("runs"),
		WithBaseDir(outDir),
		WithDeleteLocal(),
		WithConcurrency(2))

	w, err := shard.NewWriter(
		func(r filereader.Record) string { v, _ := r.Get(0); return v },
		naming.Default(outDir, ".csv"),
		shard.WithSplitting(shard.SplitAfterRows(1)),
		shard.WithCompletion(u.Complete))
	require.NoError(t, err)

	_, err = w.Process(context.Background(), filereader.NewSliceReader(nil, [][]string{{"a"}, {"b"}, {"a"}}))
	require.NoError(t, err)

	uploaded, err := u.Wait()
	require.NoError(t, err)
	require.Len(t, uploaded, 3)

	var keys []string
	for _, up := range uploaded {
		keys = append(keys, up.Key)
		_, statErr := os.Stat(up.Destination)
		assert.True(t, os.IsNotExist(statErr), "local file %s should be removed", up.Destination)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"runs/a-0.csv", "runs/a-1.csv", "runs/b-0.csv"}, keys)

	data, err := os.ReadFile(filepath.Join(remote, "bucket", "runs", "a-1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(data))
}

func TestUploaderCollectsFailures(t *testing.T) {
	boom := errors.New("boom")
	client := &failingClient{err: boom}
	u := NewUploader(client, "bucket")

	ctx := context.Background()
	require.NoError(t, u.Complete(ctx, shard.Completion{Destination: "/x/a-0.csv"}))
	require.NoError(t, u.Complete(ctx, shard.Completion{Destination: "/x/b-0.csv"}))

	uploaded, err := u.Wait()
	assert.Empty(t, uploaded)
	require.ErrorIs(t, err, boom)
	assert.Len(t, client.calls, 2)
}

func TestUploaderSkipsAbortedFiles(t *testing.T) {
	client := &failingClient{}
	u := NewUploader(client, "bucket")
	require.NoError(t, u.Complete(context.Background(), shard.Completion{Destination: "/x/a-0.csv", Aborted: true}))
	_, err := u.Wait()
	require.NoError(t, err)
	assert.Empty(t, client.calls)

	withAborted := NewUploader(client, "bucket", WithUploadAborted())
	require.NoError(t, withAborted.Complete(context.Background(), shard.Completion{Destination: "/x/a-0.csv", Aborted: true}))
	_, err = withAborted.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0.csv"}, client.calls)
}
