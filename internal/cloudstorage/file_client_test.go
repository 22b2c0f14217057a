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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileClientLifecycle(t *testing.T) {
	base := t.TempDir()
	client := NewFileClient(base)

	src := filepath.Join(t.TempDir(), "src.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,1\n"), 0o644))

	require.NoError(t, client.UploadObject(context.Background(), "bucket", "path/file.csv", src))

	data, err := os.ReadFile(filepath.Join(base, "bucket", "path", "file.csv"))
	require.NoError(t, err)
	require.Equal(t, "a,1\n", string(data))

	require.NoError(t, client.DeleteObject(context.Background(), "bucket", "path/file.csv"))
	_, err = os.Stat(filepath.Join(base, "bucket", "path", "file.csv"))
	require.True(t, os.IsNotExist(err))

	// deleting again is fine
	require.NoError(t, client.DeleteObject(context.Background(), "bucket", "path/file.csv"))
}

func TestFileClientMissingSource(t *testing.T) {
	client := NewFileClient(t.TempDir())
	err := client.UploadObject(context.Background(), "bucket", "k", filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
