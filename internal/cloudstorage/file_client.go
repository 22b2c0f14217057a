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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// fileClient stores objects as files under base/bucket/key. It backs file://
// targets, such as a mounted network share, and tests.
type fileClient struct {
	base string
}

// NewFileClient returns a Client rooted at base.
func NewFileClient(base string) Client {
	return &fileClient{base: base}
}

func (c *fileClient) path(bucket, key string) string {
	return filepath.Join(c.base, bucket, filepath.FromSlash(key))
}

// UploadObject copies a local file into the bucket/key location.
func (c *fileClient) UploadObject(ctx context.Context, bucket, key, sourceFilename string) error {
	dst := c.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	src, err := os.Open(sourceFilename)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", sourceFilename, err)
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		uploadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
		return fmt.Errorf("copy %s to %s: %w", sourceFilename, dst, err)
	}

	uploadCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	uploadBytes.Add(ctx, n, metric.WithAttributes(attribute.String("bucket", bucket)))
	return nil
}

// DeleteObject removes the file at bucket/key if it exists.
func (c *fileClient) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := os.Remove(c.path(bucket, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
