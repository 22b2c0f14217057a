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
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/shardcsv/internal/logctx"
	"github.com/cardinalhq/shardcsv/internal/shard"
)

// DefaultConcurrency bounds in-flight uploads when none is configured.
const DefaultConcurrency = 4

// Uploaded records one object that was published.
type Uploaded struct {
	Key         string
	Destination string
	Bytes       int64
}

// Uploader publishes completed shard files in the background. Its Complete
// method is a shard.CompletionFunc; call Wait once processing has returned.
type Uploader struct {
	client      Client
	bucket      string
	prefix      string
	baseDir     string
	deleteLocal bool
	aborted     bool

	group *errgroup.Group

	mu       sync.Mutex
	errs     *multierror.Error
	uploaded []Uploaded
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithPrefix prepends prefix to every object key.
func WithPrefix(prefix string) UploaderOption {
	return func(u *Uploader) {
		u.prefix = strings.Trim(prefix, "/")
	}
}

// WithBaseDir makes object keys relative to dir rather than just the file name.
func WithBaseDir(dir string) UploaderOption {
	return func(u *Uploader) {
		u.baseDir = dir
	}
}

// WithDeleteLocal removes each local file after it has been uploaded.
func WithDeleteLocal() UploaderOption {
	return func(u *Uploader) {
		u.deleteLocal = true
	}
}

// WithUploadAborted also uploads files that were closed because processing
// failed. By default they are left on local disk.
func WithUploadAborted() UploaderOption {
	return func(u *Uploader) {
		u.aborted = true
	}
}

// WithConcurrency bounds the number of uploads in flight. Complete blocks
// once the limit is reached.
func WithConcurrency(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.group.SetLimit(n)
		}
	}
}

// NewUploader returns an Uploader writing to bucket through client.
func NewUploader(client Client, bucket string, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		client: client,
		bucket: bucket,
		group:  &errgroup.Group{},
	}
	u.group.SetLimit(DefaultConcurrency)
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ObjectKey maps a local destination to its object key.
func (u *Uploader) ObjectKey(destination string) string {
	rel := filepath.Base(destination)
	if u.baseDir != "" {
		if r, err := filepath.Rel(u.baseDir, destination); err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			rel = r
		}
	}
	return path.Join(u.prefix, filepath.ToSlash(rel))
}

// Complete schedules c's file for upload. Upload failures are reported by
// Wait, not here, so that one bad upload does not abort the split.
func (u *Uploader) Complete(ctx context.Context, c shard.Completion) error {
	logger := logctx.FromContext(ctx)
	if c.Aborted && !u.aborted {
		logger.Info("Leaving aborted shard file on local disk", slog.String("destination", c.Destination))
		return nil
	}

	key := u.ObjectKey(c.Destination)
	u.group.Go(func() error {
		if err := u.client.UploadObject(ctx, u.bucket, key, c.Destination); err != nil {
			u.fail(fmt.Errorf("upload %s: %w", c.Destination, err))
			return nil
		}
		logger.Debug("Uploaded shard file",
			slog.String("destination", c.Destination),
			slog.String("bucket", u.bucket),
			slog.String("key", key))

		if u.deleteLocal {
			if err := os.Remove(c.Destination); err != nil {
				u.fail(fmt.Errorf("remove uploaded file: %w", err))
			}
		}

		u.mu.Lock()
		u.uploaded = append(u.uploaded, Uploaded{Key: key, Destination: c.Destination, Bytes: c.Bytes})
		u.mu.Unlock()
		return nil
	})
	return nil
}

func (u *Uploader) fail(err error) {
	u.mu.Lock()
	u.errs = multierror.Append(u.errs, err)
	u.mu.Unlock()
}

// Wait blocks until every scheduled upload has finished and returns what was
// uploaded along with every failure.
func (u *Uploader) Wait() ([]Uploaded, error) {
	_ = u.group.Wait()

	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploaded, u.errs.ErrorOrNil()
}
