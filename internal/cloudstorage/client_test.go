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
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		raw     string
		want    Target
		wantErr bool
	}{
		{raw: "s3://bucket/some/prefix/", want: Target{Provider: ProviderS3, Bucket: "bucket", Prefix: "some/prefix"}},
		{raw: "s3://bucket", want: Target{Provider: ProviderS3, Bucket: "bucket"}},
		{raw: "gs://bucket/p", want: Target{Provider: ProviderGCS, Bucket: "bucket", Prefix: "p"}},
		{raw: "azblob://container/x", want: Target{Provider: ProviderAzure, Bucket: "container", Prefix: "x"}},
		{raw: "file:///tmp/out", want: Target{Provider: ProviderFile, Prefix: "/tmp/out"}},
		{raw: "s3:///prefix", wantErr: true},
		{raw: "file://", wantErr: true},
		{raw: "ftp://host/x", wantErr: true},
		{raw: "::", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClientFile(t *testing.T) {
	c, err := NewClient(context.Background(), Target{Provider: ProviderFile, Prefix: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &fileClient{}, c)

	_, err = NewClient(context.Background(), Target{Provider: "ftp"})
	assert.Error(t, err)
}

func TestS3Options(t *testing.T) {
	assert.Empty(t, s3Options(Target{Provider: ProviderS3}))
	assert.Len(t, s3Options(Target{Provider: ProviderS3, Region: "us-east-2", Endpoint: "http://minio:9000", PathStyle: true}), 3)
	// endpoint and interop settings
	assert.Len(t, s3Options(Target{Provider: ProviderGCS}), 2)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("a/b.csv"))
	assert.Equal(t, "application/gzip", contentType("a/b.csv.gz"))
	assert.Equal(t, "application/zstd", contentType("a/b.CSV.ZST"))
	assert.Equal(t, "text/tab-separated-values", contentType("b.tsv"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "NotFound"})))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("plain")))
}
