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

// Package cloudstorage publishes finished shard files to object storage.
package cloudstorage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cardinalhq/shardcsv/internal/awsclient"
	"github.com/cardinalhq/shardcsv/internal/azureclient"
)

// Client uploads local files to a bucket (or container) and removes them.
type Client interface {
	// UploadObject uploads a local file to bucket/key.
	UploadObject(ctx context.Context, bucket, key, sourceFilename string) error

	// DeleteObject deletes bucket/key. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Provider names accepted in Target.Provider.
const (
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderAzure = "azure"
	ProviderFile  = "file"
)

// Target describes where finished files go.
type Target struct {
	Provider string
	Bucket   string
	Prefix   string

	// S3 and GCS settings.
	Region      string
	Endpoint    string
	Role        string
	PathStyle   bool
	InsecureTLS bool

	// Azure settings. Endpoint, when set, overrides the account endpoint.
	StorageAccount string
}

// ParseTarget reads a destination URL of the form
//
//	s3://bucket/prefix
//	gs://bucket/prefix
//	azblob://container/prefix
//	file:///base/dir
//
// For file URLs the path is the base directory and Bucket is empty.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid upload target %q: %w", raw, err)
	}

	prefix := strings.Trim(u.Path, "/")
	switch u.Scheme {
	case "s3":
		return bucketTarget(ProviderS3, raw, u.Host, prefix)
	case "gs", "gcs":
		return bucketTarget(ProviderGCS, raw, u.Host, prefix)
	case "azblob", "azure":
		return bucketTarget(ProviderAzure, raw, u.Host, prefix)
	case "file":
		if u.Path == "" {
			return Target{}, fmt.Errorf("upload target %q has no path", raw)
		}
		return Target{Provider: ProviderFile, Prefix: u.Path}, nil
	default:
		return Target{}, fmt.Errorf("unsupported upload scheme %q", u.Scheme)
	}
}

func bucketTarget(provider, raw, bucket, prefix string) (Target, error) {
	if bucket == "" {
		return Target{}, fmt.Errorf("upload target %q has no bucket", raw)
	}
	return Target{Provider: provider, Bucket: bucket, Prefix: prefix}, nil
}

// NewClient builds a Client for target. GCS is reached through its S3
// interoperability endpoint. File targets write under target.Prefix.
func NewClient(ctx context.Context, target Target) (Client, error) {
	switch target.Provider {
	case ProviderS3, ProviderGCS, "":
		mgr, err := awsclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS manager: %w", err)
		}
		s3c, err := mgr.GetS3(ctx, s3Options(target)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return &s3Client{awsS3Client: s3c}, nil
	case ProviderAzure:
		mgr, err := azureclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure manager: %w", err)
		}
		var opts []azureclient.BlobOption
		if target.StorageAccount != "" {
			opts = append(opts, azureclient.WithBlobStorageAccount(target.StorageAccount))
		}
		if target.Endpoint != "" {
			opts = append(opts, azureclient.WithBlobEndpoint(target.Endpoint))
		}
		blobClient, err := mgr.GetBlob(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		return &azureClient{blobClient: blobClient}, nil
	case ProviderFile:
		return NewFileClient(target.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported cloud provider: %s", target.Provider)
	}
}

func s3Options(target Target) []awsclient.S3Option {
	var opts []awsclient.S3Option
	if target.Role != "" {
		opts = append(opts, awsclient.WithRole(target.Role))
	}
	if target.Region != "" {
		opts = append(opts, awsclient.WithRegion(target.Region))
	}
	endpoint := target.Endpoint
	if endpoint == "" && target.Provider == ProviderGCS {
		endpoint = "https://storage.googleapis.com"
	}
	if endpoint != "" {
		opts = append(opts, awsclient.WithEndpoint(endpoint))
	}
	if target.PathStyle {
		opts = append(opts, awsclient.WithPathStyle())
	}
	if target.InsecureTLS {
		opts = append(opts, awsclient.WithInsecureTLS())
	}
	if target.Provider == ProviderGCS {
		opts = append(opts, awsclient.WithGCSInterop())
	}
	return opts
}
