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
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/shardcsv/internal/azureclient"
)

// azureClient implements Client for Azure Blob Storage. The bucket is the
// container name.
type azureClient struct {
	blobClient *azureclient.BlobClient
}

func (c *azureClient) UploadObject(ctx context.Context, bucket, key, sourceFilename string) error {
	ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azureUploadObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	file, err := os.Open(sourceFilename)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", sourceFilename, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	_, err = c.blobClient.Client.UploadStream(ctx, bucket, key, file, &azblob.UploadStreamOptions{
		Metadata: map[string]*string{
			"writer": to.Ptr(writerName),
		},
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType(key)),
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		uploadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
		return fmt.Errorf("failed to upload blob %s/%s: %w", bucket, key, err)
	}

	uploadCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	uploadBytes.Add(ctx, stat.Size(), metric.WithAttributes(attribute.String("bucket", bucket)))
	return nil
}

func (c *azureClient) DeleteObject(ctx context.Context, bucket, key string) error {
	ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azureDeleteObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	_, err := c.blobClient.Client.DeleteBlob(ctx, bucket, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to delete blob %s/%s: %w", bucket, key, err)
	}
	return nil
}
