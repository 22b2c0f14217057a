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
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/shardcsv/internal/awsclient"
)

// s3Client implements Client for S3 and S3-compatible stores.
type s3Client struct {
	awsS3Client *awsclient.S3Client
}

func (c *s3Client) UploadObject(ctx context.Context, bucket, key, sourceFilename string) error {
	file, err := os.Open(sourceFilename)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", sourceFilename, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	ctx, span := c.awsS3Client.Tracer.Start(ctx, "cloudstorage.uploadS3Object",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	uploader := manager.NewUploader(c.awsS3Client.Client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType(key)),
		Metadata: map[string]string{
			"writer": writerName,
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		uploadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
		return fmt.Errorf("failed to upload S3 object %s/%s: %w", bucket, key, err)
	}

	uploadCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	uploadBytes.Add(ctx, stat.Size(), metric.WithAttributes(attribute.String("bucket", bucket)))
	return nil
}

func (c *s3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	ctx, span := c.awsS3Client.Tracer.Start(ctx, "cloudstorage.deleteS3Object",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	_, err := c.awsS3Client.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete S3 object: %w", err)
	}
	return nil
}

// isNotFound reports whether err is S3's answer for a missing key. Some
// S3-compatible stores return it on delete where AWS returns success.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
