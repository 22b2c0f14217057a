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
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	uploadCount  metric.Int64Counter
	uploadBytes  metric.Int64Counter
	uploadErrors metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/shardcsv/internal/cloudstorage")

	var err error
	uploadCount, err = meter.Int64Counter(
		"shardcsv.upload.count",
		metric.WithDescription("Number of shard files uploaded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.count counter: %w", err))
	}

	uploadBytes, err = meter.Int64Counter(
		"shardcsv.upload.bytes",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes uploaded to object storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.bytes counter: %w", err))
	}

	uploadErrors, err = meter.Int64Counter(
		"shardcsv.upload.errors",
		metric.WithDescription("Number of failed shard file uploads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.errors counter: %w", err))
	}
}

const writerName = "shardcsv"

// contentType picks the object content type from the file name.
func contentType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return "application/zstd"
	case filepath.Ext(lower) == ".tsv":
		return "text/tab-separated-values"
	default:
		return "text/csv"
	}
}
