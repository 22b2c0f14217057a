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

package shard

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	filesOpenedCounter    otelmetric.Int64Counter
	filesCompletedCounter otelmetric.Int64Counter
	splitsCounter         otelmetric.Int64Counter
	rowsWrittenCounter    otelmetric.Int64Counter
	bytesWrittenCounter   otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/shardcsv/internal/shard")

	var err error
	filesOpenedCounter, err = meter.Int64Counter(
		"shardcsv.files.opened",
		otelmetric.WithDescription("Number of shard output files opened"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create files.opened counter: %w", err))
	}

	filesCompletedCounter, err = meter.Int64Counter(
		"shardcsv.files.completed",
		otelmetric.WithDescription("Number of shard output files closed and reported"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create files.completed counter: %w", err))
	}

	splitsCounter, err = meter.Int64Counter(
		"shardcsv.splits",
		otelmetric.WithDescription("Number of times a shard rolled over to a new file"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create splits counter: %w", err))
	}

	rowsWrittenCounter, err = meter.Int64Counter(
		"shardcsv.rows.written",
		otelmetric.WithDescription("Number of records written to shard files"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.written counter: %w", err))
	}

	bytesWrittenCounter, err = meter.Int64Counter(
		"shardcsv.bytes.written",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Number of bytes written to shard files, headers included"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create bytes.written counter: %w", err))
	}
}
