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

package filereader

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	rowsInCounter     otelmetric.Int64Counter
	readErrorsCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/shardcsv/internal/filereader")

	var err error
	rowsInCounter, err = meter.Int64Counter(
		"shardcsv.source.rows.in",
		otelmetric.WithDescription("Number of records read by sources from their input"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create source.rows.in counter: %w", err))
	}

	readErrorsCounter, err = meter.Int64Counter(
		"shardcsv.source.read.errors",
		otelmetric.WithDescription("Number of times a source failed to produce the next record"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create source.read.errors counter: %w", err))
	}
}
