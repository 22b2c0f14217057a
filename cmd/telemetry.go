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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	"github.com/oklog/ulid/v2"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/cardinalhq/shardcsv/internal/helpers"
)

// setupTelemetry configures the default logger and, when OTLP export is
// enabled, the OpenTelemetry SDK. The returned context is cancelled on
// SIGINT or SIGTERM and carries the run's logger. The returned function
// flushes telemetry and must be called before exit.
func setupTelemetry(servicename string) (context.Context, func() error, error) {
	runID := ulid.Make().String()

	doneCtx, doneCancel := handleSignals(context.Background())

	f := func() error {
		doneCancel()
		return nil
	}

	var opts *slog.HandlerOptions
	if helpers.EnvEnabled(false, "SHARDCSV_DEBUG", "DEBUG") {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	// Logs go to stderr so that stdout stays free for piping.
	if os.Getenv("OTEL_SERVICE_NAME") != "" && helpers.EnvEnabled(false, "ENABLE_OTLP_TELEMETRY") {
		slog.SetDefault(slog.New(slogmulti.Fanout(
			slog.NewTextHandler(os.Stderr, opts),
			otelslog.NewHandler(servicename),
		)).With(
			slog.String("service", servicename),
			slog.String("runID", runID),
		))
		slog.Info("OpenTelemetry exporting enabled")

		otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
		if err != nil {
			return doneCtx, f, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
		}

		if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
			slog.Warn("failed to start runtime metrics", "error", err.Error())
		}

		if err := host.Start(); err != nil {
			slog.Warn("failed to start host metrics", "error", err.Error())
		}

		f = func() error {
			defer doneCancel()
			slog.Debug("Shutting down OpenTelemetry SDK")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return otelShutdown(ctx)
		}
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)).With(
			slog.String("service", servicename),
			slog.String("runID", runID),
		))
	}

	return doneCtx, f, nil
}
