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

package objstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	downloadErrors metric.Int64Counter
	downloadCount  metric.Int64Counter
	downloadBytes  metric.Int64Counter

	tracer = otel.Tracer("github.com/cardinalhq/lakeprep/internal/objstore")
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/lakeprep/internal/objstore")

	var err error
	downloadErrors, err = meter.Int64Counter(
		"lakeprep.objstore.download.errors",
		metric.WithDescription("Number of object download errors"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.errors counter: %w", err))
	}

	downloadCount, err = meter.Int64Counter(
		"lakeprep.objstore.download.count",
		metric.WithDescription("Number of objects downloaded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.count counter: %w", err))
	}

	downloadBytes, err = meter.Int64Counter(
		"lakeprep.objstore.download.bytes",
		metric.WithDescription("Bytes downloaded from object storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.bytes counter: %w", err))
	}
}

func recordDownloadError(ctx context.Context, bucket, reason string) {
	downloadErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("reason", reason),
	))
}

func recordDownload(ctx context.Context, bucket string, size int64) {
	attrs := metric.WithAttributes(attribute.String("bucket", bucket))
	downloadCount.Add(ctx, 1, attrs)
	downloadBytes.Add(ctx, size, attrs)
}
