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

package runctx

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	linesReadCounter      metric.Int64Counter
	linesSkippedCounter   metric.Int64Counter
	keysMissingCounter    metric.Int64Counter
	recordsEmittedCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/lakeprep/internal/runctx")

	var err error
	linesReadCounter, err = meter.Int64Counter(
		"lakeprep.lines.read",
		metric.WithDescription("Number of input lines read"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.read counter: %w", err))
	}

	linesSkippedCounter, err = meter.Int64Counter(
		"lakeprep.lines.skipped",
		metric.WithDescription("Number of input lines skipped because they could not be decoded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.skipped counter: %w", err))
	}

	keysMissingCounter, err = meter.Int64Counter(
		"lakeprep.keys.missing",
		metric.WithDescription("Number of decoded records without the key field"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create keys.missing counter: %w", err))
	}

	recordsEmittedCounter, err = meter.Int64Counter(
		"lakeprep.records.emitted",
		metric.WithDescription("Number of records written to outputs"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.emitted counter: %w", err))
	}
}

func (r *Run) metricAttrs() metric.MeasurementOption {
	return metric.WithAttributeSet(r.attrs)
}

func addCounter(ctx context.Context, c metric.Int64Counter, n int64, opt metric.MeasurementOption) {
	if n == 0 {
		return
	}
	c.Add(ctx, n, opt)
}
