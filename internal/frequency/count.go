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

package frequency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cardinalhq/lakeprep/internal/linesource"
	"github.com/cardinalhq/lakeprep/internal/record"
	"github.com/cardinalhq/lakeprep/internal/runctx"
)

// Count streams every line of src through schema and counts the extracted
// keys. Undecodable lines and records without the key are counted on the
// run and skipped; only read errors and cancellation stop the pass.
//
// Each input file is counted on its own and merged into the result when the
// source moves on, so per-file totals can be logged.
func Count(ctx context.Context, run *runctx.Run, src linesource.Reader, schema record.Schema) (*Accumulator, error) {
	acc := NewAccumulator()
	logger := run.Logger()
	logger.Info("Counting keys", slog.String("schema", schema.Name), slog.String("field", schema.Field))

	part := NewAccumulator()
	file := ""
	flush := func() {
		if file != "" {
			logger.Info("Counted input file",
				slog.String("file", file),
				slog.Int("distinctKeys", part.Len()),
				slog.Int64("records", part.Total()))
		}
		acc.Merge(part)
		part = NewAccumulator()
	}

	for {
		if err := ctx.Err(); err != nil {
			flush()
			return acc, err
		}
		line, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			flush()
			return acc, fmt.Errorf("read input: %w", err)
		}
		run.LineRead(ctx)

		if pos := src.Position(); pos.File != file {
			flush()
			file = pos.File
		}

		key, _, err := schema.Key(line)
		if err != nil {
			run.LineSkipped(ctx, src.Position(), err)
			continue
		}
		if !key.Present() {
			run.KeyMissing(ctx, src.Position(), schema.Field)
			continue
		}
		part.Observe(key)
	}
	flush()

	stats := run.Stats()
	logger.Info("Counting complete",
		slog.Int("distinctKeys", acc.Len()),
		slog.Int64("totalRecords", acc.Total()),
		slog.Int64("linesRead", stats.LinesRead),
		slog.Int64("linesSkipped", stats.LinesSkipped),
		slog.Any("countsPerKey", acc.Distribution()))
	return acc, nil
}
