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

package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cardinalhq/lakeprep/internal/linesource"
	"github.com/cardinalhq/lakeprep/internal/runctx"
)

// UniformOptions describe a line sample that ignores record content.
type UniformOptions struct {
	Size   int
	Random bool
}

// UniformResult holds the sampled lines and how much input was consumed.
type UniformResult struct {
	Lines []string
	// LinesRead is the whole input in random mode, and only the prefix that
	// was needed in sequential mode.
	LinesRead int64
}

// Uniform samples Size lines from src. Random mode buffers the whole input
// and draws lines without replacement; sequential mode keeps the first Size
// lines and stops reading.
func Uniform(ctx context.Context, run *runctx.Run, src linesource.Reader, opts UniformOptions) (*UniformResult, error) {
	logger := run.Logger()
	logger.Info("Starting line sample", slog.Int("size", opts.Size), slog.Bool("random", opts.Random))

	result := &UniformResult{}
	var lines []string
	for opts.Random || len(lines) < opts.Size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		result.LinesRead++
		run.LineRead(ctx)
		lines = append(lines, line)
	}

	if opts.Random {
		result.Lines = pickRandom(lines, opts.Size, run.Rand())
	} else {
		result.Lines = lines
	}

	logger.Info("Line sample complete",
		slog.Int64("linesRead", result.LinesRead),
		slog.Int("sampledLines", len(result.Lines)))

	if len(result.Lines) < opts.Size {
		run.AddShortage(runctx.Shortage{
			Stage:     "sample",
			Requested: opts.Size,
			Produced:  len(result.Lines),
			Reason:    fmt.Sprintf("input has only %d lines", result.LinesRead),
		})
	}
	return result, nil
}
