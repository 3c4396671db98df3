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

// Package runctx holds the per-invocation state shared by every pipeline
// stage: the logger, the single seeded random generator, line counters and
// the shortages reported along the way. A Run is built once per command and
// discarded when the command returns.
package runctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cardinalhq/lakeprep/internal/idgen"
	"github.com/cardinalhq/lakeprep/internal/linesource"
	"github.com/cardinalhq/lakeprep/internal/record"
)

// pcgIncrement is the fixed second word of the PCG state; only the seed
// varies between runs.
const pcgIncrement = 0x9e3779b97f4a7c15

// Stats are the counters every run keeps.
type Stats struct {
	LinesRead      int64
	LinesSkipped   int64
	KeysMissing    int64
	RecordsEmitted int64
}

// Shortage records that a stage produced fewer records than requested.
type Shortage struct {
	Stage     string
	Requested int
	Produced  int
	Reason    string
}

func (s Shortage) String() string {
	return fmt.Sprintf("%s: produced %d of %d requested (%s)", s.Stage, s.Produced, s.Requested, s.Reason)
}

// Options configure a new Run.
type Options struct {
	Operation string
	// Random enables random selection. Seed only seeds the generator; a nil
	// Seed with Random set draws a fresh seed, which is logged so the run can
	// be repeated.
	Random bool
	Seed   *int64
	Logger *slog.Logger
	Clock  func() time.Time
}

type Run struct {
	ID        string
	Operation string
	Random    bool
	Seed      int64
	StartedAt time.Time

	logger    *slog.Logger
	rng       *rand.Rand
	clock     func() time.Time
	attrs     attribute.Set
	stats     Stats
	shortages []Shortage
	logFiles  []*os.File
}

// New builds the run state. The random generator is created here and only
// here; every random choice in the run must go through Rand.
func New(opts Options) *Run {
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := clock()
	r := &Run{
		ID:        idgen.NewRunID(started),
		Operation: opts.Operation,
		Random:    opts.Random,
		StartedAt: started,
		clock:     clock,
	}

	seedSource := "config"
	if opts.Seed != nil {
		r.Seed = *opts.Seed
	} else {
		r.Seed = rand.Int64()
		seedSource = "generated"
	}
	r.rng = rand.New(rand.NewPCG(uint64(r.Seed), pcgIncrement))

	r.attrs = attribute.NewSet(attribute.String("operation", opts.Operation))
	r.logger = logger.With(
		slog.String("run_id", r.ID),
		slog.String("operation", opts.Operation),
	)
	if r.Random {
		r.logger.Info("Random selection enabled", slog.Int64("seed", r.Seed), slog.String("seedSource", seedSource))
	}
	return r
}

func (r *Run) Logger() *slog.Logger {
	return r.logger
}

// Rand returns the run's only random generator.
func (r *Run) Rand() *rand.Rand {
	return r.rng
}

// Now returns the run clock's current time.
func (r *Run) Now() time.Time {
	return r.clock()
}

// AddLogFile copies every subsequent log record of this run into path.
func (r *Run) AddLogFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log %s: %w", path, err)
	}
	r.logFiles = append(r.logFiles, f)
	r.logger = slog.New(slogmulti.Fanout(
		r.logger.Handler(),
		slog.NewTextHandler(f, nil).WithAttrs([]slog.Attr{
			slog.String("run_id", r.ID),
			slog.String("operation", r.Operation),
		}),
	))
	return nil
}

// LineRead counts one input line.
func (r *Run) LineRead(ctx context.Context) {
	r.stats.LinesRead++
	addCounter(ctx, linesReadCounter, 1, r.metricAttrs())
}

// LineSkipped counts and logs a line that failed to decode.
func (r *Run) LineSkipped(ctx context.Context, pos linesource.Position, err error) {
	r.stats.LinesSkipped++
	addCounter(ctx, linesSkippedCounter, 1, r.metricAttrs())
	r.logger.Warn("Skipping undecodable line",
		slog.String("position", pos.String()),
		slog.String("stage", record.DecodeStage(err)),
		slog.Any("error", err))
}

// KeyMissing counts a decoded record lacking the key field.
func (r *Run) KeyMissing(ctx context.Context, pos linesource.Position, field string) {
	r.stats.KeysMissing++
	addCounter(ctx, keysMissingCounter, 1, r.metricAttrs())
	r.logger.Debug("Record has no key field",
		slog.String("position", pos.String()),
		slog.String("field", field))
}

// RecordsEmitted counts records handed to an output.
func (r *Run) RecordsEmitted(ctx context.Context, n int) {
	r.stats.RecordsEmitted += int64(n)
	addCounter(ctx, recordsEmittedCounter, int64(n), r.metricAttrs())
}

// AddShortage records and logs a shortage.
func (r *Run) AddShortage(s Shortage) {
	r.shortages = append(r.shortages, s)
	r.logger.Warn("Produced fewer records than requested",
		slog.String("stage", s.Stage),
		slog.Int("requested", s.Requested),
		slog.Int("produced", s.Produced),
		slog.String("reason", s.Reason))
}

func (r *Run) Stats() Stats {
	return r.stats
}

func (r *Run) Shortages() []Shortage {
	return r.shortages
}

// Close logs the run summary and releases run log files.
func (r *Run) Close() error {
	r.logger.Info("Run finished",
		slog.Duration("elapsed", r.clock().Sub(r.StartedAt)),
		slog.Int64("linesRead", r.stats.LinesRead),
		slog.Int64("linesSkipped", r.stats.LinesSkipped),
		slog.Int64("keysMissing", r.stats.KeysMissing),
		slog.Int64("recordsEmitted", r.stats.RecordsEmitted),
		slog.Int("shortages", len(r.shortages)))

	var errs []error
	for _, f := range r.logFiles {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.logFiles = nil
	return errors.Join(errs...)
}

type contextKey struct{}

var runKey = contextKey{}

// WithRun stores run in ctx.
func WithRun(ctx context.Context, run *Run) context.Context {
	return context.WithValue(ctx, runKey, run)
}

// FromContext returns the run stored in ctx, or nil.
func FromContext(ctx context.Context) *Run {
	if run, ok := ctx.Value(runKey).(*Run); ok {
		return run
	}
	return nil
}
