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

// Package split partitions a line dataset into test, train and held-out
// user files. The engine is a one-way state machine:
//
//	New -> Loaded -> Shuffled -> Split -> HeldOutCarved -> Written -> Done
//
// Each stage runs exactly once and in order.
package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/lakeprep/internal/linesource"
	"github.com/cardinalhq/lakeprep/internal/record"
	"github.com/cardinalhq/lakeprep/internal/resultwriter"
	"github.com/cardinalhq/lakeprep/internal/runctx"
	"github.com/cardinalhq/lakeprep/internal/sampler"
)

type State int

const (
	StateNew State = iota
	StateLoaded
	StateShuffled
	StateSplit
	StateHeldOutCarved
	StateWritten
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLoaded:
		return "loaded"
	case StateShuffled:
		return "shuffled"
	case StateSplit:
		return "split"
	case StateHeldOutCarved:
		return "held_out_carved"
	case StateWritten:
		return "written"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidState is returned when a stage is invoked out of order.
var ErrInvalidState = errors.New("split stage invoked out of order")

// HeldOutMode selects how the held-out user partition is carved from test.
type HeldOutMode string

const (
	// HeldOutPrefix takes the first UserSampleSize test lines.
	HeldOutPrefix HeldOutMode = "prefix"
	// HeldOutPerUser takes one test line for each of the first
	// UserSampleSize users.
	HeldOutPerUser HeldOutMode = "per_user"
)

type Options struct {
	TestSize       int
	UserSampleSize int
	Random         bool
	HeldOut        HeldOutMode
}

// Partition holds the three outputs. UserTest is always drawn from Test.
type Partition struct {
	Test     []string
	Train    []string
	UserTest []string
}

type Result struct {
	TotalLines int
	Partition  Partition
	Written    []resultwriter.Written
}

type Engine struct {
	run   *runctx.Run
	opts  Options
	state State
	lines []string
	part  Partition
	out   []resultwriter.Written
}

func NewEngine(run *runctx.Run, opts Options) *Engine {
	if opts.HeldOut == "" {
		opts.HeldOut = HeldOutPrefix
	}
	return &Engine{run: run, opts: opts}
}

func (e *Engine) State() State {
	return e.state
}

func (e *Engine) advance(from, to State) error {
	if e.state != from {
		return fmt.Errorf("%w: want %s, engine is %s", ErrInvalidState, from, e.state)
	}
	e.state = to
	return nil
}

// Load reads every line of src into memory. Lines are not decoded.
func (e *Engine) Load(ctx context.Context, src linesource.Reader) error {
	if e.state != StateNew {
		return fmt.Errorf("%w: want %s, engine is %s", ErrInvalidState, StateNew, e.state)
	}
	logger := e.run.Logger()
	logger.Info("Reading input")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		e.run.LineRead(ctx)
		e.lines = append(e.lines, line)
	}
	logger.Info("Input loaded", slog.Int("lines", len(e.lines)))
	return e.advance(StateNew, StateLoaded)
}

// Shuffle permutes all lines with the run generator when random mode is on.
// Cutting a shuffled sequence at TestSize is a sample without replacement.
func (e *Engine) Shuffle() error {
	if err := e.advance(StateLoaded, StateShuffled); err != nil {
		return err
	}
	if !e.opts.Random {
		return nil
	}
	e.run.Logger().Info("Shuffling lines", slog.Int64("seed", e.run.Seed))
	e.run.Rand().Shuffle(len(e.lines), func(i, j int) {
		e.lines[i], e.lines[j] = e.lines[j], e.lines[i]
	})
	return nil
}

// Split cuts the sequence at TestSize.
func (e *Engine) Split() error {
	if err := e.advance(StateShuffled, StateSplit); err != nil {
		return err
	}
	cut := min(max(e.opts.TestSize, 0), len(e.lines))
	e.part.Test = e.lines[:cut:cut]
	e.part.Train = e.lines[cut:]
	e.run.Logger().Info("Split lines", slog.Int("testSize", e.opts.TestSize), slog.Int("test", len(e.part.Test)), slog.Int("train", len(e.part.Train)))
	if e.opts.TestSize > len(e.lines) {
		e.run.AddShortage(runctx.Shortage{
			Stage:     "test",
			Requested: e.opts.TestSize,
			Produced:  len(e.part.Test),
			Reason:    "test size exceeds input; train partition is empty",
		})
	}
	return nil
}

// CarveHeldOut selects the held-out user partition from the test lines.
func (e *Engine) CarveHeldOut(ctx context.Context) error {
	if e.state != StateSplit {
		return fmt.Errorf("%w: want %s, engine is %s", ErrInvalidState, StateSplit, e.state)
	}
	n := max(e.opts.UserSampleSize, 0)

	switch e.opts.HeldOut {
	case HeldOutPrefix:
		e.part.UserTest = e.part.Test[:min(n, len(e.part.Test))]
		if n > len(e.part.Test) {
			e.run.AddShortage(runctx.Shortage{
				Stage:     "user_test",
				Requested: n,
				Produced:  len(e.part.UserTest),
				Reason:    "user sample size exceeds test partition",
			})
		}
	case HeldOutPerUser:
		if n == 0 {
			e.part.UserTest = nil
			break
		}
		res, err := sampler.Stratified(ctx, e.run, linesource.FromLines(e.part.Test), sampler.StratifiedOptions{
			Schema:     record.UserIDs,
			MaxKeys:    n,
			MaxRecords: n,
			Random:     e.opts.Random,
			Stage:      "user_test",
		})
		if err != nil {
			return fmt.Errorf("select held-out users: %w", err)
		}
		e.part.UserTest = res.Lines()
	default:
		return fmt.Errorf("unknown held-out mode %q", e.opts.HeldOut)
	}

	e.run.Logger().Info("Carved held-out user partition", slog.String("mode", string(e.opts.HeldOut)), slog.Int("lines", len(e.part.UserTest)))
	return e.advance(StateSplit, StateHeldOutCarved)
}

// Write writes every partition even if an earlier one failed. Files
// already written are left in place; the returned error lists each failed
// partition.
func (e *Engine) Write(names Names) error {
	if err := e.advance(StateHeldOutCarved, StateWritten); err != nil {
		return err
	}
	logger := e.run.Logger()
	targets := []struct {
		name  string
		path  string
		lines []string
	}{
		{"test", names.Test, e.part.Test},
		{"train", names.Train, e.part.Train},
		{"user_test", names.UserTest, e.part.UserTest},
	}

	var errs *multierror.Error
	for _, target := range targets {
		logger.Info("Writing partition", slog.String("partition", target.name), slog.String("path", target.path))
		w, err := resultwriter.WriteLines(target.path, target.lines)
		if err != nil {
			logger.Error("Failed to write partition", slog.String("partition", target.name), slog.Any("error", err))
			errs = multierror.Append(errs, fmt.Errorf("%s partition: %w", target.name, err))
			continue
		}
		e.run.RecordsEmitted(context.Background(), w.Rows)
		e.out = append(e.out, w)
		logger.Info("Partition written",
			slog.String("partition", target.name),
			slog.String("path", w.Path),
			slog.Int("lines", w.Rows),
			slog.String("xxhash", w.DigestString()))
	}
	return errs.ErrorOrNil()
}

// Finish closes the state machine and reports the outcome.
func (e *Engine) Finish() (*Result, error) {
	if err := e.advance(StateWritten, StateDone); err != nil {
		return nil, err
	}
	res := &Result{
		TotalLines: len(e.lines),
		Partition:  e.part,
		Written:    e.out,
	}
	e.run.Logger().Info("Split complete",
		slog.Int("totalLines", res.TotalLines),
		slog.Int("test", len(e.part.Test)),
		slog.Int("train", len(e.part.Train)),
		slog.Int("userTest", len(e.part.UserTest)))
	return res, nil
}

// Run drives the engine through every stage. A write failure still
// finishes the run so the caller gets the partitions that were written.
func Run(ctx context.Context, run *runctx.Run, src linesource.Reader, opts Options, names Names) (*Result, error) {
	e := NewEngine(run, opts)
	if err := e.Load(ctx, src); err != nil {
		return nil, err
	}
	if err := e.Shuffle(); err != nil {
		return nil, err
	}
	if err := e.Split(); err != nil {
		return nil, err
	}
	if err := e.CarveHeldOut(ctx); err != nil {
		return nil, err
	}
	writeErr := e.Write(names)
	res, err := e.Finish()
	if err != nil {
		return nil, err
	}
	return res, writeErr
}
