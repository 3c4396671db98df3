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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/lakeprep/internal/linesource"
	"github.com/cardinalhq/lakeprep/internal/record"
)

func seed(v int64) *int64 { return &v }

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSeededRunsDrawTheSameSequence(t *testing.T) {
	a := New(Options{Operation: "test", Seed: seed(42)})
	b := New(Options{Operation: "test", Seed: seed(42)})
	c := New(Options{Operation: "test", Seed: seed(43)})

	var sa, sb, sc []int
	for range 20 {
		sa = append(sa, a.Rand().IntN(1000))
		sb = append(sb, b.Rand().IntN(1000))
		sc = append(sc, c.Rand().IntN(1000))
	}
	assert.Equal(t, sa, sb)
	assert.NotEqual(t, sa, sc)
	assert.Equal(t, int64(42), a.Seed)
}

func TestSeedDoesNotEnableRandom(t *testing.T) {
	var buf bytes.Buffer
	r := New(Options{Operation: "test", Seed: seed(42), Logger: testLogger(&buf)})
	assert.False(t, r.Random)
	assert.Equal(t, int64(42), r.Seed)
	assert.NotContains(t, buf.String(), "Random selection enabled")

	r = New(Options{Operation: "test", Random: true, Seed: seed(42), Logger: testLogger(&buf)})
	assert.True(t, r.Random)
	assert.Contains(t, buf.String(), "seedSource=config")
}

func TestRandomWithoutSeedLogsGeneratedSeed(t *testing.T) {
	var buf bytes.Buffer
	r := New(Options{Operation: "test", Random: true, Logger: testLogger(&buf)})
	assert.True(t, r.Random)
	assert.Contains(t, buf.String(), "seedSource=generated")
	assert.NotEmpty(t, r.ID)
}

func TestNotRandomByDefault(t *testing.T) {
	r := New(Options{Operation: "test"})
	assert.False(t, r.Random)
}

func TestCountersAndShortages(t *testing.T) {
	var buf bytes.Buffer
	r := New(Options{Operation: "count", Logger: testLogger(&buf)})
	ctx := context.Background()
	pos := linesource.Position{File: "in.jsonl", Line: 3}

	r.LineRead(ctx)
	r.LineRead(ctx)
	r.LineSkipped(ctx, pos, &record.DecodeError{Stage: record.StageOuterJSON, Err: errors.New("bad")})
	r.KeyMissing(ctx, pos, "npc_id")
	r.RecordsEmitted(ctx, 5)
	r.AddShortage(Shortage{Stage: "sample", Requested: 5, Produced: 2, Reason: "too few keys"})

	assert.Equal(t, Stats{LinesRead: 2, LinesSkipped: 1, KeysMissing: 1, RecordsEmitted: 5}, r.Stats())
	require.Len(t, r.Shortages(), 1)
	assert.Equal(t, "sample: produced 2 of 5 requested (too few keys)", r.Shortages()[0].String())

	out := buf.String()
	assert.Contains(t, out, "position=in.jsonl:3")
	assert.Contains(t, out, "stage=outer_json")
	assert.Contains(t, out, "requested=5")
	assert.Contains(t, out, "operation=count")
}

func TestAddLogFile(t *testing.T) {
	var buf bytes.Buffer
	r := New(Options{Operation: "split", Logger: testLogger(&buf)})
	logPath := filepath.Join(t.TempDir(), "nested", "run.log")

	require.NoError(t, r.AddLogFile(logPath))
	r.Logger().Info("hello from split")
	require.NoError(t, r.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from split")
	assert.Contains(t, string(data), "Run finished")
	assert.Contains(t, buf.String(), "hello from split")
}

func TestClock(t *testing.T) {
	fixed := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)
	r := New(Options{Clock: func() time.Time { return fixed }})
	assert.Equal(t, fixed, r.Now())
	assert.Equal(t, fixed, r.StartedAt)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	r := New(Options{})
	ctx := WithRun(context.Background(), r)
	assert.Same(t, r, FromContext(ctx))
}
