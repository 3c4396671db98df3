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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/axiomhq/hyperloglog"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/lakeprep/internal/distribution"
	"github.com/cardinalhq/lakeprep/internal/linesource"
	"github.com/cardinalhq/lakeprep/internal/record"
	"github.com/cardinalhq/lakeprep/internal/runctx"
)

// Emit selects how sampled records are written.
type Emit string

const (
	// EmitLine writes the input line unchanged.
	EmitLine Emit = "line"
	// EmitProjected writes {"<field>": key, "<container>": {...}}.
	EmitProjected Emit = "projected"
)

// Unlimited lifts the MaxKeys or MaxRecords cap. Zero is a real cap.
const Unlimited = -1

// StratifiedOptions bound a stratified sample.
type StratifiedOptions struct {
	Schema record.Schema
	// MaxKeys is the number of distinct keys admitted into buckets. Zero
	// admits none; Unlimited admits every key.
	MaxKeys int
	// MaxRecords caps the sample size. Zero selects nothing; Unlimited
	// means one pass over all admitted keys.
	MaxRecords int
	// PerKey is the number of representatives taken from each bucket;
	// values below one mean one.
	PerKey int
	// Random picks representatives with the run's generator; otherwise the
	// first records of each bucket are taken.
	Random bool
	Emit   Emit
	// Stage names the sample in shortage reports.
	Stage string
}

// Sample is one selected record.
type Sample struct {
	Key  record.Key
	Line string
}

// StratifiedResult is the outcome of a stratified sample.
type StratifiedResult struct {
	Samples []Sample

	LinesRead       int64
	BucketedRecords int64
	DroppedRecords  int64
	AdmittedKeys    int
	SampledKeys     int
	// EstimatedDistinctKeys counts every key seen, including those past
	// the MaxKeys cap.
	EstimatedDistinctKeys uint64
	BucketSizes           distribution.Summary
}

// Lines returns the sampled lines in output order.
func (r *StratifiedResult) Lines() []string {
	out := make([]string, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Line
	}
	return out
}

// Stratified groups the records of src by key and picks representatives per
// key in first-seen key order, stopping at MaxRecords.
//
// Admission favours keys seen early: once MaxKeys keys hold a bucket, lines
// for new keys are dropped while admitted keys keep collecting.
func Stratified(ctx context.Context, run *runctx.Run, src linesource.Reader, opts StratifiedOptions) (*StratifiedResult, error) {
	perKey := max(opts.PerKey, 1)
	logger := run.Logger()
	logger.Info("Starting stratified sample",
		slog.String("schema", opts.Schema.Name),
		slog.Int("maxKeys", opts.MaxKeys),
		slog.Int("maxRecords", opts.MaxRecords),
		slog.Int("perKey", perKey),
		slog.Bool("random", opts.Random))

	b := newBuckets(opts.MaxKeys)
	seen := hyperloglog.New14()
	result := &StratifiedResult{}

	for {
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
		if result.LinesRead%100000 == 0 {
			logger.Info("Sampling progress", slog.Int64("linesRead", result.LinesRead), slog.Int("admittedKeys", b.len()))
		}

		key, _, err := opts.Schema.Key(line)
		if err != nil {
			run.LineSkipped(ctx, src.Position(), err)
			continue
		}
		if !key.Present() {
			run.KeyMissing(ctx, src.Position(), opts.Schema.Field)
			continue
		}
		seen.Insert(keyHashInput(key))
		if b.add(key, line) {
			result.BucketedRecords++
		} else {
			result.DroppedRecords++
		}
	}

	result.AdmittedKeys = b.len()
	result.EstimatedDistinctKeys = seen.Estimate()

	sizes, err := distribution.New()
	if err != nil {
		return nil, err
	}
	for _, lines := range b.lines {
		sizes.Add(float64(len(lines)))
	}
	result.BucketSizes = sizes.Summary()

	samples, err := selectRepresentatives(b, perKey, opts, run.Rand())
	if err != nil {
		return nil, err
	}
	result.Samples = samples

	sampledKeys := mapset.NewThreadUnsafeSet[record.Key]()
	for _, s := range samples {
		sampledKeys.Add(s.Key)
	}
	result.SampledKeys = sampledKeys.Cardinality()

	logger.Info("Stratified sample complete",
		slog.Int64("linesRead", result.LinesRead),
		slog.Int("admittedKeys", result.AdmittedKeys),
		slog.Uint64("estimatedDistinctKeys", result.EstimatedDistinctKeys),
		slog.Int64("droppedRecords", result.DroppedRecords),
		slog.Int("sampledRecords", len(samples)),
		slog.Int("sampledKeys", result.SampledKeys),
		slog.Any("recordsPerKey", result.BucketSizes))

	if opts.MaxRecords > 0 && len(samples) < opts.MaxRecords {
		stage := opts.Stage
		if stage == "" {
			stage = "stratified_sample"
		}
		run.AddShortage(runctx.Shortage{
			Stage:     stage,
			Requested: opts.MaxRecords,
			Produced:  len(samples),
			Reason:    fmt.Sprintf("%d admitted keys with %d per key", result.AdmittedKeys, perKey),
		})
	}
	return result, nil
}

func keyHashInput(key record.Key) []byte {
	return append([]byte{byte(key.Kind())}, key.String()...)
}

func selectRepresentatives(b *buckets, perKey int, opts StratifiedOptions, rng *rand.Rand) ([]Sample, error) {
	var samples []Sample
	for i, key := range b.keys {
		if opts.MaxRecords >= 0 && len(samples) >= opts.MaxRecords {
			break
		}
		lines := b.lines[i]
		var picked []string
		if opts.Random {
			picked = pickRandom(lines, perKey, rng)
		} else {
			picked = lines[:min(perKey, len(lines))]
		}
		for _, line := range picked {
			if opts.MaxRecords >= 0 && len(samples) >= opts.MaxRecords {
				break
			}
			out := line
			if opts.Emit == EmitProjected {
				projected, err := project(opts.Schema, key, line)
				if err != nil {
					return nil, err
				}
				out = projected
			}
			samples = append(samples, Sample{Key: key, Line: out})
		}
	}
	return samples, nil
}

// pickRandom draws min(n, len(lines)) distinct lines, in draw order, with a
// partial Fisher-Yates shuffle over their indexes.
func pickRandom(lines []string, n int, rng *rand.Rand) []string {
	n = min(n, len(lines))
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	out := make([]string, n)
	for i := range n {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = lines[idx[i]]
	}
	return out
}

func project(schema record.Schema, key record.Key, line string) (string, error) {
	obj, err := schema.Decode(line)
	if err != nil {
		return "", fmt.Errorf("re-decode sampled line: %w", err)
	}
	keyJSON, err := json.Marshal(key.JSONValue())
	if err != nil {
		return "", err
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("{")
	fieldJSON, _ := json.Marshal(schema.Field)
	containerJSON, _ := json.Marshal(schema.Container)
	buf.Write(fieldJSON)
	buf.WriteString(": ")
	buf.Write(keyJSON)
	buf.WriteString(", ")
	buf.Write(containerJSON)
	buf.WriteString(": ")
	buf.Write(bytes.TrimRight(body.Bytes(), "\n"))
	buf.WriteString("}")
	return buf.String(), nil
}
