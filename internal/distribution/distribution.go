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

// Package distribution summarises per-key sizes (records per user, counts
// per npc id) with a DDSketch so run summaries can report quantiles without
// keeping every value.
package distribution

import (
	"log/slog"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
)

var (
	defaultRelAcc  = 0.01
	mappingOnce    sync.Once
	sharedMapping  mapping.IndexMapping
	mappingInitErr error
)

func getSharedMapping() (mapping.IndexMapping, error) {
	mappingOnce.Do(func() {
		sharedMapping, mappingInitErr = mapping.NewLogarithmicMapping(defaultRelAcc)
	})
	return sharedMapping, mappingInitErr
}

// Summary is a point-in-time view of a Distribution.
type Summary struct {
	Count int64
	P50   float64
	P90   float64
	P99   float64
	Max   float64
}

// LogValue renders the summary as a slog group.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("n", s.Count),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
		slog.Float64("p99", s.P99),
		slog.Float64("max", s.Max),
	)
}

type Distribution struct {
	sketch *ddsketch.DDSketch
}

func New() (*Distribution, error) {
	m, err := getSharedMapping()
	if err != nil {
		return nil, err
	}
	return &Distribution{
		sketch: ddsketch.NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore()),
	}, nil
}

// Add records one value. Negative values are ignored; sizes and counts are
// never negative.
func (d *Distribution) Add(v float64) {
	if v < 0 {
		return
	}
	_ = d.sketch.Add(v)
}

func (d *Distribution) Summary() Summary {
	if d.sketch.IsEmpty() {
		return Summary{}
	}
	s := Summary{Count: int64(d.sketch.GetCount())}
	if qs, err := d.sketch.GetValuesAtQuantiles([]float64{0.5, 0.9, 0.99}); err == nil {
		s.P50, s.P90, s.P99 = qs[0], qs[1], qs[2]
	}
	if m, err := d.sketch.GetMaxValue(); err == nil {
		s.Max = m
	}
	return s
}
