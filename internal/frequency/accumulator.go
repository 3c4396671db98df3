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
	"github.com/cardinalhq/lakeprep/internal/distribution"
	"github.com/cardinalhq/lakeprep/internal/record"
)

// Entry is one row of a frequency table.
type Entry struct {
	Key   record.Key
	Count int64
}

// Accumulator counts key occurrences, remembering the order in which keys
// were first observed so snapshots are stable across runs.
type Accumulator struct {
	index   map[record.Key]int
	entries []Entry
	total   int64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		index: make(map[record.Key]int),
	}
}

// Observe counts one occurrence of key. Absent keys are ignored.
func (a *Accumulator) Observe(key record.Key) {
	if !key.Present() {
		return
	}
	a.total++
	if i, ok := a.index[key]; ok {
		a.entries[i].Count++
		return
	}
	a.index[key] = len(a.entries)
	a.entries = append(a.entries, Entry{Key: key, Count: 1})
}

// Merge adds every count of other into a. Keys new to a are appended in
// other's first-seen order.
func (a *Accumulator) Merge(other *Accumulator) {
	for _, e := range other.entries {
		a.total += e.Count
		if i, ok := a.index[e.Key]; ok {
			a.entries[i].Count += e.Count
			continue
		}
		a.index[e.Key] = len(a.entries)
		a.entries = append(a.entries, e)
	}
}

// Snapshot returns a copy of the table in first-seen order.
func (a *Accumulator) Snapshot() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Count returns the count for key, zero if never observed.
func (a *Accumulator) Count(key record.Key) int64 {
	if i, ok := a.index[key]; ok {
		return a.entries[i].Count
	}
	return 0
}

// Len is the number of distinct keys.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Total is the number of observations, equal to the sum of all counts.
func (a *Accumulator) Total() int64 {
	return a.total
}

// Distribution summarises counts per key.
func (a *Accumulator) Distribution() distribution.Summary {
	d, err := distribution.New()
	if err != nil {
		return distribution.Summary{}
	}
	for _, e := range a.entries {
		d.Add(float64(e.Count))
	}
	return d.Summary()
}
