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
	"github.com/cardinalhq/lakeprep/internal/record"
)

// buckets groups lines by key, remembering the order in which keys were
// first admitted.
type buckets struct {
	index   map[record.Key]int
	keys    []record.Key
	lines   [][]string
	maxKeys int
}

func newBuckets(maxKeys int) *buckets {
	return &buckets{
		index:   make(map[record.Key]int),
		maxKeys: maxKeys,
	}
}

// add appends line to key's bucket. An existing bucket always grows; a new
// bucket is only opened while fewer than maxKeys keys have been admitted,
// and a negative maxKeys never closes admission. It reports whether the line
// was kept.
func (b *buckets) add(key record.Key, line string) bool {
	if i, ok := b.index[key]; ok {
		b.lines[i] = append(b.lines[i], line)
		return true
	}
	if b.maxKeys >= 0 && len(b.keys) >= b.maxKeys {
		return false
	}
	b.index[key] = len(b.keys)
	b.keys = append(b.keys, key)
	b.lines = append(b.lines, []string{line})
	return true
}

func (b *buckets) len() int {
	return len(b.keys)
}
