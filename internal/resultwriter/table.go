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

package resultwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/lakeprep/internal/frequency"
	"github.com/cardinalhq/lakeprep/internal/record"
)

// Format selects the encoding of a frequency table.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts "csv", "parquet" or "" (csv).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported table format %q", s)
	}
}

// TableFileName is the file name used when a table is written into an
// output directory, e.g. npc_id_collections.csv.
func TableFileName(keyName string, format Format) string {
	return keyName + "_collections." + string(format)
}

// WriteTable writes a two-column table of keys and counts in entry order.
func WriteTable(path, keyName string, entries []frequency.Entry, format Format) (Written, error) {
	switch format {
	case FormatParquet:
		return writeAtomic(path, func(w io.Writer) (int, error) {
			return writeParquetTable(w, keyName, entries)
		})
	case FormatCSV, "":
		return writeAtomic(path, func(w io.Writer) (int, error) {
			return writeCSVTable(w, keyName, entries)
		})
	default:
		return Written{}, &WriteError{Path: path, Err: fmt.Errorf("unsupported table format %q", format)}
	}
}

func writeCSVTable(w io.Writer, keyName string, entries []frequency.Entry) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{keyName, "count"}); err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := cw.Write([]string{csvKey(e.Key), strconv.FormatInt(e.Count, 10)}); err != nil {
			return i, err
		}
	}
	cw.Flush()
	return len(entries), cw.Error()
}

// csvKey leaves the cell of a null key empty.
func csvKey(k record.Key) string {
	if k.Kind() == record.KindNull {
		return ""
	}
	return k.String()
}

func writeParquetTable(w io.Writer, keyName string, entries []frequency.Entry) (int, error) {
	schema := parquet.NewSchema("frequency", parquet.Group{
		keyName: parquet.String(),
		"count": parquet.Leaf(parquet.Int64Type),
	})
	pw := parquet.NewGenericWriter[map[string]any](w, schema, parquet.Compression(&parquet.Zstd))

	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]any{
			keyName: e.Key.String(),
			"count": e.Count,
		})
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return 0, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return len(rows), nil
}
