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

package cmd

import (
	"github.com/spf13/cobra"
)

// addRunFlags registers one flag per configuration key. Only flags set on
// the command line override the config file and environment.
func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("input-file", "", "input JSONL file, directory of part-* files, or s3:// azblob:// file:// URL")
	f.String("output-file", "", "output file or directory")
	f.Int("sample-size", 0, "records to sample; test partition size for split when test-size is unset")
	f.Int("test-size", 0, "test partition size for split")
	f.Int("user-sample-size", 0, "distinct users for sample-users, or held-out user lines for split")
	f.Bool("random-sample", false, "select records at random")
	f.Int64("seed", 0, "seed for random selection; only used with --random-sample")
	f.Int("per-key", 1, "records kept per user by sample-users")
	f.String("emit", "line", "sample-users output: line or projected")
	f.String("user-test-mode", "prefix", "split held-out user selection: prefix or per_user")
	f.String("format", "csv", "frequency table format: csv or parquet")
	f.Int("max-line-bytes", 0, "longest accepted input line")
	f.String("tmp-dir", "", "directory for staged remote input")
}
