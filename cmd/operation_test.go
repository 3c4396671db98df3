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
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/lakeprep/config"
	"github.com/cardinalhq/lakeprep/internal/linesource"
)

func testConfig(op, input, output string) *config.Config {
	return &config.Config{
		Operation:    op,
		InputFile:    input,
		OutputFile:   output,
		SampleSize:   config.DefaultSampleSize,
		PerKey:       1,
		Emit:         "line",
		UserTestMode: "prefix",
		Format:       "csv",
		MaxLineBytes: config.DefaultMaxLineBytes,
	}
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func npcLine(id string) string {
	inner := fmt.Sprintf(`{"data_info": {"npc_id": %s}}`, id)
	return fmt.Sprintf(`{"data": %q}`, inner)
}

func userLine(user string, n int) string {
	return fmt.Sprintf(`{"raw_data": {"user_id": %q, "n": %d}}`, user, n)
}

func runTest(t *testing.T, cfg *config.Config) (*bytes.Buffer, error) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	var buf bytes.Buffer
	_, err := execute(context.Background(), cfg, slog.New(slog.NewTextHandler(&buf, nil)))
	return &buf, err
}

func TestCountNPCIDsToDirectory(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "v1_data.jsonl")
	writeLines(t, input,
		npcLine("1"),
		npcLine("1"),
		npcLine("2"),
		"not json",
		`{"data": "{\"data_info\": {}}"}`,
		`{"other": 1}`,
	)
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))

	logs, err := runTest(t, testConfig(config.OpCountNPCIDs, input, out))
	require.NoError(t, err)

	assert.Equal(t, "npc_id,count\n1,2\n2,1\n", readFile(t, filepath.Join(out, "npc_id_collections.csv")))
	assert.Contains(t, logs.String(), "linesSkipped=2")
	assert.Contains(t, logs.String(), "keysMissing=1")
}

func TestCountUserIDsParquet(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jsonl")
	writeLines(t, input, userLine("a", 0), userLine("b", 1), userLine("a", 2))

	cfg := testConfig(config.OpCountUserIDs, input, dir)
	cfg.Format = "parquet"
	_, err := runTest(t, cfg)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "user_id_collections.parquet"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestMissingInputFails(t *testing.T) {
	dir := t.TempDir()
	_, err := runTest(t, testConfig(config.OpCountNPCIDs, filepath.Join(dir, "missing.jsonl"), dir))
	require.Error(t, err)
	assert.ErrorIs(t, err, linesource.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(dir, "npc_id_collections.csv"))
}

func TestSampleJSONLSequential(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "lines.jsonl")
	writeLines(t, input, "a", "b", "c", "d")

	cfg := testConfig(config.OpSampleJSONL, input, dir)
	cfg.SampleSize = 2
	_, err := runTest(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, "a\nb\n", readFile(t, filepath.Join(dir, "lines.jsonl_sample.jsonl")))
}

func TestSampleJSONLSeededIsReproducible(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "lines.jsonl")
	var lines []string
	for i := range 50 {
		lines = append(lines, fmt.Sprintf("line-%d", i))
	}
	writeLines(t, input, lines...)

	seed := int64(99)
	sample := func(name string) string {
		cfg := testConfig(config.OpSampleJSONL, input, filepath.Join(dir, name))
		cfg.SampleSize = 10
		cfg.RandomSample = true
		cfg.Seed = &seed
		_, err := runTest(t, cfg)
		require.NoError(t, err)
		return readFile(t, filepath.Join(dir, name))
	}
	first := sample("one.jsonl")
	assert.Equal(t, first, sample("two.jsonl"))
	assert.Len(t, strings.Split(strings.TrimSuffix(first, "\n"), "\n"), 10)
}

func TestSampleByUserIDShortage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "users.jsonl")
	writeLines(t, input, userLine("a", 0), userLine("b", 1), userLine("a", 2), userLine("c", 3))
	out := filepath.Join(dir, "sample.jsonl")

	cfg := testConfig(config.OpSampleByUserID, input, out)
	users := 2
	cfg.UserSampleSize = &users
	cfg.SampleSize = 5
	cfg.Emit = "projected"

	var buf bytes.Buffer
	run, err := execute(context.Background(), cfg, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	assert.Equal(t,
		`{"user_id": "a", "raw_data": {"n":0,"user_id":"a"}}`+"\n"+
			`{"user_id": "b", "raw_data": {"n":1,"user_id":"b"}}`+"\n",
		readFile(t, out))
	require.Len(t, run.Shortages(), 1)
	assert.Equal(t, 5, run.Shortages()[0].Requested)
	assert.Equal(t, 2, run.Shortages()[0].Produced)
	assert.Contains(t, buf.String(), "Shortage")
}

func TestSplitTrainTest(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "v3_data.jsonl")
	var lines []string
	for i := range 10 {
		lines = append(lines, userLine(fmt.Sprintf("u%d", i), i))
	}
	writeLines(t, input, lines...)
	out := filepath.Join(dir, "splits")

	cfg := testConfig(config.OpSplitTrainTest, input, out)
	cfg.SampleSize = 4
	users := 2
	cfg.UserSampleSize = &users
	_, err := runTest(t, cfg)
	require.NoError(t, err)

	find := func(suffix string) string {
		matches, err := filepath.Glob(filepath.Join(out, "v3_*_"+suffix))
		require.NoError(t, err)
		require.Len(t, matches, 1, suffix)
		return matches[0]
	}
	assert.Equal(t, strings.Join(lines[:4], "\n")+"\n", readFile(t, find("test.jsonl")))
	assert.Equal(t, strings.Join(lines[4:], "\n")+"\n", readFile(t, find("train.jsonl")))
	assert.Equal(t, strings.Join(lines[:2], "\n")+"\n", readFile(t, find("user_test.jsonl")))
	assert.Contains(t, readFile(t, find("split.log")), "Split complete")
}

func TestRemoteFileInputIsStaged(t *testing.T) {
	dir := t.TempDir()
	parts := filepath.Join(dir, "bucket", "users")
	writeLines(t, filepath.Join(parts, "part-00000"), userLine("a", 0), userLine("b", 1))
	writeLines(t, filepath.Join(parts, "part-00001"), userLine("a", 2))
	writeLines(t, filepath.Join(parts, "_SUCCESS"))
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))
	tmp := t.TempDir()

	cfg := testConfig(config.OpCountUserIDs, "file://"+parts, out)
	cfg.TmpDir = tmp
	_, err := runTest(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, "user_id,count\na,2\nb,1\n", readFile(t, filepath.Join(out, "user_id_collections.csv")))
	leftovers, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestConfigCommandPrintsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"operation": "sample_jsonl", "input_file": "in.jsonl"}`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"config", "--config", path, "--sample-size", "7"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	require.NoError(t, rootCmd.Execute())

	text := out.String()
	assert.Contains(t, text, "operation: sample_jsonl")
	assert.Contains(t, text, "input_file: in.jsonl")
	assert.Contains(t, text, "sample_size: 7")
	assert.Contains(t, text, "output_file is required")
}

func TestSeedWithoutRandomSampleKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "v1_data.jsonl")
	var lines []string
	for i := range 100 {
		lines = append(lines, userLine(fmt.Sprintf("u%d", i), i))
	}
	writeLines(t, input, lines...)
	seed := int64(42)

	out := filepath.Join(dir, "splits")
	cfg := testConfig(config.OpSplitTrainTest, input, out)
	cfg.SampleSize = 20
	cfg.Seed = &seed
	_, err := runTest(t, cfg)
	require.NoError(t, err)

	tests, err := filepath.Glob(filepath.Join(out, "v1_*_test.jsonl"))
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, strings.Join(lines[:20], "\n")+"\n", readFile(t, tests[0]))
	trains, err := filepath.Glob(filepath.Join(out, "v1_*_train.jsonl"))
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, strings.Join(lines[20:], "\n")+"\n", readFile(t, trains[0]))

	sampleOut := filepath.Join(dir, "sample.jsonl")
	cfg = testConfig(config.OpSampleJSONL, input, sampleOut)
	cfg.SampleSize = 5
	cfg.Seed = &seed
	_, err = runTest(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines[:5], "\n")+"\n", readFile(t, sampleOut))
}

func TestSampleByUserIDZeroUsers(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "users.jsonl")
	writeLines(t, input, userLine("a", 0), userLine("b", 1), userLine("a", 2))
	out := filepath.Join(dir, "sample.jsonl")

	cfg := testConfig(config.OpSampleByUserID, input, out)
	users := 0
	cfg.UserSampleSize = &users
	run, err := execute(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)

	assert.Empty(t, readFile(t, out))
	require.Len(t, run.Shortages(), 1)
	assert.Equal(t, 0, run.Shortages()[0].Produced)
}

func TestSplitMissingInputLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "splits")
	_, err := runTest(t, testConfig(config.OpSplitTrainTest, filepath.Join(dir, "v1_missing.jsonl"), out))
	require.Error(t, err)
	assert.ErrorIs(t, err, linesource.ErrNotFound)
	assert.NoDirExists(t, out)
}
