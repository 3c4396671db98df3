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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSampleSize, cfg.SampleSize)
	assert.Equal(t, 1, cfg.PerKey)
	assert.Equal(t, "line", cfg.Emit)
	assert.Equal(t, "prefix", cfg.UserTestMode)
	assert.Equal(t, "csv", cfg.Format)
	assert.Equal(t, DefaultMaxLineBytes, cfg.MaxLineBytes)
	assert.Nil(t, cfg.Seed)
	assert.Nil(t, cfg.UserSampleSize)
}

func TestLoadJSONFile(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"operation": "split_train_test",
		"input_file": "data/v3_data.jsonl",
		"output_file": "out",
		"sample_size": 20,
		"random_sample": true,
		"seed": 42,
		"user_sample_size": 5,
		"storage": {"s3": {"region": "us-west-2", "path_style": true}}
	}`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, OpSplitTrainTest, cfg.Operation)
	assert.Equal(t, "data/v3_data.jsonl", cfg.InputFile)
	assert.Equal(t, 20, cfg.EffectiveTestSize())
	assert.True(t, cfg.RandomSample)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(42), *cfg.Seed)
	assert.Equal(t, 5, cfg.EffectiveUserSampleSize(99))
	assert.Equal(t, "us-west-2", cfg.Storage.S3.Region)
	assert.True(t, cfg.Storage.S3.PathStyle)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("operation: count_npc_ids\nformat: parquet\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, OpCountNPCIDs, cfg.Operation)
	assert.Equal(t, "parquet", cfg.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "operation: sample_jsonl\nsample_size: 10\n")
	t.Setenv("LAKEPREP_SAMPLE_SIZE", "25")
	t.Setenv("LAKEPREP_SEED", "7")
	t.Setenv("LAKEPREP_STORAGE_AZURE_ACCOUNT_URL", "https://acct.blob.core.windows.net/")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, OpSampleJSONL, cfg.Operation)
	assert.Equal(t, 25, cfg.SampleSize)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(7), *cfg.Seed)
	assert.Equal(t, "https://acct.blob.core.windows.net/", cfg.Storage.Azure.AccountURL)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LAKEPREP_INPUT_FILE", "from-env.jsonl")
	t.Setenv("LAKEPREP_OUTPUT_FILE", "from-env-out")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("input-file", "", "")
	flags.String("output-file", "", "")
	flags.Int("sample-size", 0, "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--input-file", "from-flag.jsonl", "--verbose"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "from-flag.jsonl", cfg.InputFile)
	assert.Equal(t, "from-env-out", cfg.OutputFile)
	assert.Equal(t, DefaultSampleSize, cfg.SampleSize, "unchanged flags do not override defaults")
}

func TestEffectiveSizes(t *testing.T) {
	cfg := &Config{SampleSize: 30}
	assert.Equal(t, 30, cfg.EffectiveTestSize())
	cfg.TestSize = 12
	assert.Equal(t, 12, cfg.EffectiveTestSize())

	assert.Equal(t, 12, cfg.EffectiveUserSampleSize(cfg.EffectiveTestSize()))
	zero := 0
	cfg.UserSampleSize = &zero
	assert.Equal(t, 0, cfg.EffectiveUserSampleSize(12))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Operation:    OpCountNPCIDs,
			InputFile:    "in",
			OutputFile:   "out",
			SampleSize:   10,
			PerKey:       1,
			Emit:         "line",
			UserTestMode: "prefix",
			Format:       "csv",
			MaxLineBytes: 1024,
		}
	}
	require.NoError(t, valid().Validate())

	negative := -1
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing operation", func(c *Config) { c.Operation = "" }, "operation is required"},
		{"unknown operation", func(c *Config) { c.Operation = "shuffle" }, "unknown operation"},
		{"missing input", func(c *Config) { c.InputFile = "" }, "input_file is required"},
		{"missing output", func(c *Config) { c.OutputFile = "" }, "output_file is required"},
		{"negative sample", func(c *Config) { c.SampleSize = -1 }, "sample_size"},
		{"negative test", func(c *Config) { c.TestSize = -3 }, "test_size"},
		{"negative users", func(c *Config) { c.UserSampleSize = &negative }, "user_sample_size"},
		{"zero per key", func(c *Config) { c.PerKey = 0 }, "per_key"},
		{"bad emit", func(c *Config) { c.Emit = "json" }, "emit"},
		{"bad mode", func(c *Config) { c.UserTestMode = "random" }, "user_test_mode"},
		{"bad format", func(c *Config) { c.Format = "tsv" }, "format"},
		{"bad line size", func(c *Config) { c.MaxLineBytes = 0 }, "max_line_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
