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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Operation names accepted in the operation key.
const (
	OpCountNPCIDs     = "count_npc_ids"
	OpCountUserIDs    = "count_user_ids"
	OpSampleJSONL     = "sample_jsonl"
	OpSampleByUserID  = "sample_by_user_id"
	OpSplitTrainTest  = "split_train_test"
	EnvPrefix         = "LAKEPREP"
	DefaultSampleSize = 100
	// DefaultUserSampleSize caps distinct users for sample_by_user_id when
	// user_sample_size is unset.
	DefaultUserSampleSize = 100
	DefaultMaxLineBytes   = 16 * 1024 * 1024
)

// Operations lists every supported operation.
var Operations = []string{OpCountNPCIDs, OpCountUserIDs, OpSampleJSONL, OpSampleByUserID, OpSplitTrainTest}

// Config is the full set of run options.
type Config struct {
	Operation  string `mapstructure:"operation" yaml:"operation"`
	InputFile  string `mapstructure:"input_file" yaml:"input_file"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`

	SampleSize int `mapstructure:"sample_size" yaml:"sample_size"`
	// TestSize falls back to SampleSize when zero.
	TestSize int `mapstructure:"test_size" yaml:"test_size"`
	// UserSampleSize is unset unless configured; see EffectiveUserSampleSize.
	UserSampleSize *int   `mapstructure:"user_sample_size" yaml:"user_sample_size,omitempty"`
	RandomSample   bool   `mapstructure:"random_sample" yaml:"random_sample"`
	Seed           *int64 `mapstructure:"seed" yaml:"seed,omitempty"`
	PerKey         int    `mapstructure:"per_key" yaml:"per_key"`
	Emit           string `mapstructure:"emit" yaml:"emit"`
	UserTestMode   string `mapstructure:"user_test_mode" yaml:"user_test_mode"`
	Format         string `mapstructure:"format" yaml:"format"`
	MaxLineBytes   int    `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	TmpDir         string `mapstructure:"tmp_dir" yaml:"tmp_dir"`

	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
}

type StorageConfig struct {
	S3    S3Config    `mapstructure:"s3" yaml:"s3"`
	Azure AzureConfig `mapstructure:"azure" yaml:"azure"`
}

type S3Config struct {
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
	RoleARN   string `mapstructure:"role_arn" yaml:"role_arn"`
}

type AzureConfig struct {
	AccountURL string `mapstructure:"account_url" yaml:"account_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sample_size", DefaultSampleSize)
	v.SetDefault("per_key", 1)
	v.SetDefault("emit", "line")
	v.SetDefault("user_test_mode", "prefix")
	v.SetDefault("format", "csv")
	v.SetDefault("max_line_bytes", DefaultMaxLineBytes)
}

// Load reads configuration from defaults, then a config file, then
// environment variables, then any explicitly set flag in flags.
//
// With an empty path a file named "config" (json, yaml or toml) in the
// working directory is used if present. Environment variables use the
// prefix "LAKEPREP" and the dot character in keys is replaced by an
// underscore, so "storage.s3.region" becomes "LAKEPREP_STORAGE_S3_REGION".
// Flags bind to the key with dashes replaced by underscores.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	keys := bindEnvs(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		known := make(map[string]bool, len(keys))
		for _, k := range keys {
			known[k] = true
		}
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if known[key] && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					bindErr = errors.Join(bindErr, err)
				}
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling. It returns the
// dotted keys it bound.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) []string {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	var keys []string
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, bindEnvs(v, val.Field(i).Interface(), key...)...)
			continue
		}
		joined := strings.Join(key, ".")
		_ = v.BindEnv(joined)
		keys = append(keys, joined)
	}
	return keys
}

// EffectiveTestSize is the split test partition size.
func (c *Config) EffectiveTestSize() int {
	if c.TestSize > 0 {
		return c.TestSize
	}
	return c.SampleSize
}

// EffectiveUserSampleSize is user_sample_size when set, else def.
func (c *Config) EffectiveUserSampleSize(def int) int {
	if c.UserSampleSize != nil {
		return *c.UserSampleSize
	}
	return def
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Operation == "" {
		errs = append(errs, errors.New("operation is required"))
	} else if !isOperation(c.Operation) {
		errs = append(errs, fmt.Errorf("unknown operation %q, expected one of %s", c.Operation, strings.Join(Operations, ", ")))
	}
	if c.InputFile == "" {
		errs = append(errs, errors.New("input_file is required"))
	}
	if c.OutputFile == "" {
		errs = append(errs, errors.New("output_file is required"))
	}
	if c.SampleSize < 0 {
		errs = append(errs, fmt.Errorf("sample_size must not be negative, got %d", c.SampleSize))
	}
	if c.TestSize < 0 {
		errs = append(errs, fmt.Errorf("test_size must not be negative, got %d", c.TestSize))
	}
	if c.UserSampleSize != nil && *c.UserSampleSize < 0 {
		errs = append(errs, fmt.Errorf("user_sample_size must not be negative, got %d", *c.UserSampleSize))
	}
	if c.PerKey < 1 {
		errs = append(errs, fmt.Errorf("per_key must be at least 1, got %d", c.PerKey))
	}
	if c.MaxLineBytes < 1 {
		errs = append(errs, fmt.Errorf("max_line_bytes must be positive, got %d", c.MaxLineBytes))
	}
	switch c.Emit {
	case "line", "projected":
	default:
		errs = append(errs, fmt.Errorf("emit must be line or projected, got %q", c.Emit))
	}
	switch c.UserTestMode {
	case "prefix", "per_user":
	default:
		errs = append(errs, fmt.Errorf("user_test_mode must be prefix or per_user, got %q", c.UserTestMode))
	}
	switch c.Format {
	case "csv", "parquet":
	default:
		errs = append(errs, fmt.Errorf("format must be csv or parquet, got %q", c.Format))
	}
	return errors.Join(errs...)
}

func isOperation(op string) bool {
	for _, o := range Operations {
		if o == op {
			return true
		}
	}
	return false
}
