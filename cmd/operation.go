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
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/lakeprep/config"
	"github.com/cardinalhq/lakeprep/internal/frequency"
	"github.com/cardinalhq/lakeprep/internal/linesource"
	"github.com/cardinalhq/lakeprep/internal/objstore"
	"github.com/cardinalhq/lakeprep/internal/record"
	"github.com/cardinalhq/lakeprep/internal/resultwriter"
	"github.com/cardinalhq/lakeprep/internal/runctx"
	"github.com/cardinalhq/lakeprep/internal/sampler"
	"github.com/cardinalhq/lakeprep/internal/split"
)

// operationCommand builds a subcommand that runs operation, or the
// configured operation when operation is empty.
func operationCommand(use, short, operation string) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, c.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if operation != "" {
				cfg.Operation = operation
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			servicename := "lakeprep-" + strings.ReplaceAll(cfg.Operation, "_", "-")
			doneCtx, doneFx, err := setupTelemetry(servicename)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			_, err = execute(doneCtx, cfg, slog.Default())
			return err
		},
	}
	addRunFlags(c)
	if operation == "" {
		c.Flags().String("operation", "", "operation to run: "+strings.Join(config.Operations, ", "))
	}
	return c
}

// execute runs one operation with a fresh run context. The run is returned
// even on failure so callers can inspect its counters.
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runctx.Run, error) {
	run := runctx.New(runctx.Options{
		Operation: cfg.Operation,
		Random:    cfg.RandomSample,
		Seed:      cfg.Seed,
		Logger:    logger,
	})
	ctx = runctx.WithRun(ctx, run)
	ll := run.Logger()
	ll.Info("Starting run", slog.String("input", cfg.InputFile), slog.String("output", cfg.OutputFile))

	err := dispatch(ctx, cfg)
	if err != nil {
		ll.Error("Run failed", slog.Any("error", err))
	}
	for _, s := range run.Shortages() {
		ll.Warn("Shortage", slog.String("detail", s.String()))
	}
	if cerr := run.Close(); cerr != nil {
		ll.Error("Failed to close run log", slog.Any("error", cerr))
	}
	return run, err
}

// countSchemas maps the counting operations to the record schema they read.
var countSchemas = map[string]string{
	config.OpCountNPCIDs:  record.NPCIDs.Name,
	config.OpCountUserIDs: record.UserIDs.Name,
}

func dispatch(ctx context.Context, cfg *config.Config) error {
	run := runctx.FromContext(ctx)
	if run == nil {
		return fmt.Errorf("no run in context for operation %q", cfg.Operation)
	}
	input, cleanup, err := stageInput(ctx, run, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	switch cfg.Operation {
	case config.OpCountNPCIDs, config.OpCountUserIDs:
		schema, err := record.SchemaByName(countSchemas[cfg.Operation])
		if err != nil {
			return err
		}
		return countKeys(ctx, run, cfg, input, schema)
	case config.OpSampleJSONL:
		return sampleLines(ctx, run, cfg, input)
	case config.OpSampleByUserID:
		return sampleUsers(ctx, run, cfg, input)
	case config.OpSplitTrainTest:
		return splitTrainTest(ctx, run, cfg, input)
	default:
		return fmt.Errorf("unknown operation %q", cfg.Operation)
	}
}

// stageInput returns a local path for the configured input, copying remote
// objects to disk first. cleanup removes anything staged.
func stageInput(ctx context.Context, run *runctx.Run, cfg *config.Config) (string, func(), error) {
	noop := func() {}
	loc, remote, err := objstore.ParseLocation(cfg.InputFile)
	if err != nil {
		return "", noop, err
	}
	if !remote {
		return cfg.InputFile, noop, nil
	}

	client, err := objstore.NewClient(ctx, loc.Scheme, objstore.Settings{
		S3: objstore.S3Options{
			Region:    cfg.Storage.S3.Region,
			Endpoint:  cfg.Storage.S3.Endpoint,
			PathStyle: cfg.Storage.S3.PathStyle,
			RoleARN:   cfg.Storage.S3.RoleARN,
		},
		AzureAccountURL: cfg.Storage.Azure.AccountURL,
	})
	if err != nil {
		return "", noop, fmt.Errorf("failed to create %s client: %w", loc.Scheme, err)
	}

	tmpdir := cfg.TmpDir
	if tmpdir == "" {
		tmpdir = os.TempDir()
	}
	staged, err := objstore.Stage(ctx, client, loc, tmpdir, run.Logger())
	if err != nil {
		return "", noop, err
	}
	return staged.Path, func() {
		if err := staged.Cleanup(); err != nil {
			run.Logger().Warn("Failed to remove staged input", slog.String("path", staged.Path), slog.Any("error", err))
		}
	}, nil
}

func openInput(cfg *config.Config, input string) (*linesource.Source, error) {
	return linesource.Open(input, linesource.WithMaxLineBytes(cfg.MaxLineBytes))
}

func logWritten(run *runctx.Run, w resultwriter.Written) {
	run.Logger().Info("Wrote output",
		slog.String("path", w.Path),
		slog.Int("rows", w.Rows),
		slog.Int64("bytes", w.Bytes),
		slog.String("xxhash", w.DigestString()))
}

func countKeys(ctx context.Context, run *runctx.Run, cfg *config.Config, input string, schema record.Schema) error {
	format, err := resultwriter.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	src, err := openInput(cfg, input)
	if err != nil {
		return err
	}
	defer src.Close()

	acc, err := frequency.Count(ctx, run, src, schema)
	if err != nil {
		return err
	}

	path, err := resultwriter.ResolvePath(cfg.OutputFile, resultwriter.TableFileName(schema.Field, format))
	if err != nil {
		return err
	}
	w, err := resultwriter.WriteTable(path, schema.Field, acc.Snapshot(), format)
	if err != nil {
		return err
	}
	run.RecordsEmitted(ctx, w.Rows)
	logWritten(run, w)
	return nil
}

func sampleLines(ctx context.Context, run *runctx.Run, cfg *config.Config, input string) error {
	src, err := openInput(cfg, input)
	if err != nil {
		return err
	}
	defer src.Close()

	res, err := sampler.Uniform(ctx, run, src, sampler.UniformOptions{
		Size:   cfg.SampleSize,
		Random: run.Random,
	})
	if err != nil {
		return err
	}
	return writeSample(ctx, run, cfg, resultwriter.SampleFileName(cfg.InputFile), res.Lines)
}

func sampleUsers(ctx context.Context, run *runctx.Run, cfg *config.Config, input string) error {
	src, err := openInput(cfg, input)
	if err != nil {
		return err
	}
	defer src.Close()

	res, err := sampler.Stratified(ctx, run, src, sampler.StratifiedOptions{
		Schema:     record.UserIDs,
		MaxKeys:    cfg.EffectiveUserSampleSize(config.DefaultUserSampleSize),
		MaxRecords: cfg.SampleSize,
		PerKey:     cfg.PerKey,
		Random:     run.Random,
		Emit:       sampler.Emit(cfg.Emit),
	})
	if err != nil {
		return err
	}
	return writeSample(ctx, run, cfg, resultwriter.UserSampleFileName(cfg.InputFile), res.Lines())
}

func writeSample(ctx context.Context, run *runctx.Run, cfg *config.Config, defaultName string, lines []string) error {
	path, err := resultwriter.ResolvePath(cfg.OutputFile, defaultName)
	if err != nil {
		return err
	}
	w, err := resultwriter.WriteLines(path, lines)
	if err != nil {
		return err
	}
	run.RecordsEmitted(ctx, w.Rows)
	logWritten(run, w)
	return nil
}

func splitTrainTest(ctx context.Context, run *runctx.Run, cfg *config.Config, input string) error {
	// A missing input must fail before the output directory or run log exist.
	src, err := openInput(cfg, input)
	if err != nil {
		return err
	}
	defer src.Close()

	outputDir := cfg.OutputFile
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	names := split.NamesFor(outputDir, cfg.InputFile, run.Now())
	if err := run.AddLogFile(names.Log); err != nil {
		return err
	}

	testSize := cfg.EffectiveTestSize()
	_, err = split.Run(ctx, run, src, split.Options{
		TestSize:       testSize,
		UserSampleSize: cfg.EffectiveUserSampleSize(testSize),
		Random:         run.Random,
		HeldOut:        split.HeldOutMode(cfg.UserTestMode),
	}, names)
	return err
}
