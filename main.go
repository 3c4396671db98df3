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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	gomaxecs "github.com/rdforte/gomaxecs/maxprocs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/lakeprep/cmd"
	"github.com/cardinalhq/lakeprep/config"
)

// defaultMemoryRatio leaves headroom below the container limit; split and
// random sampling hold the whole input in memory.
const defaultMemoryRatio = 0.8

func stderrf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
}

func init() {
	// Split file names carry the run date; keep it in UTC everywhere.
	time.Local = time.UTC

	setMaxProcs()
	setMemoryLimit(memoryRatio())

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(50)
		os.Setenv("GOGC", "50")
	}
}

func setMaxProcs() {
	if gomaxecs.IsECS() {
		if _, err := gomaxecs.Set(gomaxecs.WithLogger(stderrf)); err != nil {
			stderrf("failed to set GOMAXPROCS from ECS task metadata: %v", err)
		}
		return
	}
	if _, err := maxprocs.Set(maxprocs.Logger(stderrf)); err != nil {
		stderrf("failed to set GOMAXPROCS from cgroup quota: %v", err)
	}
}

// memoryRatio reads LAKEPREP_MEMORY_RATIO, a fraction of the container or
// system memory in (0, 1].
func memoryRatio() float64 {
	env := config.EnvPrefix + "_MEMORY_RATIO"
	s := os.Getenv(env)
	if s == "" {
		return defaultMemoryRatio
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 || r > 1 {
		stderrf("ignoring %s=%q, using %.2f", env, s, defaultMemoryRatio)
		return defaultMemoryRatio
	}
	return r
}

func setMemoryLimit(ratio float64) {
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(ratio),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		stderrf("failed to set memory limit: %v", err)
	}
}

// useTempDir points TMPDIR at a lakeprep directory so staged remote input
// and partial outputs are easy to find and clean up. LAKEPREP_TMP_DIR picks
// the parent.
func useTempDir() {
	base := os.Getenv(config.EnvPrefix + "_TMP_DIR")
	if base == "" {
		base = os.TempDir()
	}
	tmp := filepath.Join(base, "lakeprep")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		slog.Warn("Failed to create temp dir, using system default", slog.String("path", tmp), slog.Any("error", err))
		return
	}
	if err := os.Setenv("TMPDIR", tmp); err != nil {
		slog.Warn("Failed to set TMPDIR", slog.String("path", tmp), slog.Any("error", err))
	}
}

func main() {
	useTempDir()
	cmd.Execute()
}
