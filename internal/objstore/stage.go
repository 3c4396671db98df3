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

package objstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cardinalhq/lakeprep/internal/linesource"
)

// Settings select and configure the backend clients.
type Settings struct {
	S3              S3Options
	AzureAccountURL string
}

// NewClient returns the client serving scheme.
func NewClient(ctx context.Context, scheme string, settings Settings) (Client, error) {
	switch scheme {
	case SchemeS3:
		return NewS3Client(ctx, settings.S3)
	case SchemeAzure:
		return NewAzureClient(settings.AzureAccountURL)
	case SchemeFile:
		return NewFileClient(""), nil
	default:
		return nil, fmt.Errorf("unsupported input scheme %q", scheme)
	}
}

// Staged is a local copy of a remote input.
type Staged struct {
	// Path is what LineSource should open: a single file, or a directory
	// of part files.
	Path    string
	Objects []Object
	Bytes   int64
	dir     string
}

// Cleanup removes the staged files.
func (s *Staged) Cleanup() error {
	if s == nil || s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// Stage copies the input at loc into a new directory under tmpdir. If an
// object's key equals loc.Key it is staged alone; otherwise every object
// directly under the prefix whose name starts with "part-" is staged.
func Stage(ctx context.Context, client Client, loc Location, tmpdir string, logger *slog.Logger) (*Staged, error) {
	objects, err := client.ListObjects(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}

	selected := selectObjects(objects, loc.Key)
	if len(selected) == 0 {
		return nil, &linesource.NotFoundError{Path: loc.String(), Reason: "no matching objects"}
	}

	dir, err := os.MkdirTemp(tmpdir, "lakeprep-stage-")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	staged := &Staged{Path: dir, Objects: selected, dir: dir}

	single := len(selected) == 1 && selected[0].Key == loc.Key
	for _, obj := range selected {
		tmpfile, size, notFound, err := client.DownloadObject(ctx, dir, loc.Bucket, obj.Key)
		if err != nil {
			_ = staged.Cleanup()
			return nil, fmt.Errorf("stage %s: %w", obj.Key, err)
		}
		if notFound {
			_ = staged.Cleanup()
			return nil, &linesource.NotFoundError{Path: loc.String(), Reason: fmt.Sprintf("object %s disappeared during staging", obj.Key)}
		}
		target := filepath.Join(dir, path.Base(obj.Key))
		if err := os.Rename(tmpfile, target); err != nil {
			_ = staged.Cleanup()
			return nil, fmt.Errorf("stage %s: %w", obj.Key, err)
		}
		staged.Bytes += size
		if single {
			staged.Path = target
		}
		logger.Debug("Staged object", slog.String("key", obj.Key), slog.Int64("bytes", size))
	}

	logger.Info("Staged remote input",
		slog.String("location", loc.String()),
		slog.Int("objects", len(selected)),
		slog.Int64("bytes", staged.Bytes),
		slog.String("path", staged.Path))
	return staged, nil
}

func selectObjects(objects []Object, key string) []Object {
	for _, obj := range objects {
		if obj.Key == key {
			return []Object{obj}
		}
	}
	prefix := key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var parts []Object
	for _, obj := range objects {
		rest, ok := strings.CutPrefix(obj.Key, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		if strings.HasPrefix(rest, linesource.PartPrefix) {
			parts = append(parts, obj)
		}
	}
	return parts
}
