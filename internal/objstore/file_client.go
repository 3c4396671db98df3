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
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileClient serves objects from the local filesystem. Bucket names become
// subdirectories under base; with an empty base and bucket, keys are
// absolute paths.
type FileClient struct {
	base string
}

func NewFileClient(base string) *FileClient {
	return &FileClient{base: base}
}

func (c *FileClient) path(bucket, key string) string {
	return filepath.Join(c.base, bucket, filepath.FromSlash(key))
}

// ListObjects walks the directory containing prefix and returns regular
// files whose key starts with prefix, in lexical order.
func (c *FileClient) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	root := filepath.Join(c.base, bucket)
	start := c.path(bucket, prefix)
	if info, err := os.Stat(start); err != nil || !info.IsDir() {
		start = filepath.Dir(start)
	}

	var objects []Object
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		key := p
		if root != "" {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			key = filepath.ToSlash(rel)
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// DownloadObject copies the requested object to a temp file and returns the filename.
func (c *FileClient) DownloadObject(ctx context.Context, tmpdir, bucket, key string) (string, int64, bool, error) {
	src := c.path(bucket, key)
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			recordDownloadError(ctx, bucket, "not_found")
			return "", 0, true, nil
		}
		return "", 0, false, err
	}
	defer func() { _ = f.Close() }()

	dst, err := os.CreateTemp(tmpdir, "*-"+filepath.Base(key))
	if err != nil {
		return "", 0, false, err
	}
	defer func() { _ = dst.Close() }()

	size, err := io.Copy(dst, f)
	if err != nil {
		_ = os.Remove(dst.Name())
		recordDownloadError(ctx, bucket, "copy_failed")
		return "", 0, false, err
	}
	recordDownload(ctx, bucket, size)
	return dst.Name(), size, false, nil
}
