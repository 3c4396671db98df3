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

// Package resultwriter writes frequency tables and line subsets to disk.
// Every file is written to a temporary sibling and renamed into place, so a
// rerun with the same content leaves a byte-identical file and readers never
// observe a partial write.
package resultwriter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// WriteError wraps any failure to produce an output file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Written describes a completed output file.
type Written struct {
	Path  string
	Rows  int
	Bytes int64
	// Digest is the xxhash64 of the file content.
	Digest uint64
}

// DigestString formats the digest the way run summaries print it.
func (w Written) DigestString() string {
	return strconv.FormatUint(w.Digest, 16)
}

// ResolvePath returns dest/defaultName when dest is an existing directory,
// otherwise dest unchanged.
func ResolvePath(dest, defaultName string) (string, error) {
	info, err := os.Stat(dest)
	if err == nil && info.IsDir() {
		return filepath.Join(dest, defaultName), nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat output %s: %w", dest, err)
	}
	return dest, nil
}

// InputBaseName is the last path element of an input file or directory.
func InputBaseName(input string) string {
	return filepath.Base(strings.TrimRight(input, string(filepath.Separator)))
}

// SampleFileName names a line sample written into an output directory.
func SampleFileName(input string) string {
	return InputBaseName(input) + "_sample.jsonl"
}

// UserSampleFileName names a per-user sample written into an output
// directory.
func UserSampleFileName(input string) string {
	return InputBaseName(input) + "_user_sample.jsonl"
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// writeAtomic streams fill into a temp file next to path and renames it over
// path once fill and all flushes succeed.
func writeAtomic(path string, fill func(w io.Writer) (int, error)) (Written, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Written{}, &WriteError{Path: path, Err: fmt.Errorf("create directory: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Written{}, &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	digest := xxhash.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, digest)}
	bw := bufio.NewWriterSize(counter, 256*1024)

	rows, err := fill(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		cleanup()
		return Written{}, &WriteError{Path: path, Err: err}
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return Written{}, &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Written{}, &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return Written{}, &WriteError{Path: path, Err: err}
	}

	return Written{
		Path:   path,
		Rows:   rows,
		Bytes:  counter.n,
		Digest: digest.Sum64(),
	}, nil
}

// WriteLines writes one line per element, each terminated by a newline.
func WriteLines(path string, lines []string) (Written, error) {
	return writeAtomic(path, func(w io.Writer) (int, error) {
		for i, line := range lines {
			if _, err := io.WriteString(w, line); err != nil {
				return i, err
			}
			if _, err := io.WriteString(w, "\n"); err != nil {
				return i, err
			}
		}
		return len(lines), nil
	})
}
