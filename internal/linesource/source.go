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

// Package linesource streams raw text lines from a single file or from a
// directory of "part-*" partition files.
package linesource

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PartPrefix is the name prefix of partition files inside an input
	// directory.
	PartPrefix = "part-"

	// DefaultMaxLineBytes bounds a single line.
	DefaultMaxLineBytes = 16 * 1024 * 1024
)

// Reader yields lines in order. Next returns io.EOF when there are no more
// lines.
type Reader interface {
	Next() (string, error)
	Position() Position
	Close() error
}

// Position identifies the line most recently returned by Next.
type Position struct {
	File string
	Line int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var firstErr error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Source concatenates the lines of one or more files. It is a single
// forward pass; callers that need the data twice must buffer it.
type Source struct {
	files        []string
	maxLineBytes int

	fileIndex int
	current   io.ReadCloser
	scanner   *bufio.Scanner
	line      int
	closed    bool
}

var _ Reader = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithMaxLineBytes overrides DefaultMaxLineBytes.
func WithMaxLineBytes(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxLineBytes = n
		}
	}
}

// Open resolves path into the list of files to read. A missing path, or a
// directory holding no partition files, returns a NotFoundError before any
// file is opened.
func Open(path string, opts ...Option) (*Source, error) {
	files, err := ListFiles(path)
	if err != nil {
		return nil, err
	}
	s := &Source{
		files:        files,
		maxLineBytes: DefaultMaxLineBytes,
		fileIndex:    -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListFiles returns path itself for a plain file, or the partition files of a
// directory in listing order.
func ListFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("stat input %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read input directory %s: %w", path, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), PartPrefix) {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	if len(files) == 0 {
		return nil, &NotFoundError{Path: path, Reason: "no " + PartPrefix + "* files in directory"}
	}
	return files, nil
}

// Files returns the files this source reads, in order.
func (s *Source) Files() []string {
	return s.files
}

func (s *Source) openNext() error {
	s.fileIndex++
	if s.fileIndex >= len(s.files) {
		return io.EOF
	}
	name := s.files[s.fileIndex]
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	var rc io.ReadCloser = f
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("gzip reader for %s: %w", name, err)
		}
		rc = &multiReadCloser{Reader: gz, closers: []io.Closer{gz, f}}
	}

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, min(64*1024, s.maxLineBytes)), s.maxLineBytes)
	s.current = rc
	s.scanner = scanner
	s.line = 0
	return nil
}

func (s *Source) closeCurrent() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.scanner = nil
	return err
}

// Next returns the next line without its terminator.
func (s *Source) Next() (string, error) {
	if s.closed {
		return "", io.EOF
	}
	for {
		if s.scanner == nil {
			if err := s.openNext(); err != nil {
				return "", err
			}
		}
		if s.scanner.Scan() {
			s.line++
			return s.scanner.Text(), nil
		}
		if err := s.scanner.Err(); err != nil {
			return "", fmt.Errorf("reading %s after line %d: %w", s.files[s.fileIndex], s.line, err)
		}
		if err := s.closeCurrent(); err != nil {
			return "", fmt.Errorf("close %s: %w", s.files[s.fileIndex], err)
		}
	}
}

func (s *Source) Position() Position {
	if s.fileIndex < 0 || s.fileIndex >= len(s.files) {
		return Position{Line: s.line}
	}
	return Position{File: s.files[s.fileIndex], Line: s.line}
}

func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.closeCurrent()
}

// SliceReader serves lines already held in memory.
type SliceReader struct {
	lines []string
	next  int
}

var _ Reader = (*SliceReader)(nil)

func FromLines(lines []string) *SliceReader {
	return &SliceReader{lines: lines}
}

func (r *SliceReader) Next() (string, error) {
	if r.next >= len(r.lines) {
		return "", io.EOF
	}
	line := r.lines[r.next]
	r.next++
	return line, nil
}

func (r *SliceReader) Position() Position {
	return Position{Line: r.next}
}

func (r *SliceReader) Close() error {
	return nil
}

// ReadAll drains r into memory.
func ReadAll(r Reader) ([]string, error) {
	var lines []string
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
}
