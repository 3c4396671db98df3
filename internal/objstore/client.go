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

// Package objstore stages remote input objects onto local disk so they can
// be read like any other input.
package objstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	SchemeS3    = "s3"
	SchemeAzure = "azblob"
	SchemeFile  = "file"
)

// Object is one listed object.
type Object struct {
	Key  string
	Size int64
}

// Client is the minimal object store surface needed for staging.
type Client interface {
	// ListObjects returns every object whose key starts with prefix, in
	// the order the store lists them.
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	// DownloadObject downloads an object to a temp file in tmpdir.
	// Returns the temp filename, size, whether the object was not found, and error.
	DownloadObject(ctx context.Context, tmpdir, bucket, key string) (filename string, size int64, notFound bool, err error)
}

// Location is a parsed remote input path.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return "file://" + l.Key
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// ParseLocation parses s3://bucket/key, azblob://container/key and
// file:///abs/path. ok is false for plain local paths.
func ParseLocation(input string) (loc Location, ok bool, err error) {
	scheme, _, found := strings.Cut(input, "://")
	if !found {
		return Location{}, false, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return Location{}, false, fmt.Errorf("parse input location %q: %w", input, err)
	}
	switch scheme {
	case SchemeS3, SchemeAzure:
		if u.Host == "" {
			return Location{}, false, fmt.Errorf("input location %q has no bucket", input)
		}
		return Location{Scheme: scheme, Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, true, nil
	case SchemeFile:
		if u.Path == "" {
			return Location{}, false, fmt.Errorf("input location %q has no path", input)
		}
		return Location{Scheme: SchemeFile, Key: u.Path}, true, nil
	default:
		return Location{}, false, fmt.Errorf("unsupported input scheme %q", scheme)
	}
}
