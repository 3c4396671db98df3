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
	"io"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type azureClient struct {
	client *azblob.Client
}

// NewAzureClient connects to the storage account at accountURL with the
// default Azure credential chain.
func NewAzureClient(accountURL string) (Client, error) {
	if accountURL == "" {
		return nil, fmt.Errorf("azure account URL is required")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("loading Azure credentials: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &azureClient{client: client}, nil
}

func (c *azureClient) ListObjects(ctx context.Context, container, prefix string) ([]Object, error) {
	ctx, span := tracer.Start(ctx, "objstore.azureListObjects",
		trace.WithAttributes(
			attribute.String("bucket", container),
			attribute.String("prefix", prefix),
		),
	)
	defer span.End()

	var objects []Object
	pager := c.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("list azblob://%s/%s: %w", container, prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			obj := Object{Key: *item.Name}
			if item.Properties != nil && item.Properties.ContentLength != nil {
				obj.Size = *item.Properties.ContentLength
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

func (c *azureClient) DownloadObject(ctx context.Context, tmpdir, container, key string) (string, int64, bool, error) {
	ctx, span := tracer.Start(ctx, "objstore.azureDownloadObject",
		trace.WithAttributes(
			attribute.String("bucket", container),
			attribute.String("key", key),
		),
	)
	defer span.End()

	f, err := os.CreateTemp(tmpdir, "*-"+filepath.Base(key))
	if err != nil {
		return "", 0, false, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	resp, err := c.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		_ = os.Remove(f.Name())
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			recordDownloadError(ctx, container, "not_found")
			return "", 0, true, nil
		}
		recordDownloadError(ctx, container, "unknown")
		return "", 0, false, fmt.Errorf("download blob %s/%s: %w", container, key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	size, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = os.Remove(f.Name())
		recordDownloadError(ctx, container, "copy_failed")
		return "", 0, false, fmt.Errorf("copy blob content: %w", err)
	}

	recordDownload(ctx, container, size)
	return f.Name(), size, false, nil
}
