package enum

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// AzureEnumerator enumerates the blobs of an Azure storage container. The
// container URL carries its own authorization (a SAS token) or points at a
// public container.
type AzureEnumerator struct {
	containerURL string
	config       Config
	// Prefix restricts enumeration to blob names starting with it.
	Prefix string
	// ClientOptions are passed to the container client (nil for defaults).
	ClientOptions *container.ClientOptions
}

// NewAzureEnumerator creates a new Azure container enumerator.
func NewAzureEnumerator(containerURL string, config Config) *AzureEnumerator {
	return &AzureEnumerator{containerURL: containerURL, config: config}
}

// Enumerate lists the container and yields one source per blob. Blob
// bodies are downloaded when the source is opened.
func (e *AzureEnumerator) Enumerate(ctx context.Context, yield YieldFunc) error {
	client, err := container.NewClientWithNoCredential(e.containerURL, e.ClientOptions)
	if err != nil {
		return fmt.Errorf("failed to create container client: %w", err)
	}
	containerName := containerNameOf(client.URL())

	opts := &container.ListBlobsFlatOptions{}
	if e.Prefix != "" {
		opts.Prefix = &e.Prefix
	}

	pager := client.NewListBlobsFlatPager(opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list container %s: %w", containerName, err)
		}

		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			name := *item.Name
			size := int64(-1)
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}

			if e.config.MaxFileSize > 0 && size > e.config.MaxFileSize {
				e.config.Logger.Debug().Str("blob", name).Int64("size", size).Msg("skipping blob over size limit")
				continue
			}

			blobClient := client.NewBlobClient(name)
			prov := types.BlobProvenance{
				Container: containerName,
				Name:      name,
				URL:       stripQuery(blobClient.URL()),
			}
			err := yield(Source{
				Label:      prov.Path(),
				Provenance: prov,
				Size:       size,
				Open: func(ctx context.Context) (io.ReadCloser, error) {
					resp, err := blobClient.DownloadStream(ctx, nil)
					if err != nil {
						return nil, fmt.Errorf("failed to download %s: %w", prov.Path(), err)
					}
					return resp.Body, nil
				},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// stripQuery removes the SAS token from a URL for display.
func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

// containerNameOf returns the last path segment of a container URL.
func containerNameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return path.Base(strings.TrimSuffix(u.Path, "/"))
}
