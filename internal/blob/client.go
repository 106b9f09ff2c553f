// Package blob lists inventory candidates stored in Azure Blob Storage.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/fileevent-populator/internal/config"
	"github.com/fileevent-populator/internal/inventory"
)

// BlobInfo represents metadata about a blob
type BlobInfo struct {
	Name         string
	LastModified time.Time
	Size         int64
}

// Lister returns every blob in a container whose name starts with prefix,
// in lexical order.
type Lister interface {
	ListBlobs(ctx context.Context, containerName, prefix string) ([]BlobInfo, error)
}

// Client wraps the Azure Blob SDK service client for one storage account
type Client struct {
	serviceClient *service.Client
}

// NewClient creates a service client using the configured authentication method
func NewClient(cfg config.AzureConfig) (*Client, error) {
	var serviceClient *service.Client
	var cred azcore.TokenCredential
	var err error

	serviceURL := cfg.GetServiceURL()

	switch cfg.GetAuthMethod() {
	case "connection_string":
		serviceClient, err = service.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}

	case "sas_token":
		sasURL := serviceURL
		if !strings.HasPrefix(cfg.SASToken, "?") {
			sasURL += "?"
		}
		sasURL += cfg.SASToken
		serviceClient, err = service.NewClientWithNoCredential(sasURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with SAS token: %w", err)
		}

	case "managed_identity":
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		serviceClient, err = service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with managed identity: %w", err)
		}

	case "service_principal":
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create service principal credential: %w", err)
		}
		serviceClient, err = service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with service principal: %w", err)
		}

	default:
		return nil, fmt.Errorf("no valid authentication method configured")
	}

	return &Client{serviceClient: serviceClient}, nil
}

// ListBlobs lists all blobs in a container under prefix
func (c *Client) ListBlobs(ctx context.Context, containerName, prefix string) ([]BlobInfo, error) {
	var blobs []BlobInfo

	containerClient := c.serviceClient.NewContainerClient(containerName)
	pager := containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}

		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}

			info := BlobInfo{Name: *item.Name}
			if item.Properties != nil {
				if item.Properties.LastModified != nil {
					info.LastModified = *item.Properties.LastModified
				}
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
			}
			blobs = append(blobs, info)
		}
	}

	return blobs, nil
}

// Location is a parsed azblob://container/prefix source location.
type Location struct {
	Container string
	// Prefix is empty or ends with "/".
	Prefix string
}

// ParseLocation splits an azblob:// source location into container and prefix.
func ParseLocation(location string) (Location, error) {
	rest, ok := strings.CutPrefix(location, config.AzureBlobScheme)
	if !ok {
		return Location{}, fmt.Errorf("invalid blob location %q: missing %s scheme", location, config.AzureBlobScheme)
	}

	containerName, prefix, _ := strings.Cut(rest, "/")
	if containerName == "" {
		return Location{}, fmt.Errorf("invalid blob location %q: missing container", location)
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return Location{Container: containerName, Prefix: prefix}, nil
}

// Source exposes one container prefix as an inventory source. Blob storage
// has no directories to fail on, so a listing error always fails the walk.
type Source struct {
	location string
	parsed   Location
	lister   Lister
}

// NewSource returns a source for an azblob:// location listed through lister.
func NewSource(location string, lister Lister) (*Source, error) {
	parsed, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	return &Source{location: location, parsed: parsed, lister: lister}, nil
}

func (s *Source) Location() string {
	return s.location
}

// Walk visits blobs under the prefix. A blob's depth is the number of "/"
// separators after the prefix.
func (s *Source) Walk(ctx context.Context, maxDepth int, visit inventory.VisitFunc) error {
	blobs, err := s.lister.ListBlobs(ctx, s.parsed.Container, s.parsed.Prefix)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", inventory.ErrSourceUnavailable, s.location, err)
	}

	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := strings.TrimPrefix(b.Name, s.parsed.Prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		if maxDepth > 0 && Depth(rel) > maxDepth {
			continue
		}

		full := config.AzureBlobScheme + s.parsed.Container + "/" + b.Name
		entry := &inventory.Entry{
			Path:    full,
			Name:    path.Base(b.Name),
			ModTime: b.LastModified,
			Size:    b.Size,
		}
		if err := visit(full, entry, nil); err != nil {
			return err
		}
	}
	return nil
}

// Depth returns the folder depth of a blob name relative to the source prefix.
func Depth(rel string) int {
	return strings.Count(rel, "/")
}
