package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

const KindAzure = "azure"

// AzureDescriptor points at an Azure Blob Storage container. Either AccountKey
// or SASToken authenticates; with neither the container must be public.
type AzureDescriptor struct {
	AccountName string `mapstructure:"accountName" json:"accountName" validate:"required"`
	AccountKey  string `mapstructure:"accountKey" json:"accountKey,omitempty"`
	SASToken    string `mapstructure:"sasToken" json:"sasToken,omitempty"`
	Container   string `mapstructure:"container" json:"container" validate:"required"`
	Prefix      string `mapstructure:"prefix" json:"prefix,omitempty"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint,omitempty"`
}

func (AzureDescriptor) StorageKind() string { return KindAzure }

func init() {
	Register(registry.FactoryFunc[model.StorageDescriptor, BlobSource]{
		KindName:   KindAzure,
		Descriptor: func() model.StorageDescriptor { return &AzureDescriptor{} },
		CreateFunc: func(_ context.Context, d model.StorageDescriptor) (BlobSource, error) {
			desc, err := registry.As[AzureDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewAzureSource(desc)
		},
	})
}

type AzureSource struct {
	client    *azblob.Client
	account   string
	container string
	prefix    string
}

func NewAzureSource(desc *AzureDescriptor) (*AzureSource, error) {
	if desc.AccountName == "" {
		return nil, fmt.Errorf("account name is required")
	}
	if desc.Container == "" {
		return nil, fmt.Errorf("container is required")
	}

	blobURL := fmt.Sprintf("https://%s.blob.core.windows.net/", desc.AccountName)
	if desc.Endpoint != "" {
		blobURL = desc.Endpoint
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case desc.AccountKey != "":
		credential, credErr := azblob.NewSharedKeyCredential(desc.AccountName, desc.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(blobURL, credential, nil)
	default:
		if desc.SASToken != "" {
			blobURL = strings.TrimSuffix(blobURL, "/") + "/?" + strings.TrimPrefix(desc.SASToken, "?")
		}
		client, err = azblob.NewClientWithNoCredential(blobURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureSource{
		client:    client,
		account:   desc.AccountName,
		container: desc.Container,
		prefix:    desc.Prefix,
	}, nil
}

func (s *AzureSource) ListBlobs(ctx context.Context) ([]BlobPath, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if s.prefix != "" {
		opts.Prefix = &s.prefix
	}

	var blobs []BlobPath
	pager := s.client.NewListBlobsFlatPager(s.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs in %s: %w", s.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil || isDirMarker(*item.Name) {
				continue
			}
			name := *item.Name
			u := objectURI("abfs", s.account, s.container+"/"+name)
			blobs = append(blobs, NewBlobPath(name, u))
		}
	}
	return blobs, nil
}

func (s *AzureSource) Open(ctx context.Context, blob BlobPath) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, blob.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", blob.URI, err)
	}
	return resp.Body, nil
}

func (s *AzureSource) Close() error { return nil }
