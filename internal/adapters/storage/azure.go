package storage

import (
	"context"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// AzureStorage implements ObjectStorage for Azure Blob Storage.
type AzureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
	filter    output.ExtensionFilter
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
	Filter           output.ExtensionFilter
}

// NewAzureStorage creates a new Azure Blob Storage adapter.
func NewAzureStorage(cfg AzureConfig) (*AzureStorage, error) {
	var (
		client *azblob.Client
		err    error
	)

	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
		}
	}
	if err != nil {
		return nil, err
	}

	return &AzureStorage{
		client:    client,
		container: cfg.Container,
		prefix:    strings.TrimSuffix(cfg.Prefix, "/"),
		filter:    cfg.Filter,
	}, nil
}

// List returns all cacheable blobs in the container.
func (s *AzureStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix:  &s.prefix,
		Include: container.ListBlobsInclude{Metadata: true},
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, &domain.StorageError{Operation: "list", Err: err}
		}

		for _, blob := range page.Segment.BlobItems {
			obj, ok := s.blobToStorageObject(blob)
			if ok {
				objects = append(objects, obj)
			}
		}
	}

	return objects, nil
}

// blobToStorageObject converts an Azure blob to a StorageObject.
// Returns false if the blob should be skipped.
func (s *AzureStorage) blobToStorageObject(blob *container.BlobItem) (output.StorageObject, bool) {
	if blob.Name == nil || !s.filter.Match(*blob.Name) {
		return output.StorageObject{}, false
	}

	obj := output.StorageObject{
		Key:     strings.TrimPrefix(strings.TrimPrefix(*blob.Name, s.prefix), "/"),
		Version: metadataVersion(blob.Metadata),
	}

	if p := blob.Properties; p != nil {
		if p.ContentLength != nil {
			obj.Size = *p.ContentLength
			obj.SizeKnown = true
		}
		if p.LastModified != nil {
			obj.LastModified = p.LastModified.Unix()
		}
		if p.ETag != nil {
			obj.ETag = strings.Trim(string(*p.ETag), "\"")
		}
	}
	return obj, true
}

// Stat returns the properties of a blob.
func (s *AzureStorage) Stat(ctx context.Context, key string) (output.StorageObject, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(s.fullKey(key))

	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return output.StorageObject{}, &domain.StorageError{Operation: "stat", Key: key, Err: mapAzureError(err)}
	}

	obj := output.StorageObject{
		Key:     key,
		Version: metadataVersion(props.Metadata),
	}
	if props.ContentLength != nil {
		obj.Size = *props.ContentLength
		obj.SizeKnown = true
	}
	if props.LastModified != nil {
		obj.LastModified = props.LastModified.Unix()
	}
	if props.ETag != nil {
		obj.ETag = strings.Trim(string(*props.ETag), "\"")
	}
	return obj, nil
}

// GetReader returns a reader for the given blob.
func (s *AzureStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, s.fullKey(key), nil)
	if err != nil {
		return nil, &domain.StorageError{Operation: "read", Key: key, Err: mapAzureError(err)}
	}
	return resp.Body, nil
}

// fullKey returns the full blob name including prefix.
func (s *AzureStorage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func metadataVersion(md map[string]*string) string {
	for k, v := range md {
		if strings.EqualFold(k, versionMetadataKey) && v != nil {
			return *v
		}
	}
	return ""
}

func mapAzureError(err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return domain.ErrObjectNotFound
	}
	return err
}
