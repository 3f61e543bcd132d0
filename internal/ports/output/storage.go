// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/jobrunner/flightcache/internal/domain"
)

// ObjectStorage defines the secondary port for the remote origin.
type ObjectStorage interface {
	// List returns all cacheable objects in the storage.
	List(ctx context.Context) ([]StorageObject, error)

	// Stat returns the metadata of a single object.
	Stat(ctx context.Context, key string) (StorageObject, error)

	// GetReader returns a reader for the given object.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
}

// StorageObject represents a file in object storage.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes, valid when SizeKnown
	SizeKnown    bool   // False when the listing carries no size
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
	Version      string // Optional version label
}

// Metadata converts the object into domain remote metadata.
func (o StorageObject) Metadata() domain.RemoteMetadata {
	m := domain.RemoteMetadata{
		Size:    max(o.Size, 0),
		ETag:    o.ETag,
		Version: o.Version,
	}
	if o.LastModified != 0 {
		m.LastModified = time.Unix(o.LastModified, 0).UTC()
	}
	return m
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeHTTP  StorageType = "http"
	StorageTypeLocal StorageType = "local"
)

// DefaultExtensions lists the object suffixes cached when none are
// configured. Mirror index files such as index.txt do not match.
var DefaultExtensions = ExtensionFilter{".mbtiles", ".geojson", ".terrain", ".dem", ".tif"}

// ExtensionFilter decides which object keys are cacheable.
type ExtensionFilter []string

// Match reports whether key ends in one of the configured extensions.
// An empty filter and the entry "*" match everything.
func (f ExtensionFilter) Match(key string) bool {
	if len(f) == 0 {
		return true
	}
	lower := strings.ToLower(key)
	for _, ext := range f {
		if ext == "*" || strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
