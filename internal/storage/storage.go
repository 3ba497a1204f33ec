// Package storage provides blob sources: flat listings of the files under a
// storage location plus a way to open each one.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

// BlobPath identifies one blob. ID is backend-specific (object key, relative
// path), URI is the absolute location. Two BlobPaths are equal when both match.
type BlobPath struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// NewBlobPath builds a blob path from an id and a URI.
func NewBlobPath(id string, u *url.URL) BlobPath {
	return BlobPath{ID: id, URI: u.String()}
}

// Path returns the path component of the URI, which is what table mappers and
// attribute extractors match against.
func (b BlobPath) Path() string {
	u, err := url.Parse(b.URI)
	if err != nil {
		if i := strings.Index(b.URI, "://"); i >= 0 {
			rest := b.URI[i+3:]
			if j := strings.Index(rest, "/"); j >= 0 {
				return rest[j:]
			}
			return ""
		}
		return b.URI
	}
	if u.Path == "" && u.Opaque != "" {
		return u.Opaque
	}
	return u.Path
}

// Name returns the last path element.
func (b BlobPath) Name() string {
	return path.Base(b.Path())
}

func (b BlobPath) String() string {
	return b.URI
}

// BlobSource lists and opens the blobs of one storage location. Close releases
// any underlying client and must be safe to call more than once.
type BlobSource interface {
	ListBlobs(ctx context.Context) ([]BlobPath, error)
	Open(ctx context.Context, blob BlobPath) (io.ReadCloser, error)
	Close() error
}

type (
	Factory  = registry.Factory[model.StorageDescriptor, BlobSource]
	Registry = registry.Registry[model.StorageDescriptor, BlobSource]
)

var providers registry.Providers[model.StorageDescriptor, BlobSource]

// Register makes a storage factory available to registries created by
// NewRegistry. It is intended to be called from init functions.
func Register(f Factory) {
	providers.Register(f)
}

// KindOf returns the descriptor's kind, or "" for a nil descriptor.
func KindOf(d model.StorageDescriptor) string {
	if d == nil {
		return ""
	}
	return d.StorageKind()
}

// NewRegistry returns a registry over every registered storage factory.
func NewRegistry() *Registry {
	return registry.New("storage", KindOf, providers.Snapshot)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the process-wide storage registry.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// ReadAll opens a blob and reads it fully. Formats that need random access
// (parquet, arrow, excel) go through here.
func ReadAll(ctx context.Context, src BlobSource, blob BlobPath) ([]byte, error) {
	rc, err := src.Open(ctx, blob)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", blob.URI, err)
	}
	return data, nil
}

// joinKey joins a prefix and a key the way object stores expect.
func joinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + strings.TrimPrefix(key, "/")
}

// objectURI builds scheme://bucket/key.
func objectURI(scheme, bucket, key string) *url.URL {
	return &url.URL{Scheme: scheme, Host: bucket, Path: "/" + strings.TrimPrefix(key, "/")}
}

// isDirMarker reports keys that some object stores use to represent folders.
func isDirMarker(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}
