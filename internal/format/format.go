// Package format decodes blobs into schemas and records. Each adapter is a
// FormatHandler registered under the kind tag of its descriptor.
package format

import (
	"context"
	"sync"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
	"nexus-catalog/internal/storage"
)

// FormatHandler infers the schema of a blob and opens record sources over it.
type FormatHandler interface {
	InferSchema(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*model.RecordSchema, error)
	CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) (RecordSource, error)
}

// RecordSource is a forward-only, single-pass cursor over records:
//
//	for rs.Next() {
//		r := rs.Record()
//	}
//	if err := rs.Err(); err != nil { ... }
//
// A RecordSource must be closed whether or not it was exhausted.
type RecordSource interface {
	Next() bool
	Record() model.Record
	Err() error
	Close() error
}

type (
	Factory  = registry.Factory[model.FormatDescriptor, FormatHandler]
	Registry = registry.Registry[model.FormatDescriptor, FormatHandler]
)

var providers registry.Providers[model.FormatDescriptor, FormatHandler]

// Register makes a format factory available to registries created by NewRegistry.
func Register(f Factory) {
	providers.Register(f)
}

func KindOf(d model.FormatDescriptor) string {
	if d == nil {
		return ""
	}
	return d.FormatKind()
}

func NewRegistry() *Registry {
	return registry.New("format", KindOf, providers.Snapshot)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

func DefaultRegistry() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// register is the common shape of the bundled adapters' init functions.
func register[T any, PT interface {
	*T
	model.FormatDescriptor
}](kind string, defaults func() PT, create func(d *T) (FormatHandler, error)) {
	Register(registry.FactoryFunc[model.FormatDescriptor, FormatHandler]{
		KindName:   kind,
		Descriptor: func() model.FormatDescriptor { return defaults() },
		CreateFunc: func(_ context.Context, d model.FormatDescriptor) (FormatHandler, error) {
			desc, err := registry.As[T](d)
			if err != nil {
				return nil, err
			}
			return create(desc)
		},
	})
}
