// Package mapping classifies blobs into logical tables and extracts
// per-blob attribute values.
package mapping

import (
	"context"
	"sync"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
	"nexus-catalog/internal/storage"
)

// TableMapping is the outcome of classifying one blob.
type TableMapping struct {
	TableName       string            `json:"tableName"`
	PartitionValues map[string]string `json:"partitionValues,omitempty"`
}

// BlobToTableMapper classifies a blob. A nil mapping with a nil error means the
// blob does not belong to any table of this reader.
type BlobToTableMapper interface {
	MapToTable(blob storage.BlobPath) (*TableMapping, error)
}

// MapperFunc adapts a function to BlobToTableMapper.
type MapperFunc func(blob storage.BlobPath) (*TableMapping, error)

func (f MapperFunc) MapToTable(blob storage.BlobPath) (*TableMapping, error) {
	return f(blob)
}

type (
	Factory  = registry.Factory[model.TableMappingDescriptor, BlobToTableMapper]
	Registry = registry.Registry[model.TableMappingDescriptor, BlobToTableMapper]
)

var providers registry.Providers[model.TableMappingDescriptor, BlobToTableMapper]

// Register makes a mapper factory available to registries created by NewRegistry.
func Register(f Factory) {
	providers.Register(f)
}

func KindOf(d model.TableMappingDescriptor) string {
	if d == nil {
		return ""
	}
	return d.MappingKind()
}

func NewRegistry() *Registry {
	return registry.New("table mapping", KindOf, providers.Snapshot)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

func DefaultRegistry() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

func init() {
	Register(registry.FactoryFunc[model.TableMappingDescriptor, BlobToTableMapper]{
		KindName:   KindRegex,
		Descriptor: func() model.TableMappingDescriptor { return &RegexDescriptor{TableNameGroup: DefaultTableNameGroup} },
		CreateFunc: func(_ context.Context, d model.TableMappingDescriptor) (BlobToTableMapper, error) {
			desc, err := registry.As[RegexDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewRegexMapper(desc.Pattern, desc.TableNameGroup)
		},
	})
	Register(registry.FactoryFunc[model.TableMappingDescriptor, BlobToTableMapper]{
		KindName:   KindDirectory,
		Descriptor: func() model.TableMappingDescriptor { return &DirectoryDescriptor{Depth: 1} },
		CreateFunc: func(_ context.Context, d model.TableMappingDescriptor) (BlobToTableMapper, error) {
			desc, err := registry.As[DirectoryDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewDirectoryMapper(desc.Depth)
		},
	})
	Register(registry.FactoryFunc[model.TableMappingDescriptor, BlobToTableMapper]{
		KindName:   KindGlob,
		Descriptor: func() model.TableMappingDescriptor { return &GlobDescriptor{} },
		CreateFunc: func(_ context.Context, d model.TableMappingDescriptor) (BlobToTableMapper, error) {
			desc, err := registry.As[GlobDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewGlobMapper(desc.Pattern, desc.TableName)
		},
	})
}
